package main

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/locus/internal/engine"
	"github.com/samcharles93/locus/pkg/quant"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// runWith executes a throwaway command carrying the model and quant flags so
// IsSet reflects args, then hands the command to fn.
func runWith(t *testing.T, args []string, fn func(c *cli.Command)) {
	t.Helper()
	cmd := &cli.Command{
		Name:  "test",
		Flags: append(commonModelFlags(), quantFlags()...),
		Action: func(ctx context.Context, c *cli.Command) error {
			fn(c)
			return nil
		},
	}
	require.NoError(t, cmd.Run(context.Background(), append([]string{"test"}, args...)))
}

func TestLoadConfigMissingFile(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)

	cfg, err = LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Config{}, cfg)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
model: /srv/models/grid.mcf
arena_size: 4096
inputs: 16
strict: true
input_quant:
  scale: 0.05
  zero_point: -3
device: /dev/ttyACM0
baud: 57600
server_address: 0.0.0.0:9000
log_level: debug
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/models/grid.mcf", cfg.Model)
	require.NotNil(t, cfg.ArenaSize)
	assert.EqualValues(t, 4096, *cfg.ArenaSize)
	require.NotNil(t, cfg.InputQuant)
	assert.Equal(t, quant.Params{Scale: 0.05, ZeroPoint: -3}, *cfg.InputQuant)
	assert.Nil(t, cfg.OutputQuant)
	assert.Equal(t, "/dev/ttyACM0", cfg.Device)
	assert.EqualValues(t, 57600, *cfg.Baud)
	assert.Equal(t, "0.0.0.0:9000", cfg.ServerAddress)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := map[string]string{
		"malformed":   "model: [unterminated",
		"outputs":     "outputs: 3",
		"zero scale":  "output_quant:\n  scale: 0\n",
		"wide offset": "input_quant:\n  scale: 1\n  zero_point: 300\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestApplyModelConfigRespectsFlags(t *testing.T) {
	size := int64(2048)
	on := true
	cfg := Config{Model: "/from/config.mcf", ArenaSize: &size, Strict: &on}

	runWith(t, []string{"--model", "/from/flag.mcf"}, func(c *cli.Command) {
		applyModelConfig(c, cfg)
	})
	assert.Equal(t, "/from/flag.mcf", modelPath)
	assert.EqualValues(t, 2048, arenaSize)
	assert.True(t, strict)
	assert.True(t, recordParser().Strict)
}

func TestEngineConfigQuantPrecedence(t *testing.T) {
	cfg := Config{
		InputQuant:  &quant.Params{Scale: 0.1, ZeroPoint: 4},
		OutputQuant: &quant.Params{Scale: 0.2, ZeroPoint: 1},
	}

	var ec engine.Config
	runWith(t, []string{"--input-scale", "0.5"}, func(c *cli.Command) {
		ec = engineConfig(c, cfg)
	})
	require.NotNil(t, ec.InputQuant)
	assert.Equal(t, quant.Params{Scale: 0.5, ZeroPoint: 4}, *ec.InputQuant)
	assert.Equal(t, cfg.OutputQuant, ec.OutputQuant)
	assert.Equal(t, engine.Outputs, ec.Outputs)
	assert.Equal(t, engine.DefaultArenaSize, ec.ArenaSize)

	runWith(t, nil, func(c *cli.Command) {
		ec = engineConfig(c, Config{})
	})
	assert.Nil(t, ec.InputQuant)
	assert.Nil(t, ec.OutputQuant)
}

func TestZeroPointFlagRange(t *testing.T) {
	cmd := &cli.Command{
		Name:   "test",
		Flags:  quantFlags(),
		Action: func(context.Context, *cli.Command) error { return nil },
	}
	err := cmd.Run(context.Background(), []string{"test", "--input-zero-point", "4294967253"})
	require.Error(t, err)

	var ec engine.Config
	runWith(t, []string{"--output-scale", "0.5", "--output-zero-point", "-128"}, func(c *cli.Command) {
		ec = engineConfig(c, Config{})
	})
	require.NotNil(t, ec.OutputQuant)
	assert.Equal(t, quant.Params{Scale: 0.5, ZeroPoint: -128}, *ec.OutputQuant)

	// Narrowing must not wrap a large value back into the int8 range.
	q := flagQuant(0.5, 4294967253, nil, true, true)
	assert.Equal(t, int32(math.MaxInt32), q.ZeroPoint)
	assert.ErrorIs(t, q.Validate(), quant.ErrInvalidZeroPoint)
}
