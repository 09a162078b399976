package main

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/locus/internal/engine"
	"github.com/samcharles93/locus/internal/features"
	"github.com/samcharles93/locus/pkg/quant"
)

// Config represents the locus configuration file (~/.config/locus/config.yaml).
// Pointer fields distinguish "not set" from zero values.
type Config struct {
	Model     string `yaml:"model"`
	ModelsDir string `yaml:"models_dir"`

	ArenaSize   *int64        `yaml:"arena_size"`
	Inputs      *int64        `yaml:"inputs"`
	Outputs     *int64        `yaml:"outputs"`
	InputQuant  *quant.Params `yaml:"input_quant"`
	OutputQuant *quant.Params `yaml:"output_quant"`
	Strict      *bool         `yaml:"strict"`

	Device string `yaml:"device"`
	Baud   *int64 `yaml:"baud"`

	ServerAddress string `yaml:"server_address"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "locus", "config.yaml")
}

// LoadConfig reads the config file at path. A missing file yields a zero
// Config; a malformed one is an error.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	if cfg.Outputs != nil && *cfg.Outputs != engine.Outputs {
		return Config{}, fmt.Errorf("config %s: outputs is fixed at %d", path, engine.Outputs)
	}
	for name, q := range map[string]*quant.Params{"input_quant": cfg.InputQuant, "output_quant": cfg.OutputQuant} {
		if q == nil {
			continue
		}
		if err := q.Validate(); err != nil {
			return Config{}, fmt.Errorf("config %s: %s: %w", path, name, err)
		}
	}
	return cfg, nil
}

func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyModelConfig applies config file defaults to the model flags that were
// not set on the command line or through the environment.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.Model != "" && !c.IsSet("model") {
		modelPath = cfg.Model
	}
	if cfg.ModelsDir != "" && !c.IsSet("models-path") {
		modelsPath = cfg.ModelsDir
	}
	if cfg.ArenaSize != nil && !c.IsSet("arena-size") {
		arenaSize = *cfg.ArenaSize
	}
	if cfg.Inputs != nil && !c.IsSet("inputs") {
		inputs = *cfg.Inputs
	}
	if cfg.Strict != nil && !c.IsSet("strict") {
		strict = *cfg.Strict
	}
}

func applyDeviceConfig(c *cli.Command, cfg Config) {
	if cfg.Device != "" && !c.IsSet("device") {
		device = cfg.Device
	}
	if cfg.Baud != nil && !c.IsSet("baud") {
		baud = *cfg.Baud
	}
}

func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// engineConfig assembles the engine configuration. Quantization flags win
// over the config file.
func engineConfig(c *cli.Command, cfg Config) engine.Config {
	ec := engine.Config{
		ArenaSize:   int(arenaSize),
		Inputs:      int(inputs),
		Outputs:     engine.Outputs,
		InputQuant:  cfg.InputQuant,
		OutputQuant: cfg.OutputQuant,
	}
	if c.IsSet("input-scale") || c.IsSet("input-zero-point") {
		ec.InputQuant = flagQuant(inputScale, inputZeroPoint, cfg.InputQuant, c.IsSet("input-scale"), c.IsSet("input-zero-point"))
	}
	if c.IsSet("output-scale") || c.IsSet("output-zero-point") {
		ec.OutputQuant = flagQuant(outputScale, outputZeroPoint, cfg.OutputQuant, c.IsSet("output-scale"), c.IsSet("output-zero-point"))
	}
	return ec
}

func flagQuant(scale float64, zp int64, base *quant.Params, scaleSet, zpSet bool) *quant.Params {
	q := quant.Params{}
	if base != nil {
		q = *base
	}
	if scaleSet {
		q.Scale = float32(scale)
	}
	if zpSet {
		// Saturate so an out-of-range value still fails Params.Validate.
		q.ZeroPoint = int32(min(max(zp, math.MinInt32), math.MaxInt32))
	}
	return &q
}

func recordParser() features.Parser {
	p := features.DefaultParser()
	p.Fields = int(inputs)
	p.Strict = strict
	return p
}
