package serialport

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenMissingDeviceGivesUp(t *testing.T) {
	t.Parallel()

	start := time.Now()
	_, err := Open(context.Background(), Config{
		Device:  filepath.Join(t.TempDir(), "ttyUSB9"),
		MaxWait: 600 * time.Millisecond,
	}, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestOpenHonoursContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := Open(ctx, Config{Device: filepath.Join(t.TempDir(), "ttyACM0"), MaxWait: time.Minute}, nil)
	require.Error(t, err)
}

func TestUnsupportedBaudIsPermanent(t *testing.T) {
	t.Parallel()

	start := time.Now()
	_, err := Open(context.Background(), Config{Device: "/dev/null", Baud: 12345, MaxWait: time.Minute}, nil)
	assert.ErrorIs(t, err, ErrUnsupportedBaud)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetryable(t *testing.T) {
	t.Parallel()

	assert.True(t, retryable(fs.ErrNotExist))
	assert.True(t, retryable(errors.New("device busy")))
	assert.False(t, retryable(fs.ErrPermission))
	assert.False(t, retryable(ErrUnsupportedBaud))
}

func TestListMatching(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, name := range []string{"ttyACM1", "ttyACM0", "ttyUSB0", "console"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0o600))
	}
	got := listMatching([]string{
		filepath.Join(dir, "ttyUSB*"),
		filepath.Join(dir, "ttyACM*"),
		filepath.Join(dir, "tty*"),
	})
	assert.Equal(t, []string{
		filepath.Join(dir, "ttyACM0"),
		filepath.Join(dir, "ttyACM1"),
		filepath.Join(dir, "ttyUSB0"),
	}, got)
	assert.Empty(t, listMatching([]string{"[invalid"}))
}
