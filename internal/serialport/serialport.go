// Package serialport opens a tty as a raw byte channel for record exchange
// with a sensor board.
package serialport

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/samcharles93/locus/internal/logger"
)

const (
	DefaultBaud = 115200
	// DefaultSettle is how long boards that reset on open need before they
	// accept input.
	DefaultSettle = 2 * time.Second
)

var ErrUnsupportedBaud = errors.New("serialport: unsupported baud rate")

type Config struct {
	Device string
	Baud   int
	Settle time.Duration
	// MaxWait bounds the total time spent retrying the open.
	MaxWait time.Duration
}

// Port is an open raw-mode tty. It is an io.ReadWriteCloser.
type Port struct {
	f       *os.File
	device  string
	restore func() error

	closeOnce sync.Once
	closeErr  error
}

func (p *Port) Read(b []byte) (int, error)  { return p.f.Read(b) }
func (p *Port) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *Port) Device() string              { return p.device }

// Close restores the previous terminal settings and closes the device. A
// Read blocked in another goroutine returns once the port is closed. Close
// may be called more than once.
func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		var rerr error
		if p.restore != nil {
			rerr = p.restore()
		}
		p.closeErr = errors.Join(rerr, p.f.Close())
	})
	return p.closeErr
}

// Open opens cfg.Device, switches it to raw mode at cfg.Baud and waits
// cfg.Settle before returning. Opening is retried with exponential backoff
// while the device is missing or busy.
func Open(ctx context.Context, cfg Config, log logger.Logger) (*Port, error) {
	if cfg.Baud == 0 {
		cfg.Baud = DefaultBaud
	}
	if cfg.MaxWait == 0 {
		cfg.MaxWait = 30 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("component", "serial", "device", cfg.Device)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 250 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = cfg.MaxWait

	var port *Port
	op := func() error {
		p, err := openPort(cfg.Device, cfg.Baud)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		port = p
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("open failed, retrying", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(policy, ctx), notify); err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}

	if cfg.Settle > 0 {
		log.Debug("waiting for device to settle", "settle", cfg.Settle)
		select {
		case <-ctx.Done():
			_ = port.Close()
			return nil, ctx.Err()
		case <-time.After(cfg.Settle):
		}
	}
	if err := port.flush(); err != nil {
		log.Debug("flush input failed", "error", err)
	}
	log.Info("serial port open", "baud", cfg.Baud)
	return port, nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrUnsupportedBaud) || errors.Is(err, fs.ErrPermission) {
		return false
	}
	return true
}

// candidatePatterns match the device nodes USB serial boards usually appear
// as on Linux and macOS.
var candidatePatterns = []string{
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/serial/by-id/*",
	"/dev/cu.usbmodem*",
	"/dev/cu.usbserial*",
}

// List returns the serial devices that look like attached boards, sorted.
func List() []string {
	return listMatching(candidatePatterns)
}

func listMatching(patterns []string) []string {
	var out []string
	for _, p := range patterns {
		m, err := filepath.Glob(p)
		if err != nil {
			continue
		}
		out = append(out, m...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}
