package feeder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/samcharles93/locus/internal/logger"
)

const (
	DefaultTimeout = 3 * time.Second
	DefaultDelay   = 500 * time.Millisecond
)

// Result is the outcome of one sample.
type Result struct {
	Sample    Sample
	X, Y      float64
	LatencyUs int64
	// HasLatency is false when the reply carried no inference time.
	HasLatency bool
	Success    bool
	// Err is the device error message or a timeout description.
	Err string
}

func (r Result) ErrorX() float64 { return math.Abs(r.X - r.Sample.TrueX) }
func (r Result) ErrorY() float64 { return math.Abs(r.Y - r.Sample.TrueY) }

// Feeder writes one record per sample to Conn and waits up to Timeout for
// the reply lines.
type Feeder struct {
	Conn    io.ReadWriter
	Timeout time.Duration
	// Delay is the pause between samples.
	Delay time.Duration
	// Warmup drains and logs device output before the first sample.
	Warmup time.Duration
	Log    logger.Logger
	// OnResult, if set, is called after every sample.
	OnResult func(i int, r Result)
}

type line struct {
	text string
	err  error
}

// Run feeds samples in order and returns one Result per sample processed.
// It stops early only on context cancellation or a broken connection.
func (f *Feeder) Run(ctx context.Context, samples []Sample) ([]Result, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	log := f.Log
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("component", "feeder")

	done := make(chan struct{})
	defer close(done)
	lines := make(chan line, 16)
	go func() {
		sc := bufio.NewScanner(f.Conn)
		for sc.Scan() {
			select {
			case lines <- line{text: sc.Text()}:
			case <-done:
				return
			}
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		select {
		case lines <- line{err: err}:
		case <-done:
		}
	}()

	if f.Warmup > 0 {
		if err := drain(ctx, lines, f.Warmup, log); err != nil {
			return nil, err
		}
	}

	results := make([]Result, 0, len(samples))
	for i, s := range samples {
		if i > 0 && f.Delay > 0 {
			if err := sleep(ctx, f.Delay); err != nil {
				return results, err
			}
		}
		if err := drain(ctx, lines, 0, log); err != nil {
			return results, err
		}
		if _, err := io.WriteString(f.Conn, s.Record()+"\n"); err != nil {
			return results, fmt.Errorf("send sample %s: %w", s.ID, err)
		}

		res, err := f.await(ctx, lines, s, timeout, log)
		if err != nil {
			return results, err
		}
		results = append(results, res)
		if f.OnResult != nil {
			f.OnResult(i, res)
		}
	}
	return results, nil
}

func (f *Feeder) await(ctx context.Context, lines <-chan line, s Sample, timeout time.Duration, log logger.Logger) (Result, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var rep Reply
	for !rep.Done() {
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
			log.Warn("no complete reply", "sample", s.ID, "timeout", timeout)
			return result(s, rep, fmt.Sprintf("timed out after %s", timeout)), nil
		case l := <-lines:
			if l.err != nil {
				return Result{}, fmt.Errorf("read reply for sample %s: %w", s.ID, l.err)
			}
			log.Debug("reply", "sample", s.ID, "line", l.text)
			rep.Scan(l.text)
		}
	}
	return result(s, rep, rep.Err), nil
}

func result(s Sample, rep Reply, errMsg string) Result {
	r := Result{Sample: s, Err: errMsg}
	if rep.X != nil && rep.Y != nil {
		r.X, r.Y = *rep.X, *rep.Y
		r.Success = true
	}
	if rep.LatencyUs != nil {
		r.LatencyUs, r.HasLatency = *rep.LatencyUs, true
	}
	return r
}

// drain discards buffered lines. With wait > 0 it keeps draining until wait
// elapses without a new line.
func drain(ctx context.Context, lines <-chan line, wait time.Duration, log logger.Logger) error {
	for {
		var l line
		if wait == 0 {
			select {
			case l = <-lines:
			default:
				return nil
			}
		} else {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case l = <-lines:
			case <-time.After(wait):
				return nil
			}
		}
		if l.err != nil {
			return fmt.Errorf("device closed: %w", l.err)
		}
		log.Debug("device", "line", l.text)
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
