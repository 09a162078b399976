package feeder

import (
	"context"
	"errors"
	"io"

	"github.com/samcharles93/locus/internal/pipeline"
)

// LocalConn connects a feeder to an in-process pipeline. Records written to
// it are processed by p and the reports are read back.
type LocalConn struct {
	w    *io.PipeWriter
	r    *io.PipeReader
	done chan error
}

func NewLocalConn(ctx context.Context, p *pipeline.Pipeline) *LocalConn {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	c := &LocalConn{w: inW, r: outR, done: make(chan error, 1)}
	go func() {
		err := p.Run(ctx, inR, outW)
		_ = inR.CloseWithError(err)
		_ = outW.CloseWithError(err)
		c.done <- err
	}()
	return c
}

func (c *LocalConn) Read(b []byte) (int, error)  { return c.r.Read(b) }
func (c *LocalConn) Write(b []byte) (int, error) { return c.w.Write(b) }

// Close ends the input stream and waits for the pipeline to finish.
func (c *LocalConn) Close() error {
	_ = c.w.Close()
	_ = c.r.Close()
	if err := <-c.done; err != nil && !errors.Is(err, io.ErrClosedPipe) {
		return err
	}
	return nil
}
