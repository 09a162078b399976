// Package pipeline drives records through the parser and the engine and
// renders the text report the host side scrapes.
package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/samcharles93/locus/internal/engine"
	"github.com/samcharles93/locus/internal/features"
	"github.com/samcharles93/locus/internal/logger"
	"github.com/samcharles93/locus/internal/telemetry"
)

// Predictor is satisfied by *engine.Engine.
type Predictor interface {
	Invoke(ctx context.Context, v features.Vector) (engine.Prediction, error)
}

// Report is the result of one successfully processed record.
type Report struct {
	Features   features.Vector
	Prediction engine.Prediction
}

// WriteTo renders r in the line format consumed by the feeder.
func (r Report) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "Input: %s\nPredicted X: %.6f\nPredicted Y: %.6f\nInference time: %d μs (%.2f ms)\n",
		r.Features.Format(',', 6),
		r.Prediction.X,
		r.Prediction.Y,
		r.Prediction.LatencyMicros(),
		r.Prediction.LatencyMillis(),
	)
	return int64(n), err
}

type Pipeline struct {
	Parser    features.Parser
	Predictor Predictor
	Recorder  telemetry.Recorder
	Log       logger.Logger
}

func New(p Predictor, parser features.Parser, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.Discard()
	}
	if parser.OnDegraded == nil {
		parser.OnDegraded = func(i int, text string, value float32) {
			log.Debug("non-numeric field", "index", i, "text", text, "value", value)
		}
	}
	return &Pipeline{Parser: parser, Predictor: p, Log: log}
}

// Process parses and infers a single record.
func (p *Pipeline) Process(ctx context.Context, record string) (Report, error) {
	v, err := p.Parser.Parse(record)
	if err != nil {
		p.record(telemetry.OutcomeParseError, 0)
		return Report{}, err
	}
	return p.ProcessVector(ctx, v)
}

// ProcessVector infers an already parsed feature vector.
func (p *Pipeline) ProcessVector(ctx context.Context, v features.Vector) (Report, error) {
	pred, err := p.Predictor.Invoke(ctx, v)
	if err != nil {
		p.record(telemetry.OutcomeInvokeError, 0)
		return Report{}, err
	}
	p.record(telemetry.OutcomeOK, pred.Latency)
	return Report{Features: v, Prediction: pred}, nil
}

func (p *Pipeline) record(o telemetry.Outcome, latency time.Duration) {
	if p.Recorder != nil {
		p.Recorder.Record(o, latency)
	}
}

// Run reads one record per line from r and writes a report or an error line
// to w for each. Each record is fully processed before the next line is
// read. Blank lines are skipped. A line longer than MaxRecordLen is
// discarded and reported as a field-count error. Run returns nil at EOF.
func (p *Pipeline) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	rr := newRecordReader(r, p.Parser.Delim())
	for {
		line, overlong, err := rr.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read records: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var rep Report
		if overlong > 0 {
			p.Log.Warn("record too long", "fields", overlong, "limit", MaxRecordLen)
			p.record(telemetry.OutcomeParseError, 0)
			err = &features.ParseError{Got: overlong, Want: p.Parser.Width()}
		} else {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			rep, err = p.Process(ctx, line)
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.Log.Debug("record rejected", "error", err)
			if _, werr := fmt.Fprintf(w, "Error: %v\n", err); werr != nil {
				return werr
			}
			continue
		}
		if _, err := rep.WriteTo(w); err != nil {
			return err
		}
	}
}

// MaxRecordLen bounds a single record line in bytes, terminator included.
const MaxRecordLen = 64 * 1024

type recordReader struct {
	br  *bufio.Reader
	sep []byte
}

func newRecordReader(r io.Reader, sep rune) *recordReader {
	return &recordReader{br: bufio.NewReaderSize(r, 4096), sep: []byte(string(sep))}
}

// next returns the next line without its terminator. For a line over
// MaxRecordLen the text is dropped and overlong holds its field count.
func (rr *recordReader) next() (line string, overlong int, err error) {
	var buf []byte
	for {
		chunk, err := rr.br.ReadSlice('\n')
		switch {
		case overlong > 0:
			overlong += bytes.Count(chunk, rr.sep)
		case len(buf)+len(chunk) > MaxRecordLen:
			overlong = bytes.Count(buf, rr.sep) + bytes.Count(chunk, rr.sep) + 1
			buf = nil
		default:
			buf = append(buf, chunk...)
		}

		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if overlong == 0 && len(buf) == 0 {
				return "", 0, io.EOF
			}
		case err != nil:
			return "", 0, err
		}
		if overlong > 0 {
			return "", overlong, nil
		}
		return string(bytes.TrimRight(buf, "\r\n")), 0, nil
	}
}
