// Package engine binds a loaded model to a kernel runner and a fixed arena
// and turns feature vectors into position predictions.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/samcharles93/locus/internal/features"
	"github.com/samcharles93/locus/internal/kernel"
	"github.com/samcharles93/locus/internal/logger"
	"github.com/samcharles93/locus/internal/model"
	"github.com/samcharles93/locus/pkg/mcf"
	"github.com/samcharles93/locus/pkg/quant"
)

const (
	DefaultArenaSize = 8 * 1024
	DefaultInputs    = features.DefaultFields
	// Outputs is fixed: the model predicts x and y.
	Outputs = 2

	quantTolerance = 1e-6
)

type State int

const (
	StateUninitialized State = iota
	StateReady
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateFatal:
		return "fatal"
	default:
		return "uninitialized"
	}
}

// Config holds the operator-supplied setup parameters. Zero values select
// the defaults.
type Config struct {
	ArenaSize int
	Inputs    int
	Outputs   int
	// InputQuant and OutputQuant are optional. When the model carries its
	// own params these must agree with them.
	InputQuant  *quant.Params
	OutputQuant *quant.Params
}

func (c Config) withDefaults() Config {
	if c.ArenaSize <= 0 {
		c.ArenaSize = DefaultArenaSize
	}
	if c.Inputs <= 0 {
		c.Inputs = DefaultInputs
	}
	if c.Outputs <= 0 {
		c.Outputs = Outputs
	}
	return c
}

// RunnerFactory builds the kernel runner for a loaded model.
type RunnerFactory func(m *model.Model, r *kernel.Resolver) (kernel.Runner, error)

func interpreterFactory(m *model.Model, r *kernel.Resolver) (kernel.Runner, error) {
	return kernel.NewInterpreter(m, r)
}

type Option func(*Engine)

func WithLogger(log logger.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithClock replaces the monotonic clock used to time Invoke.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithResolver(r *kernel.Resolver) Option {
	return func(e *Engine) { e.resolver = r }
}

func WithRunnerFactory(f RunnerFactory) Option {
	return func(e *Engine) { e.newRunner = f }
}

// Prediction is the decoded model output for one record.
type Prediction struct {
	X, Y    float32
	Latency time.Duration
}

// LatencyMicros is the latency truncated to whole microseconds.
func (p Prediction) LatencyMicros() uint64 {
	return uint64(p.Latency / time.Microsecond)
}

func (p Prediction) LatencyMillis() float64 {
	return float64(p.Latency) / float64(time.Millisecond)
}

// Engine is not safe for concurrent use.
type Engine struct {
	cfg       Config
	log       logger.Logger
	now       func() time.Time
	resolver  *kernel.Resolver
	newRunner RunnerFactory

	state  State
	model  *model.Model
	runner kernel.Runner
	arena  []byte
	input  *kernel.Tensor
	output *kernel.Tensor
}

// New performs the one-time setup against an opened artifact. On failure it
// returns a *SetupError and no engine.
func New(f *mcf.File, cfg Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:       cfg.withDefaults(),
		log:       logger.Discard(),
		now:       time.Now,
		newRunner: interpreterFactory,
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.setup(f); err != nil {
		e.state = StateFatal
		e.log.Error("engine setup failed", "stage", err.Stage, "error", err.Err)
		return nil, err
	}
	e.state = StateReady
	e.log.Info("engine ready",
		"model", e.model.Graph.Name,
		"schema", e.model.SchemaVersion,
		"layers", len(e.model.Layers),
		"arena_size", len(e.arena),
		"arena_used", e.runner.ArenaUsed(),
		"input", e.input.DType,
		"output", e.output.DType,
	)
	return e, nil
}

// Load opens the artifact at path and builds an engine from it. The file
// stays mapped for the lifetime of the process.
func Load(path string, cfg Config, opts ...Option) (*Engine, error) {
	f, err := mcf.Open(path)
	if err != nil {
		return nil, &SetupError{Stage: StageOpen, Err: err}
	}
	e, err := New(f, cfg, opts...)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return e, nil
}

func (e *Engine) setup(f *mcf.File) *SetupError {
	fail := func(stage string, err error) *SetupError {
		return &SetupError{Stage: stage, Err: err}
	}

	g, version, err := model.ReadGraph(f)
	if err != nil {
		return fail(StageLoad, err)
	}
	if version != kernel.SchemaVersion {
		return fail(StageSchema, fmt.Errorf("%w: model %q has schema %d, runtime supports %d",
			ErrSchemaMismatch, g.Name, version, kernel.SchemaVersion))
	}

	m, err := model.Load(f)
	if err != nil {
		return fail(StageLoad, err)
	}
	runner, err := e.newRunner(m, e.resolver)
	if err != nil {
		return fail(StageLoad, err)
	}
	arena := make([]byte, e.cfg.ArenaSize)
	if err := runner.AllocateTensors(arena); err != nil {
		return fail(StageAllocate, err)
	}

	in, out := runner.Input(0), runner.Output(0)
	if in == nil || out == nil {
		return fail(StageShape, fmt.Errorf("%w: runner has no input or output tensor", ErrShape))
	}
	if n := in.Elements(); n != e.cfg.Inputs {
		return fail(StageShape, fmt.Errorf("%w: input %q has %d elements, want %d", ErrShape, in.Name, n, e.cfg.Inputs))
	}
	if n := out.Elements(); n != e.cfg.Outputs {
		return fail(StageShape, fmt.Errorf("%w: output %q has %d elements, want %d", ErrShape, out.Name, n, e.cfg.Outputs))
	}

	if err := e.resolveQuant(in, e.cfg.InputQuant); err != nil {
		return fail(StageQuant, fmt.Errorf("input %q: %w", in.Name, err))
	}
	if err := e.resolveQuant(out, e.cfg.OutputQuant); err != nil {
		return fail(StageQuant, fmt.Errorf("output %q: %w", out.Name, err))
	}

	e.model, e.runner, e.arena = m, runner, arena
	e.input, e.output = in, out
	return nil
}

// resolveQuant settles the params of an int8 tensor. Params embedded in the
// model are authoritative; configured params fill in when the model has
// none and must agree otherwise.
func (e *Engine) resolveQuant(t *kernel.Tensor, configured *quant.Params) error {
	if !t.DType.Quantized() {
		if configured != nil {
			e.log.Debug("ignoring quantization params for float tensor", "tensor", t.Name)
		}
		return nil
	}
	if configured != nil {
		if err := configured.Validate(); err != nil {
			return err
		}
	}
	switch {
	case t.Quant != nil && configured != nil:
		if !t.Quant.Equal(*configured, quantTolerance) {
			return fmt.Errorf("%w: model %s, configured %s", ErrQuantMismatch, t.Quant, configured)
		}
	case t.Quant != nil:
	case configured != nil:
		q := *configured
		t.Quant = &q
		e.log.Debug("using configured quantization params", "tensor", t.Name, "params", q.String())
	default:
		return kernel.ErrMissingQuant
	}
	return t.Quant.Validate()
}

func (e *Engine) State() State { return e.state }

// Invoke runs one inference. The context is only checked before the kernel
// starts; a started invocation always runs to completion.
func (e *Engine) Invoke(ctx context.Context, v features.Vector) (Prediction, error) {
	if e == nil || e.state != StateReady {
		return Prediction{}, ErrNotReady
	}
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}
	if len(v) != e.cfg.Inputs {
		return Prediction{}, fmt.Errorf("%w: got %d values, want %d", ErrInputLength, len(v), e.cfg.Inputs)
	}

	if e.input.DType.Quantized() {
		quant.EncodeSlice(e.input.Int8(), v, *e.input.Quant)
	} else {
		copy(e.input.Float32(), v)
	}

	start := e.now()
	err := e.runner.Invoke()
	elapsed := e.now().Sub(start)
	if err != nil {
		e.log.Warn("invoke failed", "error", err, "elapsed", elapsed)
		return Prediction{}, &InvokeError{Err: err}
	}

	p := Prediction{Latency: elapsed}
	if e.output.DType.Quantized() {
		codes := e.output.Int8()
		p.X = quant.Decode(codes[0], *e.output.Quant)
		p.Y = quant.Decode(codes[1], *e.output.Quant)
	} else {
		vals := e.output.Float32()
		p.X, p.Y = vals[0], vals[1]
	}
	return p, nil
}
