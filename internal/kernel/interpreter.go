package kernel

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/samcharles93/locus/internal/model"
	"github.com/samcharles93/locus/pkg/quant"
)

type step struct {
	layer *model.Layer
	op    OpFunc
	act   Activation
}

// Interpreter runs a dense feed-forward model. The arena holds the input
// tensor, the output tensor and two float32 scratch buffers sized to the
// widest layer; activations ping-pong between the scratch buffers.
type Interpreter struct {
	model   *model.Model
	steps   []step
	input   Tensor
	output  Tensor
	scratch [2][]float32
	used    int
}

// NewInterpreter resolves every layer of m against r.
func NewInterpreter(m *model.Model, r *Resolver) (*Interpreter, error) {
	if r == nil {
		r = BuiltinResolver()
	}
	it := &Interpreter{
		model:  m,
		input:  newTensor(m.Graph.Input),
		output: newTensor(m.Graph.Output),
	}
	for i := range m.Layers {
		l := &m.Layers[i]
		op, act, err := r.resolve(l)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		it.steps = append(it.steps, step{layer: l, op: op, act: act})
	}
	return it, nil
}

// ArenaRequired returns the arena size AllocateTensors needs in the worst
// case, including padding to align the arena start.
func (it *Interpreter) ArenaRequired() int {
	return arenaAlign - 1 + it.planSize()
}

func (it *Interpreter) planSize() int {
	width := it.model.Widest()
	n := alignUp(it.input.ByteSize())
	n += alignUp(it.output.ByteSize())
	n += 2 * alignUp(width*4)
	return n
}

// AllocateTensors plans all tensors into arena. It fails with
// ErrArenaTooSmall without touching any tensor when arena cannot hold the
// plan.
func (it *Interpreter) AllocateTensors(arena []byte) error {
	pad := 0
	if len(arena) > 0 {
		if rem := int(uintptr(unsafe.Pointer(&arena[0])) % arenaAlign); rem != 0 {
			pad = arenaAlign - rem
		}
	}
	need := pad + it.planSize()
	if need > len(arena) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrArenaTooSmall, need, len(arena))
	}

	off := pad
	take := func(n int) []byte {
		b := arena[off : off+n : off+n]
		off += alignUp(n)
		return b
	}
	it.input.data = take(it.input.ByteSize())
	it.output.data = take(it.output.ByteSize())
	width := it.model.Widest()
	for i := range it.scratch {
		b := take(width * 4)
		it.scratch[i] = unsafe.Slice((*float32)(unsafe.Pointer(&b[0])), width)
	}
	clear(arena[pad:off])
	it.used = off
	return nil
}

func (it *Interpreter) ArenaUsed() int { return it.used }

func (it *Interpreter) Input(i int) *Tensor {
	if i != 0 {
		return nil
	}
	return &it.input
}

func (it *Interpreter) Output(i int) *Tensor {
	if i != 0 {
		return nil
	}
	return &it.output
}

// Invoke runs the graph once. On error the output tensor is left untouched.
func (it *Interpreter) Invoke() error {
	if !it.input.Allocated() || !it.output.Allocated() {
		return ErrNotAllocated
	}

	cur := 0
	act := it.scratch[cur][:it.input.Elements()]
	switch it.input.DType {
	case model.DTypeI8:
		if it.input.Quant == nil {
			return fmt.Errorf("%w: %s", ErrMissingQuant, it.input.Name)
		}
		quant.DecodeSlice(act, it.input.Int8(), *it.input.Quant)
	default:
		copy(act, it.input.Float32())
	}

	for i, s := range it.steps {
		out := it.scratch[1-cur][:s.layer.Out]
		s.op(s.layer, act, out)
		for j, v := range out {
			if s.act != nil {
				v = s.act(v)
				out[j] = v
			}
			if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
				return fmt.Errorf("%w: layer %d unit %d", ErrNonFinite, i, j)
			}
		}
		cur = 1 - cur
		act = out
	}

	switch it.output.DType {
	case model.DTypeI8:
		if it.output.Quant == nil {
			return fmt.Errorf("%w: %s", ErrMissingQuant, it.output.Name)
		}
		quant.EncodeSlice(it.output.Int8(), act, *it.output.Quant)
	default:
		copy(it.output.Float32(), act)
	}
	return nil
}

func alignUp(n int) int {
	return (n + arenaAlign - 1) &^ (arenaAlign - 1)
}
