// Package kernel executes loaded graphs inside a caller-provided arena.
//
// A Runner plans every tensor it needs into one fixed byte slice handed over
// by AllocateTensors and never allocates afterwards. Input and output tensors
// are views into that arena; callers write the input, call Invoke and read
// the output.
package kernel

import (
	"errors"
	"unsafe"

	"github.com/samcharles93/locus/internal/model"
	"github.com/samcharles93/locus/pkg/quant"
)

// SchemaVersion is the graph section version this runtime executes.
const SchemaVersion uint32 = 3

// arenaAlign is the alignment of every tensor planned into the arena.
const arenaAlign = 16

var (
	ErrArenaTooSmall = errors.New("kernel: arena too small")
	ErrNotAllocated  = errors.New("kernel: tensors not allocated")
	ErrNonFinite     = errors.New("kernel: non-finite activation")
	ErrMissingQuant  = errors.New("kernel: quantized tensor has no params")
	ErrUnknownOp     = errors.New("kernel: unknown op")
)

type Runner interface {
	AllocateTensors(arena []byte) error
	Invoke() error
	Input(i int) *Tensor
	Output(i int) *Tensor
	ArenaUsed() int
}

// Tensor is a graph input or output bound to arena memory.
type Tensor struct {
	Name  string
	DType model.DType
	Shape []int
	// Quant is nil for float tensors and may be filled in by the owner of
	// the runner before the first Invoke.
	Quant *quant.Params

	data []byte
}

func newTensor(spec model.TensorSpec) Tensor {
	t := Tensor{
		Name:  spec.Name,
		DType: spec.DType,
		Shape: append([]int(nil), spec.Shape...),
	}
	if spec.Quant != nil {
		q := *spec.Quant
		t.Quant = &q
	}
	return t
}

func (t *Tensor) Elements() int {
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// ByteSize is the number of arena bytes the tensor occupies.
func (t *Tensor) ByteSize() int {
	return t.Elements() * t.DType.Size()
}

func (t *Tensor) Allocated() bool { return t.data != nil }

func (t *Tensor) Bytes() []byte { return t.data }

// Int8 returns the tensor as int8 codes, or nil if it is not an int8 tensor
// or has not been allocated.
func (t *Tensor) Int8() []int8 {
	if t.DType != model.DTypeI8 || len(t.data) == 0 {
		return nil
	}
	return unsafe.Slice((*int8)(unsafe.Pointer(&t.data[0])), len(t.data))
}

// Float32 returns the tensor as float32 values, or nil if it is not a
// float32 tensor or has not been allocated.
func (t *Tensor) Float32() []float32 {
	if t.DType != model.DTypeF32 || len(t.data) == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.data[0])), len(t.data)/4)
}
