package kernel

import (
	"fmt"
	"math"

	"github.com/samcharles93/locus/internal/model"
)

// OpFunc computes out from in for one layer. len(in) == l.In and
// len(out) == l.Out are guaranteed by the interpreter.
type OpFunc func(l *model.Layer, in, out []float32)

// Activation is applied element-wise after an op.
type Activation func(float32) float32

// Resolver maps graph op and activation names to implementations.
type Resolver struct {
	ops  map[string]OpFunc
	acts map[string]Activation
}

func NewResolver() *Resolver {
	return &Resolver{
		ops:  make(map[string]OpFunc),
		acts: make(map[string]Activation),
	}
}

// BuiltinResolver registers dense and the relu, tanh, sigmoid and identity
// activations.
func BuiltinResolver() *Resolver {
	r := NewResolver()
	r.AddOp("dense", Dense)
	r.AddActivation("", nil)
	r.AddActivation("none", nil)
	r.AddActivation("relu", func(v float32) float32 { return max(v, 0) })
	r.AddActivation("tanh", func(v float32) float32 { return float32(math.Tanh(float64(v))) })
	r.AddActivation("sigmoid", func(v float32) float32 { return float32(1 / (1 + math.Exp(-float64(v)))) })
	return r
}

func (r *Resolver) AddOp(name string, fn OpFunc) {
	r.ops[name] = fn
}

// AddActivation registers an activation. A nil fn means identity.
func (r *Resolver) AddActivation(name string, fn Activation) {
	r.acts[name] = fn
}

func (r *Resolver) resolve(l *model.Layer) (OpFunc, Activation, error) {
	op, ok := r.ops[l.Op]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownOp, l.Op)
	}
	act, ok := r.acts[l.Activation]
	if !ok {
		return nil, nil, fmt.Errorf("%w: activation %q", ErrUnknownOp, l.Activation)
	}
	return op, act, nil
}

// Dense computes out = W·in + B with W row-major [Out x In].
func Dense(l *model.Layer, in, out []float32) {
	for o := range out {
		row := l.W[o*l.In : (o+1)*l.In]
		var sum float32
		for i, x := range in {
			sum += row[i] * x
		}
		if l.B != nil {
			sum += l.B[o]
		}
		out[o] = sum
	}
}
