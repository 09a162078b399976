// Package model describes the feed-forward graphs stored in MCF containers:
// the JSON graph section, the weight tensors it references and the loaded,
// dequantized form the kernel interpreter executes.
package model

import (
	"errors"
	"fmt"

	"github.com/samcharles93/locus/pkg/quant"
)

type DType string

const (
	DTypeF32 DType = "f32"
	DTypeF16 DType = "f16"
	DTypeI8  DType = "i8"
)

// Size returns the element width in bytes, or 0 for an unknown type.
func (d DType) Size() int {
	switch d {
	case DTypeF32:
		return 4
	case DTypeF16:
		return 2
	case DTypeI8:
		return 1
	default:
		return 0
	}
}

// Quantized reports whether elements are int8 codes.
func (d DType) Quantized() bool { return d == DTypeI8 }

var ErrInvalidGraph = errors.New("model: invalid graph")

// TensorSpec declares a graph input or output tensor.
type TensorSpec struct {
	Name  string        `json:"name" yaml:"name"`
	DType DType         `json:"dtype" yaml:"dtype"`
	Shape []int         `json:"shape" yaml:"shape"`
	Quant *quant.Params `json:"quant,omitempty" yaml:"quant,omitempty"`
}

func (t TensorSpec) Elements() int {
	return elements(t.Shape)
}

func (t TensorSpec) validate(role string) error {
	if t.DType != DTypeF32 && t.DType != DTypeI8 {
		return fmt.Errorf("%w: %s tensor dtype %q (want f32 or i8)", ErrInvalidGraph, role, t.DType)
	}
	if t.Elements() <= 0 {
		return fmt.Errorf("%w: %s tensor has empty shape %v", ErrInvalidGraph, role, t.Shape)
	}
	if t.Quant != nil {
		if err := t.Quant.Validate(); err != nil {
			return fmt.Errorf("%w: %s tensor: %v", ErrInvalidGraph, role, err)
		}
	}
	return nil
}

// TensorRef locates a weight tensor inside the tensor data section.
// Offset is relative to the start of the section payload.
type TensorRef struct {
	Name   string        `json:"name"`
	DType  DType         `json:"dtype"`
	Shape  []int         `json:"shape"`
	Offset uint64        `json:"offset"`
	Size   uint64        `json:"size"`
	Quant  *quant.Params `json:"quant,omitempty"`
}

// LayerSpec is one operator in execution order.
type LayerSpec struct {
	Op         string `json:"op"`
	Activation string `json:"activation,omitempty"`
	Weights    string `json:"weights"`
	Bias       string `json:"bias,omitempty"`
}

// Graph is the payload of the MCF graph section.
type Graph struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Input       TensorSpec  `json:"input"`
	Output      TensorSpec  `json:"output"`
	Layers      []LayerSpec `json:"layers"`
	Tensors     []TensorRef `json:"tensors"`
}

func (g *Graph) tensor(name string) (TensorRef, bool) {
	for _, t := range g.Tensors {
		if t.Name == name {
			return t, true
		}
	}
	return TensorRef{}, false
}

func elements(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range shape {
		if d <= 0 {
			return 0
		}
		n *= d
	}
	return n
}
