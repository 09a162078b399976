package model

import (
	"encoding/binary"
	"fmt"
	"math"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/x448/float16"
	"gopkg.in/yaml.v3"

	"github.com/samcharles93/locus/pkg/mcf"
	"github.com/samcharles93/locus/pkg/quant"
)

const tensorAlign = 16

// PackSpec is the human-editable description of a model, usually written in
// YAML, that Pack turns into an MCF container.
type PackSpec struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Input       TensorSpec  `yaml:"input"`
	Output      TensorSpec  `yaml:"output"`
	Layers      []LayerPack `yaml:"layers"`
}

type LayerPack struct {
	Op         string      `yaml:"op"`
	Activation string      `yaml:"activation"`
	Weights    TensorPack  `yaml:"weights"`
	Bias       *TensorPack `yaml:"bias"`
}

// TensorPack holds float values and the encoding to store them with.
// An empty DType means f32. For i8, Quant is required.
type TensorPack struct {
	DType  DType         `yaml:"dtype"`
	Shape  []int         `yaml:"shape"`
	Values []float32     `yaml:"values"`
	Quant  *quant.Params `yaml:"quant"`
}

// ParsePackSpec decodes a YAML pack spec.
func ParsePackSpec(b []byte) (PackSpec, error) {
	var spec PackSpec
	if err := yaml.Unmarshal(b, &spec); err != nil {
		return PackSpec{}, fmt.Errorf("parse pack spec: %w", err)
	}
	return spec, nil
}

// Pack encodes spec as an MCF container whose graph section carries the
// given schema version.
func Pack(spec PackSpec, schemaVersion uint32) ([]byte, error) {
	g := Graph{
		ID:          uuid.NewString(),
		Name:        spec.Name,
		Description: spec.Description,
		Input:       spec.Input,
		Output:      spec.Output,
	}
	if err := g.Input.validate("input"); err != nil {
		return nil, err
	}
	if err := g.Output.validate("output"); err != nil {
		return nil, err
	}

	var data []byte
	add := func(name string, tp TensorPack) (TensorRef, error) {
		raw, err := encodeTensor(tp)
		if err != nil {
			return TensorRef{}, fmt.Errorf("tensor %s: %w", name, err)
		}
		off := alignLen(len(data), tensorAlign)
		data = append(data, make([]byte, off-len(data))...)
		data = append(data, raw...)
		ref := TensorRef{
			Name:   name,
			DType:  tp.dtype(),
			Shape:  tp.Shape,
			Offset: uint64(off),
			Size:   uint64(len(raw)),
			Quant:  tp.Quant,
		}
		g.Tensors = append(g.Tensors, ref)
		return ref, nil
	}

	for i, lp := range spec.Layers {
		op := lp.Op
		if op == "" {
			op = "dense"
		}
		ls := LayerSpec{Op: op, Activation: lp.Activation}
		w, err := add(fmt.Sprintf("layers.%d.weight", i), lp.Weights)
		if err != nil {
			return nil, err
		}
		ls.Weights = w.Name
		if lp.Bias != nil {
			b := *lp.Bias
			if len(b.Shape) == 0 {
				b.Shape = []int{len(b.Values)}
			}
			ref, err := add(fmt.Sprintf("layers.%d.bias", i), b)
			if err != nil {
				return nil, err
			}
			ls.Bias = ref.Name
		}
		g.Layers = append(g.Layers, ls)
	}

	graphJSON, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("encode graph: %w", err)
	}

	w := mcf.NewWriter()
	if err := w.WriteSection(mcf.SectionGraph, schemaVersion, graphJSON); err != nil {
		return nil, err
	}
	if err := w.WriteSection(mcf.SectionTensorData, 1, data); err != nil {
		return nil, err
	}
	out, err := w.Bytes()
	if err != nil {
		return nil, err
	}

	// Catch shape errors at pack time rather than on the device.
	mf, err := mcf.OpenBytes(out)
	if err != nil {
		return nil, err
	}
	if _, err := Load(mf); err != nil {
		return nil, err
	}
	return out, nil
}

func (tp TensorPack) dtype() DType {
	if tp.DType == "" {
		return DTypeF32
	}
	return tp.DType
}

func encodeTensor(tp TensorPack) ([]byte, error) {
	n := elements(tp.Shape)
	if n == 0 {
		return nil, fmt.Errorf("%w: empty shape %v", ErrInvalidGraph, tp.Shape)
	}
	if n != len(tp.Values) {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrInvalidGraph, tp.Shape, n, len(tp.Values))
	}

	le := binary.LittleEndian
	switch tp.dtype() {
	case DTypeF32:
		out := make([]byte, 4*n)
		for i, v := range tp.Values {
			le.PutUint32(out[i*4:], math.Float32bits(v))
		}
		return out, nil
	case DTypeF16:
		out := make([]byte, 2*n)
		for i, v := range tp.Values {
			le.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
		}
		return out, nil
	case DTypeI8:
		if tp.Quant == nil {
			return nil, fmt.Errorf("%w: i8 tensor needs quant params", ErrInvalidGraph)
		}
		if err := tp.Quant.Validate(); err != nil {
			return nil, err
		}
		codes := make([]int8, n)
		quant.EncodeSlice(codes, tp.Values, *tp.Quant)
		out := make([]byte, n)
		for i, c := range codes {
			out[i] = byte(c)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported dtype %q", ErrInvalidGraph, tp.DType)
	}
}

func alignLen(n, a int) int {
	return (n + a - 1) / a * a
}
