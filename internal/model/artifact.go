package model

import (
	"encoding/binary"
	"fmt"
	"math"

	json "github.com/goccy/go-json"
	"github.com/x448/float16"

	"github.com/samcharles93/locus/pkg/mcf"
	"github.com/samcharles93/locus/pkg/quant"
)

// Layer is a dense operator with weights expanded to float32.
// W is row-major [Out x In].
type Layer struct {
	Op         string
	Activation string
	In, Out    int
	W          []float32
	B          []float32
}

// Model is a graph loaded from an MCF container.
type Model struct {
	Graph         Graph
	SchemaVersion uint32
	Layers        []Layer
}

// Widest returns the largest activation width across the graph, including
// the input and output tensors.
func (m *Model) Widest() int {
	w := max(m.Graph.Input.Elements(), m.Graph.Output.Elements())
	for _, l := range m.Layers {
		w = max(w, l.In, l.Out)
	}
	return w
}

// Parameters returns the number of weight and bias elements.
func (m *Model) Parameters() int {
	n := 0
	for _, l := range m.Layers {
		n += len(l.W) + len(l.B)
	}
	return n
}

// ReadGraph decodes the graph section without touching tensor data.
func ReadGraph(f *mcf.File) (Graph, uint32, error) {
	sec, data, err := f.Lookup(mcf.SectionGraph)
	if err != nil {
		return Graph{}, 0, err
	}
	var g Graph
	if err := json.Unmarshal(data, &g); err != nil {
		return Graph{}, sec.Version, fmt.Errorf("%w: decode graph: %v", ErrInvalidGraph, err)
	}
	return g, sec.Version, nil
}

// Load decodes the graph and its weights. Callers that care about the schema
// version must compare it before calling Load; Load accepts any version.
func Load(f *mcf.File) (*Model, error) {
	g, version, err := ReadGraph(f)
	if err != nil {
		return nil, err
	}
	if err := g.Input.validate("input"); err != nil {
		return nil, err
	}
	if err := g.Output.validate("output"); err != nil {
		return nil, err
	}
	if len(g.Layers) == 0 {
		return nil, fmt.Errorf("%w: graph has no layers", ErrInvalidGraph)
	}

	var data []byte
	if s := f.Section(mcf.SectionTensorData); s != nil {
		data = f.SectionData(s)
	}

	m := &Model{Graph: g, SchemaVersion: version}
	width := g.Input.Elements()
	for i, ls := range g.Layers {
		layer, err := loadLayer(&g, ls, data)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if layer.In != width {
			return nil, fmt.Errorf("%w: layer %d expects %d inputs, previous width is %d", ErrInvalidGraph, i, layer.In, width)
		}
		width = layer.Out
		m.Layers = append(m.Layers, layer)
	}
	if width != g.Output.Elements() {
		return nil, fmt.Errorf("%w: last layer width %d does not match output elements %d", ErrInvalidGraph, width, g.Output.Elements())
	}
	return m, nil
}

func loadLayer(g *Graph, ls LayerSpec, data []byte) (Layer, error) {
	wref, ok := g.tensor(ls.Weights)
	if !ok {
		return Layer{}, fmt.Errorf("%w: unknown weights tensor %q", ErrInvalidGraph, ls.Weights)
	}
	if len(wref.Shape) != 2 {
		return Layer{}, fmt.Errorf("%w: weights %q must be rank 2, got %v", ErrInvalidGraph, wref.Name, wref.Shape)
	}
	w, err := decodeTensor(wref, data)
	if err != nil {
		return Layer{}, err
	}
	layer := Layer{
		Op:         ls.Op,
		Activation: ls.Activation,
		Out:        wref.Shape[0],
		In:         wref.Shape[1],
		W:          w,
	}
	if ls.Bias != "" {
		bref, ok := g.tensor(ls.Bias)
		if !ok {
			return Layer{}, fmt.Errorf("%w: unknown bias tensor %q", ErrInvalidGraph, ls.Bias)
		}
		b, err := decodeTensor(bref, data)
		if err != nil {
			return Layer{}, err
		}
		if len(b) != layer.Out {
			return Layer{}, fmt.Errorf("%w: bias %q has %d elements, want %d", ErrInvalidGraph, bref.Name, len(b), layer.Out)
		}
		layer.B = b
	}
	return layer, nil
}

func decodeTensor(ref TensorRef, data []byte) ([]float32, error) {
	n := elements(ref.Shape)
	es := ref.DType.Size()
	if n <= 0 || es == 0 {
		return nil, fmt.Errorf("%w: tensor %q has dtype %q shape %v", ErrInvalidGraph, ref.Name, ref.DType, ref.Shape)
	}
	if ref.Size != uint64(n*es) {
		return nil, fmt.Errorf("%w: tensor %q size %d, want %d", ErrInvalidGraph, ref.Name, ref.Size, n*es)
	}
	end := ref.Offset + ref.Size
	if end < ref.Offset || end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: tensor %q out of bounds", mcf.ErrCorruptFile, ref.Name)
	}
	raw := data[ref.Offset:end]
	out := make([]float32, n)

	le := binary.LittleEndian
	switch ref.DType {
	case DTypeF32:
		for i := range out {
			out[i] = math.Float32frombits(le.Uint32(raw[i*4:]))
		}
	case DTypeF16:
		for i := range out {
			out[i] = float16.Frombits(le.Uint16(raw[i*2:])).Float32()
		}
	case DTypeI8:
		if ref.Quant == nil {
			return nil, fmt.Errorf("%w: int8 tensor %q has no quantization params", ErrInvalidGraph, ref.Name)
		}
		if err := ref.Quant.Validate(); err != nil {
			return nil, fmt.Errorf("%w: tensor %q: %v", ErrInvalidGraph, ref.Name, err)
		}
		for i, b := range raw {
			out[i] = quant.Decode(int8(b), *ref.Quant)
		}
	}
	for i, v := range out {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return nil, fmt.Errorf("%w: tensor %q element %d is not finite", ErrInvalidGraph, ref.Name, i)
		}
	}
	return out, nil
}
