// Package modeltest builds small deterministic model artifacts for tests.
package modeltest

import (
	"testing"

	"github.com/samcharles93/locus/internal/model"
	"github.com/samcharles93/locus/pkg/mcf"
	"github.com/samcharles93/locus/pkg/quant"
)

const (
	Inputs  = 16
	Hidden  = 8
	Outputs = 2
)

var (
	InputQuant  = quant.Params{Scale: 1.5434545278549194, ZeroPoint: -43}
	OutputQuant = quant.Params{Scale: 0.05, ZeroPoint: 0}
)

// Spec returns a 16 -> 8 (relu) -> 2 network with int8 input and output
// tensors. Weights are a fixed pattern so results are reproducible.
func Spec() model.PackSpec {
	inQ, outQ := InputQuant, OutputQuant
	return model.PackSpec{
		Name:   "fingerprint-16x2",
		Input:  model.TensorSpec{Name: "features", DType: model.DTypeI8, Shape: []int{1, Inputs}, Quant: &inQ},
		Output: model.TensorSpec{Name: "position", DType: model.DTypeI8, Shape: []int{1, Outputs}, Quant: &outQ},
		Layers: []model.LayerPack{
			{
				Op:         "dense",
				Activation: "relu",
				Weights:    model.TensorPack{DType: model.DTypeF32, Shape: []int{Hidden, Inputs}, Values: pattern(Hidden*Inputs, 0.01)},
				Bias:       &model.TensorPack{Values: pattern(Hidden, 0.05)},
			},
			{
				Op:      "dense",
				Weights: model.TensorPack{DType: model.DTypeF16, Shape: []int{Outputs, Hidden}, Values: pattern(Outputs*Hidden, 0.125)},
				Bias:    &model.TensorPack{Values: []float32{0.25, -0.25}},
			},
		},
	}
}

// FloatSpec is Spec with float32 input and output tensors.
func FloatSpec() model.PackSpec {
	s := Spec()
	s.Name = "fingerprint-16x2-f32"
	s.Input.DType, s.Input.Quant = model.DTypeF32, nil
	s.Output.DType, s.Output.Quant = model.DTypeF32, nil
	return s
}

// Artifact packs spec with the given graph schema version.
func Artifact(t testing.TB, spec model.PackSpec, schemaVersion uint32) []byte {
	t.Helper()
	b, err := model.Pack(spec, schemaVersion)
	if err != nil {
		t.Fatalf("pack model: %v", err)
	}
	return b
}

// Open packs spec and opens it as an in-memory container.
func Open(t testing.TB, spec model.PackSpec, schemaVersion uint32) *mcf.File {
	t.Helper()
	f, err := mcf.OpenBytes(Artifact(t, spec, schemaVersion))
	if err != nil {
		t.Fatalf("open model: %v", err)
	}
	return f
}

// SampleFeatures is the reference sensor record.
func SampleFeatures() []float32 {
	return []float32{1.0, 2.5, 3.2, 4.1, 5.6, 6.3, 7.8, 8.2, 9.1, 10.5, 11.2, 12.8, 13.4, 14.6, 15.3, 16.1}
}

// SampleRecord is SampleFeatures as a wire record.
const SampleRecord = "1.0,2.5,3.2,4.1,5.6,6.3,7.8,8.2,9.1,10.5,11.2,12.8,13.4,14.6,15.3,16.1"

func pattern(n int, step float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i%7-3) * step
	}
	return out
}
