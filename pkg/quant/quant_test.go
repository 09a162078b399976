package quant

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func TestEncodeFormula(t *testing.T) {
	t.Parallel()

	p := Params{Scale: 1.5434545278549194, ZeroPoint: -43}
	tests := []struct {
		in   float32
		want int8
	}{
		{0, -43},
		{1.0, -42},    // round(0.648) = 1
		{2.5, -41},    // round(1.620) = 2
		{16.1, -33},   // round(10.431) = 10
		{-3.2, -45},   // round(-2.073) = -2
		{1000, 127},   // saturates high
		{-1000, -128}, // saturates low
	}
	for _, tc := range tests {
		if got := Encode(tc.in, p); got != tc.want {
			t.Errorf("Encode(%v): got %d want %d", tc.in, got, tc.want)
		}
	}
}

func TestEncodeClampsFiniteInputs(t *testing.T) {
	t.Parallel()

	p := Params{Scale: 0.01, ZeroPoint: 100}
	for _, v := range []float32{math.MaxFloat32, -math.MaxFloat32, 1e20, -1e20, 3.4e38} {
		got := Encode(v, p)
		if got < MinCode || got > MaxCode {
			t.Fatalf("Encode(%v) = %d outside int8 range", v, got)
		}
	}
	if got := Encode(math.MaxFloat32, p); got != MaxCode {
		t.Fatalf("expected saturation at %d, got %d", MaxCode, got)
	}
	if got := Encode(-math.MaxFloat32, p); got != MinCode {
		t.Fatalf("expected saturation at %d, got %d", MinCode, got)
	}
}

func TestEncodeNaNMapsToZeroPoint(t *testing.T) {
	t.Parallel()

	p := Params{Scale: 0.5, ZeroPoint: 7}
	if got := Encode(float32(math.NaN()), p); got != 7 {
		t.Fatalf("Encode(NaN): got %d want 7", got)
	}
}

func TestDecodeFormula(t *testing.T) {
	t.Parallel()

	p := Params{Scale: 0.25, ZeroPoint: -10}
	if got := Decode(-10, p); got != 0 {
		t.Fatalf("Decode(zero point): got %v want 0", got)
	}
	if got := Decode(2, p); got != 3 {
		t.Fatalf("Decode(2): got %v want 3", got)
	}
	if got := Decode(-128, p); got != -29.5 {
		t.Fatalf("Decode(-128): got %v want -29.5", got)
	}
}

func TestRoundTripWithinOneStep(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 2000; i++ {
		p := Params{
			Scale:     float32(0.001 + rng.Float64()*4),
			ZeroPoint: int32(rng.IntN(256) - 128),
		}
		lo, hi := p.Range()
		f := lo + float32(rng.Float64())*(hi-lo)

		got := Decode(Encode(f, p), p)
		if diff := math.Abs(float64(got - f)); diff > float64(p.Step()) {
			t.Fatalf("round trip of %v with %s drifted by %v", f, p, diff)
		}
	}
}

func TestSliceHelpers(t *testing.T) {
	t.Parallel()

	p := Params{Scale: 0.5, ZeroPoint: 0}
	src := []float32{-1, 0, 0.5, 1.25}
	codes := make([]int8, len(src))
	EncodeSlice(codes, src, p)

	want := []int8{-2, 0, 1, 3}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("code %d: got %d want %d", i, codes[i], want[i])
		}
	}

	back := make([]float32, len(codes))
	DecodeSlice(back, codes, p)
	if back[3] != 1.5 {
		t.Fatalf("decoded[3]: got %v want 1.5", back[3])
	}

	EncodeSlice(nil, nil, p)
	DecodeSlice(nil, nil, p)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		p    Params
		want error
	}{
		{"ok", Params{Scale: 0.1, ZeroPoint: -128}, nil},
		{"zero scale", Params{Scale: 0}, ErrInvalidScale},
		{"negative scale", Params{Scale: -1}, ErrInvalidScale},
		{"nan scale", Params{Scale: float32(math.NaN())}, ErrInvalidScale},
		{"inf scale", Params{Scale: float32(math.Inf(1))}, ErrInvalidScale},
		{"zero point high", Params{Scale: 1, ZeroPoint: 128}, ErrInvalidZeroPoint},
		{"zero point low", Params{Scale: 1, ZeroPoint: -129}, ErrInvalidZeroPoint},
	}
	for _, tc := range tests {
		err := tc.p.Validate()
		if tc.want == nil {
			if err != nil {
				t.Errorf("%s: unexpected error %v", tc.name, err)
			}
			continue
		}
		if !errors.Is(err, tc.want) {
			t.Errorf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
}

func TestEqual(t *testing.T) {
	t.Parallel()

	a := Params{Scale: 1.5434545278549194, ZeroPoint: -43}
	if !a.Equal(Params{Scale: 1.5434546, ZeroPoint: -43}, 1e-6) {
		t.Fatal("expected scales within tolerance to be equal")
	}
	if a.Equal(Params{Scale: 1.6, ZeroPoint: -43}, 1e-6) {
		t.Fatal("expected different scales to differ")
	}
	if a.Equal(Params{Scale: a.Scale, ZeroPoint: -42}, 1e-6) {
		t.Fatal("expected different zero points to differ")
	}
}
