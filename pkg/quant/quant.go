// Package quant maps float32 values to and from signed 8-bit codes using a
// per-tensor affine scheme: q = round(v/scale) + zeroPoint.
package quant

import (
	"errors"
	"fmt"
	"math"
)

const (
	MinCode = math.MinInt8
	MaxCode = math.MaxInt8
)

var (
	ErrInvalidScale     = errors.New("quant: scale must be finite and > 0")
	ErrInvalidZeroPoint = errors.New("quant: zero point out of int8 range")
)

// Params are the affine quantization parameters of one tensor.
type Params struct {
	Scale     float32 `json:"scale" yaml:"scale"`
	ZeroPoint int32   `json:"zero_point" yaml:"zero_point"`
}

func (p Params) Validate() error {
	s := float64(p.Scale)
	if math.IsNaN(s) || math.IsInf(s, 0) || s <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidScale, p.Scale)
	}
	if p.ZeroPoint < MinCode || p.ZeroPoint > MaxCode {
		return fmt.Errorf("%w: %d", ErrInvalidZeroPoint, p.ZeroPoint)
	}
	return nil
}

// Step is the float distance between two adjacent codes.
func (p Params) Step() float32 { return p.Scale }

// Range returns the smallest and largest float that encode without clamping.
func (p Params) Range() (lo, hi float32) {
	return Decode(MinCode, p), Decode(MaxCode, p)
}

// Equal reports whether p and o describe the same mapping. Scales are
// compared with a relative tolerance, zero points exactly.
func (p Params) Equal(o Params, tol float64) bool {
	if p.ZeroPoint != o.ZeroPoint {
		return false
	}
	a, b := float64(p.Scale), float64(o.Scale)
	diff := math.Abs(a - b)
	return diff <= tol*math.Max(math.Abs(a), math.Abs(b))
}

func (p Params) String() string {
	return fmt.Sprintf("scale=%g zero_point=%d", p.Scale, p.ZeroPoint)
}

// Encode quantizes v. Out-of-range values saturate at the int8 bounds and
// NaN maps to the zero point.
func Encode(v float32, p Params) int8 {
	x := float64(v) / float64(p.Scale)
	if math.IsNaN(x) {
		return clamp(int64(p.ZeroPoint))
	}
	x = math.Round(x)
	switch {
	case x > math.MaxInt32:
		return MaxCode
	case x < math.MinInt32:
		return MinCode
	}
	return clamp(int64(x) + int64(p.ZeroPoint))
}

// Decode reconstructs the float value of code q.
func Decode(q int8, p Params) float32 {
	return float32(int32(q)-p.ZeroPoint) * p.Scale
}

// EncodeSlice quantizes src into dst. dst must be at least len(src) long.
func EncodeSlice(dst []int8, src []float32, p Params) {
	dst = dst[:len(src)]
	for i, v := range src {
		dst[i] = Encode(v, p)
	}
}

// DecodeSlice dequantizes src into dst. dst must be at least len(src) long.
func DecodeSlice(dst []float32, src []int8, p Params) {
	dst = dst[:len(src)]
	for i, q := range src {
		dst[i] = Decode(q, p)
	}
}

func clamp(v int64) int8 {
	if v < MinCode {
		return MinCode
	}
	if v > MaxCode {
		return MaxCode
	}
	return int8(v)
}
