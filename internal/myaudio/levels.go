package myaudio

import (
	"math"

	"gonum.org/v1/gonum/floats"
)

// RMS returns the root mean square of x.
func RMS(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return floats.Norm(x, 2) / math.Sqrt(float64(len(x)))
}

// Peak returns the largest absolute sample value of x.
func Peak(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	return max(floats.Max(x), -floats.Min(x))
}

// toFloat64 widens src into dst, growing dst when needed.
func toFloat64(dst []float64, src []float32) []float64 {
	if cap(dst) < len(src) {
		dst = make([]float64, len(src))
	}
	dst = dst[:len(src)]
	for i, v := range src {
		dst[i] = float64(v)
	}
	return dst
}

// toFloat32 narrows src into a new slice.
func toFloat32(src []float64) []float32 {
	out := make([]float32, len(src))
	for i, v := range src {
		out[i] = float32(v)
	}
	return out
}
