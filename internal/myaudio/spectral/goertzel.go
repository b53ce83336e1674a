// Package spectral provides narrow band energy estimation and the spectral
// gate used to screen chunks before classification.
package spectral

import "math"

// Goertzel returns the power of samples at freq, equal to |X(freq)|^2 of the
// discrete time Fourier transform of the buffer. The estimate costs O(N) per
// frequency, which beats a full transform when only a few bands are measured.
func Goertzel(samples []float64, freq, sampleRate float64) float64 {
	if len(samples) == 0 || sampleRate <= 0 {
		return 0
	}

	w := 2 * math.Pi * freq / sampleRate
	coeff := 2 * math.Cos(w)

	var s1, s2 float64
	for _, x := range samples {
		s0 := x + coeff*s1 - s2
		s2 = s1
		s1 = s0
	}

	power := s1*s1 + s2*s2 - coeff*s1*s2
	return max(power, 0)
}
