// Package equalizer provides second order IIR filters based on Robert
// Bristow-Johnson's audio EQ cookbook.
//
// Filters are evaluated in Direct Form II Transposed. The recursive state is
// cleared at the start of every Process call, so each buffer is filtered
// independently of the previous one. A Filter therefore carries only its
// coefficients between calls and may be reused freely by its owner.
package equalizer

import (
	"fmt"
	"math"
)

// FilterName represents the kind of digital filter.
type FilterName int

// FilterName constants are digital filter names.
const (
	Undefined FilterName = iota
	LowPass
	HighPass
)

func (n FilterName) String() string {
	switch n {
	case LowPass:
		return "lowpass"
	case HighPass:
		return "highpass"
	default:
		return "undefined"
	}
}

// ButterworthQ is the Q of a maximally flat second order section.
var ButterworthQ = 1 / math.Sqrt2

// Filter holds normalized biquad coefficients.
type Filter struct {
	name      FilterName
	frequency float64

	// coefficients divided by a0
	b0, b1, b2 float64
	a1, a2     float64
}

// IsZero returns true when the f is not initialized.
func (f *Filter) IsZero() bool {
	return f == nil || f.name == Undefined
}

// Name returns the filter kind.
func (f *Filter) Name() FilterName {
	return f.name
}

// Frequency returns the cutoff frequency in Hz.
func (f *Filter) Frequency() float64 {
	return f.frequency
}

// newFilter normalizes raw cookbook coefficients by a0.
func newFilter(name FilterName, frequency, a0, a1, a2, b0, b1, b2 float64) *Filter {
	return &Filter{
		name:      name,
		frequency: frequency,
		b0:        b0 / a0,
		b1:        b1 / a0,
		b2:        b2 / a0,
		a1:        a1 / a0,
		a2:        a2 / a0,
	}
}

// Process filters in into out starting from a zero state. out must be at
// least as long as in and may be the same slice as in.
func (f *Filter) Process(in, out []float64) {
	var z1, z2 float64
	for i, x := range in {
		y := f.b0*x + z1
		z1 = f.b1*x - f.a1*y + z2
		z2 = f.b2*x - f.a2*y
		out[i] = y
	}
}

// validateCutoff checks that the cutoff lies strictly inside (0, Nyquist).
func validateCutoff(sampleRate, frequency, q float64) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %g", sampleRate)
	}
	if frequency <= 0 || frequency >= sampleRate/2 {
		return fmt.Errorf("cutoff %g Hz must be between 0 and Nyquist (%g Hz)", frequency, sampleRate/2)
	}
	if q <= 0 {
		return fmt.Errorf("q must be greater than 0, got %g", q)
	}
	return nil
}

// NewLowPass returns the low-pass filter.
//
// Parameters:
//
//   - sampleRate ... sample rate in Hz. e.g. 48000.0
//   - frequency ... Cut off frequency in Hz.
//   - q ... Q value, ButterworthQ for a maximally flat response.
func NewLowPass(sampleRate, frequency, q float64) (*Filter, error) {
	if err := validateCutoff(sampleRate, frequency, q); err != nil {
		return nil, err
	}

	w0 := 2.0 * math.Pi * frequency / sampleRate
	alpha := math.Sin(w0) / (2.0 * q)
	cosw0 := math.Cos(w0)

	return newFilter(
		LowPass,
		frequency,
		1.0+alpha,
		-2.0*cosw0,
		1.0-alpha,
		(1.0-cosw0)/2.0,
		1.0-cosw0,
		(1.0-cosw0)/2.0,
	), nil
}

// NewHighPass returns the high-pass filter.
//
// Parameters:
//
//   - sampleRate ... sample rate in Hz. e.g. 48000.0
//   - frequency ... Cut off frequency in Hz.
//   - q ... Q value, ButterworthQ for a maximally flat response.
func NewHighPass(sampleRate, frequency, q float64) (*Filter, error) {
	if err := validateCutoff(sampleRate, frequency, q); err != nil {
		return nil, err
	}

	w0 := 2.0 * math.Pi * frequency / sampleRate
	alpha := math.Sin(w0) / (2.0 * q)
	cosw0 := math.Cos(w0)

	return newFilter(
		HighPass,
		frequency,
		1.0+alpha,
		-2.0*cosw0,
		1.0-alpha,
		(1.0+cosw0)/2.0,
		-1.0*(1.0+cosw0),
		(1.0+cosw0)/2.0,
	), nil
}
