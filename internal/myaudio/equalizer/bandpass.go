package equalizer

import (
	"fmt"
)

// BandpassFilter is a high-pass followed by a low-pass Butterworth section.
// Coefficients are fixed at construction; no state survives between calls.
type BandpassFilter struct {
	sampleRate float64
	highPass   *Filter
	lowPass    *Filter
}

// NewBandpass builds a bandpass passing lowCut..highCut Hz.
func NewBandpass(sampleRate, lowCut, highCut float64) (*BandpassFilter, error) {
	if lowCut >= highCut {
		return nil, fmt.Errorf("low cutoff %g Hz must be below high cutoff %g Hz", lowCut, highCut)
	}

	hp, err := NewHighPass(sampleRate, lowCut, ButterworthQ)
	if err != nil {
		return nil, fmt.Errorf("high-pass section: %w", err)
	}
	lp, err := NewLowPass(sampleRate, highCut, ButterworthQ)
	if err != nil {
		return nil, fmt.Errorf("low-pass section: %w", err)
	}

	return &BandpassFilter{sampleRate: sampleRate, highPass: hp, lowPass: lp}, nil
}

// LowCut returns the high-pass cutoff in Hz.
func (b *BandpassFilter) LowCut() float64 { return b.highPass.Frequency() }

// HighCut returns the low-pass cutoff in Hz.
func (b *BandpassFilter) HighCut() float64 { return b.lowPass.Frequency() }

// Apply returns a filtered copy of chunk with the same length.
func (b *BandpassFilter) Apply(chunk []float64) []float64 {
	out := make([]float64, len(chunk))
	b.highPass.Process(chunk, out)
	b.lowPass.Process(out, out)
	return out
}

// ApplyInPlace filters buf in place.
func (b *BandpassFilter) ApplyInPlace(buf []float64) {
	b.highPass.Process(buf, buf)
	b.lowPass.Process(buf, buf)
}
