package spectral

import (
	"fmt"
)

// Measured bands, lowest to highest.
const (
	BandNoise = iota // low frequency non-bird noise
	BandLow          // low pitched vocalizations
	BandBird         // typical vocalizations
	BandHigh         // above the vocal range
	numBands
)

// DefaultFrequencies are the band frequencies in Hz for each band.
var DefaultFrequencies = [numBands]float64{100, 500, 3000, 12000}

// Default thresholds.
const (
	DefaultEpsilon          = 1e-10
	DefaultBatchRejectRatio = 0.80
	DefaultLiveRejectRatio  = 0.95
)

// GateConfig configures a Gate.
type GateConfig struct {
	SampleRate  float64
	Frequencies [numBands]float64 // zero value selects DefaultFrequencies
	RejectRatio float64           // max share of total energy in the lowest or highest band
	Epsilon     float64           // total energy below which the gate does not decide
}

// BandEnergy is the per-band breakdown behind a gate decision.
type BandEnergy struct {
	Energy       [numBands]float64
	Total        float64
	LowFraction  float64
	HighFraction float64
	Negligible   bool
	Pass         bool
}

// Gate rejects chunks whose energy is concentrated in the lowest or highest
// measured band. Only the two edge bands can cause rejection.
type Gate struct {
	cfg GateConfig
}

// NewGate validates cfg and returns a Gate.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %g", cfg.SampleRate)
	}
	if cfg.Frequencies == ([numBands]float64{}) {
		cfg.Frequencies = DefaultFrequencies
	}
	for i, f := range cfg.Frequencies {
		if f <= 0 || f >= cfg.SampleRate/2 {
			return nil, fmt.Errorf("band frequency %d (%g Hz) must be between 0 and Nyquist", i, f)
		}
		if i > 0 && f <= cfg.Frequencies[i-1] {
			return nil, fmt.Errorf("band frequencies must be strictly increasing")
		}
	}
	if cfg.RejectRatio <= 0 || cfg.RejectRatio > 1 {
		return nil, fmt.Errorf("reject ratio must be in (0, 1], got %g", cfg.RejectRatio)
	}
	if cfg.Epsilon < 0 {
		return nil, fmt.Errorf("epsilon must not be negative, got %g", cfg.Epsilon)
	}
	return &Gate{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (g *Gate) Config() GateConfig {
	return g.cfg
}

// Passes reports whether chunk may proceed to classification.
func (g *Gate) Passes(chunk []float64) bool {
	return g.Analyze(chunk).Pass
}

// Analyze computes the band energies and the gate decision.
func (g *Gate) Analyze(chunk []float64) BandEnergy {
	var be BandEnergy
	for i, f := range g.cfg.Frequencies {
		be.Energy[i] = Goertzel(chunk, f, g.cfg.SampleRate)
		be.Total += be.Energy[i]
	}

	// near-zero signals are left to the amplitude based silence check
	if be.Total < g.cfg.Epsilon {
		be.Negligible = true
		be.Pass = true
		return be
	}

	be.LowFraction = be.Energy[BandNoise] / be.Total
	be.HighFraction = be.Energy[BandHigh] / be.Total
	be.Pass = be.LowFraction <= g.cfg.RejectRatio && be.HighFraction <= g.cfg.RejectRatio
	return be
}
