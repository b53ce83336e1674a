package myaudio

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/myaudio/equalizer"
	"github.com/tphakala/birdnet-pipeline/internal/myaudio/spectral"
)

// RejectReason tells why a chunk was dropped before classification.
type RejectReason int

// Reject reasons in stage order.
const (
	Accepted RejectReason = iota
	RejectSilence
	RejectClipping
	RejectSpectral
	RejectPostFilter
	numRejectReasons
)

func (r RejectReason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectSilence:
		return "silence"
	case RejectClipping:
		return "clipping"
	case RejectSpectral:
		return "spectral"
	case RejectPostFilter:
		return "post_filter"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// RejectReasons lists every rejection reason, for metric label initialization.
func RejectReasons() []RejectReason {
	return []RejectReason{RejectSilence, RejectClipping, RejectSpectral, RejectPostFilter}
}

// ProcessorConfig holds the thresholds of every processing stage.
type ProcessorConfig struct {
	SampleRate      float64
	SilenceRMS      float64 // stage 1
	ClipPeak        float64 // stage 2, with ClipRMS
	ClipRMS         float64
	RejectRatio     float64 // stage 3
	Epsilon         float64
	LowCut          float64 // stage 4
	HighCut         float64
	PostFilterFloor float64 // stage 5
	NormalizeTarget float64 // stage 6
}

// ProcessorConfigFromSettings maps audio settings onto a ProcessorConfig.
func ProcessorConfigFromSettings(a *conf.AudioSettings) ProcessorConfig {
	return ProcessorConfig{
		SampleRate:      conf.SampleRate,
		SilenceRMS:      a.SilenceRMS,
		ClipPeak:        a.ClipPeak,
		ClipRMS:         a.ClipRMS,
		RejectRatio:     a.Spectral.RejectRatio,
		Epsilon:         a.Spectral.Epsilon,
		LowCut:          a.Bandpass.Low,
		HighCut:         a.Bandpass.High,
		PostFilterFloor: a.PostFilterFloor,
		NormalizeTarget: a.NormalizeTarget,
	}
}

// ProcessorStats counts outcomes since the processor was created.
type ProcessorStats struct {
	Processed int
	Accepted  int
	Rejected  map[RejectReason]int
}

// ChunkProcessor screens, filters and normalizes chunks. It keeps a private
// work buffer and is not safe for concurrent use.
type ChunkProcessor struct {
	cfg      ProcessorConfig
	gate     *spectral.Gate
	bandpass *equalizer.BandpassFilter
	work     []float64
	counts   [numRejectReasons]int
}

// NewChunkProcessor validates cfg and builds the gate and bandpass filter.
func NewChunkProcessor(cfg ProcessorConfig) (*ChunkProcessor, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = conf.SampleRate
	}
	if cfg.NormalizeTarget <= 0 || cfg.NormalizeTarget > 1 {
		return nil, errors.Newf("normalize target must be in (0, 1], got %g", cfg.NormalizeTarget).
			Category(errors.CategoryValidation).
			Context("operation", "new_chunk_processor").
			Build()
	}

	gate, err := spectral.NewGate(spectral.GateConfig{
		SampleRate:  cfg.SampleRate,
		RejectRatio: cfg.RejectRatio,
		Epsilon:     cfg.Epsilon,
	})
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Context("operation", "new_spectral_gate").
			Build()
	}

	bp, err := equalizer.NewBandpass(cfg.SampleRate, cfg.LowCut, cfg.HighCut)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryValidation).
			Context("operation", "new_bandpass").
			Context("low_cut", cfg.LowCut).
			Context("high_cut", cfg.HighCut).
			Build()
	}

	return &ChunkProcessor{cfg: cfg, gate: gate, bandpass: bp}, nil
}

// Config returns the processor thresholds.
func (p *ChunkProcessor) Config() ProcessorConfig {
	return p.cfg
}

// Process runs every stage over samples. The second result is false when the
// chunk carries no usable signal and must not reach the classifier.
func (p *ChunkProcessor) Process(samples []float32) (ProcessedChunk, bool) {
	out, reason := p.ProcessWithReason(samples)
	return out, reason == Accepted
}

// ProcessWithReason is Process with the rejecting stage reported.
func (p *ChunkProcessor) ProcessWithReason(samples []float32) (ProcessedChunk, RejectReason) {
	reason := p.process(samples)
	p.counts[reason]++
	if reason != Accepted {
		return ProcessedChunk{}, reason
	}

	return ProcessedChunk{
		Samples: toFloat32(p.work),
		RMS:     RMS(p.work),
		Peak:    Peak(p.work),
	}, Accepted
}

func (p *ChunkProcessor) process(samples []float32) RejectReason {
	if len(samples) == 0 {
		return RejectSilence
	}
	p.work = toFloat64(p.work, samples)
	buf := p.work

	rms := RMS(buf)
	peak := Peak(buf)

	if rms < p.cfg.SilenceRMS {
		return RejectSilence
	}

	// a single sharp transient is not clipping
	if peak > p.cfg.ClipPeak && rms > p.cfg.ClipRMS {
		return RejectClipping
	}

	if !p.gate.Passes(buf) {
		return RejectSpectral
	}

	p.bandpass.ApplyInPlace(buf)

	filteredPeak := Peak(buf)
	if filteredPeak == 0 || filteredPeak < p.cfg.PostFilterFloor {
		return RejectPostFilter
	}

	// boost only, loud chunks are never attenuated
	if filteredPeak < p.cfg.NormalizeTarget {
		floats.Scale(p.cfg.NormalizeTarget/filteredPeak, buf)
		for i, v := range buf {
			buf[i] = min(max(v, -1), 1)
		}
	}

	return Accepted
}

// Stats returns the outcome counters.
func (p *ChunkProcessor) Stats() ProcessorStats {
	st := ProcessorStats{Rejected: make(map[RejectReason]int, len(RejectReasons()))}
	for reason, n := range p.counts {
		r := RejectReason(reason)
		st.Processed += n
		if r == Accepted {
			st.Accepted = n
			continue
		}
		if n > 0 {
			st.Rejected[r] = n
		}
	}
	return st
}
