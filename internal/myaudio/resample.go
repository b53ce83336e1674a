package myaudio

import "fmt"

// ResampleAudio resamples the given audio slice from the original sample rate
// to the target sample rate using cubic interpolation.
func ResampleAudio(audio []float32, originalRate, targetRate int) ([]float32, error) {
	r, err := newResampler(originalRate, targetRate)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return audio, nil
	}
	out := r.Process(audio)
	return append(out, r.Flush()...), nil
}

// resampler converts a stream block by block. Interpolation state carries
// across Process calls so block boundaries leave no discontinuities.
type resampler struct {
	step    float64   // source samples per output sample
	pos     float64   // next output position, relative to pending[0]
	pending []float32 // source samples still needed for interpolation
}

// newResampler returns nil when no conversion is needed.
func newResampler(originalRate, targetRate int) (*resampler, error) {
	if originalRate <= 0 || targetRate <= 0 {
		return nil, fmt.Errorf("invalid sample rates: %d -> %d", originalRate, targetRate)
	}
	if originalRate == targetRate {
		return nil, nil
	}
	return &resampler{step: float64(originalRate) / float64(targetRate)}, nil
}

// Process consumes in and returns every output sample whose four point
// neighbourhood is complete.
func (r *resampler) Process(in []float32) []float32 {
	r.pending = append(r.pending, in...)
	var out []float32
	for int(r.pos)+2 < len(r.pending) {
		out = append(out, r.sample(r.pos))
		r.pos += r.step
	}
	r.compact()
	return out
}

// Flush emits the remaining samples, clamping at the end of the stream.
func (r *resampler) Flush() []float32 {
	var out []float32
	for int(r.pos) < len(r.pending) {
		out = append(out, r.sample(r.pos))
		r.pos += r.step
	}
	r.pending = r.pending[:0]
	r.pos = 0
	return out
}

// compact drops source samples no longer reachable, keeping one of history.
func (r *resampler) compact() {
	drop := int(r.pos) - 1
	if drop <= 0 {
		return
	}
	n := copy(r.pending, r.pending[drop:])
	r.pending = r.pending[:n]
	r.pos -= float64(drop)
}

func (r *resampler) at(i int) float32 {
	return r.pending[min(max(i, 0), len(r.pending)-1)]
}

// sample evaluates the Catmull-Rom cubic through the four nearest points.
func (r *resampler) sample(pos float64) float32 {
	index := int(pos)
	frac := float32(pos - float64(index))

	y0, y1, y2, y3 := r.at(index-1), r.at(index), r.at(index+1), r.at(index+2)
	mu2 := frac * frac
	a0 := -0.5*y0 + 1.5*y1 - 1.5*y2 + 0.5*y3
	a1 := y0 - 2.5*y1 + 2*y2 - 0.5*y3
	a2 := -0.5*y0 + 0.5*y2
	a3 := y1

	return a0*frac*mu2 + a1*mu2 + a2*frac + a3
}
