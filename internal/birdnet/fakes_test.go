package birdnet

import (
	"sync/atomic"

	"github.com/tphakala/birdnet-pipeline/internal/errors"
)

const testInputSize = 16

// fakeAudioScorer returns fixed raw scores.
type fakeAudioScorer struct {
	raw    []float32
	err    error
	calls  int
	closed bool
}

func (f *fakeAudioScorer) NumClasses() int { return len(f.raw) }
func (f *fakeAudioScorer) InputSize() int  { return testInputSize }

func (f *fakeAudioScorer) Score(chunk []float32) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]float32(nil), f.raw...), nil
}

func (f *fakeAudioScorer) Close() { f.closed = true }

// fakeMetaScorer computes scores from a function of place and week.
type fakeMetaScorer struct {
	classes int
	fn      func(lat, lon float64, week int) []float32
	calls   *atomic.Int64
	closed  *atomic.Int64
	failAt  int64 // fail on this call number when > 0
}

func newFakeMeta(classes int, fn func(lat, lon float64, week int) []float32) *fakeMetaScorer {
	return &fakeMetaScorer{classes: classes, fn: fn, calls: new(atomic.Int64), closed: new(atomic.Int64)}
}

func (f *fakeMetaScorer) NumClasses() int { return f.classes }

func (f *fakeMetaScorer) Score(lat, lon float64, week int) ([]float32, error) {
	n := f.calls.Add(1)
	if f.failAt > 0 && n >= f.failAt {
		return nil, errors.NewStd("meta inference failed")
	}
	return f.fn(lat, lon, week), nil
}

func (f *fakeMetaScorer) Close() { f.closed.Add(1) }

// constMeta returns the same scores everywhere.
func constMeta(scores ...float32) func(float64, float64, int) []float32 {
	return func(float64, float64, int) []float32 { return append([]float32(nil), scores...) }
}

func testLabels(n int) *Labels {
	raw := []string{
		"Turdus merula_Eurasian Blackbird",
		"Turdus philomelos_Song Thrush",
		"Parus major_Great Tit",
		"Erithacus rubecula_European Robin",
		"Fringilla coelebs_Common Chaffinch",
		"Engine_Engine",
	}
	return NewLabels(raw[:n])
}
