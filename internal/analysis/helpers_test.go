package analysis

import (
	"context"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/myaudio"
)

var (
	blackbird = birdnet.Detection{ScientificName: "Turdus merula", CommonName: "Eurasian Blackbird", Index: 0}
	thrush    = birdnet.Detection{ScientificName: "Turdus philomelos", CommonName: "Song Thrush", Index: 1}
	robin     = birdnet.Detection{ScientificName: "Erithacus rubecula", CommonName: "European Robin", Index: 2}
)

func det(d birdnet.Detection, confidence float32) birdnet.Detection {
	d.Confidence = confidence
	return d
}

func testSettings(t *testing.T, profile string) *conf.Settings {
	t.Helper()
	s, err := conf.LoadDefaults(profile)
	require.NoError(t, err)
	return s
}

// sliceSource emits n small chunks, honoring stop requests and cancellation.
// failAfter > 0 makes it fail once that many chunks were emitted.
type sliceSource struct {
	n         int
	failAfter int
	failErr   error
	emitted   atomic.Int64
}

func (s *sliceSource) source() ChunkSource {
	return func(ctx context.Context, emit myaudio.ChunkCallback) error {
		for i := range s.n {
			if s.failAfter > 0 && i == s.failAfter {
				return s.failErr
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			chunk := myaudio.Chunk{
				Index:   i,
				Offset:  time.Duration(i) * 3 * time.Second,
				Samples: make([]float32, 4),
			}
			if err := emit(chunk); err != nil {
				if errors.Is(err, myaudio.ErrStopReading) {
					return nil
				}
				return err
			}
			s.emitted.Add(1)
		}
		return nil
	}
}

// fakeWorker returns scripted detections per chunk index.
type fakeWorker struct {
	script func(index int) ([]birdnet.Detection, error)
	gate   <-chan struct{} // when set, Process waits for it to close
	delay  func(index int) time.Duration
	closed *atomic.Int64
}

func (w *fakeWorker) Process(chunk myaudio.Chunk) (ChunkResult, error) {
	if w.gate != nil {
		<-w.gate
	}
	if w.delay != nil {
		time.Sleep(w.delay(chunk.Index))
	}
	res := ChunkResult{Index: chunk.Index, Offset: chunk.Offset, End: chunk.Offset + 3*time.Second}
	if w.script == nil {
		return res, nil
	}
	dets, err := w.script(chunk.Index)
	if err != nil {
		return res, err
	}
	if dets == nil {
		res.Reason = myaudio.RejectSilence
		return res, nil
	}
	res.Detections = dets
	return res, nil
}

func (w *fakeWorker) Close() {
	if w.closed != nil {
		w.closed.Add(1)
	}
}

// workerPool counts workers created and closed by a factory.
type workerPool struct {
	created atomic.Int64
	closed  atomic.Int64
	mu      sync.Mutex
	proto   fakeWorker
}

func (p *workerPool) factory() WorkerFactory {
	return func() (Worker, error) {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.created.Add(1)
		w := p.proto
		w.closed = &p.closed
		return &w, nil
	}
}

// fakeScorer is an AudioScorer with fixed logits over full size chunks.
type fakeScorer struct {
	logits []float32
	err    error
	calls  int
	closed bool
}

func (s *fakeScorer) NumClasses() int { return len(s.logits) }
func (s *fakeScorer) InputSize() int  { return conf.ChunkSamples }

func (s *fakeScorer) Score(chunk []float32) ([]float32, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return append([]float32(nil), s.logits...), nil
}

func (s *fakeScorer) Close() { s.closed = true }

func testLabels() *birdnet.Labels {
	return birdnet.NewLabels([]string{
		"Turdus merula_Eurasian Blackbird",
		"Turdus philomelos_Song Thrush",
		"Erithacus rubecula_European Robin",
	})
}

// sine returns n samples of a tone at conf.SampleRate.
func sine(n int, freq, amp float64) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/conf.SampleRate))
	}
	return out
}

// pcm16 encodes samples as 16 bit little endian PCM.
func pcm16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, v := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v*32767)))
	}
	return out
}

// stepClock advances by step on every call.
type stepClock struct {
	base  time.Time
	step  time.Duration
	calls atomic.Int64
}

func (c *stepClock) now() time.Time {
	n := c.calls.Add(1)
	return c.base.Add(time.Duration(n) * c.step)
}
