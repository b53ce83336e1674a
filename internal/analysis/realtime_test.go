package analysis

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
	"github.com/tphakala/birdnet-pipeline/internal/conf"
	"github.com/tphakala/birdnet-pipeline/internal/detection"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/myaudio"
)

// syncBuffer is a bytes.Buffer safe for the consumer and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type liveFixture struct {
	rt       *Realtime
	out      *syncBuffer
	pool     *workerPool
	prepared atomic.Int64
	analyzed atomic.Int64
}

func newLiveFixture(t *testing.T, script func(int) ([]birdnet.Detection, error), opts ...RealtimeOption) *liveFixture {
	t.Helper()
	f := &liveFixture{out: &syncBuffer{}}
	f.pool = &workerPool{proto: fakeWorker{
		script: func(i int) ([]birdnet.Detection, error) {
			f.analyzed.Add(1)
			return script(i)
		},
	}}
	prepare := func(context.Context) (WorkerFactory, error) {
		f.prepared.Add(1)
		return f.pool.factory(), nil
	}
	rt, err := NewRealtime(testSettings(t, "live"), nil, prepare, nil, f.out, opts...)
	require.NoError(t, err)
	f.rt = rt
	return f
}

func alwaysBlackbird(int) ([]birdnet.Detection, error) {
	return []birdnet.Detection{det(blackbird, 0.9)}, nil
}

func TestRealtime_RunFromReader(t *testing.T) {
	t.Parallel()

	var states []detection.State
	var mu sync.Mutex
	f := newLiveFixture(t, alwaysBlackbird, WithStateListener(func(c detection.StateChange) {
		mu.Lock()
		defer mu.Unlock()
		states = append(states, c.To)
	}))

	// 9 s at a 1.5 s hop yields five full windows
	pcm := pcm16(sine(3*conf.ChunkSamples, 3000, 0.3))
	err := f.rt.Run(t.Context(), NewReaderSource("test", bytes.NewReader(pcm)))
	require.NoError(t, err)

	assert.Equal(t, int64(5), f.analyzed.Load())
	assert.Equal(t, detection.StateStopped, f.rt.Session().State())
	assert.Equal(t, int64(1), f.pool.created.Load())
	assert.Equal(t, int64(1), f.pool.closed.Load())

	out := f.out.String()
	assert.Equal(t, 5, strings.Count(out, "anchor"))
	assert.Contains(t, out, "chunk 4  Eurasian Blackbird")
	assert.Contains(t, out, "Confirmed species (1)")

	_, ok := f.rt.Level()
	assert.True(t, ok, "the level meter saw the stream")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []detection.State{detection.StatePreparing, detection.StateAnalyzing, detection.StateStopped}, states)
}

func TestRealtime_PrepareFailure(t *testing.T) {
	t.Parallel()

	prepare := func(context.Context) (WorkerFactory, error) {
		return nil, errors.NewStd("meta model missing")
	}
	rt, err := NewRealtime(testSettings(t, "live"), nil, prepare, nil, &syncBuffer{})
	require.NoError(t, err)

	err = rt.Run(t.Context(), NewReaderSource("test", bytes.NewReader(nil)))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMetaProfile))
	assert.Equal(t, detection.StateStopped, rt.Session().State())
}

func TestRealtime_WorkerErrorEndsSession(t *testing.T) {
	t.Parallel()

	f := newLiveFixture(t, func(i int) ([]birdnet.Detection, error) {
		if i == 1 {
			return nil, errors.NewStd("interpreter failed")
		}
		return []birdnet.Detection{}, nil
	})

	pcm := pcm16(sine(3*conf.ChunkSamples, 3000, 0.3))
	err := f.rt.Run(t.Context(), NewReaderSource("test", bytes.NewReader(pcm)))
	require.Error(t, err)
	assert.Equal(t, detection.StateStopped, f.rt.Session().State())
	assert.Equal(t, int64(1), f.pool.closed.Load())
}

func TestRealtime_CancelStopsSession(t *testing.T) {
	t.Parallel()

	f := newLiveFixture(t, alwaysBlackbird)
	ctx, cancel := context.WithCancel(t.Context())
	blocked := &blockingSource{started: make(chan struct{})}

	errCh := make(chan error, 1)
	go func() { errCh <- f.rt.Run(ctx, blocked) }()
	<-blocked.started
	cancel()

	require.NoError(t, <-errCh)
	assert.Equal(t, detection.StateStopped, f.rt.Session().State())
}

// blockingSource produces nothing until cancelled.
type blockingSource struct{ started chan struct{} }

func (s *blockingSource) Name() string { return "blocking" }

func (s *blockingSource) Run(ctx context.Context, _ io.Writer, _ *myaudio.LevelMeter) error {
	close(s.started)
	<-ctx.Done()
	return ctx.Err()
}

func TestRealtime_HandleControl(t *testing.T) {
	t.Parallel()

	f := newLiveFixture(t, alwaysBlackbird)
	rt := f.rt
	require.NoError(t, rt.start(t.Context()))
	defer rt.closeWorker()

	window := pcm16(sine(conf.ChunkSamples, 3000, 0.3))
	var emitted []int
	collect := func(c myaudio.Chunk) error {
		emitted = append(emitted, c.Index)
		return nil
	}

	restart, err := rt.handleControl(ControlPause)
	require.NoError(t, err)
	assert.False(t, restart)
	assert.Equal(t, detection.StatePaused, rt.Session().State())

	// paused chunks are discarded
	_, err = rt.chunker.Write(window)
	require.NoError(t, err)
	require.NoError(t, rt.forward(collect))
	assert.Empty(t, emitted)

	// pausing twice is ignored
	_, err = rt.handleControl(ControlPause)
	require.NoError(t, err)

	_, err = rt.handleControl(ControlResume)
	require.NoError(t, err)
	assert.Equal(t, detection.StateAnalyzing, rt.Session().State())
	_, err = rt.chunker.Write(window)
	require.NoError(t, err)
	require.NoError(t, rt.forward(collect))
	assert.NotEmpty(t, emitted)

	_, err = rt.handleControl(ControlReport)
	require.NoError(t, err)
	assert.Contains(t, f.out.String(), "Confirmed species")

	// a restart is left to the caller, which ends the segment first
	restart, err = rt.handleControl(ControlRestart)
	require.NoError(t, err)
	assert.True(t, restart)
	assert.Equal(t, detection.StateAnalyzing, rt.Session().State())

	restart, err = rt.handleControl(Control("rewind"))
	require.NoError(t, err)
	assert.False(t, restart)
}

func TestRealtime_Restart(t *testing.T) {
	t.Parallel()

	f := newLiveFixture(t, alwaysBlackbird)
	rt := f.rt
	require.NoError(t, rt.start(t.Context()))
	defer rt.closeWorker()
	firstID := rt.Session().ID()

	for i := range 2 {
		require.NoError(t, rt.onResult(ChunkResult{Index: i, Detections: []birdnet.Detection{det(blackbird, 0.6)}}))
	}
	require.NotEmpty(t, rt.Session().Confirmed())

	require.NoError(t, rt.restart(t.Context()))
	assert.Equal(t, detection.StateAnalyzing, rt.Session().State())
	assert.NotEqual(t, firstID, rt.Session().ID())
	assert.Equal(t, int64(2), f.prepared.Load())
	assert.Equal(t, int64(1), f.pool.closed.Load(), "the first worker is released on restart")
	assert.Empty(t, rt.Session().Confirmed())

	w, err := rt.takeWorker()
	require.NoError(t, err)
	w.Close()
	_, err = rt.takeWorker()
	require.Error(t, err, "a prepared worker is handed out once")
}

func TestRealtime_OnResultOutsideSession(t *testing.T) {
	t.Parallel()

	f := newLiveFixture(t, alwaysBlackbird)
	// chunks still queued when the session stops are dropped quietly
	require.NoError(t, f.rt.onResult(ChunkResult{Detections: []birdnet.Detection{det(blackbird, 0.9)}}))
	assert.Empty(t, f.out.String())
}

func TestRealtime_RestartThroughControlChannel(t *testing.T) {
	t.Parallel()

	control := make(chan Control, 1)
	f := newLiveFixture(t, alwaysBlackbird, WithControl(control))
	ctx, cancel := context.WithCancel(t.Context())
	blocked := &blockingSource{started: make(chan struct{})}

	errCh := make(chan error, 1)
	go func() { errCh <- f.rt.Run(ctx, blocked) }()
	<-blocked.started
	firstID := f.rt.Session().ID()

	control <- ControlRestart
	require.Eventually(t, func() bool {
		return f.prepared.Load() == 2 && f.rt.Session().State() == detection.StateAnalyzing
	}, time.Second, 5*time.Millisecond)
	assert.NotEqual(t, firstID, f.rt.Session().ID())

	cancel()
	require.NoError(t, <-errCh)
	assert.Equal(t, int64(2), f.pool.created.Load())
	assert.Equal(t, int64(2), f.pool.closed.Load(), "each segment releases its worker")
}

func TestRealtime_ControlChannel(t *testing.T) {
	t.Parallel()

	control := make(chan Control, 1)
	f := newLiveFixture(t, alwaysBlackbird, WithControl(control))
	ctx, cancel := context.WithCancel(t.Context())
	blocked := &blockingSource{started: make(chan struct{})}

	errCh := make(chan error, 1)
	go func() { errCh <- f.rt.Run(ctx, blocked) }()
	<-blocked.started

	control <- ControlPause
	require.Eventually(t, func() bool {
		return f.rt.Session().State() == detection.StatePaused
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-errCh)
	assert.Equal(t, detection.StateStopped, f.rt.Session().State())
}

func TestRealtime_PrintDetections(t *testing.T) {
	t.Parallel()

	f := newLiveFixture(t, alwaysBlackbird)
	f.rt.now = func() time.Time { return time.Date(2026, 5, 1, 5, 30, 0, 0, time.UTC) }

	f.rt.printDetections(7, nil)
	assert.Empty(t, f.out.String())

	f.rt.printDetections(7, []detection.FinalDetection{
		{Detection: det(robin, 0.812), Family: "Erithacus", Source: detection.SourceConfirmed},
	})
	line := f.out.String()
	assert.True(t, strings.HasPrefix(line, "05:30:00 chunk 7  European Robin"))
	assert.Contains(t, line, " 81.2%  confirmed")
	assert.NotContains(t, line, "[", "no period tag without a location")
}

func TestRealtime_PeriodicReportShowsLevel(t *testing.T) {
	t.Parallel()

	f := newLiveFixture(t, alwaysBlackbird)
	f.rt.periodicReport()
	assert.Contains(t, f.out.String(), "Confirmed species (0)")
	assert.NotContains(t, f.out.String(), "input level", "no level before audio arrives")

	require.True(t, f.rt.meter.Update(pcm16(sine(4800, 1000, 0.5))))
	f.rt.periodicReport()
	assert.Contains(t, f.out.String(), "input level")
	assert.Contains(t, f.out.String(), "dBFS")
}

func TestRealtime_PeriodTagWithLocation(t *testing.T) {
	t.Parallel()

	s := testSettings(t, "live")
	s.BirdNET.Latitude, s.BirdNET.Longitude = 52.37, 4.89
	rt, err := NewRealtime(s, nil, nil, nil, &syncBuffer{})
	require.NoError(t, err)

	assert.Equal(t, "day", rt.periodTag(time.Date(2026, 3, 20, 12, 0, 0, 0, time.UTC)))
}

func TestLiveSourceFromSettings(t *testing.T) {
	t.Parallel()

	src, err := LiveSourceFromSettings(&conf.RealtimeSettings{Source: "stdin"}, strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "stdin", src.Name())

	src, err = LiveSourceFromSettings(&conf.RealtimeSettings{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "default", src.Name())

	src, err = LiveSourceFromSettings(&conf.RealtimeSettings{Source: "device", Device: "hw:1,0"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "hw:1,0", src.Name())

	_, err = LiveSourceFromSettings(&conf.RealtimeSettings{Source: "rtsp"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
