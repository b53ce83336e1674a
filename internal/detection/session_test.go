package detection

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnet-pipeline/internal/errors"
)

type changeRecorder struct {
	mu      sync.Mutex
	changes []StateChange
}

func (r *changeRecorder) record(c StateChange) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *changeRecorder) transitions() [][2]State {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][2]State, len(r.changes))
	for i, c := range r.changes {
		out[i] = [2]State{c.From, c.To}
	}
	return out
}

func newTestSession(t *testing.T) (*Session, *changeRecorder) {
	t.Helper()
	s, err := NewSession(newTestAggregator(t, ModeLive), newTestFilter(t))
	require.NoError(t, err)
	rec := &changeRecorder{}
	s.OnStateChange(rec.record)
	return s, rec
}

func noPrepare(context.Context) error { return nil }

func TestNewSession_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewSession(nil, newTestFilter(t))
	require.Error(t, err)

	_, err = NewSession(newTestAggregator(t, ModeFile), newTestFilter(t))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestSession_Lifecycle(t *testing.T) {
	t.Parallel()

	s, rec := newTestSession(t)
	assert.Equal(t, StateIdle, s.State())
	assert.Empty(t, s.ID())

	prepared := false
	require.NoError(t, s.Start(context.Background(), func(context.Context) error {
		prepared = true
		assert.Equal(t, StatePreparing, s.State())
		return nil
	}))
	assert.True(t, prepared)
	assert.Equal(t, StateAnalyzing, s.State())
	_, err := uuid.Parse(s.ID())
	require.NoError(t, err)

	require.NoError(t, s.Pause())
	require.NoError(t, s.Resume())
	require.NoError(t, s.Stop())
	require.NoError(t, s.Stop(), "stop is idempotent")

	assert.Equal(t, [][2]State{
		{StateIdle, StatePreparing},
		{StatePreparing, StateAnalyzing},
		{StateAnalyzing, StatePaused},
		{StatePaused, StateAnalyzing},
		{StateAnalyzing, StateStopped},
	}, rec.transitions())
}

func TestSession_IllegalTransitions(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)

	for name, op := range map[string]func() error{
		"pause idle":  s.Pause,
		"resume idle": s.Resume,
		"stop idle":   s.Stop,
	} {
		err := op()
		require.Error(t, err, name)
		assert.True(t, errors.IsCategory(err, errors.CategoryState), name)
	}

	_, err := s.OnChunk(chunk(det("robin", 0.9)))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	require.NoError(t, s.Start(context.Background(), noPrepare))
	err = s.Start(context.Background(), noPrepare)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryState))

	require.Error(t, s.Resume())
	require.NoError(t, s.Pause())
	require.Error(t, s.Pause())

	_, err = s.OnChunk(chunk(det("robin", 0.9)))
	require.Error(t, err, "paused sessions reject chunks")
}

func TestSession_OnChunk(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	require.NoError(t, s.Start(context.Background(), noPrepare))

	// an anchor surfaces at once, a moderate score needs confirmation
	out, err := s.OnChunk(chunk(det("robin", 0.9), det("tit", 0.6)))
	require.NoError(t, err)
	assert.Equal(t, []string{"Erithacus rubecula"}, names(out))

	out, err = s.OnChunk(chunk(det("tit", 0.7)))
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "Parus major", out[0].ScientificName)
	assert.Equal(t, SourceConfirmed, out[0].Source)
	assert.InDelta(t, 0.65, out[0].Confidence, 1e-6)

	assert.Len(t, s.Confirmed(), 1)
	assert.Equal(t, 2, s.Chunks())
}

func TestSession_NonBirdChunksSurfaceNothing(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	require.NoError(t, s.Start(context.Background(), noPrepare))

	for range 3 {
		out, err := s.OnChunk(chunk(det("engine", 0.95)))
		require.NoError(t, err)
		assert.Empty(t, out)
	}
	assert.Empty(t, s.Confirmed())
	assert.Equal(t, 3, s.Chunks())
}

func TestSession_RestartResetsAggregator(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	require.NoError(t, s.Start(context.Background(), noPrepare))
	first := s.ID()
	for range 2 {
		_, err := s.OnChunk(chunk(det("tit", 0.7)))
		require.NoError(t, err)
	}
	require.Len(t, s.Confirmed(), 1)
	require.NoError(t, s.Stop())

	require.NoError(t, s.Start(context.Background(), noPrepare))
	assert.NotEqual(t, first, s.ID())
	assert.Empty(t, s.Confirmed())
	assert.Zero(t, s.Chunks())

	out, err := s.OnChunk(chunk(det("tit", 0.7)))
	require.NoError(t, err)
	assert.Empty(t, out, "confirmation starts over")
}

func TestSession_PrepareFailure(t *testing.T) {
	t.Parallel()

	s, rec := newTestSession(t)
	err := s.Start(context.Background(), func(context.Context) error {
		return errors.NewStd("meta model missing")
	})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMetaProfile))
	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, [][2]State{
		{StateIdle, StatePreparing},
		{StatePreparing, StateStopped},
	}, rec.transitions())

	require.NoError(t, s.Start(context.Background(), noPrepare), "a failed session can be restarted")
}

func TestSession_StopDuringPrepare(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	err := s.Start(context.Background(), func(context.Context) error {
		return s.Stop()
	})
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryCancellation))
	assert.Equal(t, StateStopped, s.State())
}

func TestSession_ConcurrentReaders(t *testing.T) {
	t.Parallel()

	s, _ := newTestSession(t)
	require.NoError(t, s.Start(context.Background(), noPrepare))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 100 {
			_, err := s.OnChunk(chunk(det("tit", 0.7), det("robin", 0.8)))
			assert.NoError(t, err)
		}
	}()
	go func() {
		defer wg.Done()
		for range 100 {
			_ = s.Confirmed()
			_ = s.State()
			_ = s.ID()
		}
	}()
	wg.Wait()
	assert.Equal(t, 100, s.Chunks())
}
