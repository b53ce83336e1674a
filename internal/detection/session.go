package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/birdnet-pipeline/internal/birdnet"
	"github.com/tphakala/birdnet-pipeline/internal/errors"
	"github.com/tphakala/birdnet-pipeline/internal/logger"
)

// State is a live session state.
type State int

const (
	StateIdle State = iota
	StatePreparing
	StateAnalyzing
	StatePaused
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateAnalyzing:
		return "analyzing"
	case StatePaused:
		return "paused"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StateChange describes one transition.
type StateChange struct {
	SessionID string
	From      State
	To        State
	At        time.Time
}

// StateListener is notified after every transition, outside the session lock.
type StateListener func(StateChange)

// PrepareFunc readies a session before analysis, typically by building a
// MetaProfile. It runs without the session lock held.
type PrepareFunc func(ctx context.Context) error

// Session drives a live analysis session:
//
//	IDLE/STOPPED -> PREPARING -> ANALYZING <-> PAUSED -> STOPPED
//
// Restarting a stopped session clears the aggregator.
type Session struct {
	mu         sync.Mutex
	state      State
	id         string
	started    time.Time
	chunks     int
	aggregator *Aggregator
	filter     *FinalFilter
	listeners  []StateListener
	now        func() time.Time
}

// NewSession returns an idle session over a live aggregator and final filter.
func NewSession(aggregator *Aggregator, filter *FinalFilter) (*Session, error) {
	if aggregator == nil || filter == nil {
		return nil, errors.Newf("session requires an aggregator and a final filter").
			Category(errors.CategoryValidation).
			Build()
	}
	if aggregator.Mode() != ModeLive {
		return nil, errors.Newf("session requires a live aggregator, got %s", aggregator.Mode()).
			Category(errors.CategoryValidation).
			Build()
	}
	return &Session{aggregator: aggregator, filter: filter, now: time.Now}, nil
}

// OnStateChange registers a listener.
func (s *Session) OnStateChange(l StateListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the identifier of the current or last run, empty before the
// first start.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Chunks returns the number of chunks analyzed in the current run.
func (s *Session) Chunks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunks
}

// Start moves an idle or stopped session to PREPARING, runs prepare and then
// begins analyzing. If prepare fails the session ends up STOPPED. A Stop
// during prepare wins over the pending transition to ANALYZING.
func (s *Session) Start(ctx context.Context, prepare PrepareFunc) error {
	s.mu.Lock()
	if s.state != StateIdle && s.state != StateStopped {
		err := s.illegal("start")
		s.mu.Unlock()
		return err
	}
	if s.state == StateStopped {
		s.aggregator.Reset()
	}
	s.id = uuid.New().String()
	s.started = s.now()
	s.chunks = 0
	id := s.id
	change := s.transition(StatePreparing)
	s.mu.Unlock()
	s.notify(change)

	GetLogger().Info("session preparing", logger.String("session_id", id))

	var prepErr error
	if prepare != nil {
		prepErr = prepare(ctx)
	}

	s.mu.Lock()
	if s.state != StatePreparing || s.id != id {
		s.mu.Unlock()
		return errors.Newf("session stopped during preparation").
			Category(errors.CategoryCancellation).
			Context("session_id", id).
			Build()
	}
	if prepErr != nil {
		change = s.transition(StateStopped)
		s.mu.Unlock()
		s.notify(change)
		return errors.New(prepErr).
			Category(errors.CategoryMetaProfile).
			Context("operation", "session_prepare").
			Context("session_id", id).
			Build()
	}
	change = s.transition(StateAnalyzing)
	prepDuration := s.now().Sub(s.started)
	s.mu.Unlock()
	s.notify(change)

	GetLogger().Info("session analyzing",
		logger.String("session_id", id),
		logger.Duration("prepare_duration", prepDuration))
	return nil
}

// Pause suspends analysis, keeping aggregator state.
func (s *Session) Pause() error {
	return s.move("pause", StateAnalyzing, StatePaused)
}

// Resume continues a paused session.
func (s *Session) Resume() error {
	return s.move("resume", StatePaused, StateAnalyzing)
}

// Stop ends the session. Stopping a stopped session is a no-op.
func (s *Session) Stop() error {
	s.mu.Lock()
	switch s.state {
	case StateStopped:
		s.mu.Unlock()
		return nil
	case StateIdle:
		err := s.illegal("stop")
		s.mu.Unlock()
		return err
	}
	change := s.transition(StateStopped)
	chunks := s.chunks
	s.mu.Unlock()
	s.notify(change)

	GetLogger().Info("session stopped",
		logger.String("session_id", change.SessionID),
		logger.Int("chunks", chunks))
	return nil
}

// OnChunk feeds one chunk's detections to the aggregator and returns what
// surfaces for it. Chunks are only accepted while ANALYZING.
func (s *Session) OnChunk(dets []birdnet.Detection) ([]FinalDetection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAnalyzing {
		return nil, s.illegal("chunk")
	}
	s.chunks++
	s.aggregator.AddChunkResults(dets)
	return s.filter.Apply(dets, s.aggregator.ConfirmedDetections()), nil
}

// Confirmed returns the aggregator's current confirmed species.
func (s *Session) Confirmed() []ConfirmedDetection {
	return s.aggregator.ConfirmedDetections()
}

func (s *Session) move(op string, from, to State) error {
	s.mu.Lock()
	if s.state != from {
		err := s.illegal(op)
		s.mu.Unlock()
		return err
	}
	change := s.transition(to)
	s.mu.Unlock()
	s.notify(change)
	return nil
}

// transition must be called with s.mu held.
func (s *Session) transition(to State) StateChange {
	change := StateChange{SessionID: s.id, From: s.state, To: to, At: s.now()}
	s.state = to
	return change
}

func (s *Session) notify(change StateChange) {
	s.mu.Lock()
	listeners := append([]StateListener(nil), s.listeners...)
	s.mu.Unlock()

	GetLogger().Debug("session state changed",
		logger.String("session_id", change.SessionID),
		logger.String("from", change.From.String()),
		logger.String("to", change.To.String()))
	for _, l := range listeners {
		l(change)
	}
}

// illegal must be called with s.mu held.
func (s *Session) illegal(op string) error {
	return errors.Newf("cannot %s session in state %s", op, s.state).
		Category(errors.CategoryState).
		Context("operation", op).
		Context("state", s.state.String()).
		Build()
}
