package session

import (
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/flowrise/focusync/internal/log"
	"github.com/flowrise/focusync/internal/metrics"
)

var (
	// ErrAlreadyActive is returned by Start while a session is running.
	ErrAlreadyActive = errors.New("a focus session is already active")
	// ErrNotActive is returned by Stop while no session is running.
	ErrNotActive = errors.New("no focus session is active")
)

// EventSink receives every durable wire event the tracker produces.
type EventSink interface {
	Record(ev Event) error
}

// Notifier is told about session boundaries so the transport can push
// real-time updates. All calls are best-effort: failures never block a
// state transition.
type Notifier interface {
	SessionStarted(s *Session)
	SessionStopped(s *Session)
}

// HistoryWriter persists closed sessions.
type HistoryWriter interface {
	AppendSession(s *Session) error
}

// Tracker is the session state machine. It exclusively owns the active
// Session; callers only ever see clones.
type Tracker struct {
	mu       sync.Mutex
	state    State
	active   *Session
	filter   *Filter
	sink     EventSink
	notifier Notifier
	history  HistoryWriter
}

// NewTracker wires a tracker to its collaborators. notifier and history
// may be nil in tests.
func NewTracker(filter *Filter, sink EventSink, notifier Notifier, history HistoryWriter) *Tracker {
	return &Tracker{
		state:    StateInactive,
		filter:   filter,
		sink:     sink,
		notifier: notifier,
		history:  history,
	}
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Active returns a clone of the running session, or nil.
func (t *Tracker) Active() *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active.Clone()
}

// Start transitions INACTIVE -> ACTIVE with a fresh session.
func (t *Tracker) Start() (*Session, error) {
	t.mu.Lock()
	if t.state == StateActive {
		t.mu.Unlock()
		return nil, ErrAlreadyActive
	}
	s := &Session{
		ID:            uuid.New().String(),
		StartTime:     Now(),
		Interruptions: []Interruption{},
	}
	t.active = s
	t.state = StateActive
	t.filter.Reset()
	snapshot := s.Clone()
	t.mu.Unlock()

	metrics.SessionActive.Set(1)
	logger := log.WithComponent("tracker")
	logger.Info().
		Str(log.FieldSessionID, snapshot.ID).
		Str(log.FieldOldState, string(StateInactive)).
		Str(log.FieldNewState, string(StateActive)).
		Msg("focus session started")

	t.emit(Event{Type: EventStart, SessionID: snapshot.ID, Time: snapshot.StartTime})
	if t.notifier != nil {
		t.notifier.SessionStarted(snapshot)
	}
	return snapshot, nil
}

// RecordSignal routes a raw interruption signal through the filter and,
// if accepted, appends it to the active session and queues its event.
// While INACTIVE this is a no-op; callers get no per-call outcome.
func (t *Tracker) RecordSignal(sig Signal) {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		metrics.RecordDropped(string(DropInactive))
		return
	}
	intr, reason := t.filter.Accept(sig, len(t.active.Interruptions))
	if intr == nil {
		t.mu.Unlock()
		metrics.RecordDropped(string(reason))
		return
	}
	t.active.Interruptions = append(t.active.Interruptions, *intr)
	sessionID := t.active.ID
	t.mu.Unlock()

	metrics.RecordInterruption(string(intr.Type))
	logger := log.WithComponent("tracker")
	logger.Debug().
		Str(log.FieldSessionID, sessionID).
		Str(log.FieldInterruptionID, intr.ID).
		Str("type", string(intr.Type)).
		Msg("interruption recorded")

	t.emit(Event{
		Type:      string(intr.Type),
		SessionID: sessionID,
		Time:      intr.Time,
		Details:   intr.Details,
	})
}

// RecordResumed queues the lifecycle event for a return from idle. It is
// not an interruption and bypasses the filter; a no-op while INACTIVE.
func (t *Tracker) RecordResumed() {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return
	}
	sessionID := t.active.ID
	t.mu.Unlock()

	t.emit(Event{Type: EventResumed, SessionID: sessionID, Time: Now()})
}

// Stop transitions ACTIVE -> INACTIVE, closing the session. The closed
// session is immutable afterwards.
func (t *Tracker) Stop() (*Session, error) {
	t.mu.Lock()
	if t.state != StateActive {
		t.mu.Unlock()
		return nil, ErrNotActive
	}
	s := t.active
	s.EndTime = Now()
	s.DurationSeconds = DurationSeconds(s.StartTime, s.EndTime)
	t.active = nil
	t.state = StateInactive
	closed := s.Clone()
	t.mu.Unlock()

	metrics.SessionActive.Set(0)
	logger := log.WithComponent("tracker")
	logger.Info().
		Str(log.FieldSessionID, closed.ID).
		Str(log.FieldOldState, string(StateActive)).
		Str(log.FieldNewState, string(StateInactive)).
		Int64("duration_seconds", closed.DurationSeconds).
		Int("interruptions", len(closed.Interruptions)).
		Msg("focus session stopped")

	if t.history != nil {
		if err := t.history.AppendSession(closed); err != nil {
			logger.Warn().Err(err).
				Str(log.FieldSessionID, closed.ID).
				Msg("failed to persist session history")
		}
	}
	t.emit(Event{Type: EventStop, SessionID: closed.ID, Time: closed.EndTime})
	if t.notifier != nil {
		t.notifier.SessionStopped(closed)
	}
	return closed, nil
}

// emit hands an event to the sink. Sink failures are logged and dropped:
// durability problems must not unwind into the state machine.
func (t *Tracker) emit(ev Event) {
	if t.sink == nil {
		return
	}
	if err := t.sink.Record(ev); err != nil {
		logger := log.WithComponent("tracker")
		logger.Warn().Err(err).
			Str(log.FieldSessionID, ev.SessionID).
			Str(log.FieldEvent, ev.Type).
			Msg("failed to queue event")
	}
}
