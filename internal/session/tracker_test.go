package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureSink struct {
	mu     sync.Mutex
	events []Event
	fail   bool
}

func (c *captureSink) Record(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return errors.New("sink unavailable")
	}
	c.events = append(c.events, ev)
	return nil
}

func (c *captureSink) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

type captureNotifier struct {
	started []string
	stopped []string
}

func (c *captureNotifier) SessionStarted(s *Session) { c.started = append(c.started, s.ID) }
func (c *captureNotifier) SessionStopped(s *Session) { c.stopped = append(c.stopped, s.ID) }

type captureHistory struct {
	sessions []*Session
	fail     bool
}

func (c *captureHistory) AppendSession(s *Session) error {
	if c.fail {
		return errors.New("history unavailable")
	}
	c.sessions = append(c.sessions, s)
	return nil
}

func newTestTracker() (*Tracker, *captureSink, *captureNotifier, *captureHistory) {
	sink := &captureSink{}
	notifier := &captureNotifier{}
	history := &captureHistory{}
	return NewTracker(NewFilter(50), sink, notifier, history), sink, notifier, history
}

func TestTrackerLifecycle(t *testing.T) {
	tr, sink, notifier, history := newTestTracker()
	assert.Equal(t, StateInactive, tr.State())
	assert.Nil(t, tr.Active())

	started, err := tr.Start()
	require.NoError(t, err)
	require.NotEmpty(t, started.ID)
	assert.Equal(t, StateActive, tr.State())
	assert.Empty(t, started.Interruptions)

	_, err = tr.Start()
	assert.ErrorIs(t, err, ErrAlreadyActive)

	closed, err := tr.Stop()
	require.NoError(t, err)
	assert.Equal(t, started.ID, closed.ID)
	assert.NotEmpty(t, closed.EndTime)
	assert.GreaterOrEqual(t, closed.DurationSeconds, int64(0))
	assert.Equal(t, StateInactive, tr.State())
	assert.Nil(t, tr.Active())

	_, err = tr.Stop()
	assert.ErrorIs(t, err, ErrNotActive)

	assert.Equal(t, []string{EventStart, EventStop}, sink.types())
	assert.Equal(t, []string{started.ID}, notifier.started)
	assert.Equal(t, []string{started.ID}, notifier.stopped)
	require.Len(t, history.sessions, 1)
	assert.Equal(t, started.ID, history.sessions[0].ID)
}

func TestTrackerNewSessionPerActivation(t *testing.T) {
	tr, _, _, _ := newTestTracker()

	first, err := tr.Start()
	require.NoError(t, err)
	_, err = tr.Stop()
	require.NoError(t, err)

	second, err := tr.Start()
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestTrackerRecordSignal(t *testing.T) {
	tr, sink, _, _ := newTestTracker()

	// No-op while inactive.
	tr.RecordSignal(Signal{Type: InterruptionTabSwitch, Time: Now()})
	assert.Empty(t, sink.types())

	_, err := tr.Start()
	require.NoError(t, err)

	tr.RecordSignal(Signal{Type: InterruptionTabSwitch, Time: Now()})
	active := tr.Active()
	require.Len(t, active.Interruptions, 1)
	assert.Equal(t, InterruptionTabSwitch, active.Interruptions[0].Type)

	// The interruption queues its own event the moment it is accepted.
	assert.Equal(t, []string{EventStart, string(InterruptionTabSwitch)}, sink.types())

	closed, err := tr.Stop()
	require.NoError(t, err)
	assert.Len(t, closed.Interruptions, 1)
}

func TestTrackerDedupAcrossRecordSignal(t *testing.T) {
	tr, sink, _, _ := newTestTracker()
	_, err := tr.Start()
	require.NoError(t, err)

	base := time.Now().UTC()
	tr.RecordSignal(Signal{Type: InterruptionTabSwitch, Time: base.Format(time.RFC3339)})
	tr.RecordSignal(Signal{Type: InterruptionTabSwitch, Time: base.Add(2 * time.Second).Format(time.RFC3339)})

	active := tr.Active()
	assert.Len(t, active.Interruptions, 1)
	assert.Equal(t, []string{EventStart, string(InterruptionTabSwitch)}, sink.types())
}

func TestTrackerResumedLifecycleEvent(t *testing.T) {
	tr, sink, _, _ := newTestTracker()

	// No-op while inactive.
	tr.RecordResumed()
	assert.Empty(t, sink.types())

	_, err := tr.Start()
	require.NoError(t, err)
	tr.RecordResumed()

	assert.Equal(t, []string{EventStart, EventResumed}, sink.types())
	// Resumed is a lifecycle event, not an interruption.
	assert.Empty(t, tr.Active().Interruptions)
}

func TestTrackerSinkFailureDoesNotBlockTransitions(t *testing.T) {
	sink := &captureSink{fail: true}
	tr := NewTracker(NewFilter(50), sink, nil, nil)

	started, err := tr.Start()
	require.NoError(t, err)
	require.NotNil(t, started)
	assert.Equal(t, StateActive, tr.State())

	closed, err := tr.Stop()
	require.NoError(t, err)
	assert.Equal(t, started.ID, closed.ID)
}

func TestTrackerHistoryFailureDoesNotBlockStop(t *testing.T) {
	sink := &captureSink{}
	history := &captureHistory{fail: true}
	tr := NewTracker(NewFilter(50), sink, nil, history)

	_, err := tr.Start()
	require.NoError(t, err)
	closed, err := tr.Stop()
	require.NoError(t, err)
	assert.NotNil(t, closed)
	assert.Equal(t, StateInactive, tr.State())
}

func TestTrackerClosedSessionIsImmutable(t *testing.T) {
	tr, _, _, _ := newTestTracker()
	_, err := tr.Start()
	require.NoError(t, err)
	closed, err := tr.Stop()
	require.NoError(t, err)

	before := len(closed.Interruptions)
	// Signals after stop must not touch the closed session.
	tr.RecordSignal(Signal{Type: InterruptionIdle, Time: Now()})
	assert.Len(t, closed.Interruptions, before)
}
