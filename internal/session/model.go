// Package session owns the focus-session lifecycle: the active session,
// its interruption list, and the wire events derived from both.
package session

import (
	"time"
)

// State represents the lifecycle state of the tracker. A session instance
// passes through ACTIVE exactly once; stopping is terminal for it.
type State string

const (
	StateInactive State = "inactive"
	StateActive   State = "active"
)

// InterruptionType classifies a recorded distraction.
type InterruptionType string

const (
	InterruptionTabSwitch  InterruptionType = "tabSwitch"
	InterruptionIdle       InterruptionType = "idle"
	InterruptionNavigation InterruptionType = "navigation"
	InterruptionExternal   InterruptionType = "external"
)

// Interruption is one recorded distraction during an active session.
// Append-only; created only by the filter.
type Interruption struct {
	ID      string           `json:"id"`
	Time    string           `json:"time"`
	Type    InterruptionType `json:"type"`
	Details string           `json:"details,omitempty"`
}

// Session is one timed focus interval. Timestamps travel as RFC3339
// strings because they cross the wire and the durable store; duration is
// derived defensively from them on close.
type Session struct {
	ID              string         `json:"id"`
	StartTime       string         `json:"startTime"`
	EndTime         string         `json:"endTime,omitempty"`
	DurationSeconds int64          `json:"duration"`
	Interruptions   []Interruption `json:"interruptions"`
}

// Event is the durable wire-format projection of a lifecycle or
// interruption occurrence. LocalID is generated at enqueue time and is
// the primary removal key on batch acknowledgement; (Type, Time) remains
// the fallback for entries persisted by older builds.
type Event struct {
	LocalID   string `json:"localId,omitempty"`
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Time      string `json:"time"`
	Details   string `json:"details,omitempty"`
}

// Lifecycle event types alongside the interruption types above.
const (
	EventStart   = "start"
	EventStop    = "stop"
	EventResumed = "resumed"
)

// PendingSubmission is a content submission that failed to reach the
// server and awaits the retry sweep.
type PendingSubmission struct {
	SessionID string `json:"sessionId"`
	Content   string `json:"content"`
	Role      string `json:"role"`
	Timestamp string `json:"timestamp"`
	Attempts  int    `json:"attempts,omitempty"`
}

// Now formats the current time the way all core timestamps are stored.
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// DurationSeconds computes end-start in whole seconds. Unparseable
// timestamps and negative spans both yield 0.
func DurationSeconds(start, end string) int64 {
	s, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return 0
	}
	e, err := time.Parse(time.RFC3339, end)
	if err != nil {
		return 0
	}
	d := e.Sub(s)
	if d < 0 {
		return 0
	}
	return int64(d.Seconds())
}

// Clone returns a deep copy safe to hand outside the tracker.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.Interruptions = append([]Interruption(nil), s.Interruptions...)
	return &out
}
