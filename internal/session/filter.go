package session

import (
	"time"

	"github.com/google/uuid"
)

// DropReason explains why the filter suppressed a signal.
type DropReason string

const (
	DropNone      DropReason = ""
	DropDuplicate DropReason = "duplicate"
	DropCapped    DropReason = "capped"
	DropInactive  DropReason = "inactive"
)

// Signal is a raw interruption signal before filtering.
type Signal struct {
	Type    InterruptionType
	Time    string
	Details string
}

// Minimum spacing between same-type signals. Types without an entry are
// never deduplicated.
var minIntervals = map[InterruptionType]time.Duration{
	InterruptionTabSwitch: 5 * time.Second,
	InterruptionIdle:      10 * time.Second,
}

// Filter suppresses duplicate and over-cap interruption signals before
// they are recorded. It holds the last recorded interruption of the
// current session; Reset clears it when a new session starts.
type Filter struct {
	cap  int
	last *Interruption
}

// NewFilter returns a filter bounding each session at cap interruptions.
func NewFilter(cap int) *Filter {
	if cap <= 0 {
		cap = 50
	}
	return &Filter{cap: cap}
}

// Reset forgets the previous session's last interruption.
func (f *Filter) Reset() {
	f.last = nil
}

// Accept applies the dedup and cap policy to a raw signal. recorded is
// the current interruption count of the active session. On acceptance it
// returns the new Interruption; otherwise the drop reason. Dropping is a
// silent no-op for callers: there is no error path here.
func (f *Filter) Accept(sig Signal, recorded int) (*Interruption, DropReason) {
	if recorded >= f.cap {
		return nil, DropCapped
	}
	if f.last != nil && f.last.Type == sig.Type {
		if window, ok := minIntervals[sig.Type]; ok {
			if within(f.last.Time, sig.Time, window) {
				return nil, DropDuplicate
			}
		}
	}
	ts := sig.Time
	if _, err := time.Parse(time.RFC3339, ts); err != nil {
		ts = Now()
	}
	intr := &Interruption{
		ID:      uuid.New().String(),
		Time:    ts,
		Type:    sig.Type,
		Details: sig.Details,
	}
	f.last = intr
	return intr, DropNone
}

// within reports whether next falls inside window after prev. Unparseable
// timestamps disable the check rather than erroring.
func within(prev, next string, window time.Duration) bool {
	p, err := time.Parse(time.RFC3339, prev)
	if err != nil {
		return false
	}
	n, err := time.Parse(time.RFC3339, next)
	if err != nil {
		return false
	}
	delta := n.Sub(p)
	return delta >= 0 && delta < window
}
