// Package store provides the durable key-value persistence shared by the
// sync core: the unflushed event queue, the pending-submission list, the
// closed-session history, and user preferences. Each namespace is one
// whole named record; all mutation is read-modify-write on that record.
package store

import (
	"context"
	"encoding/json"

	"github.com/flowrise/focusync/internal/session"
)

// Store is the narrow repository interface everything in the core
// persists through. Implementations must survive process restarts except
// where documented otherwise.
type Store interface {
	// AppendEvent durably appends one event to the batch queue and
	// returns the resulting queue depth.
	AppendEvent(ctx context.Context, ev session.Event) (int, error)
	// SnapshotEvents returns the whole queue in enqueue order.
	SnapshotEvents(ctx context.Context) ([]session.Event, error)
	// RemoveEvents deletes exactly the given events from the queue,
	// matched by LocalID when present, by (Type, Time) otherwise, and
	// returns how many were removed. Events enqueued after the snapshot
	// are untouched.
	RemoveEvents(ctx context.Context, sent []session.Event) (int, error)
	// QueueDepth returns the current queue length.
	QueueDepth(ctx context.Context) (int, error)

	// AppendPending adds a failed submission to the retry list.
	AppendPending(ctx context.Context, p session.PendingSubmission) error
	// ListPending returns the retry list in append order.
	ListPending(ctx context.Context) ([]session.PendingSubmission, error)
	// ReconcilePending applies a sweep outcome: entries matching the
	// snapshot are replaced by retained, while submissions appended after
	// the snapshot was taken survive at the tail.
	ReconcilePending(ctx context.Context, snapshot, retained []session.PendingSubmission) error

	// AppendHistory adds a closed session, trimming to the most recent
	// limit entries when limit > 0.
	AppendHistory(ctx context.Context, s *session.Session, limit int) error
	// ListHistory returns closed sessions, most recent last.
	ListHistory(ctx context.Context) ([]session.Session, error)

	// GetPrefs returns the opaque preferences document, nil if unset.
	GetPrefs(ctx context.Context) (json.RawMessage, error)
	// PutPrefs stores the preferences document verbatim.
	PutPrefs(ctx context.Context, doc json.RawMessage) error

	Close() error
}

// Namespace keys. One whole JSON record per key; no transactional
// guarantee across keys.
const (
	keyEventQueue = "queue:events"
	keyPending    = "queue:pending"
	keyHistory    = "session:history"
	keyPrefs      = "prefs:user"
)

// matches reports whether a queued event corresponds to a sent one.
func matches(queued, sent session.Event) bool {
	if sent.LocalID != "" && queued.LocalID != "" {
		return queued.LocalID == sent.LocalID
	}
	return queued.Type == sent.Type && queued.Time == sent.Time
}

// reconcilePending merges a sweep outcome into the current list: every
// entry matching a snapshot item (first match wins) is dropped, retained
// takes their place, and entries appended after the snapshot keep their
// relative order at the tail.
func reconcilePending(current, snapshot, retained []session.PendingSubmission) []session.PendingSubmission {
	used := make([]bool, len(snapshot))
	unseen := make([]session.PendingSubmission, 0, len(current))
	for _, c := range current {
		matched := false
		for i, s := range snapshot {
			if used[i] {
				continue
			}
			if c == s {
				used[i] = true
				matched = true
				break
			}
		}
		if !matched {
			unseen = append(unseen, c)
		}
	}
	merged := make([]session.PendingSubmission, 0, len(retained)+len(unseen))
	merged = append(merged, retained...)
	return append(merged, unseen...)
}

// removeMatched filters queue, dropping the first match for each sent
// event. Duplicate (Type, Time) pairs therefore remove one entry each.
func removeMatched(queue, sent []session.Event) (kept []session.Event, removed int) {
	used := make([]bool, len(sent))
	kept = make([]session.Event, 0, len(queue))
	for _, q := range queue {
		matched := false
		for i, s := range sent {
			if used[i] {
				continue
			}
			if matches(q, s) {
				used[i] = true
				matched = true
				removed++
				break
			}
		}
		if !matched {
			kept = append(kept, q)
		}
	}
	return kept, removed
}
