package store

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/flowrise/focusync/internal/session"
)

// MemoryStore is an in-memory Store intended for tests and local
// iteration. Not durable; not suitable for production.
type MemoryStore struct {
	mu      sync.RWMutex
	queue   []session.Event
	pending []session.PendingSubmission
	history []session.Session
	prefs   json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) AppendEvent(ctx context.Context, ev session.Event) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, ev)
	return len(m.queue), nil
}

func (m *MemoryStore) SnapshotEvents(ctx context.Context) ([]session.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]session.Event(nil), m.queue...), nil
}

func (m *MemoryStore) RemoveEvents(ctx context.Context, sent []session.Event) (int, error) {
	if len(sent) == 0 {
		return 0, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept, removed := removeMatched(m.queue, sent)
	m.queue = kept
	return removed, nil
}

func (m *MemoryStore) QueueDepth(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.queue), nil
}

func (m *MemoryStore) AppendPending(ctx context.Context, p session.PendingSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, p)
	return nil
}

func (m *MemoryStore) ListPending(ctx context.Context) ([]session.PendingSubmission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]session.PendingSubmission(nil), m.pending...), nil
}

func (m *MemoryStore) ReconcilePending(ctx context.Context, snapshot, retained []session.PendingSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = reconcilePending(m.pending, snapshot, retained)
	return nil
}

func (m *MemoryStore) AppendHistory(ctx context.Context, s *session.Session, limit int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *s.Clone())
	if limit > 0 && len(m.history) > limit {
		m.history = m.history[len(m.history)-limit:]
	}
	return nil
}

func (m *MemoryStore) ListHistory(ctx context.Context) ([]session.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]session.Session(nil), m.history...), nil
}

func (m *MemoryStore) GetPrefs(ctx context.Context) (json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.prefs == nil {
		return nil, nil
	}
	return append(json.RawMessage(nil), m.prefs...), nil
}

func (m *MemoryStore) PutPrefs(ctx context.Context, doc json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs = append(json.RawMessage(nil), doc...)
	return nil
}

var _ Store = (*MemoryStore)(nil)
