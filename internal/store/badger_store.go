package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dgraph-io/badger/v4"

	"github.com/flowrise/focusync/internal/session"
)

// BadgerStore persists each namespace as one JSON record in an embedded
// Badger database. Read-modify-write happens inside a single Update
// transaction, which is what keeps the queue snapshot/remove cycle safe
// against concurrent appends.
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (or creates) the database under path.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{db: db}, nil
}

func (s *BadgerStore) Close() error { return s.db.Close() }

// update runs fn in an Update transaction, retrying on transaction
// conflicts. The collector and flush loops read-modify-write the same
// queue record concurrently; under Badger's conflict detection the loser
// must retry, never drop the write.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	for {
		err := s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
}

// readRecord unmarshals the record at key into out. A missing key leaves
// out untouched and returns no error.
func readRecord(txn *badger.Txn, key string, out any) error {
	item, err := txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func writeRecord(txn *badger.Txn, key string, in any) error {
	buf, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return txn.Set([]byte(key), buf)
}

func (s *BadgerStore) AppendEvent(ctx context.Context, ev session.Event) (int, error) {
	depth := 0
	err := s.update(func(txn *badger.Txn) error {
		var queue []session.Event
		if err := readRecord(txn, keyEventQueue, &queue); err != nil {
			return err
		}
		queue = append(queue, ev)
		depth = len(queue)
		return writeRecord(txn, keyEventQueue, queue)
	})
	if err != nil {
		return 0, err
	}
	return depth, nil
}

func (s *BadgerStore) SnapshotEvents(ctx context.Context) ([]session.Event, error) {
	var queue []session.Event
	err := s.db.View(func(txn *badger.Txn) error {
		return readRecord(txn, keyEventQueue, &queue)
	})
	if err != nil {
		return nil, err
	}
	return queue, nil
}

func (s *BadgerStore) RemoveEvents(ctx context.Context, sent []session.Event) (int, error) {
	if len(sent) == 0 {
		return 0, nil
	}
	removed := 0
	err := s.update(func(txn *badger.Txn) error {
		var queue []session.Event
		if err := readRecord(txn, keyEventQueue, &queue); err != nil {
			return err
		}
		var kept []session.Event
		kept, removed = removeMatched(queue, sent)
		return writeRecord(txn, keyEventQueue, kept)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *BadgerStore) QueueDepth(ctx context.Context) (int, error) {
	queue, err := s.SnapshotEvents(ctx)
	if err != nil {
		return 0, err
	}
	return len(queue), nil
}

func (s *BadgerStore) AppendPending(ctx context.Context, p session.PendingSubmission) error {
	return s.update(func(txn *badger.Txn) error {
		var items []session.PendingSubmission
		if err := readRecord(txn, keyPending, &items); err != nil {
			return err
		}
		items = append(items, p)
		return writeRecord(txn, keyPending, items)
	})
}

func (s *BadgerStore) ListPending(ctx context.Context) ([]session.PendingSubmission, error) {
	var items []session.PendingSubmission
	err := s.db.View(func(txn *badger.Txn) error {
		return readRecord(txn, keyPending, &items)
	})
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *BadgerStore) ReconcilePending(ctx context.Context, snapshot, retained []session.PendingSubmission) error {
	return s.update(func(txn *badger.Txn) error {
		var current []session.PendingSubmission
		if err := readRecord(txn, keyPending, &current); err != nil {
			return err
		}
		return writeRecord(txn, keyPending, reconcilePending(current, snapshot, retained))
	})
}

func (s *BadgerStore) AppendHistory(ctx context.Context, sess *session.Session, limit int) error {
	return s.update(func(txn *badger.Txn) error {
		var history []session.Session
		if err := readRecord(txn, keyHistory, &history); err != nil {
			return err
		}
		history = append(history, *sess.Clone())
		if limit > 0 && len(history) > limit {
			history = history[len(history)-limit:]
		}
		return writeRecord(txn, keyHistory, history)
	})
}

func (s *BadgerStore) ListHistory(ctx context.Context) ([]session.Session, error) {
	var history []session.Session
	err := s.db.View(func(txn *badger.Txn) error {
		return readRecord(txn, keyHistory, &history)
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

func (s *BadgerStore) GetPrefs(ctx context.Context) (json.RawMessage, error) {
	var doc json.RawMessage
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefs))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			doc = append(json.RawMessage(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (s *BadgerStore) PutPrefs(ctx context.Context, doc json.RawMessage) error {
	return s.update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyPrefs), doc)
	})
}

// Ensure interface compliance at compile time.
var _ Store = (*BadgerStore)(nil)
