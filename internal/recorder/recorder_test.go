package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrise/focusync/internal/session"
	"github.com/flowrise/focusync/internal/store"
)

type fakeSender struct {
	mu      sync.Mutex
	fail    bool
	batches [][]session.Event
}

func (f *fakeSender) SubmitBatch(_ context.Context, events []session.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("server unreachable")
	}
	batch := append([]session.Event(nil), events...)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeSender) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func (f *fakeSender) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func ev(typ string) session.Event {
	return session.Event{Type: typ, SessionID: "s1", Time: session.Now()}
}

func TestRecordAssignsLocalID(t *testing.T) {
	st := store.NewMemoryStore()
	r := New(st, &fakeSender{}, 5, time.Minute)

	require.NoError(t, r.Record(ev("start")))
	queue, err := st.SnapshotEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.NotEmpty(t, queue[0].LocalID)
}

func TestFlushBelowThresholdWaits(t *testing.T) {
	st := store.NewMemoryStore()
	sender := &fakeSender{}
	r := New(st, sender, 5, time.Minute)

	for i := 0; i < 4; i++ {
		require.NoError(t, r.Record(ev("tabSwitch")))
	}

	// A timer tick with four queued events leaves the queue untouched.
	r.flushIfReady(context.Background())
	depth, err := st.QueueDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, depth)
	assert.Equal(t, 0, sender.batchCount())

	// The fifth event qualifies the queue; all five go as one batch.
	require.NoError(t, r.Record(ev("idle")))
	r.flushIfReady(context.Background())

	depth, err = st.QueueDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
	require.Equal(t, 1, sender.batchCount())
	assert.Len(t, sender.batches[0], 5)
}

func TestFlushFailureLeavesQueueUnchanged(t *testing.T) {
	st := store.NewMemoryStore()
	sender := &fakeSender{fail: true}
	r := New(st, sender, 2, time.Minute)

	require.NoError(t, r.Record(ev("start")))
	require.NoError(t, r.Record(ev("stop")))

	before, err := st.SnapshotEvents(context.Background())
	require.NoError(t, err)

	r.FlushOnce(context.Background())

	after, err := st.SnapshotEvents(context.Background())
	require.NoError(t, err)
	assert.Equal(t, before, after, "queue must be byte-for-byte unchanged on failure")

	last := r.LastFlush()
	assert.False(t, last.OK)
	assert.Equal(t, 2, last.Count)

	// The same snapshot goes out once the server recovers.
	sender.setFail(false)
	r.FlushOnce(context.Background())
	depth, err := st.QueueDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, depth)
	assert.True(t, r.LastFlush().OK)
}

func TestFlushRemovesExactlySnapshot(t *testing.T) {
	st := store.NewMemoryStore()
	sender := &fakeSender{}
	r := New(st, sender, 5, time.Minute)

	require.NoError(t, r.Record(ev("start")))
	require.NoError(t, r.Record(ev("tabSwitch")))

	// Simulate an append racing the flush: it must survive.
	r.flushMu.Lock()
	snapshot, err := st.SnapshotEvents(context.Background())
	require.NoError(t, err)
	r.flushMu.Unlock()
	require.NoError(t, sender.SubmitBatch(context.Background(), snapshot))
	require.NoError(t, r.Record(ev("idle")))
	removed, err := st.RemoveEvents(context.Background(), snapshot)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	rest, err := st.SnapshotEvents(context.Background())
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "idle", rest[0].Type)
}

func TestStartupFlushOfPersistedQueue(t *testing.T) {
	st := store.NewMemoryStore()
	sender := &fakeSender{}

	// Events persisted by a previous process generation.
	for i := 0; i < 3; i++ {
		_, err := st.AppendEvent(context.Background(), ev("tabSwitch"))
		require.NoError(t, err)
	}

	r := New(st, sender, 5, 50*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	// Startup flush fires even below the threshold.
	require.Eventually(t, func() bool {
		return sender.batchCount() == 1
	}, time.Second, 10*time.Millisecond)

	depth, err := st.QueueDepth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, depth)

	cancel()
	<-done
}

func TestThresholdKickTriggersRunLoop(t *testing.T) {
	st := store.NewMemoryStore()
	sender := &fakeSender{}
	r := New(st, sender, 3, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	for i := 0; i < 3; i++ {
		require.NoError(t, r.Record(ev("navigation")))
	}

	require.Eventually(t, func() bool {
		return sender.batchCount() >= 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
