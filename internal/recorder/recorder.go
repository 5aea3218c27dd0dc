// Package recorder accumulates wire events in the durable batch queue
// and flushes them to the server in whole-queue batches.
package recorder

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/flowrise/focusync/internal/log"
	"github.com/flowrise/focusync/internal/metrics"
	"github.com/flowrise/focusync/internal/session"
	"github.com/flowrise/focusync/internal/store"
)

// BatchSender delivers one batch of events. A non-nil error means the
// whole batch failed and nothing may be removed from the queue.
type BatchSender interface {
	SubmitBatch(ctx context.Context, events []session.Event) error
}

// FlushOutcome describes the most recent flush attempt, for
// introspection on the sync status surface.
type FlushOutcome struct {
	Time    string `json:"time"`
	OK      bool   `json:"ok"`
	Count   int    `json:"count"`
	Error   string `json:"error,omitempty"`
	Skipped bool   `json:"skipped,omitempty"`
}

// Recorder persists every event before any network attempt and flushes
// the queue when it reaches the threshold, on a fixed timer, and once on
// startup. Delivery is at-least-once: the queue is only trimmed after a
// confirmed send, so duplicates are possible and the server must
// tolerate them.
type Recorder struct {
	store     store.Store
	sender    BatchSender
	threshold int
	interval  time.Duration
	logger    zerolog.Logger

	kick chan struct{}

	flushMu sync.Mutex // serialises flush attempts

	mu   sync.Mutex
	last FlushOutcome
}

// New wires a recorder. threshold and interval fall back to the
// reference values (5 events, 60s) when out of range.
func New(st store.Store, sender BatchSender, threshold int, interval time.Duration) *Recorder {
	if threshold < 1 {
		threshold = 5
	}
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Recorder{
		store:     st,
		sender:    sender,
		threshold: threshold,
		interval:  interval,
		logger:    log.WithComponent("recorder"),
		kick:      make(chan struct{}, 1),
	}
}

// Record durably appends one event. It implements session.EventSink.
// Reaching the flush threshold nudges the run loop; the append itself
// never waits on the network.
func (r *Recorder) Record(ev session.Event) error {
	if ev.LocalID == "" {
		ev.LocalID = uuid.New().String()
	}
	depth, err := r.store.AppendEvent(context.Background(), ev)
	if err != nil {
		return err
	}
	metrics.RecordEnqueued(ev.Type)
	metrics.QueueDepth.Set(float64(depth))
	r.logger.Debug().
		Str(log.FieldEventID, ev.LocalID).
		Str("type", ev.Type).
		Int(log.FieldQueueDepth, depth).
		Msg("event queued")
	if depth >= r.threshold {
		select {
		case r.kick <- struct{}{}:
		default:
		}
	}
	return nil
}

// Run drives the flush triggers until ctx is cancelled: once at startup
// if the queue survived a restart non-empty, then on every timer tick
// and threshold nudge.
func (r *Recorder) Run(ctx context.Context) {
	if depth, err := r.store.QueueDepth(ctx); err == nil && depth > 0 {
		r.logger.Info().Int(log.FieldQueueDepth, depth).Msg("flushing queue persisted before restart")
		r.FlushOnce(ctx)
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.flushIfReady(ctx)
		case <-r.kick:
			r.flushIfReady(ctx)
		}
	}
}

// flushIfReady flushes only once the queue has reached the threshold. A
// short queue stays put until more events arrive; the timer's job is to
// retry batches that already qualified but failed to send.
func (r *Recorder) flushIfReady(ctx context.Context) {
	depth, err := r.store.QueueDepth(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("queue depth check failed")
		return
	}
	if depth < r.threshold {
		return
	}
	r.FlushOnce(ctx)
}

// FlushOnce unconditionally sends the current queue snapshot as one
// batch. On success exactly the snapshot's events are removed; on
// failure the queue is left unchanged for the next trigger.
func (r *Recorder) FlushOnce(ctx context.Context) {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	snapshot, err := r.store.SnapshotEvents(ctx)
	if err != nil {
		r.logger.Error().Err(err).Msg("queue snapshot failed")
		return
	}
	if len(snapshot) == 0 {
		return
	}

	if err := r.sender.SubmitBatch(ctx, snapshot); err != nil {
		metrics.RecordFlushFailure()
		r.setLast(FlushOutcome{Time: session.Now(), OK: false, Count: len(snapshot), Error: err.Error()})
		r.logger.Warn().Err(err).
			Int(log.FieldBatchSize, len(snapshot)).
			Msg("batch send failed, queue left unchanged")
		return
	}

	removed, err := r.store.RemoveEvents(ctx, snapshot)
	if err != nil {
		// The batch is delivered but the trim failed; the next flush
		// resends it, which at-least-once delivery permits.
		r.logger.Error().Err(err).Msg("failed to trim queue after successful send")
		return
	}
	metrics.RecordFlushed(removed)
	if depth, err := r.store.QueueDepth(ctx); err == nil {
		metrics.QueueDepth.Set(float64(depth))
	}
	r.setLast(FlushOutcome{Time: session.Now(), OK: true, Count: removed})
	r.logger.Info().
		Int(log.FieldBatchSize, removed).
		Msg("batch flushed")
}

// LastFlush returns the most recent flush outcome.
func (r *Recorder) LastFlush() FlushOutcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Recorder) setLast(o FlushOutcome) {
	r.mu.Lock()
	r.last = o
	r.mu.Unlock()
}
