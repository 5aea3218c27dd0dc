// Package sweep retries content submissions that failed to reach the
// server, on a fixed cadence with no backoff.
package sweep

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowrise/focusync/internal/log"
	"github.com/flowrise/focusync/internal/metrics"
	"github.com/flowrise/focusync/internal/session"
	"github.com/flowrise/focusync/internal/store"
)

// ContentSender delivers one content submission.
type ContentSender interface {
	SubmitContent(ctx context.Context, p session.PendingSubmission) error
}

// Sweeper owns the pending-submission list: failed submissions enter it
// tagged with their original timestamp, and a periodic sweep resubmits
// every item in list order until it succeeds or exceeds the configured
// attempt bound (zero bound retries forever).
type Sweeper struct {
	store       store.Store
	sender      ContentSender
	interval    time.Duration
	maxAttempts int
	logger      zerolog.Logger
}

// New wires a sweeper. interval falls back to the reference cadence of
// five minutes when out of range.
func New(st store.Store, sender ContentSender, interval time.Duration, maxAttempts int) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxAttempts < 0 {
		maxAttempts = 0
	}
	return &Sweeper{
		store:       st,
		sender:      sender,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      log.WithComponent("sweep"),
	}
}

// Submit attempts an immediate delivery and, on failure, durably queues
// the item for the next sweep. delivered reports the immediate outcome;
// the returned error is non-nil only when even queuing failed.
func (s *Sweeper) Submit(ctx context.Context, sessionID, content, role string) (delivered bool, err error) {
	p := session.PendingSubmission{
		SessionID: sessionID,
		Content:   content,
		Role:      role,
		Timestamp: session.Now(),
	}
	sendErr := s.sender.SubmitContent(ctx, p)
	if sendErr == nil {
		return true, nil
	}
	logger := log.FromContext(log.ContextWithSessionID(ctx, sessionID))
	logger.Warn().Err(sendErr).Msg("submission failed, queuing for retry")
	if err := s.store.AppendPending(ctx, p); err != nil {
		return false, err
	}
	s.updateGauge(ctx)
	return false, nil
}

// Run sweeps on the fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("retry sweeper started")
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs exactly one sweep pass over the pending list, in
// list order. Successes leave the list; failures stay for the next pass.
// This method is deterministic and suitable for unit testing.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	items, err := s.store.ListPending(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("pending list read failed")
		return
	}
	if len(items) == 0 {
		return
	}

	kept := make([]session.PendingSubmission, 0, len(items))
	resent := 0
	for _, item := range items {
		sendErr := s.sender.SubmitContent(ctx, item)
		if sendErr == nil {
			resent++
			metrics.RecordSweepOutcome("delivered")
			continue
		}
		s.logger.Debug().Err(sendErr).
			Str(log.FieldSessionID, item.SessionID).
			Int(log.FieldAttempts, item.Attempts+1).
			Msg("resend failed")
		item.Attempts++
		if s.maxAttempts > 0 && item.Attempts >= s.maxAttempts {
			metrics.RecordSweepOutcome("abandoned")
			s.logger.Warn().
				Str(log.FieldSessionID, item.SessionID).
				Int(log.FieldAttempts, item.Attempts).
				Msg("abandoning submission after attempt bound")
			continue
		}
		metrics.RecordSweepOutcome("failed")
		kept = append(kept, item)
	}

	// Reconcile against the snapshot: submissions queued while the sends
	// above were in flight must survive this pass untouched.
	if err := s.store.ReconcilePending(ctx, items, kept); err != nil {
		s.logger.Error().Err(err).Msg("pending list rewrite failed")
		return
	}
	s.updateGauge(ctx)
	if resent > 0 || len(kept) < len(items) {
		s.logger.Info().
			Int("resent", resent).
			Int(log.FieldPendingCount, len(kept)).
			Msg("retry sweep completed")
	}
}

func (s *Sweeper) updateGauge(ctx context.Context) {
	if items, err := s.store.ListPending(ctx); err == nil {
		metrics.PendingSubmissions.Set(float64(len(items)))
	}
}
