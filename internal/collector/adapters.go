package collector

import (
	"context"
	"errors"

	"github.com/flowrise/focusync/internal/log"
	"github.com/flowrise/focusync/internal/session"
	"github.com/flowrise/focusync/internal/store"
	"github.com/flowrise/focusync/internal/transport"
)

// ErrUnknownCommand rejects command names outside the surface contract.
var ErrUnknownCommand = errors.New("unknown command")

// logBadge is the default session marker when no UI badge is attached.
type logBadge struct{}

func (logBadge) Set(text string) {
	logger := log.WithComponent("badge")
	logger.Info().Str("text", text).Msg("session marker set")
}

func (logBadge) Clear() {
	logger := log.WithComponent("badge")
	logger.Info().Msg("session marker cleared")
}

// TransportNotifier pushes session boundaries over the channel. All
// sends are best-effort: failures are logged, never surfaced to the
// state machine.
type TransportNotifier struct {
	tp transport.Transport
}

// NewTransportNotifier wraps a transport as a session.Notifier.
func NewTransportNotifier(tp transport.Transport) *TransportNotifier {
	return &TransportNotifier{tp: tp}
}

func (n *TransportNotifier) SessionStarted(s *session.Session) {
	err := n.tp.Send("focus:start", map[string]any{
		"sessionId": s.ID,
		"startTime": s.StartTime,
	})
	if err != nil {
		logger := log.WithComponent("transport")
		logger.Debug().Err(err).
			Str(log.FieldSessionID, s.ID).
			Msg("session start push failed")
	}
}

func (n *TransportNotifier) SessionStopped(s *session.Session) {
	err := n.tp.Send("focus:stop", map[string]any{
		"sessionId":     s.ID,
		"endTime":       s.EndTime,
		"duration":      s.DurationSeconds,
		"interruptions": s.Interruptions,
	})
	if err != nil {
		logger := log.WithComponent("transport")
		logger.Debug().Err(err).
			Str(log.FieldSessionID, s.ID).
			Msg("session stop push failed")
	}
}

var _ session.Notifier = (*TransportNotifier)(nil)

// HistoryWriter persists closed sessions through the store, bounded to
// the configured history limit.
type HistoryWriter struct {
	st    store.Store
	limit int
}

// NewHistoryWriter wraps a store as a session.HistoryWriter.
func NewHistoryWriter(st store.Store, limit int) *HistoryWriter {
	return &HistoryWriter{st: st, limit: limit}
}

func (h *HistoryWriter) AppendSession(s *session.Session) error {
	return h.st.AppendHistory(context.Background(), s, h.limit)
}

var _ session.HistoryWriter = (*HistoryWriter)(nil)
