package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowrise/focusync/internal/log"
)

// Synthetic is the degraded fallback used when no real channel can be
// constructed. It behaves as if connected: sends are logged rather than
// transmitted, and while a session is active it fabricates at most one
// plausible interruption per window so downstream logic keeps being
// exercised. It must never be chosen while a real channel is available.
type Synthetic struct {
	opts   Options
	events chan InboundEvent
	logger zerolog.Logger

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// syntheticSignal is the payload of a fabricated interruption event,
// shaped like the server-pushed external interruptions.
type syntheticSignal struct {
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind"`
	Details   string `json:"details"`
}

var syntheticKinds = []string{"tabSwitch", "idle", "external"}

// newSynthetic starts the fallback transport and its signal ticker.
func newSynthetic(opts Options) *Synthetic {
	s := &Synthetic{
		opts:   opts,
		events: make(chan InboundEvent, inboundBuffer),
		logger: log.Derive(func(c *zerolog.Context) {
			*c = c.Str(log.FieldComponent, "transport").Str(log.FieldMode, string(ModeSynthetic))
		}),
	}
	s.done = make(chan struct{})
	s.logger.Warn().Msg("no channel endpoint reachable, running in synthetic mode")
	go s.tick()
	return s
}

func (s *Synthetic) tick() {
	ticker := time.NewTicker(s.opts.SyntheticWindow)
	defer ticker.Stop()
	n := 0
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if s.opts.ActiveSession == nil {
				continue
			}
			sessionID, active := s.opts.ActiveSession()
			if !active {
				continue
			}
			kind := syntheticKinds[n%len(syntheticKinds)]
			n++
			payload, _ := json.Marshal(syntheticSignal{
				SessionID: sessionID,
				Kind:      kind,
				Details:   "synthesized in degraded mode",
			})
			ev := InboundEvent{Name: "interruption", Payload: payload}
			select {
			case s.events <- ev:
				s.logger.Debug().Str("kind", kind).Msg("synthesized interruption")
			default:
			}
		}
	}
}

// Send logs the message instead of transmitting it.
func (s *Synthetic) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	s.logger.Info().
		Str(log.FieldMsgType, event).
		RawJSON("data", payload).
		Msg("send suppressed (synthetic mode)")
	return nil
}

func (s *Synthetic) Events() <-chan InboundEvent { return s.events }

// Reconnect is a no-op: there is no channel to re-establish.
func (s *Synthetic) Reconnect() {
	s.logger.Debug().Msg("reconnect ignored in synthetic mode")
}

func (s *Synthetic) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	close(s.done)
	return nil
}

func (s *Synthetic) Mode() Mode { return ModeSynthetic }

// Connected reports false: synthetic mode must be distinguishable from a
// real connection.
func (s *Synthetic) Connected() bool { return false }

var _ Transport = (*Synthetic)(nil)
