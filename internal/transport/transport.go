// Package transport maintains the long-lived bidirectional channel to
// the sync server. A real websocket channel reconnects automatically
// after unclean closes; when no channel can be constructed at all the
// package degrades to a synthetic implementation that keeps the rest of
// the core functional.
package transport

import (
	"encoding/json"
	"errors"
	"time"
)

// Mode distinguishes a real channel from the degraded fallback.
type Mode string

const (
	ModeChannel   Mode = "channel"
	ModeSynthetic Mode = "synthetic"
)

// Envelope is the wire format in both directions:
// outbound {type, data}, inbound {type: "event"|"ping", data}.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// InboundEvent is a parsed server-pushed event. Name comes from the
// "name" field of the envelope data; Payload is whatever the server
// attached and is interpreted by the consumer.
type InboundEvent struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Transport is the only surface the session core depends on.
type Transport interface {
	// Send pushes one outbound message. Errors are advisory: callers
	// treat sends as fire-and-forget.
	Send(event string, data any) error
	// Events delivers server-pushed events. The channel stays open for
	// the transport's lifetime; slow consumers lose messages rather than
	// blocking the read loop.
	Events() <-chan InboundEvent
	// Reconnect tears down any existing channel and establishes a new
	// one. Safe to call at any time and any number of times.
	Reconnect()
	// Close shuts the channel down cleanly; no reconnection follows.
	Close() error
	// Mode reports whether this is a real channel or the fallback.
	Mode() Mode
	// Connected reports whether a live channel currently exists.
	Connected() bool
}

// ErrNotConnected is returned by Send while no live channel exists.
var ErrNotConnected = errors.New("transport: channel not connected")

// Options configures a transport.
type Options struct {
	// URL is the websocket endpoint. Empty forces synthetic mode.
	URL string
	// ReconnectDelay is the fixed wait before redialing after an unclean
	// close.
	ReconnectDelay time.Duration
	// HandshakeTimeout bounds the dial.
	HandshakeTimeout time.Duration
	// SyntheticWindow is the minimum spacing of synthesized
	// interruptions in degraded mode.
	SyntheticWindow time.Duration
	// ActiveSession reports the running session id, if any. The
	// synthetic transport only fabricates signals while it returns true.
	ActiveSession func() (string, bool)
}

func (o Options) withDefaults() Options {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 5 * time.Second
	}
	if o.HandshakeTimeout <= 0 {
		o.HandshakeTimeout = 10 * time.Second
	}
	if o.SyntheticWindow <= 0 {
		o.SyntheticWindow = 5 * time.Minute
	}
	return o
}

// decodeInbound parses one raw frame into an envelope. Malformed frames
// yield an error for the caller to log and drop; they never propagate.
func decodeInbound(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, errors.New("inbound message missing type")
	}
	return env, nil
}

// decodeEvent parses the data of a {type:"event"} envelope.
func decodeEvent(data json.RawMessage) (InboundEvent, error) {
	var ev InboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return InboundEvent{}, err
	}
	if ev.Name == "" {
		return InboundEvent{}, errors.New("inbound event missing name")
	}
	return ev, nil
}
