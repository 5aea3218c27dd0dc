package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/flowrise/focusync/internal/log"
	"github.com/flowrise/focusync/internal/metrics"
)

const (
	writeTimeout   = 10 * time.Second
	inboundBuffer  = 64
	closeGraceWait = 2 * time.Second
)

// Channel is the real websocket transport. Invariant: at most one live
// connection exists at any time; every connection carries a generation
// number so that read loops and scheduled redials of torn-down
// connections become no-ops instead of racing the replacement.
type Channel struct {
	opts   Options
	events chan InboundEvent
	logger zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	gen     int
	closed  bool
	pending *time.Timer

	writeMu sync.Mutex
}

// dialChannel opens the initial connection. A failure here is the
// caller's cue to degrade to synthetic mode.
func dialChannel(opts Options) (*Channel, error) {
	c := &Channel{
		opts:   opts,
		events: make(chan InboundEvent, inboundBuffer),
		logger: log.WithComponent("transport"),
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

// connectLocked dials and starts the read loop. Caller holds c.mu and
// has already torn down any previous connection.
func (c *Channel) connectLocked() error {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, _, err := dialer.Dial(c.opts.URL, nil)
	if err != nil {
		return err
	}
	c.gen++
	c.conn = conn
	metrics.TransportConnected.Set(1)
	c.logger.Info().
		Str(log.FieldEndpoint, c.opts.URL).
		Int("generation", c.gen).
		Msg("channel connected")
	go c.readLoop(conn, c.gen)
	return nil
}

func (c *Channel) readLoop(conn *websocket.Conn, gen int) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.handleDisconnect(conn, gen, err)
			return
		}
		c.dispatch(raw)
	}
}

// dispatch parses one inbound frame. Malformed payloads are logged and
// dropped, never raised.
func (c *Channel) dispatch(raw []byte) {
	env, err := decodeInbound(raw)
	if err != nil {
		c.logger.Warn().Err(err).Msg("dropping malformed inbound message")
		return
	}
	switch env.Type {
	case "ping":
		if err := c.Send("pong", nil); err != nil {
			c.logger.Debug().Err(err).Msg("pong send failed")
		}
	case "event":
		ev, err := decodeEvent(env.Data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed inbound event")
			return
		}
		select {
		case c.events <- ev:
		default:
			c.logger.Warn().
				Str(log.FieldMsgType, ev.Name).
				Msg("inbound event buffer full, dropping")
		}
	default:
		c.logger.Debug().
			Str(log.FieldMsgType, env.Type).
			Msg("ignoring unknown inbound message type")
	}
}

// handleDisconnect reacts to a read-loop exit. Clean closes (requested
// via Close) end the loop silently; unclean closes schedule a redial
// after the fixed delay.
func (c *Channel) handleDisconnect(conn *websocket.Conn, gen int, cause error) {
	_ = conn.Close()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen {
		// Shut down or already superseded by a manual reconnect.
		return
	}
	c.conn = nil
	metrics.TransportConnected.Set(0)
	c.logger.Warn().Err(cause).
		Dur("retry_in", c.opts.ReconnectDelay).
		Msg("channel closed uncleanly, scheduling reconnect")
	c.scheduleRedialLocked(gen)
}

// scheduleRedialLocked arms the redial timer for the given generation.
// Caller holds c.mu.
func (c *Channel) scheduleRedialLocked(gen int) {
	if c.pending != nil {
		c.pending.Stop()
	}
	c.pending = time.AfterFunc(c.opts.ReconnectDelay, func() {
		c.redial(gen)
	})
}

func (c *Channel) redial(gen int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || gen != c.gen || c.conn != nil {
		return
	}
	metrics.RecordReconnect()
	if err := c.connectLocked(); err != nil {
		c.logger.Warn().Err(err).
			Dur("retry_in", c.opts.ReconnectDelay).
			Msg("reconnect failed, scheduling retry")
		c.scheduleRedialLocked(gen)
	}
}

// Send marshals {type, data} and writes it to the current connection.
func (c *Channel) Send(event string, data any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	var payload json.RawMessage
	if data != nil {
		buf, err := json.Marshal(data)
		if err != nil {
			return err
		}
		payload = buf
	}
	frame, err := json.Marshal(Envelope{Type: event, Data: payload})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, frame)
}

func (c *Channel) Events() <-chan InboundEvent { return c.events }

// Reconnect tears down the existing connection, if any, and dials a new
// one. Repeated calls never leave two concurrent connections open.
func (c *Channel) Reconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	// Bump the generation so the old read loop and any armed redial
	// recognise themselves as stale.
	c.gen++
	gen := c.gen
	metrics.RecordReconnect()
	if err := c.connectLocked(); err != nil {
		c.logger.Warn().Err(err).Msg("manual reconnect failed, scheduling retry")
		metrics.TransportConnected.Set(0)
		c.scheduleRedialLocked(gen)
	}
}

// Close shuts the channel down cleanly. No reconnection follows.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	if c.conn != nil {
		deadline := time.Now().Add(closeGraceWait)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "shutdown"), deadline)
		_ = c.conn.Close()
		c.conn = nil
	}
	metrics.TransportConnected.Set(0)
	c.logger.Info().Msg("channel closed")
	return nil
}

func (c *Channel) Mode() Mode { return ModeChannel }

func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

var _ Transport = (*Channel)(nil)
