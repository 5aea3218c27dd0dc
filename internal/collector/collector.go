// Package collector is the background process of the sync core. It runs
// independently of any UI surface, consuming browser signals, relayed
// session commands, and server-pushed events in one loop, and feeding
// the session tracker and event recorder.
package collector

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/flowrise/focusync/internal/log"
	"github.com/flowrise/focusync/internal/session"
	"github.com/flowrise/focusync/internal/sweep"
	"github.com/flowrise/focusync/internal/transport"
)

// SignalKind identifies the browser-level origin of a raw signal.
type SignalKind string

const (
	SignalTabActivated SignalKind = "tabActivated"
	SignalNavigation   SignalKind = "navigationCompleted"
	SignalIdleState    SignalKind = "idleStateChanged"
)

// BrowserSignal is one raw browser-origin signal relayed to the
// collector.
type BrowserSignal struct {
	Kind SignalKind `json:"kind"`
	// State carries the idle state for SignalIdleState
	// ("active", "idle", "locked").
	State string `json:"state,omitempty"`
	// FrameID distinguishes top-level navigations (0) from subframes.
	FrameID int `json:"frameId"`
	// Details is free-form context (URL, tab title) for the record.
	Details string `json:"details,omitempty"`
	// Time is the signal timestamp; empty means now.
	Time string `json:"time,omitempty"`
}

// Command names of the UI surface.
const (
	CmdStartFocus       = "startFocus"
	CmdStopFocus        = "stopFocus"
	CmdGetSessionStatus = "getSessionStatus"
	CmdSubmitLearning   = "submitLearning"
)

// Command is one request relayed from a UI surface, answered over Reply.
type Command struct {
	Name          string
	CorrelationID string

	// submitLearning fields
	SessionID string
	Content   string
	Role      string

	Reply chan Result
}

// Result answers one command.
type Result struct {
	Session   *session.Session // started/stopped/status snapshot
	Active    bool             // getSessionStatus
	Delivered bool             // submitLearning: immediate delivery vs queued
	Err       error
}

// Badge is the durable visible marker of an active session (badge text
// in the reference client). External collaborator interface.
type Badge interface {
	Set(text string)
	Clear()
}

// PromptHook fires after a session stops so downstream consumers can
// capture what was learned. External collaborator interface.
type PromptHook func(closed *session.Session)

// Collector consumes signals, commands, and inbound channel events in a
// single loop, preserving per-process ordering.
type Collector struct {
	tracker   *session.Tracker
	sweeper   *sweep.Sweeper
	transport transport.Transport
	badge     Badge
	prompt    PromptHook
	logger    zerolog.Logger

	signals  chan BrowserSignal
	commands chan Command

	// wasIdle marks that the active session saw an idle/locked state and
	// has not yet returned to active.
	wasIdle bool
}

// New wires a collector. badge and prompt may be nil.
func New(tr *session.Tracker, sw *sweep.Sweeper, tp transport.Transport, badge Badge, prompt PromptHook) *Collector {
	if badge == nil {
		badge = logBadge{}
	}
	return &Collector{
		tracker:   tr,
		sweeper:   sw,
		transport: tp,
		badge:     badge,
		prompt:    prompt,
		logger:    log.WithComponent("collector"),
		signals:   make(chan BrowserSignal, 64),
		commands:  make(chan Command, 16),
	}
}

// Offer relays a browser signal to the collector loop. Signals are
// fire-and-forget; a saturated collector drops rather than blocks.
func (c *Collector) Offer(sig BrowserSignal) {
	select {
	case c.signals <- sig:
	default:
		c.logger.Warn().Str("kind", string(sig.Kind)).Msg("signal buffer full, dropping")
	}
}

// Dispatch relays a command and waits for its result.
func (c *Collector) Dispatch(ctx context.Context, cmd Command) Result {
	cmd.Reply = make(chan Result, 1)
	select {
	case c.commands <- cmd:
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
	select {
	case res := <-cmd.Reply:
		return res
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

// Run consumes all inputs until ctx is cancelled. Only one handler runs
// at a time, so within this process events are enqueued in the order
// their causing signals were accepted.
func (c *Collector) Run(ctx context.Context) {
	c.logger.Info().Msg("background collector started")
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.commands:
			cmd.Reply <- c.handleCommand(ctx, cmd)
		case sig := <-c.signals:
			c.handleSignal(sig)
		case ev, ok := <-c.transport.Events():
			if !ok {
				return
			}
			c.handleInbound(ev)
		}
	}
}

func (c *Collector) handleCommand(ctx context.Context, cmd Command) Result {
	logger := c.logger.With().
		Str(log.FieldCorrelationID, cmd.CorrelationID).
		Str("command", cmd.Name).
		Logger()

	switch cmd.Name {
	case CmdStartFocus:
		s, err := c.tracker.Start()
		if err != nil {
			return Result{Err: err}
		}
		c.badge.Set("ON")
		return Result{Session: s, Active: true}

	case CmdStopFocus:
		s, err := c.tracker.Stop()
		if err != nil {
			return Result{Err: err}
		}
		c.wasIdle = false
		c.badge.Clear()
		if c.prompt != nil {
			c.prompt(s)
		}
		return Result{Session: s}

	case CmdGetSessionStatus:
		s := c.tracker.Active()
		return Result{Session: s, Active: s != nil}

	case CmdSubmitLearning:
		delivered, err := c.sweeper.Submit(ctx, cmd.SessionID, cmd.Content, cmd.Role)
		return Result{Delivered: delivered, Err: err}

	default:
		logger.Warn().Msg("unknown command")
		return Result{Err: ErrUnknownCommand}
	}
}

// handleSignal translates qualifying browser signals into filter inputs
// while a session is active.
func (c *Collector) handleSignal(sig BrowserSignal) {
	ts := sig.Time
	if ts == "" {
		ts = session.Now()
	}

	switch sig.Kind {
	case SignalTabActivated:
		c.tracker.RecordSignal(session.Signal{
			Type:    session.InterruptionTabSwitch,
			Time:    ts,
			Details: sig.Details,
		})

	case SignalNavigation:
		// Subframe navigations are noise, not distractions.
		if sig.FrameID != 0 {
			return
		}
		c.tracker.RecordSignal(session.Signal{
			Type:    session.InterruptionNavigation,
			Time:    ts,
			Details: sig.Details,
		})

	case SignalIdleState:
		switch sig.State {
		case "idle", "locked":
			c.wasIdle = true
			c.tracker.RecordSignal(session.Signal{
				Type:    session.InterruptionIdle,
				Time:    ts,
				Details: sig.State,
			})
		case "active":
			if c.wasIdle {
				c.wasIdle = false
				c.tracker.RecordResumed()
			}
		default:
			c.logger.Debug().Str("state", sig.State).Msg("ignoring unknown idle state")
		}

	default:
		c.logger.Debug().Str("kind", string(sig.Kind)).Msg("ignoring unknown signal kind")
	}
}

// inboundInterruption is the payload of a server-pushed (or synthesized)
// interruption event.
type inboundInterruption struct {
	SessionID string `json:"sessionId"`
	Kind      string `json:"kind"`
	Details   string `json:"details"`
}

// handleInbound reacts to server-pushed events. Malformed payloads are
// logged and dropped.
func (c *Collector) handleInbound(ev transport.InboundEvent) {
	switch ev.Name {
	case "interruption":
		var body inboundInterruption
		if err := json.Unmarshal(ev.Payload, &body); err != nil {
			c.logger.Warn().Err(err).Msg("dropping malformed interruption event")
			return
		}
		c.tracker.RecordSignal(session.Signal{
			Type:    externalType(body.Kind),
			Time:    session.Now(),
			Details: body.Details,
		})

	case "learning.enriched":
		// Enrichment updates dashboard state owned by the UI; the core
		// only acknowledges receipt.
		c.logger.Info().Msg("learning enriched by server")

	default:
		c.logger.Debug().Str(log.FieldMsgType, ev.Name).Msg("ignoring unknown inbound event")
	}
}

// externalType maps a pushed interruption kind onto a recorded type.
// Unknown kinds land as external.
func externalType(kind string) session.InterruptionType {
	switch session.InterruptionType(kind) {
	case session.InterruptionTabSwitch, session.InterruptionIdle, session.InterruptionNavigation:
		return session.InterruptionType(kind)
	default:
		return session.InterruptionExternal
	}
}
