package collector

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowrise/focusync/internal/session"
	"github.com/flowrise/focusync/internal/store"
	"github.com/flowrise/focusync/internal/sweep"
	"github.com/flowrise/focusync/internal/transport"
)

// fakeTransport lets tests feed server-pushed events into the loop and
// observe outbound sends.
type fakeTransport struct {
	events chan transport.InboundEvent

	mu   sync.Mutex
	sent []transport.Envelope
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan transport.InboundEvent, 16)}
}

func (f *fakeTransport) Send(event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, transport.Envelope{Type: event, Data: payload})
	return nil
}

func (f *fakeTransport) Events() <-chan transport.InboundEvent { return f.events }
func (f *fakeTransport) Reconnect()                            {}
func (f *fakeTransport) Close() error                          { return nil }
func (f *fakeTransport) Mode() transport.Mode                  { return transport.ModeChannel }
func (f *fakeTransport) Connected() bool                       { return true }

var _ transport.Transport = (*fakeTransport)(nil)

type captureSink struct {
	mu     sync.Mutex
	events []session.Event
}

func (c *captureSink) Record(ev session.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *captureSink) byType(t string) []session.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []session.Event
	for _, ev := range c.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fakeBadge struct {
	mu   sync.Mutex
	text string
	set  int
}

func (b *fakeBadge) Set(text string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = text
	b.set++
}

func (b *fakeBadge) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = ""
}

func (b *fakeBadge) current() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

type fakeContentSender struct {
	mu   sync.Mutex
	fail bool
	sent []session.PendingSubmission
}

func (f *fakeContentSender) SubmitContent(_ context.Context, p session.PendingSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("endpoint down")
	}
	f.sent = append(f.sent, p)
	return nil
}

type harness struct {
	col     *Collector
	tracker *session.Tracker
	sink    *captureSink
	badge   *fakeBadge
	sender  *fakeContentSender
	tp      *fakeTransport
	st      store.Store

	promptMu sync.Mutex
	prompted []*session.Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		sink:   &captureSink{},
		badge:  &fakeBadge{},
		sender: &fakeContentSender{},
		tp:     newFakeTransport(),
		st:     store.NewMemoryStore(),
	}
	h.tracker = session.NewTracker(session.NewFilter(50), h.sink, nil, nil)
	sw := sweep.New(h.st, h.sender, time.Minute, 0)
	h.col = New(h.tracker, sw, h.tp, h.badge, func(closed *session.Session) {
		h.promptMu.Lock()
		defer h.promptMu.Unlock()
		h.prompted = append(h.prompted, closed)
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go h.col.Run(ctx)
	return h
}

func (h *harness) dispatch(t *testing.T, cmd Command) Result {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return h.col.Dispatch(ctx, cmd)
}

func TestCommandLifecycle(t *testing.T) {
	h := newHarness(t)

	res := h.dispatch(t, Command{Name: CmdGetSessionStatus})
	require.NoError(t, res.Err)
	assert.False(t, res.Active)
	assert.Nil(t, res.Session)

	res = h.dispatch(t, Command{Name: CmdStartFocus})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Session)
	assert.True(t, res.Active)
	assert.Equal(t, "ON", h.badge.current())

	res = h.dispatch(t, Command{Name: CmdStartFocus})
	assert.ErrorIs(t, res.Err, session.ErrAlreadyActive)

	res = h.dispatch(t, Command{Name: CmdGetSessionStatus})
	require.NoError(t, res.Err)
	assert.True(t, res.Active)

	res = h.dispatch(t, Command{Name: CmdStopFocus})
	require.NoError(t, res.Err)
	require.NotNil(t, res.Session)
	assert.NotEmpty(t, res.Session.EndTime)
	assert.Empty(t, h.badge.current())

	h.promptMu.Lock()
	require.Len(t, h.prompted, 1)
	assert.Equal(t, res.Session.ID, h.prompted[0].ID)
	h.promptMu.Unlock()

	res = h.dispatch(t, Command{Name: CmdStopFocus})
	assert.ErrorIs(t, res.Err, session.ErrNotActive)
}

func TestUnknownCommand(t *testing.T) {
	h := newHarness(t)
	res := h.dispatch(t, Command{Name: "selfDestruct"})
	assert.ErrorIs(t, res.Err, ErrUnknownCommand)
}

func TestSubmitLearningDeliveredAndQueued(t *testing.T) {
	h := newHarness(t)

	res := h.dispatch(t, Command{Name: CmdSubmitLearning, SessionID: "s1", Content: "pointers", Role: "developer"})
	require.NoError(t, res.Err)
	assert.True(t, res.Delivered)

	h.sender.mu.Lock()
	h.sender.fail = true
	h.sender.mu.Unlock()

	res = h.dispatch(t, Command{Name: CmdSubmitLearning, SessionID: "s1", Content: "channels", Role: "developer"})
	require.NoError(t, res.Err)
	assert.False(t, res.Delivered)

	pending, err := h.st.ListPending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "channels", pending[0].Content)
}

func TestTabSwitchSignalRecordsInterruption(t *testing.T) {
	h := newHarness(t)
	res := h.dispatch(t, Command{Name: CmdStartFocus})
	require.NoError(t, res.Err)

	h.col.Offer(BrowserSignal{Kind: SignalTabActivated, Details: "news site"})

	require.Eventually(t, func() bool {
		return len(h.sink.byType(string(session.InterruptionTabSwitch))) == 1
	}, time.Second, 10*time.Millisecond)

	active := h.tracker.Active()
	require.NotNil(t, active)
	require.Len(t, active.Interruptions, 1)
	assert.Equal(t, session.InterruptionTabSwitch, active.Interruptions[0].Type)
}

func TestSubframeNavigationIgnored(t *testing.T) {
	h := newHarness(t)
	res := h.dispatch(t, Command{Name: CmdStartFocus})
	require.NoError(t, res.Err)

	h.col.Offer(BrowserSignal{Kind: SignalNavigation, FrameID: 7, Details: "iframe ad"})
	h.col.Offer(BrowserSignal{Kind: SignalNavigation, FrameID: 0, Details: "main frame"})

	require.Eventually(t, func() bool {
		active := h.tracker.Active()
		return active != nil && len(active.Interruptions) == 1
	}, time.Second, 10*time.Millisecond)

	active := h.tracker.Active()
	assert.Equal(t, "main frame", active.Interruptions[0].Details)
}

func TestIdleThenActiveEmitsResumed(t *testing.T) {
	h := newHarness(t)
	res := h.dispatch(t, Command{Name: CmdStartFocus})
	require.NoError(t, res.Err)

	h.col.Offer(BrowserSignal{Kind: SignalIdleState, State: "locked"})
	h.col.Offer(BrowserSignal{Kind: SignalIdleState, State: "active"})

	require.Eventually(t, func() bool {
		return len(h.sink.byType(session.EventResumed)) == 1
	}, time.Second, 10*time.Millisecond)

	active := h.tracker.Active()
	require.NotNil(t, active)
	require.Len(t, active.Interruptions, 1)
	assert.Equal(t, session.InterruptionIdle, active.Interruptions[0].Type)
}

func TestActiveWithoutPriorIdleIsQuiet(t *testing.T) {
	h := newHarness(t)
	res := h.dispatch(t, Command{Name: CmdStartFocus})
	require.NoError(t, res.Err)

	h.col.Offer(BrowserSignal{Kind: SignalIdleState, State: "active"})
	// A follow-up command acts as a barrier: the signal was processed.
	h.dispatch(t, Command{Name: CmdGetSessionStatus})

	assert.Empty(t, h.sink.byType(session.EventResumed))
}

func TestInboundInterruptionRecorded(t *testing.T) {
	h := newHarness(t)
	res := h.dispatch(t, Command{Name: CmdStartFocus})
	require.NoError(t, res.Err)

	h.tp.events <- transport.InboundEvent{
		Name:    "interruption",
		Payload: json.RawMessage(`{"sessionId":"x","kind":"idle","details":"pushed"}`),
	}

	require.Eventually(t, func() bool {
		active := h.tracker.Active()
		return active != nil && len(active.Interruptions) == 1
	}, time.Second, 10*time.Millisecond)

	active := h.tracker.Active()
	assert.Equal(t, session.InterruptionIdle, active.Interruptions[0].Type)
	assert.Equal(t, "pushed", active.Interruptions[0].Details)
}

func TestInboundUnknownKindMapsToExternal(t *testing.T) {
	h := newHarness(t)
	res := h.dispatch(t, Command{Name: CmdStartFocus})
	require.NoError(t, res.Err)

	h.tp.events <- transport.InboundEvent{
		Name:    "interruption",
		Payload: json.RawMessage(`{"kind":"solarFlare","details":"who knows"}`),
	}

	require.Eventually(t, func() bool {
		active := h.tracker.Active()
		return active != nil && len(active.Interruptions) == 1
	}, time.Second, 10*time.Millisecond)

	assert.Equal(t, session.InterruptionExternal, h.tracker.Active().Interruptions[0].Type)
}

func TestMalformedInboundDropped(t *testing.T) {
	h := newHarness(t)
	res := h.dispatch(t, Command{Name: CmdStartFocus})
	require.NoError(t, res.Err)

	h.tp.events <- transport.InboundEvent{Name: "interruption", Payload: json.RawMessage(`not json`)}
	h.tp.events <- transport.InboundEvent{Name: "mystery", Payload: json.RawMessage(`{}`)}
	h.dispatch(t, Command{Name: CmdGetSessionStatus})

	active := h.tracker.Active()
	require.NotNil(t, active)
	assert.Empty(t, active.Interruptions)
}

func TestSignalsIgnoredWhileInactive(t *testing.T) {
	h := newHarness(t)

	h.col.Offer(BrowserSignal{Kind: SignalTabActivated})
	h.col.Offer(BrowserSignal{Kind: SignalIdleState, State: "idle"})
	h.dispatch(t, Command{Name: CmdGetSessionStatus})

	h.sink.mu.Lock()
	defer h.sink.mu.Unlock()
	assert.Empty(t, h.sink.events)
}
