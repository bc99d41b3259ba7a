package session

import (
	"sync"
	"sync/atomic"

	"edgelink/internal/capture"
	"edgelink/internal/display"
	"edgelink/internal/protocol"
	"edgelink/internal/transport"
)

var screen = display.Rect{Max: display.Point{X: 1000, Y: 1000}}

type fakeTransport struct {
	mu      sync.Mutex
	state   transport.State
	listens []string
	stops   int
	sent    []protocol.Event
	notices chan transport.Notice
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{notices: make(chan transport.Notice, 16)}
}

func (t *fakeTransport) Listen(addr string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.listens = append(t.listens, addr)
	t.state = transport.Listening
	return nil
}

func (t *fakeTransport) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stops++
	t.state = transport.Disconnected
}

func (t *fakeTransport) Send(e protocol.Event) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == transport.PeerConnected {
		t.sent = append(t.sent, e)
	}
	return nil
}

func (t *fakeTransport) State() transport.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *fakeTransport) Notices() <-chan transport.Notice { return t.notices }

func (t *fakeTransport) setState(s transport.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
}

func (t *fakeTransport) listenCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.listens)
}

func (t *fakeTransport) stopCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stops
}

func (t *fakeTransport) sentEvents() []protocol.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]protocol.Event(nil), t.sent...)
}

type fakeCapture struct {
	mu       sync.Mutex
	active   bool
	starts   []capture.Options
	stops    int
	returns  int
	lastExit capture.ExitReason
	events   chan protocol.Event
}

func newFakeCapture() *fakeCapture {
	return &fakeCapture{events: make(chan protocol.Event, 16)}
}

func (c *fakeCapture) Start(opts capture.Options) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return capture.ErrAlreadyActive
	}
	c.active = true
	c.starts = append(c.starts, opts)
	return nil
}

func (c *fakeCapture) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.active = false
	c.stops++
}

func (c *fakeCapture) RequestReturn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.returns++
}

func (c *fakeCapture) Mode() capture.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return capture.Forwarding
	}
	return capture.Idle
}

func (c *fakeCapture) LastExit() capture.ExitReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastExit
}

func (c *fakeCapture) Events() <-chan protocol.Event { return c.events }

func (c *fakeCapture) startList() []capture.Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capture.Options(nil), c.starts...)
}

func (c *fakeCapture) counts() (stops, returns int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stops, c.returns
}

// exit simulates the engine ending a session on its own.
func (c *fakeCapture) exit(reason capture.ExitReason) {
	c.mu.Lock()
	c.active = false
	c.lastExit = reason
	c.mu.Unlock()
	c.events <- protocol.ControlReturn(0, 0.5)
}

type fakeProbe struct {
	present atomic.Bool
}

func (p *fakeProbe) IsLinkPresent() bool { return p.present.Load() }

type fakeCursor struct {
	mu  sync.Mutex
	pos display.Point
}

func (c *fakeCursor) Position() (display.Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos, nil
}

func (c *fakeCursor) Warp(p display.Point) error {
	c.set(p)
	return nil
}

func (c *fakeCursor) set(p display.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = p
}

type recordingNotifier struct {
	mu           sync.Mutex
	modes        []Mode
	connected    int
	disconnected int
}

func (n *recordingNotifier) SessionModeChanged(m Mode) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.modes = append(n.modes, m)
}

func (n *recordingNotifier) PeerConnected() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connected++
}

func (n *recordingNotifier) PeerDisconnected() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnected++
}

func (n *recordingNotifier) snapshot() ([]Mode, int, int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Mode(nil), n.modes...), n.connected, n.disconnected
}

type fakeHook struct {
	mu      sync.Mutex
	handler func(capture.RawEvent) bool
}

func (h *fakeHook) Install(handler func(capture.RawEvent) bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = handler
	return nil
}

func (h *fakeHook) Reenable() error { return nil }

func (h *fakeHook) Uninstall() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handler = nil
	return nil
}

func (h *fakeHook) installed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handler != nil
}

func (h *fakeHook) feed(ev capture.RawEvent) {
	h.mu.Lock()
	handler := h.handler
	h.mu.Unlock()
	if handler != nil {
		handler(ev)
	}
}
