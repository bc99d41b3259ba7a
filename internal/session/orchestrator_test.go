package session

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgelink/internal/capture"
	"edgelink/internal/display"
	"edgelink/internal/edge"
	"edgelink/internal/hotkey"
	"edgelink/internal/protocol"
	"edgelink/internal/transport"
)

const wait = 2 * time.Second
const tick = 5 * time.Millisecond

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.BindAddr = "127.0.0.1:0"
	cfg.ProbeInterval = 20 * time.Millisecond
	cfg.PollInterval = 5 * time.Millisecond
	cfg.Debounce = 10 * time.Millisecond
	return cfg
}

type harness struct {
	o         *Orchestrator
	transport *fakeTransport
	capture   *fakeCapture
	probe     *fakeProbe
	cursor    *fakeCursor
	notifier  *recordingNotifier
	done      chan error
}

func startHarness(t *testing.T) *harness {
	h := &harness{
		transport: newFakeTransport(),
		capture:   newFakeCapture(),
		probe:     &fakeProbe{},
		cursor:    &fakeCursor{pos: display.Point{X: 500, Y: 500}},
		notifier:  &recordingNotifier{},
		done:      make(chan error, 1),
	}
	h.probe.present.Store(true)
	h.o = New(testConfig(), h.transport, h.capture, h.probe, h.cursor, display.Fixed(screen))
	h.o.AddNotifier(h.notifier)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { h.done <- h.o.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-h.done
	})
	require.Eventually(t, func() bool { return h.transport.listenCount() == 1 }, wait, tick)
	return h
}

func (h *harness) connect(id uuid.UUID) {
	h.transport.setState(transport.PeerConnected)
	h.transport.notices <- transport.Notice{Kind: transport.NoticePeerConnected, ConnID: id}
}

func (h *harness) waitPublished(t *testing.T, m Mode) {
	t.Helper()
	require.Eventually(t, func() bool {
		modes, _, _ := h.notifier.snapshot()
		return len(modes) > 0 && modes[len(modes)-1] == m
	}, wait, tick)
}

func TestDeriveMode(t *testing.T) {
	tests := []struct {
		link bool
		conn transport.State
		cm   capture.Mode
		want Mode
	}{
		{false, transport.PeerConnected, capture.Forwarding, LinkAbsent},
		{false, transport.Disconnected, capture.Idle, LinkAbsent},
		{true, transport.Disconnected, capture.Idle, AwaitingPeer},
		{true, transport.Listening, capture.Forwarding, AwaitingPeer},
		{true, transport.PeerConnected, capture.Idle, Idle},
		{true, transport.PeerConnected, capture.Forwarding, Forwarding},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, DeriveMode(tc.link, tc.conn, tc.cm), "%v %s %s", tc.link, tc.conn, tc.cm)
	}
}

func TestForwardingRequiresPeer(t *testing.T) {
	h := startHarness(t)
	assert.Equal(t, 1, h.transport.listenCount())

	h.cursor.set(display.Point{X: 999, Y: 400})
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.capture.startList())
	assert.Equal(t, AwaitingPeer, h.o.Mode())

	h.connect(uuid.New())
	require.Eventually(t, func() bool { return len(h.capture.startList()) == 1 }, wait, tick)
	assert.Equal(t, capture.Options{Edge: edge.Right, Mode: capture.Pinned}, h.capture.startList()[0])
	assert.Equal(t, Forwarding, h.o.Mode())
}

func TestOnlyTargetEdgeStartsCapture(t *testing.T) {
	h := startHarness(t)
	h.connect(uuid.New())
	require.Eventually(t, func() bool { return h.o.Mode() == Idle }, wait, tick)

	h.cursor.set(display.Point{X: 0, Y: 400})
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, h.capture.startList())

	h.o.SetTargetEdge(edge.Left)
	assert.Equal(t, edge.Left, h.o.TargetEdge())
	h.cursor.set(display.Point{X: 500, Y: 400})
	time.Sleep(30 * time.Millisecond)
	h.cursor.set(display.Point{X: 0, Y: 400})

	require.Eventually(t, func() bool { return len(h.capture.startList()) == 1 }, wait, tick)
	assert.Equal(t, edge.Left, h.capture.startList()[0].Edge)
}

func TestCapturedEventsAreForwarded(t *testing.T) {
	h := startHarness(t)
	h.connect(uuid.New())
	h.cursor.set(display.Point{X: 999, Y: 400})
	require.Eventually(t, func() bool { return h.o.Mode() == Forwarding }, wait, tick)

	h.capture.events <- protocol.PointerMove(0.2, 0.4)
	h.capture.events <- protocol.KeyEvent(0, 0, true, 0.2, 0.4)
	h.capture.exit(capture.ExitHotkey)

	require.Eventually(t, func() bool { return len(h.transport.sentEvents()) == 3 }, wait, tick)
	sent := h.transport.sentEvents()
	assert.Equal(t, protocol.PointerMove(0.2, 0.4), sent[0])
	assert.Equal(t, protocol.KindKeyDown, sent[1].Kind)
	assert.Equal(t, protocol.KindControlReturn, sent[2].Kind)
	assert.Equal(t, Idle, h.o.Mode())
}

func TestPeerReturnIsNotEchoed(t *testing.T) {
	h := startHarness(t)
	id := uuid.New()
	h.connect(id)
	h.cursor.set(display.Point{X: 999, Y: 400})
	require.Eventually(t, func() bool { return h.o.Mode() == Forwarding }, wait, tick)

	h.transport.notices <- transport.Notice{Kind: transport.NoticeEventReceived, ConnID: id, Event: protocol.ControlReturn(0, 0.5)}
	require.Eventually(t, func() bool {
		_, returns := h.capture.counts()
		return returns == 1
	}, wait, tick)

	h.capture.exit(capture.ExitRequested)
	require.Eventually(t, func() bool { return h.o.Mode() == Idle }, wait, tick)
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, h.transport.sentEvents())
}

func TestPeerDisconnectStopsCapture(t *testing.T) {
	h := startHarness(t)
	first, second := uuid.New(), uuid.New()
	h.connect(first)
	h.connect(second)
	h.cursor.set(display.Point{X: 999, Y: 400})
	require.Eventually(t, func() bool { return h.o.Mode() == Forwarding }, wait, tick)

	// A late disconnect for the replaced peer changes nothing.
	h.transport.notices <- transport.Notice{Kind: transport.NoticePeerDisconnected, ConnID: first}
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, Forwarding, h.o.Mode())

	h.transport.setState(transport.Listening)
	h.transport.notices <- transport.Notice{Kind: transport.NoticePeerDisconnected, ConnID: second}
	require.Eventually(t, func() bool { return h.capture.Mode() == capture.Idle }, wait, tick)
	assert.Equal(t, AwaitingPeer, h.o.Mode())

	require.Eventually(t, func() bool {
		_, connected, disconnected := h.notifier.snapshot()
		return connected == 2 && disconnected == 1
	}, wait, tick)
}

func TestLinkLoss(t *testing.T) {
	h := startHarness(t)
	h.connect(uuid.New())
	h.waitPublished(t, Idle)
	h.cursor.set(display.Point{X: 999, Y: 400})
	require.Eventually(t, func() bool { return h.o.Mode() == Forwarding }, wait, tick)

	h.probe.present.Store(false)
	require.Eventually(t, func() bool { return h.o.Mode() == LinkAbsent }, wait, tick)
	assert.Equal(t, capture.Idle, h.capture.Mode())
	assert.Equal(t, 1, h.transport.stopCount())

	h.probe.present.Store(true)
	require.Eventually(t, func() bool { return h.transport.listenCount() == 2 }, wait, tick)
	assert.Equal(t, AwaitingPeer, h.o.Mode())

	h.waitPublished(t, AwaitingPeer)
	modes, connected, disconnected := h.notifier.snapshot()
	assert.Equal(t, []Mode{AwaitingPeer, Idle, Forwarding, LinkAbsent, AwaitingPeer}, modes)
	assert.Equal(t, 1, connected)
	assert.Equal(t, 1, disconnected, "link loss reports the peer as gone")
	assert.False(t, h.o.Status().PeerConnected)
}

func TestQuit(t *testing.T) {
	h := startHarness(t)
	h.o.Quit()
	select {
	case err := <-h.done:
		assert.NoError(t, err)
		h.done <- err
	case <-time.After(wait):
		t.Fatal("Run did not return")
	}
	assert.Equal(t, 1, h.transport.stopCount())
	assert.Equal(t, LinkAbsent, h.o.Mode())
	h.o.Quit()
}

func TestEndToEnd(t *testing.T) {
	tcfg := transport.DefaultConfig()
	tcfg.RetryDelay = 20 * time.Millisecond
	srv := transport.NewServer(tcfg)

	hook := &fakeHook{}
	cursor := &fakeCursor{pos: display.Point{X: 500, Y: 500}}
	engine := capture.New(capture.DefaultConfig(), hook, cursor, display.Fixed(screen))
	probe := &fakeProbe{}
	probe.present.Store(true)

	o := New(testConfig(), srv, engine, probe, cursor, display.Fixed(screen))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, wait, tick)
	peer, err := net.Dial("tcp", srv.Addr().String())
	require.NoError(t, err)
	defer peer.Close()
	require.Eventually(t, func() bool { return o.Mode() == Idle }, wait, tick)

	cursor.set(display.Point{X: 999, Y: 500})
	require.Eventually(t, func() bool { return o.Mode() == Forwarding && hook.installed() }, wait, tick)

	for i := 0; i < 5; i++ {
		hook.feed(capture.RawEvent{Kind: capture.RawMove, X: 1009, Y: 500})
	}
	last := 0.0
	for i := 0; i < 5; i++ {
		ev := readFrame(t, peer)
		require.Equal(t, protocol.KindPointerMove, ev.Kind)
		assert.Greater(t, ev.X, last)
		assert.InDelta(t, 0.5, ev.Y, 1e-9)
		last = ev.X
	}

	esc, ok := hotkey.KeyCode("ESC")
	require.True(t, ok)
	hook.feed(capture.RawEvent{Kind: capture.RawKeyDown, KeyCode: esc})

	ev := readFrame(t, peer)
	assert.Equal(t, protocol.KindControlReturn, ev.Kind)
	assert.InDelta(t, last, ev.X, 1e-9)
	require.Eventually(t, func() bool { return o.Mode() == Idle }, wait, tick)
	assert.False(t, hook.installed())

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, err = protocol.ReadFrame(peer)
	var ne net.Error
	require.ErrorAs(t, err, &ne)
	assert.True(t, ne.Timeout())
}

func readFrame(t *testing.T, conn net.Conn) protocol.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	payload, err := protocol.ReadFrame(conn)
	require.NoError(t, err)
	ev, err := protocol.Decode(payload)
	require.NoError(t, err)
	return ev
}
