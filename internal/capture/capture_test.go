package capture

import (
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"edgelink/internal/display"
	"edgelink/internal/edge"
	"edgelink/internal/hotkey"
	"edgelink/internal/protocol"
)

var screen = display.Rect{Max: display.Point{X: 1000, Y: 1000}}

type fakeHook struct {
	mu         sync.Mutex
	handler    func(RawEvent) bool
	installErr error
	reenabled  int
	installs   int
}

func (h *fakeHook) Install(handler func(RawEvent) bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.installErr != nil {
		return h.installErr
	}
	h.handler = handler
	h.installs++
	return nil
}

func (h *fakeHook) Reenable() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reenabled++
	return nil
}

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

// feed delivers ev the way the OS would and reports whether it was withheld.
func (h *fakeHook) feed(ev RawEvent) bool {
	h.mu.Lock()
	handler := h.handler
	h.mu.Unlock()
	if handler == nil {
		return false
	}
	return handler(ev)
}

type fakeCursor struct {
	mu    sync.Mutex
	pos   display.Point
	warps []display.Point
}

func (c *fakeCursor) Position() (display.Point, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pos, nil
}

func (c *fakeCursor) Warp(p display.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pos = p
	c.warps = append(c.warps, p)
	return nil
}

func (c *fakeCursor) lastWarp() display.Point {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warps[len(c.warps)-1]
}

func newTestEngine(t *testing.T) (*Engine, *fakeHook, *fakeCursor) {
	hook := &fakeHook{}
	cursor := &fakeCursor{pos: display.Point{X: 999, Y: 500}}
	e := New(DefaultConfig(), hook, cursor, display.Fixed(screen))
	t.Cleanup(e.Stop)
	return e, hook, cursor
}

func next(t *testing.T, e *Engine) protocol.Event {
	t.Helper()
	select {
	case ev := <-e.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return protocol.Event{}
}

func assertQuiet(t *testing.T, e *Engine) {
	t.Helper()
	select {
	case ev := <-e.Events():
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func move(dx, dy float64) RawEvent {
	return RawEvent{Kind: RawMove, X: 999 + dx, Y: 500 + dy}
}

func TestBoundaryExit(t *testing.T) {
	e, hook, _ := newTestEngine(t)
	require.NoError(t, e.Start(Options{Edge: edge.Right, Mode: Pinned}))
	assert.Equal(t, Forwarding, e.Mode())

	for i := 0; i < 5; i++ {
		hook.feed(move(-5, 0))
	}

	ev := next(t, e)
	require.Equal(t, protocol.KindPointerMove, ev.Kind)
	assert.InDelta(t, 0.005, ev.X, 1e-9)
	assert.InDelta(t, 0.5, ev.Y, 1e-9)

	lastX := ev.X
	for ev.Kind == protocol.KindPointerMove {
		ev = next(t, e)
		assert.LessOrEqual(t, ev.X, lastX)
		lastX = ev.X
	}
	assert.Equal(t, protocol.KindControlReturn, ev.Kind)
	assert.Equal(t, 0.0, ev.X)

	hook.feed(move(-5, 0))
	hook.feed(RawEvent{Kind: RawKeyDown, KeyCode: 4})
	assertQuiet(t, e)

	assert.Equal(t, Idle, e.Mode())
	assert.Equal(t, ExitBoundary, e.LastExit())
	assert.False(t, hook.installed())

	require.NoError(t, e.Start(Options{Edge: edge.Right, Mode: Pinned}))
	hook.feed(move(10, 0))
	ev = next(t, e)
	assert.Equal(t, protocol.KindPointerMove, ev.Kind)
	assert.Equal(t, 2, hook.installs)
}

func TestHotkeyExitIsConsumed(t *testing.T) {
	e, hook, _ := newTestEngine(t)
	require.NoError(t, e.Start(Options{Edge: edge.Right, Mode: Pinned}))

	esc, ok := hotkey.KeyCode("ESC")
	require.True(t, ok)
	assert.True(t, hook.feed(RawEvent{Kind: RawKeyDown, KeyCode: esc}))

	ev := next(t, e)
	assert.Equal(t, protocol.KindControlReturn, ev.Kind)
	assertQuiet(t, e)
	assert.Equal(t, ExitHotkey, e.LastExit())
}

func TestHotkeyWithModifiersIsConsumed(t *testing.T) {
	e, hook, _ := newTestEngine(t)
	require.NoError(t, e.Start(Options{Edge: edge.Right, Mode: Pinned}))

	esc, _ := hotkey.KeyCode("ESC")
	assert.True(t, hook.feed(RawEvent{Kind: RawKeyDown, KeyCode: esc, Mods: protocol.ModShift}))

	ev := next(t, e)
	assert.Equal(t, protocol.KindControlReturn, ev.Kind)
	assertQuiet(t, e)
	assert.Equal(t, ExitHotkey, e.LastExit())
}

func TestComboHotkeyForwardsOtherModifiers(t *testing.T) {
	hook := &fakeHook{}
	cursor := &fakeCursor{pos: display.Point{X: 999, Y: 500}}
	cfg := DefaultConfig()
	cfg.Hotkey = hotkey.MustParse("Ctrl+Esc")
	e := New(cfg, hook, cursor, display.Fixed(screen))
	t.Cleanup(e.Stop)
	require.NoError(t, e.Start(Options{Edge: edge.Right, Mode: Pinned}))

	esc, _ := hotkey.KeyCode("ESC")
	hook.feed(RawEvent{Kind: RawKeyDown, KeyCode: esc})
	ev := next(t, e)
	assert.Equal(t, protocol.KindKeyDown, ev.Kind)
	assert.Equal(t, esc, ev.KeyCode)

	hook.feed(RawEvent{Kind: RawKeyDown, KeyCode: esc, Mods: protocol.ModControl})
	ev = next(t, e)
	assert.Equal(t, protocol.KindControlReturn, ev.Kind)
}

func TestRequestReturnWithoutInput(t *testing.T) {
	e, _, _ := newTestEngine(t)

	e.RequestReturn()
	require.NoError(t, e.Start(Options{Edge: edge.Right, Mode: Pinned}))
	assertQuiet(t, e)

	e.RequestReturn()
	ev := next(t, e)
	assert.Equal(t, protocol.KindControlReturn, ev.Kind)
	assert.Equal(t, ExitRequested, e.LastExit())
	assert.Equal(t, Idle, e.Mode())
}

func TestRequestReturnUnderFlood(t *testing.T) {
	e, hook, _ := newTestEngine(t)
	require.NoError(t, e.Start(Options{Edge: edge.Right, Mode: Pinned}))

	go func() {
		for i := 0; i < 500; i++ {
			hook.feed(move(1, 0))
			if i == 100 {
				e.RequestReturn()
			}
		}
	}()

	returns := 0
	for returns == 0 {
		if ev := next(t, e); ev.Kind == protocol.KindControlReturn {
			returns++
		}
	}
	assertQuiet(t, e)
	assert.Equal(t, ExitRequested, e.LastExit())
}

func TestVirtualCursorCarriesNonPointerEvents(t *testing.T) {
	e, hook, cursor := newTestEngine(t)
	require.NoError(t, e.Start(Options{Edge: edge.Right, Mode: Pinned}))

	hook.feed(move(100, -50))
	ev := next(t, e)
	assert.InDelta(t, 0.11, ev.X, 1e-9)
	assert.InDelta(t, 0.45, ev.Y, 1e-9)
	assert.Equal(t, display.Point{X: 999, Y: 500}, cursor.lastWarp(), "cursor is re-pinned")

	// The warp back to the pin point is not motion.
	hook.feed(move(0, 0))

	hook.feed(RawEvent{Kind: RawButtonDown, Button: protocol.ButtonLeft})
	ev = next(t, e)
	assert.Equal(t, protocol.KindButtonDown, ev.Kind)
	assert.Equal(t, protocol.ButtonLeft, ev.Button)
	assert.InDelta(t, 0.11, ev.X, 1e-9)

	hook.feed(RawEvent{Kind: RawScroll, ScrollDY: -2})
	ev = next(t, e)
	assert.Equal(t, protocol.KindScroll, ev.Kind)
	assert.Equal(t, -2.0, ev.ScrollDY)
	assert.InDelta(t, 0.45, ev.Y, 1e-9)
}

func TestVirtualCursorClamps(t *testing.T) {
	e, hook, _ := newTestEngine(t)
	require.NoError(t, e.Start(Options{Edge: edge.Right, Mode: Pinned}))

	hook.feed(move(5000, 5000))
	ev := next(t, e)
	assert.Equal(t, 1.0, ev.X)
	assert.Equal(t, 1.0, ev.Y)
}

func TestPlatformDeltas(t *testing.T) {
	e, hook, _ := newTestEngine(t)
	require.NoError(t, e.Start(Options{Edge: edge.Right, Mode: Pinned}))

	hook.feed(RawEvent{Kind: RawMove, X: 999, Y: 500, DX: 200, HasDelta: true})
	ev := next(t, e)
	assert.InDelta(t, 0.21, ev.X, 1e-9)
}

func TestDirectMode(t *testing.T) {
	e, hook, cursor := newTestEngine(t)
	require.NoError(t, e.Start(Options{Edge: edge.Right, Mode: Direct}))

	hook.feed(RawEvent{Kind: RawMove, X: 250, Y: 750})
	ev := next(t, e)
	assert.Equal(t, protocol.PointerMove(0.25, 0.75), ev)
	assert.Empty(t, cursor.warps)
}

func TestEntryEdges(t *testing.T) {
	n := display.Point{X: 0.3, Y: 0.6}
	tests := []struct {
		crossed edge.Edge
		x, y    float64
	}{
		{edge.Right, 0.01, 0.6},
		{edge.Left, 0.99, 0.6},
		{edge.Bottom, 0.3, 0.01},
		{edge.Top, 0.3, 0.99},
	}
	for _, tc := range tests {
		x, y := entryPoint(tc.crossed, n, 0.01)
		assert.InDelta(t, tc.x, x, 1e-9, tc.crossed.String())
		assert.InDelta(t, tc.y, y, 1e-9, tc.crossed.String())
		assert.False(t, backAcross(tc.crossed, x, y))
	}
	assert.True(t, backAcross(edge.Right, 0, 0.5))
	assert.True(t, backAcross(edge.Left, 1, 0.5))
	assert.True(t, backAcross(edge.Bottom, 0.5, 0))
	assert.True(t, backAcross(edge.Top, 0.5, 1))
}

func TestStopIsSilentAndRestoresCursor(t *testing.T) {
	e, hook, cursor := newTestEngine(t)
	require.NoError(t, e.Start(Options{Edge: edge.Right, Mode: Pinned}))

	e.Stop()
	assertQuiet(t, e)
	assert.Equal(t, Idle, e.Mode())
	assert.False(t, hook.installed())
	assert.Equal(t, display.Point{X: 993, Y: 499.5}, cursor.lastWarp())

	e.Stop()
}

func TestStartErrors(t *testing.T) {
	e, hook, _ := newTestEngine(t)
	require.NoError(t, e.Start(Options{Edge: edge.Right}))
	assert.Equal(t, ErrAlreadyActive, e.Start(Options{Edge: edge.Right}))
	e.Stop()

	hook.installErr = errors.New("denied")
	err := e.Start(Options{Edge: edge.Right})
	require.Error(t, err)
	assert.Equal(t, Idle, e.Mode())
}

func TestHookReenabled(t *testing.T) {
	e, hook, _ := newTestEngine(t)
	require.NoError(t, e.Start(Options{Edge: edge.Right}))

	assert.False(t, hook.feed(RawEvent{Kind: RawHookDisabled}))
	assert.Equal(t, 1, hook.reenabled)
	assertQuiet(t, e)
}
