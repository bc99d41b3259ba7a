// Package capture intercepts local input while control is handed to the peer
// and turns it into protocol events.
//
// In pinned mode the real cursor is held at the point where it crossed the
// edge and a virtual cursor is advanced by relative motion instead.
package capture

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"edgelink/internal/display"
	"edgelink/internal/edge"
	"edgelink/internal/hotkey"
	"edgelink/internal/logging"
	"edgelink/internal/protocol"
)

// ErrAlreadyActive is returned by Start while a session is running.
var ErrAlreadyActive = errors.New("capture already active")

// Mode is the capture state reported to the orchestrator.
type Mode int

const (
	Idle Mode = iota
	Forwarding
)

func (m Mode) String() string {
	if m == Forwarding {
		return "forwarding"
	}
	return "idle"
}

// CursorMode selects how pointer positions are produced.
type CursorMode int

const (
	// Pinned holds the real cursor and tracks a virtual one from deltas.
	Pinned CursorMode = iota
	// Direct normalizes the raw pointer location as-is.
	Direct
)

// ParseCursorMode converts "pinned" or "direct" into a CursorMode.
func ParseCursorMode(s string) (CursorMode, error) {
	switch s {
	case "", "pinned":
		return Pinned, nil
	case "direct":
		return Direct, nil
	}
	return Pinned, errors.Errorf("unknown capture mode %q", s)
}

// ExitReason says why a session handed control back.
type ExitReason int

const (
	ExitNone ExitReason = iota
	ExitRequested
	ExitHotkey
	ExitBoundary
)

func (r ExitReason) String() string {
	switch r {
	case ExitRequested:
		return "return requested"
	case ExitHotkey:
		return "hotkey"
	case ExitBoundary:
		return "boundary"
	}
	return "none"
}

// Options configures one capture session.
type Options struct {
	// Edge is the local edge the cursor crossed.
	Edge edge.Edge
	Mode CursorMode
}

// Config holds engine settings.
type Config struct {
	// Inset is how far inside the entry side the virtual cursor starts.
	Inset float64
	// QueueSize bounds the hook-to-engine queue.
	QueueSize int
	// Hotkey hands control back locally. It is never forwarded.
	Hotkey hotkey.Combo
	// RestoreInset is the distance from the crossed edge, in screen units,
	// where the real cursor is put back when a pinned session ends.
	RestoreInset float64
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		Inset:        0.01,
		QueueSize:    1024,
		Hotkey:       hotkey.MustParse("Esc"),
		RestoreInset: edge.DefaultThreshold + 1,
	}
}

// Engine owns the hook and the virtual cursor.
type Engine struct {
	cfg    Config
	hook   Hook
	cursor display.Cursor
	bounds display.BoundsFunc
	log    logrus.FieldLogger

	events chan protocol.Event

	mu      sync.Mutex
	session *session

	// cur is read by the hook callback without locking.
	cur             atomic.Pointer[session]
	returnRequested atomic.Bool
	wake            chan struct{}
	lastExit        atomic.Int32
}

type session struct {
	opts   Options
	bounds display.Rect
	pin    display.Point
	vx, vy float64

	raw     chan RawEvent
	stop    chan struct{}
	done    chan struct{}
	dropped atomic.Uint64

	stopOnce   sync.Once
	finishOnce sync.Once
}

// New creates a new capture Engine.
func New(cfg Config, hook Hook, cursor display.Cursor, bounds display.BoundsFunc) *Engine {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.Inset <= 0 || cfg.Inset >= 0.5 {
		cfg.Inset = DefaultConfig().Inset
	}
	return &Engine{
		cfg:    cfg,
		hook:   hook,
		cursor: cursor,
		bounds: bounds,
		log:    logging.MustGetLogger("capture"),
		events: make(chan protocol.Event, cfg.QueueSize),
		wake:   make(chan struct{}, 1),
	}
}

// Events returns the stream of captured events. A session always ends its
// output with one control-return event unless it was stopped with Stop.
func (e *Engine) Events() <-chan protocol.Event {
	return e.events
}

// Mode reports whether a session is currently forwarding.
func (e *Engine) Mode() Mode {
	if e.cur.Load() != nil {
		return Forwarding
	}
	return Idle
}

// LastExit returns why the most recent session ended.
func (e *Engine) LastExit() ExitReason {
	return ExitReason(e.lastExit.Load())
}

// Start installs the hook and begins a session.
func (e *Engine) Start(opts Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cur.Load() != nil {
		return ErrAlreadyActive
	}
	e.stopLocked()

	bounds, err := e.bounds()
	if err != nil {
		return errors.Wrap(err, "failed to read display bounds")
	}
	pin, err := e.cursor.Position()
	if err != nil {
		return errors.Wrap(err, "failed to read cursor position")
	}

	s := &session{
		opts:   opts,
		bounds: bounds,
		pin:    pin,
		raw:    make(chan RawEvent, e.cfg.QueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	s.vx, s.vy = entryPoint(opts.Edge, bounds.Normalize(pin), e.cfg.Inset)

	e.returnRequested.Store(false)
	select {
	case <-e.wake:
	default:
	}
	e.lastExit.Store(int32(ExitNone))

	e.cur.Store(s)
	if err := e.hook.Install(e.onRaw); err != nil {
		e.cur.Store(nil)
		return errors.Wrap(err, "failed to install input hook")
	}
	e.session = s

	e.log.WithField("edge", opts.Edge).Infof("Capture started at (%.3f, %.3f)", s.vx, s.vy)
	go e.run(s)
	return nil
}

// Stop ends the current session without emitting control-return. It is
// safe to call at any time.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopLocked()
}

func (e *Engine) stopLocked() {
	s := e.session
	if s == nil {
		return
	}
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	e.finish(s)
	e.session = nil
}

// RequestReturn asks the running session to hand control back. It may be
// called from any goroutine and never blocks.
func (e *Engine) RequestReturn() {
	if e.cur.Load() == nil {
		return
	}
	e.returnRequested.Store(true)
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// onRaw runs in the hook context.
func (e *Engine) onRaw(ev RawEvent) bool {
	if ev.Kind == RawHookDisabled {
		if err := e.hook.Reenable(); err != nil {
			e.log.WithError(err).Error("Failed to re-enable input hook")
		}
		return false
	}
	s := e.cur.Load()
	if s == nil {
		return false
	}
	select {
	case s.raw <- ev:
	default:
		s.dropped.Add(1)
	}
	return true
}

func (e *Engine) run(s *session) {
	defer close(s.done)
	for {
		select {
		case <-s.stop:
			return
		case <-e.wake:
			if e.returnRequested.CompareAndSwap(true, false) {
				e.exit(s, ExitRequested)
				return
			}
		case ev := <-s.raw:
			if reason := e.handle(s, ev); reason != ExitNone {
				e.exit(s, reason)
				return
			}
		}
	}
}

// handle processes one raw event and returns a non-zero reason when the
// session must end.
func (e *Engine) handle(s *session, ev RawEvent) ExitReason {
	if e.returnRequested.CompareAndSwap(true, false) {
		return ExitRequested
	}
	if ev.Kind == RawKeyDown && e.cfg.Hotkey.Matches(ev.KeyCode, ev.Mods) {
		return ExitHotkey
	}

	switch ev.Kind {
	case RawMove:
		if s.opts.Mode == Direct {
			n := s.bounds.Normalize(display.Point{X: ev.X, Y: ev.Y})
			s.vx, s.vy = n.X, n.Y
			e.emit(s, protocol.PointerMove(s.vx, s.vy))
			return ExitNone
		}
		dx, dy := ev.DX, ev.DY
		if !ev.HasDelta {
			dx, dy = ev.X-s.pin.X, ev.Y-s.pin.Y
		}
		if dx == 0 && dy == 0 {
			return ExitNone
		}
		s.vx = display.Clamp01(s.vx + dx/s.bounds.Width())
		s.vy = display.Clamp01(s.vy + dy/s.bounds.Height())
		if err := e.cursor.Warp(s.pin); err != nil {
			e.log.WithError(err).Debug("Failed to re-pin cursor")
		}
		if backAcross(s.opts.Edge, s.vx, s.vy) {
			return ExitBoundary
		}
		e.emit(s, protocol.PointerMove(s.vx, s.vy))
	case RawButtonDown, RawButtonUp:
		e.emit(s, protocol.ButtonEvent(ev.Button, ev.Kind == RawButtonDown, s.vx, s.vy))
	case RawKeyDown, RawKeyUp:
		e.emit(s, protocol.KeyEvent(ev.KeyCode, ev.Mods, ev.Kind == RawKeyDown, s.vx, s.vy))
	case RawScroll:
		e.emit(s, protocol.Scroll(ev.ScrollDX, ev.ScrollDY, s.vx, s.vy))
	}
	return ExitNone
}

func (e *Engine) emit(s *session, ev protocol.Event) {
	select {
	case e.events <- ev:
	case <-s.stop:
	}
}

func (e *Engine) exit(s *session, reason ExitReason) {
	e.lastExit.Store(int32(reason))
	e.log.WithField("reason", reason).Info("Returning control")
	e.finish(s)
	e.emit(s, protocol.ControlReturn(s.vx, s.vy))
}

// finish releases the hook and puts the real cursor back. It runs once per
// session.
func (e *Engine) finish(s *session) {
	s.finishOnce.Do(func() {
		e.cur.CompareAndSwap(s, nil)
		if err := e.hook.Uninstall(); err != nil {
			e.log.WithError(err).Warn("Failed to uninstall input hook")
		}
		if s.opts.Mode == Pinned {
			p := restorePoint(s.opts.Edge, s.bounds, s.vx, s.vy, e.cfg.RestoreInset)
			if err := e.cursor.Warp(p); err != nil {
				e.log.WithError(err).Warn("Failed to restore cursor")
			}
		}
		if n := s.dropped.Load(); n > 0 {
			e.log.Warnf("Dropped %d input events, queue full", n)
		}
	})
}

// entryPoint places the virtual cursor just inside the side of the remote
// display opposite the crossed edge, keeping the orthogonal coordinate.
func entryPoint(crossed edge.Edge, n display.Point, inset float64) (float64, float64) {
	switch crossed {
	case edge.Left:
		return 1 - inset, n.Y
	case edge.Top:
		return n.X, 1 - inset
	case edge.Bottom:
		return n.X, inset
	default:
		return inset, n.Y
	}
}

// backAcross reports whether the virtual cursor has reached the side it
// entered from.
func backAcross(crossed edge.Edge, vx, vy float64) bool {
	switch crossed {
	case edge.Left:
		return vx >= 1
	case edge.Top:
		return vy >= 1
	case edge.Bottom:
		return vy <= 0
	default:
		return vx <= 0
	}
}

func restorePoint(crossed edge.Edge, b display.Rect, vx, vy, inset float64) display.Point {
	p := b.Denormalize(display.Point{X: vx, Y: vy})
	switch crossed {
	case edge.Left:
		p.X = b.Min.X + inset
	case edge.Top:
		p.Y = b.Min.Y + inset
	case edge.Bottom:
		p.Y = b.Max.Y - 1 - inset
	default:
		p.X = b.Max.X - 1 - inset
	}
	return p
}
