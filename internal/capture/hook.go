package capture

import (
	"time"

	"github.com/pkg/errors"

	"edgelink/internal/protocol"
)

// ErrUnsupported is returned by Install on platforms without a global hook.
var ErrUnsupported = errors.New("global input capture is not supported on this platform")

// RawKind classifies an event delivered by a Hook.
type RawKind int

const (
	RawMove RawKind = iota
	RawButtonDown
	RawButtonUp
	RawKeyDown
	RawKeyUp
	RawScroll
	// RawHookDisabled means the OS switched the hook off and it must be
	// re-enabled.
	RawHookDisabled
)

// RawEvent is a platform input occurrence before normalization.
type RawEvent struct {
	Kind RawKind

	// X, Y is the absolute pointer location in screen units.
	X, Y float64
	// DX, DY is the relative motion when the platform reports it.
	DX, DY   float64
	HasDelta bool

	Button   protocol.Button
	KeyCode  int
	Mods     uint64
	ScrollDX float64
	ScrollDY float64
}

// Hook is a process-wide input interception point with one handler.
//
// The handler runs in the platform hook context. It must return quickly and
// reports whether the event is to be withheld from the rest of the system.
type Hook interface {
	Install(handler func(RawEvent) bool) error
	Reenable() error
	Uninstall() error
}

// rearmEvery calls rearm every d until done is closed. Windows removes a
// low-level hook whose callback overruns LowLevelHooksTimeout and sends no
// notification, so the hooks are re-registered on a timer instead.
func rearmEvery(d time.Duration, done <-chan struct{}, rearm func()) {
	t := time.NewTicker(d)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			rearm()
		}
	}
}
