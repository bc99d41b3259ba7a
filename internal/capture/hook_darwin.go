//go:build darwin

package capture

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices
#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <stdint.h>

CGEventRef tapCallback(CGEventTapProxy proxy, CGEventType type, CGEventRef event, void *refcon);

static CFMachPortRef edgeTap;
static CFRunLoopSourceRef edgeSource;
static CFRunLoopRef edgeLoop;

static int createTap(uintptr_t refcon) {
    CGEventMask mask =
        CGEventMaskBit(kCGEventMouseMoved) |
        CGEventMaskBit(kCGEventLeftMouseDragged) |
        CGEventMaskBit(kCGEventRightMouseDragged) |
        CGEventMaskBit(kCGEventLeftMouseDown) |
        CGEventMaskBit(kCGEventLeftMouseUp) |
        CGEventMaskBit(kCGEventRightMouseDown) |
        CGEventMaskBit(kCGEventRightMouseUp) |
        CGEventMaskBit(kCGEventKeyDown) |
        CGEventMaskBit(kCGEventKeyUp) |
        CGEventMaskBit(kCGEventFlagsChanged) |
        CGEventMaskBit(kCGEventScrollWheel);

    edgeTap = CGEventTapCreate(
        kCGSessionEventTap,
        kCGHeadInsertEventTap,
        kCGEventTapOptionDefault,
        mask,
        tapCallback,
        (void*)refcon
    );
    if (!edgeTap) {
        return -1;
    }
    edgeSource = CFMachPortCreateRunLoopSource(kCFAllocatorDefault, edgeTap, 0);
    edgeLoop = CFRunLoopGetCurrent();
    CFRunLoopAddSource(edgeLoop, edgeSource, kCFRunLoopCommonModes);
    CGEventTapEnable(edgeTap, true);
    return 0;
}

static void runTap(void) {
    CFRunLoopRun();
}

static void stopTap(void) {
    if (edgeLoop) {
        CFRunLoopStop(edgeLoop);
    }
}

static void releaseTap(void) {
    if (edgeTap) {
        CGEventTapEnable(edgeTap, false);
        CFMachPortInvalidate(edgeTap);
        CFRelease(edgeTap);
        edgeTap = NULL;
    }
    if (edgeSource) {
        CFRelease(edgeSource);
        edgeSource = NULL;
    }
    edgeLoop = NULL;
}

static void enableTap(void) {
    if (edgeTap) {
        CGEventTapEnable(edgeTap, true);
    }
}
*/
import "C"

import (
	"runtime"
	"runtime/cgo"
	"sync"
	"unsafe"

	"github.com/pkg/errors"

	"edgelink/internal/protocol"
)

const modifierMask = protocol.ModShift | protocol.ModControl | protocol.ModAlt | protocol.ModCommand | protocol.ModCapsLock

type darwinHook struct {
	mu      sync.Mutex
	handler func(RawEvent) bool
	handle  cgo.Handle
	done    chan struct{}
}

// NewSystemHook returns the macOS session event tap.
func NewSystemHook() Hook {
	return &darwinHook{}
}

func (h *darwinHook) Install(handler func(RawEvent) bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done != nil {
		return errors.New("hook already installed")
	}

	h.handler = handler
	h.handle = cgo.NewHandle(h)

	ready := make(chan error, 1)
	done := make(chan struct{})
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer close(done)

		if C.createTap(C.uintptr_t(h.handle)) != 0 {
			ready <- errors.New("failed to create event tap, accessibility permission missing?")
			return
		}
		ready <- nil
		C.runTap()
		C.releaseTap()
	}()

	if err := <-ready; err != nil {
		<-done
		h.handle.Delete()
		return err
	}
	h.done = done
	return nil
}

// Reenable switches the tap back on after a timeout or user-input override.
func (h *darwinHook) Reenable() error {
	C.enableTap()
	return nil
}

func (h *darwinHook) Uninstall() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == nil {
		return nil
	}
	C.stopTap()
	<-h.done
	h.done = nil
	h.handle.Delete()
	return nil
}

// modifierFlag maps modifier key codes to their flag bit.
var modifierFlag = map[int]uint64{
	54: protocol.ModCommand, 55: protocol.ModCommand,
	56: protocol.ModShift, 60: protocol.ModShift,
	58: protocol.ModAlt, 61: protocol.ModAlt,
	59: protocol.ModControl, 62: protocol.ModControl,
	57: protocol.ModCapsLock,
}

//export tapCallback
func tapCallback(proxy C.CGEventTapProxy, eventType C.CGEventType, event C.CGEventRef, refcon unsafe.Pointer) C.CGEventRef {
	h := cgo.Handle(uintptr(refcon)).Value().(*darwinHook)

	loc := C.CGEventGetLocation(event)
	ev := RawEvent{X: float64(loc.x), Y: float64(loc.y)}

	switch eventType {
	case C.kCGEventTapDisabledByTimeout, C.kCGEventTapDisabledByUserInput:
		h.handler(RawEvent{Kind: RawHookDisabled})
		return event
	case C.kCGEventMouseMoved, C.kCGEventLeftMouseDragged, C.kCGEventRightMouseDragged:
		ev.Kind = RawMove
		ev.DX = float64(C.CGEventGetIntegerValueField(event, C.kCGMouseEventDeltaX))
		ev.DY = float64(C.CGEventGetIntegerValueField(event, C.kCGMouseEventDeltaY))
		ev.HasDelta = true
	case C.kCGEventLeftMouseDown:
		ev.Kind, ev.Button = RawButtonDown, protocol.ButtonLeft
	case C.kCGEventLeftMouseUp:
		ev.Kind, ev.Button = RawButtonUp, protocol.ButtonLeft
	case C.kCGEventRightMouseDown:
		ev.Kind, ev.Button = RawButtonDown, protocol.ButtonRight
	case C.kCGEventRightMouseUp:
		ev.Kind, ev.Button = RawButtonUp, protocol.ButtonRight
	case C.kCGEventKeyDown, C.kCGEventKeyUp:
		ev.Kind = RawKeyUp
		if eventType == C.kCGEventKeyDown {
			ev.Kind = RawKeyDown
		}
		ev.KeyCode = int(C.CGEventGetIntegerValueField(event, C.kCGKeyboardEventKeycode))
		ev.Mods = uint64(C.CGEventGetFlags(event)) & modifierMask
	case C.kCGEventFlagsChanged:
		ev.KeyCode = int(C.CGEventGetIntegerValueField(event, C.kCGKeyboardEventKeycode))
		ev.Mods = uint64(C.CGEventGetFlags(event)) & modifierMask
		flag, ok := modifierFlag[ev.KeyCode]
		if !ok {
			return event
		}
		ev.Kind = RawKeyUp
		if ev.Mods&flag != 0 {
			ev.Kind = RawKeyDown
		}
	case C.kCGEventScrollWheel:
		ev.Kind = RawScroll
		ev.ScrollDY = float64(C.CGEventGetIntegerValueField(event, C.kCGScrollWheelEventDeltaAxis1))
		ev.ScrollDX = float64(C.CGEventGetIntegerValueField(event, C.kCGScrollWheelEventDeltaAxis2))
	default:
		return event
	}

	if h.handler(ev) {
		return nil
	}
	return event
}
