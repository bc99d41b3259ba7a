//go:build darwin

package inject

/*
#cgo LDFLAGS: -framework CoreGraphics -framework CoreFoundation -framework ApplicationServices

#include <CoreGraphics/CoreGraphics.h>
#include <CoreFoundation/CoreFoundation.h>
#include <ApplicationServices/ApplicationServices.h>

static int hasAccessibility(void) {
    return AXIsProcessTrusted() ? 1 : 0;
}

static void postMouse(CGEventType type, double x, double y, CGMouseButton button) {
    CGEventRef event = CGEventCreateMouseEvent(NULL, type, CGPointMake(x, y), button);
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
}

static void postKey(CGKeyCode code, bool down, uint64_t flags) {
    CGEventRef event = CGEventCreateKeyboardEvent(NULL, code, down);
    CGEventSetFlags(event, (CGEventFlags)flags);
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
}

// CGEventCreateScrollWheelEvent is variadic and cannot be called from Go.
static void postScroll(int32_t dy, int32_t dx) {
    CGEventRef event = CGEventCreateScrollWheelEvent(NULL, kCGScrollEventUnitLine, 2, dy, dx);
    CGEventPost(kCGSessionEventTap, event);
    CFRelease(event);
}
*/
import "C"

import (
	"math"
	"sync"

	"github.com/pkg/errors"

	"edgelink/internal/display"
	"edgelink/internal/keymap"
	"edgelink/internal/protocol"
)

type quartzDevice struct {
	mu        sync.Mutex
	translate keymap.Translator
	scale     float64

	pos  display.Point
	held map[protocol.Button]bool

	scrollX, scrollY float64
}

// OpenDevice returns the Quartz event back-end. Posting events requires the
// accessibility permission.
func OpenDevice(cfg DeviceConfig) (Device, error) {
	if C.hasAccessibility() == 0 {
		return nil, errors.New("accessibility permission is required to inject input")
	}
	scale := cfg.ScrollScale
	if scale == 0 {
		scale = 1
	}
	return &quartzDevice{
		translate: keymap.New(cfg.KeyCodes, keymap.Mac),
		scale:     scale,
		pos:       cfg.Bounds.Min,
		held:      make(map[protocol.Button]bool),
	}, nil
}

// MoveTo posts a drag instead of a plain move while a button is held so
// that drag-and-drop works on this side.
func (d *quartzDevice) MoveTo(p display.Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pos = p

	typ, button := C.CGEventType(C.kCGEventMouseMoved), C.CGMouseButton(C.kCGMouseButtonLeft)
	switch {
	case d.held[protocol.ButtonLeft]:
		typ = C.kCGEventLeftMouseDragged
	case d.held[protocol.ButtonRight]:
		typ, button = C.kCGEventRightMouseDragged, C.kCGMouseButtonRight
	}
	C.postMouse(typ, C.double(p.X), C.double(p.Y), button)
	return nil
}

func (d *quartzDevice) Button(b protocol.Button, down bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var typ C.CGEventType
	button := C.CGMouseButton(C.kCGMouseButtonLeft)
	switch {
	case b == protocol.ButtonRight && down:
		typ, button = C.kCGEventRightMouseDown, C.kCGMouseButtonRight
	case b == protocol.ButtonRight:
		typ, button = C.kCGEventRightMouseUp, C.kCGMouseButtonRight
	case down:
		typ = C.kCGEventLeftMouseDown
	default:
		typ = C.kCGEventLeftMouseUp
	}
	if down {
		d.held[b] = true
	} else {
		delete(d.held, b)
	}
	C.postMouse(typ, C.double(d.pos.X), C.double(d.pos.Y), button)
	return nil
}

// Key posts the translated key with the sender's modifier flags, which
// share the CGEventFlags layout.
func (d *quartzDevice) Key(code int, mods uint64, down bool) error {
	mac, ok := d.translate(code)
	if !ok || mac < 0 || mac > math.MaxUint16 {
		return errors.Errorf("no mac key for code %d", code)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	C.postKey(C.CGKeyCode(mac), C.bool(down), C.uint64_t(mods))
	return nil
}

func (d *quartzDevice) Scroll(dx, dy float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.scrollX += dx * d.scale
	d.scrollY += dy * d.scale
	wx, wy := math.Trunc(d.scrollX), math.Trunc(d.scrollY)
	d.scrollX -= wx
	d.scrollY -= wy
	if wx == 0 && wy == 0 {
		return nil
	}
	C.postScroll(C.int32_t(wy), C.int32_t(wx))
	return nil
}

func (d *quartzDevice) Close() error { return nil }
