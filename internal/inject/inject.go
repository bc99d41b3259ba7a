// Package inject replays received events into the local input subsystem.
package inject

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"edgelink/internal/display"
	"edgelink/internal/keymap"
	"edgelink/internal/logging"
	"edgelink/internal/protocol"
)

// ErrUnsupported is returned by OpenDevice on platforms without input synthesis.
var ErrUnsupported = errors.New("input injection is not supported on this platform")

// Device is a platform input-synthesis back-end. Positions are in local
// screen units.
type Device interface {
	MoveTo(p display.Point) error
	Button(b protocol.Button, down bool) error
	Key(code int, mods uint64, down bool) error
	Scroll(dx, dy float64) error
	Close() error
}

// DeviceConfig configures a platform Device.
type DeviceConfig struct {
	// KeyCodes is the code space the sender uses.
	KeyCodes keymap.Space
	// ScrollScale multiplies scroll deltas before they are replayed.
	ScrollScale float64
	// Bounds is the combined local display geometry.
	Bounds display.Rect
}

// Injector denormalizes events and forwards them to a Device. It remembers
// which keys and buttons it pressed so they can be released together.
type Injector struct {
	dev    Device
	bounds display.BoundsFunc
	log    logrus.FieldLogger

	mu      sync.Mutex
	keys    map[int]uint64
	buttons map[protocol.Button]bool
}

// New creates a new Injector.
func New(dev Device, bounds display.BoundsFunc) *Injector {
	return &Injector{
		dev:     dev,
		bounds:  bounds,
		log:     logging.MustGetLogger("inject"),
		keys:    make(map[int]uint64),
		buttons: make(map[protocol.Button]bool),
	}
}

// Inject replays e. Failures are logged and otherwise ignored.
func (i *Injector) Inject(e protocol.Event) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var err error
	switch e.Kind {
	case protocol.KindPointerMove:
		var b display.Rect
		if b, err = i.bounds(); err == nil {
			err = i.dev.MoveTo(b.Denormalize(display.Point{X: e.X, Y: e.Y}))
		}
	case protocol.KindButtonDown, protocol.KindButtonUp:
		down := e.Kind == protocol.KindButtonDown
		if err = i.dev.Button(e.Button, down); err == nil {
			if down {
				i.buttons[e.Button] = true
			} else {
				delete(i.buttons, e.Button)
			}
		}
	case protocol.KindKeyDown, protocol.KindKeyUp:
		down := e.Kind == protocol.KindKeyDown
		if err = i.dev.Key(e.KeyCode, e.ModifierMask, down); err == nil {
			if down {
				i.keys[e.KeyCode] = e.ModifierMask
			} else {
				delete(i.keys, e.KeyCode)
			}
		}
	case protocol.KindScroll:
		err = i.dev.Scroll(e.ScrollDX, e.ScrollDY)
	case protocol.KindControlReturn:
		i.log.Debug("Ignoring control-return marker")
	default:
		i.log.Warnf("Ignoring event of unknown kind %q", e.Kind)
	}
	if err != nil {
		i.log.WithError(err).WithField("kind", e.Kind).Warn("Failed to inject event")
	}
}

// ReleaseAll lifts every key and button still held down.
func (i *Injector) ReleaseAll() {
	i.mu.Lock()
	defer i.mu.Unlock()

	for code := range i.keys {
		if err := i.dev.Key(code, 0, false); err != nil {
			i.log.WithError(err).Warnf("Failed to release key %d", code)
		}
		delete(i.keys, code)
	}
	for b := range i.buttons {
		if err := i.dev.Button(b, false); err != nil {
			i.log.WithError(err).Warnf("Failed to release %s button", b)
		}
		delete(i.buttons, b)
	}
}

// Held returns how many keys and buttons are currently pressed.
func (i *Injector) Held() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.keys) + len(i.buttons)
}

// Close releases everything and closes the device.
func (i *Injector) Close() error {
	i.ReleaseAll()
	return i.dev.Close()
}
