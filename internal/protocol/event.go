// Package protocol defines the input event model exchanged between peers
// and its length-prefixed wire framing.
//
// Coordinates are normalized to [0,1] against the sender's combined display
// geometry with the origin at the top-left corner; y grows downward.
package protocol

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"
)

// Kind identifies what an Event describes.
type Kind string

const (
	KindPointerMove   Kind = "pointer_move"
	KindButtonDown    Kind = "button_down"
	KindButtonUp      Kind = "button_up"
	KindKeyDown       Kind = "key_down"
	KindKeyUp         Kind = "key_up"
	KindScroll        Kind = "scroll"
	KindControlReturn Kind = "control_return"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindPointerMove, KindButtonDown, KindButtonUp, KindKeyDown, KindKeyUp, KindScroll, KindControlReturn:
		return true
	}
	return false
}

// Button is a pointer button carried by button events.
type Button string

const (
	ButtonLeft  Button = "left"
	ButtonRight Button = "right"
)

// Modifier bits of Event.ModifierMask. The layout matches Quartz CGEventFlags.
const (
	ModCapsLock uint64 = 1 << 16
	ModShift    uint64 = 1 << 17
	ModControl  uint64 = 1 << 18
	ModAlt      uint64 = 1 << 19
	ModCommand  uint64 = 1 << 20
)

// ErrMalformedEvent is returned when an event violates the field rules of its kind.
var ErrMalformedEvent = errors.New("malformed event")

// Event is one discrete input occurrence. Only the fields relevant to Kind
// carry a value; all others are zero. Events are plain values and compare
// with ==.
type Event struct {
	Kind         Kind
	X, Y         float64
	Button       Button
	KeyCode      int
	ModifierMask uint64
	ScrollDX     float64
	ScrollDY     float64
}

// PointerMove creates a pointer-move event.
func PointerMove(x, y float64) Event {
	return Event{Kind: KindPointerMove, X: x, Y: y}
}

// ButtonEvent creates a button-down or button-up event.
func ButtonEvent(b Button, down bool, x, y float64) Event {
	kind := KindButtonUp
	if down {
		kind = KindButtonDown
	}
	return Event{Kind: kind, X: x, Y: y, Button: b}
}

// KeyEvent creates a key-down or key-up event.
func KeyEvent(code int, mask uint64, down bool, x, y float64) Event {
	kind := KindKeyUp
	if down {
		kind = KindKeyDown
	}
	return Event{Kind: kind, X: x, Y: y, KeyCode: code, ModifierMask: mask}
}

// Scroll creates a scroll event.
func Scroll(dx, dy, x, y float64) Event {
	return Event{Kind: KindScroll, X: x, Y: y, ScrollDX: dx, ScrollDY: dy}
}

// ControlReturn creates the marker that hands control back to the sender.
func ControlReturn(x, y float64) Event {
	return Event{Kind: KindControlReturn, X: x, Y: y}
}

func (e Event) isButton() bool { return e.Kind == KindButtonDown || e.Kind == KindButtonUp }
func (e Event) isKey() bool    { return e.Kind == KindKeyDown || e.Kind == KindKeyUp }

// Validate checks that e is well formed for its kind.
func (e Event) Validate() error {
	if !e.Kind.Valid() {
		return errors.Wrapf(ErrMalformedEvent, "unknown kind %q", e.Kind)
	}
	if !unit(e.X) || !unit(e.Y) {
		return errors.Wrapf(ErrMalformedEvent, "coordinates out of range (%v, %v)", e.X, e.Y)
	}
	if e.isButton() {
		if e.Button != ButtonLeft && e.Button != ButtonRight {
			return errors.Wrapf(ErrMalformedEvent, "bad button %q", e.Button)
		}
	} else if e.Button != "" {
		return errors.Wrapf(ErrMalformedEvent, "button set on %s", e.Kind)
	}
	if !e.isKey() && (e.KeyCode != 0 || e.ModifierMask != 0) {
		return errors.Wrapf(ErrMalformedEvent, "key fields set on %s", e.Kind)
	}
	if e.isKey() && e.KeyCode < 0 {
		return errors.Wrapf(ErrMalformedEvent, "negative key code %d", e.KeyCode)
	}
	if e.Kind == KindScroll {
		if !finite(e.ScrollDX) || !finite(e.ScrollDY) {
			return errors.Wrap(ErrMalformedEvent, "non-finite scroll delta")
		}
	} else if e.ScrollDX != 0 || e.ScrollDY != 0 {
		return errors.Wrapf(ErrMalformedEvent, "scroll fields set on %s", e.Kind)
	}
	return nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
func unit(v float64) bool   { return finite(v) && v >= 0 && v <= 1 }

// wireEvent is the JSON form. Pointer fields let irrelevant fields be
// omitted on encode and detected on decode.
type wireEvent struct {
	Kind         Kind     `json:"kind"`
	X            *float64 `json:"x"`
	Y            *float64 `json:"y"`
	Button       *Button  `json:"button,omitempty"`
	KeyCode      *int     `json:"key_code,omitempty"`
	ModifierMask *uint64  `json:"modifier_mask,omitempty"`
	ScrollDX     *float64 `json:"scroll_dx,omitempty"`
	ScrollDY     *float64 `json:"scroll_dy,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (e Event) MarshalJSON() ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	w := wireEvent{Kind: e.Kind, X: &e.X, Y: &e.Y}
	if e.isButton() {
		w.Button = &e.Button
	}
	if e.isKey() {
		w.KeyCode = &e.KeyCode
		w.ModifierMask = &e.ModifierMask
	}
	if e.Kind == KindScroll {
		w.ScrollDX = &e.ScrollDX
		w.ScrollDY = &e.ScrollDY
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return errors.Wrap(ErrMalformedEvent, err.Error())
	}
	if w.X == nil || w.Y == nil {
		return errors.Wrap(ErrMalformedEvent, "missing coordinates")
	}
	out := Event{Kind: w.Kind, X: *w.X, Y: *w.Y}
	switch {
	case out.isButton():
		if w.Button == nil {
			return errors.Wrap(ErrMalformedEvent, "missing button")
		}
		out.Button = *w.Button
	case w.Button != nil:
		return errors.Wrapf(ErrMalformedEvent, "button set on %s", w.Kind)
	}
	switch {
	case out.isKey():
		if w.KeyCode == nil {
			return errors.Wrap(ErrMalformedEvent, "missing key code")
		}
		out.KeyCode = *w.KeyCode
		if w.ModifierMask != nil {
			out.ModifierMask = *w.ModifierMask
		}
	case w.KeyCode != nil || w.ModifierMask != nil:
		return errors.Wrapf(ErrMalformedEvent, "key fields set on %s", w.Kind)
	}
	switch {
	case out.Kind == KindScroll:
		if w.ScrollDX != nil {
			out.ScrollDX = *w.ScrollDX
		}
		if w.ScrollDY != nil {
			out.ScrollDY = *w.ScrollDY
		}
	case w.ScrollDX != nil || w.ScrollDY != nil:
		return errors.Wrapf(ErrMalformedEvent, "scroll fields set on %s", w.Kind)
	}
	if err := out.Validate(); err != nil {
		return err
	}
	*e = out
	return nil
}
