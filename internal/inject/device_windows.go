//go:build windows

package inject

import (
	"math"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"edgelink/internal/display"
	"edgelink/internal/keymap"
	"edgelink/internal/protocol"
)

var (
	user32           = windows.NewLazySystemDLL("user32.dll")
	procSendInput    = user32.NewProc("SendInput")
	procSetCursorPos = user32.NewProc("SetCursorPos")
)

const (
	inputMouse    = 0
	inputKeyboard = 1

	mouseeventfLeftDown  = 0x0002
	mouseeventfLeftUp    = 0x0004
	mouseeventfRightDown = 0x0008
	mouseeventfRightUp   = 0x0010
	mouseeventfWheel     = 0x0800
	mouseeventfHWheel    = 0x1000

	keyeventfExtendedKey = 0x0001
	keyeventfKeyUp       = 0x0002

	wheelDelta = 120
)

type mouseInput struct {
	Dx          int32
	Dy          int32
	MouseData   uint32
	DwFlags     uint32
	Time        uint32
	DwExtraInfo uintptr
}

type keybdInput struct {
	WVk         uint16
	WScan       uint16
	DwFlags     uint32
	Time        uint32
	DwExtraInfo uintptr
}

// mouseRecord and keybdRecord are the two INPUT union layouts. The keyboard
// variant is padded to the size of the mouse one.
type mouseRecord struct {
	Type uint32
	Mi   mouseInput
}

type keybdRecord struct {
	Type uint32
	Ki   keybdInput
	_    [unsafe.Sizeof(mouseInput{}) - unsafe.Sizeof(keybdInput{})]byte
}

// extendedKeys need KEYEVENTF_EXTENDEDKEY to be told apart from keypad keys.
var extendedKeys = map[int]bool{
	0x21: true, 0x22: true, 0x23: true, 0x24: true, // page up/down, end, home
	0x25: true, 0x26: true, 0x27: true, 0x28: true, // arrows
	0x2D: true, 0x2E: true, // insert, delete
	0x5B: true, 0x5C: true, // windows keys
	0xA3: true, 0xA5: true, // right control, right alt
	0x6F: true, // keypad /
}

type sendInputDevice struct {
	mu        sync.Mutex
	translate keymap.Translator
	scale     float64
}

// OpenDevice returns the SendInput back-end.
func OpenDevice(cfg DeviceConfig) (Device, error) {
	scale := cfg.ScrollScale
	if scale == 0 {
		scale = 1
	}
	return &sendInputDevice{
		translate: keymap.New(cfg.KeyCodes, keymap.VK),
		scale:     scale,
	}, nil
}

func (d *sendInputDevice) MoveTo(p display.Point) error {
	r, _, err := procSetCursorPos.Call(uintptr(int32(math.Round(p.X))), uintptr(int32(math.Round(p.Y))))
	if r == 0 {
		return errors.Wrap(err, "SetCursorPos")
	}
	return nil
}

func (d *sendInputDevice) Button(b protocol.Button, down bool) error {
	var flags uint32
	switch {
	case b == protocol.ButtonRight && down:
		flags = mouseeventfRightDown
	case b == protocol.ButtonRight:
		flags = mouseeventfRightUp
	case down:
		flags = mouseeventfLeftDown
	default:
		flags = mouseeventfLeftUp
	}
	return d.sendMouse(mouseInput{DwFlags: flags})
}

func (d *sendInputDevice) Key(code int, _ uint64, down bool) error {
	vk, ok := d.translate(code)
	if !ok || vk <= 0 || vk > 0xFE {
		return errors.Errorf("no virtual key for code %d", code)
	}
	var flags uint32
	if !down {
		flags |= keyeventfKeyUp
	}
	if extendedKeys[vk] {
		flags |= keyeventfExtendedKey
	}
	rec := keybdRecord{Type: inputKeyboard, Ki: keybdInput{WVk: uint16(vk), DwFlags: flags}}
	return d.send(unsafe.Pointer(&rec), unsafe.Sizeof(rec))
}

// Scroll converts line deltas to wheel units.
func (d *sendInputDevice) Scroll(dx, dy float64) error {
	if dy != 0 {
		amount := int32(math.Round(dy * d.scale * wheelDelta))
		if err := d.sendMouse(mouseInput{DwFlags: mouseeventfWheel, MouseData: uint32(amount)}); err != nil {
			return err
		}
	}
	if dx != 0 {
		amount := int32(math.Round(dx * d.scale * wheelDelta))
		return d.sendMouse(mouseInput{DwFlags: mouseeventfHWheel, MouseData: uint32(amount)})
	}
	return nil
}

func (d *sendInputDevice) sendMouse(mi mouseInput) error {
	rec := mouseRecord{Type: inputMouse, Mi: mi}
	return d.send(unsafe.Pointer(&rec), unsafe.Sizeof(rec))
}

func (d *sendInputDevice) send(rec unsafe.Pointer, size uintptr) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, _, err := procSendInput.Call(1, uintptr(rec), size)
	if n != 1 {
		return errors.Wrap(err, "SendInput")
	}
	return nil
}

func (d *sendInputDevice) Close() error { return nil }
