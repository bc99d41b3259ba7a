//go:build linux

package inject

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"edgelink/internal/display"
	"edgelink/internal/keymap"
	"edgelink/internal/protocol"
)

const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
	evAbs = 0x03

	synReport = 0

	absX = 0x00
	absY = 0x01

	relHWheel = 0x06
	relWheel  = 0x08

	btnLeft  = 0x110
	btnRight = 0x111

	maxKeyCode = 0xFF

	deviceName = "edgelink virtual input"
)

// uinput ioctl requests from linux/uinput.h.
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvbit   = 0x40045564
	uiSetKeybit  = 0x40045565
	uiSetRelbit  = 0x40045566
	uiSetAbsbit  = 0x40045567
)

// ioctl is replaced in tests.
var ioctl = func(fd int, req uint, value int) error {
	return unix.IoctlSetInt(fd, req, value)
}

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputUserDev struct {
	Name         [80]byte
	ID           inputID
	FFEffectsMax uint32
	Absmax       [64]int32
	Absmin       [64]int32
	Absfuzz      [64]int32
	Absflat      [64]int32
}

type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

// uinputDevice is a virtual absolute pointer plus keyboard.
type uinputDevice struct {
	mu        sync.Mutex
	out       io.Writer
	fd        int
	closer    io.Closer
	origin    display.Point
	translate keymap.Translator
	scale     float64

	scrollX, scrollY float64
}

// OpenDevice creates the uinput virtual device.
func OpenDevice(cfg DeviceConfig) (Device, error) {
	if cfg.Bounds.Empty() {
		return nil, errors.New("display bounds are empty")
	}
	file, err := openUInput()
	if err != nil {
		return nil, err
	}
	d := newUInputDevice(file, int(file.Fd()), file, cfg)
	if err := d.configure(cfg.Bounds); err != nil {
		_ = file.Close()
		return nil, err
	}
	return d, nil
}

func newUInputDevice(out io.Writer, fd int, closer io.Closer, cfg DeviceConfig) *uinputDevice {
	d := &uinputDevice{
		out:       out,
		fd:        fd,
		closer:    closer,
		origin:    cfg.Bounds.Min,
		translate: keymap.New(cfg.KeyCodes, keymap.Evdev),
		scale:     cfg.ScrollScale,
	}
	if d.scale == 0 {
		d.scale = 1
	}
	return d
}

func openUInput() (*os.File, error) {
	var lastErr error
	for _, p := range []string{"/dev/uinput", "/dev/input/uinput"} {
		file, err := os.OpenFile(p, os.O_WRONLY|unix.O_NONBLOCK, 0)
		if err == nil {
			return file, nil
		}
		lastErr = err
	}
	return nil, errors.Wrap(lastErr, "open uinput")
}

func (d *uinputDevice) configure(b display.Rect) error {
	for _, ev := range []int{evKey, evRel, evAbs} {
		if err := ioctl(d.fd, uiSetEvbit, ev); err != nil {
			return errors.Wrapf(err, "UI_SET_EVBIT %d", ev)
		}
	}
	for _, code := range []int{absX, absY} {
		if err := ioctl(d.fd, uiSetAbsbit, code); err != nil {
			return errors.Wrap(err, "UI_SET_ABSBIT")
		}
	}
	for _, code := range []int{relWheel, relHWheel} {
		if err := ioctl(d.fd, uiSetRelbit, code); err != nil {
			return errors.Wrap(err, "UI_SET_RELBIT")
		}
	}
	for code := 1; code <= maxKeyCode; code++ {
		_ = ioctl(d.fd, uiSetKeybit, code)
	}
	for _, code := range []int{btnLeft, btnRight} {
		if err := ioctl(d.fd, uiSetKeybit, code); err != nil {
			return errors.Wrap(err, "UI_SET_KEYBIT")
		}
	}

	if err := writeUserDev(d.out, b); err != nil {
		return err
	}
	if err := ioctl(d.fd, uiDevCreate, 0); err != nil {
		return errors.Wrap(err, "UI_DEV_CREATE")
	}
	return nil
}

// writeUserDev describes the device to the legacy uinput setup interface.
func writeUserDev(w io.Writer, b display.Rect) error {
	var u uinputUserDev
	copy(u.Name[:], deviceName)
	u.ID = inputID{Bustype: unix.BUS_USB, Vendor: 0x1, Product: 0x1, Version: 1}
	u.Absmax[absX] = int32(b.Width()) - 1
	u.Absmax[absY] = int32(b.Height()) - 1
	return errors.Wrap(binary.Write(w, binary.LittleEndian, &u), "write uinput_user_dev")
}

func (d *uinputDevice) MoveTo(p display.Point) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(
		inputEvent{Type: evAbs, Code: absX, Value: int32(math.Round(p.X - d.origin.X))},
		inputEvent{Type: evAbs, Code: absY, Value: int32(math.Round(p.Y - d.origin.Y))},
	)
}

func (d *uinputDevice) Button(b protocol.Button, down bool) error {
	code := uint16(btnLeft)
	if b == protocol.ButtonRight {
		code = btnRight
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(inputEvent{Type: evKey, Code: code, Value: boolValue(down)})
}

// Key replays code after translating it to evdev. Modifier state is carried
// by the modifier keys' own events, so mods is not used here.
func (d *uinputDevice) Key(code int, _ uint64, down bool) error {
	ev, ok := d.translate(code)
	if !ok || ev <= 0 || ev > maxKeyCode {
		return errors.Errorf("no evdev key for code %d", code)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.write(inputEvent{Type: evKey, Code: uint16(ev), Value: boolValue(down)})
}

// Scroll accumulates fractional deltas and emits whole wheel detents.
func (d *uinputDevice) Scroll(dx, dy float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.scrollX += dx * d.scale
	d.scrollY += dy * d.scale
	wx, wy := math.Trunc(d.scrollX), math.Trunc(d.scrollY)
	d.scrollX -= wx
	d.scrollY -= wy

	var evs []inputEvent
	if wy != 0 {
		evs = append(evs, inputEvent{Type: evRel, Code: relWheel, Value: int32(wy)})
	}
	if wx != 0 {
		evs = append(evs, inputEvent{Type: evRel, Code: relHWheel, Value: int32(wx)})
	}
	if len(evs) == 0 {
		return nil
	}
	return d.write(evs...)
}

// write emits the events followed by a sync report.
func (d *uinputDevice) write(evs ...inputEvent) error {
	evs = append(evs, inputEvent{Type: evSyn, Code: synReport})
	for i := range evs {
		if err := binary.Write(d.out, binary.LittleEndian, &evs[i]); err != nil {
			return errors.Wrap(err, "write input_event")
		}
	}
	return nil
}

func (d *uinputDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closer == nil {
		return nil
	}
	_ = ioctl(d.fd, uiDevDestroy, 0)
	err := d.closer.Close()
	d.closer = nil
	return err
}

func boolValue(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
