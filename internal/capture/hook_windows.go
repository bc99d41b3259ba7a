//go:build windows

package capture

import (
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/pkg/errors"
	"golang.org/x/sys/windows"

	"edgelink/internal/protocol"
)

var (
	user32                  = windows.NewLazySystemDLL("user32.dll")
	procSetWindowsHookEx    = user32.NewProc("SetWindowsHookExW")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procGetMessage          = user32.NewProc("GetMessageW")
	procPostThreadMessage   = user32.NewProc("PostThreadMessageW")
	procGetAsyncKeyState    = user32.NewProc("GetAsyncKeyState")
	kernel32                = windows.NewLazySystemDLL("kernel32.dll")
	procGetModuleHandle     = kernel32.NewProc("GetModuleHandleW")
)

const (
	whKeyboardLL = 13
	whMouseLL    = 14

	wmQuit        = 0x0012
	wmApp         = 0x8000
	wmRearm       = wmApp + 1
	wmKeyDown     = 0x0100
	wmKeyUp       = 0x0101
	wmSysKeyDown  = 0x0104
	wmSysKeyUp    = 0x0105
	wmMouseMove   = 0x0200
	wmLButtonDown = 0x0201
	wmLButtonUp   = 0x0202
	wmRButtonDown = 0x0204
	wmRButtonUp   = 0x0205
	wmMouseWheel  = 0x020A
	wmMouseHWheel = 0x020E

	wheelDelta = 120

	rearmInterval = 5 * time.Second

	vkShift   = 0x10
	vkControl = 0x11
	vkMenu    = 0x12
	vkLWin    = 0x5B
	vkRWin    = 0x5C
	vkCapital = 0x14
)

type kbdllHookStruct struct {
	VkCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type msllHookStruct struct {
	Pt          struct{ X, Y int32 }
	MouseData   uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

type winMsg struct {
	Hwnd    syscall.Handle
	Message uint32
	Wparam  uintptr
	Lparam  uintptr
	Time    uint32
	Pt      struct{ X, Y int32 }
}

// Low-level hook procedures carry no user data, so the installed hook is
// reachable through this pointer.
var activeHook atomic.Pointer[windowsHook]

var (
	keyboardCallback = syscall.NewCallback(keyboardProc)
	mouseCallback    = syscall.NewCallback(mouseProc)
)

type windowsHook struct {
	mu       sync.Mutex
	handler  func(RawEvent) bool
	threadID uint32
	done     chan struct{}
	kbd      uintptr
	mouse    uintptr
}

// NewSystemHook returns the Windows low-level keyboard and mouse hook.
func NewSystemHook() Hook {
	return &windowsHook{}
}

func (h *windowsHook) Install(handler func(RawEvent) bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done != nil {
		return errors.New("hook already installed")
	}

	h.handler = handler
	activeHook.Store(h)

	ready := make(chan error, 1)
	done := make(chan struct{})
	go h.loop(ready, done)
	if err := <-ready; err != nil {
		activeHook.CompareAndSwap(h, nil)
		return err
	}
	h.done = done

	threadID := h.threadID
	go rearmEvery(rearmInterval, done, func() {
		procPostThreadMessage.Call(uintptr(threadID), wmRearm, 0, 0)
	})
	return nil
}

// Reenable re-registers both hooks. Install also does this every
// rearmInterval, since Windows never reports a removed low-level hook.
func (h *windowsHook) Reenable() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == nil {
		return nil
	}
	r, _, err := procPostThreadMessage.Call(uintptr(h.threadID), wmRearm, 0, 0)
	if r == 0 {
		return errors.Wrap(err, "PostThreadMessageW")
	}
	return nil
}

func (h *windowsHook) Uninstall() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done == nil {
		return nil
	}
	procPostThreadMessage.Call(uintptr(h.threadID), wmQuit, 0, 0)
	<-h.done
	h.done = nil
	activeHook.CompareAndSwap(h, nil)
	return nil
}

// loop owns the hooks. They must be registered on the thread that pumps
// messages.
func (h *windowsHook) loop(ready chan<- error, done chan<- struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(done)

	h.threadID = windows.GetCurrentThreadId()
	if err := h.register(); err != nil {
		ready <- err
		return
	}
	ready <- nil

	var msg winMsg
	for {
		ret, _, _ := procGetMessage.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		if int32(ret) <= 0 {
			break
		}
		if msg.Message == wmRearm {
			h.unregister()
			if err := h.register(); err != nil {
				return
			}
		}
	}
	h.unregister()
}

func (h *windowsHook) register() error {
	hMod, _, _ := procGetModuleHandle.Call(0)

	kbd, _, err := procSetWindowsHookEx.Call(whKeyboardLL, keyboardCallback, hMod, 0)
	if kbd == 0 {
		return errors.Wrap(err, "SetWindowsHookExW keyboard")
	}
	mouse, _, err := procSetWindowsHookEx.Call(whMouseLL, mouseCallback, hMod, 0)
	if mouse == 0 {
		procUnhookWindowsHookEx.Call(kbd)
		return errors.Wrap(err, "SetWindowsHookExW mouse")
	}
	h.kbd, h.mouse = kbd, mouse
	return nil
}

func (h *windowsHook) unregister() {
	if h.kbd != 0 {
		procUnhookWindowsHookEx.Call(h.kbd)
		h.kbd = 0
	}
	if h.mouse != 0 {
		procUnhookWindowsHookEx.Call(h.mouse)
		h.mouse = 0
	}
}

func keyDown(vk uintptr) bool {
	r, _, _ := procGetAsyncKeyState.Call(vk)
	return r&0x8000 != 0
}

func currentMods() uint64 {
	var mods uint64
	if keyDown(vkShift) {
		mods |= protocol.ModShift
	}
	if keyDown(vkControl) {
		mods |= protocol.ModControl
	}
	if keyDown(vkMenu) {
		mods |= protocol.ModAlt
	}
	if keyDown(vkLWin) || keyDown(vkRWin) {
		mods |= protocol.ModCommand
	}
	r, _, _ := procGetAsyncKeyState.Call(vkCapital)
	if r&1 != 0 {
		mods |= protocol.ModCapsLock
	}
	return mods
}

func keyboardProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	h := activeHook.Load()
	if nCode == 0 && h != nil {
		kbd := (*kbdllHookStruct)(unsafe.Pointer(lParam))
		ev := RawEvent{KeyCode: int(kbd.VkCode), Mods: currentMods()}
		switch wParam {
		case wmKeyDown, wmSysKeyDown:
			ev.Kind = RawKeyDown
		case wmKeyUp, wmSysKeyUp:
			ev.Kind = RawKeyUp
		default:
			return callNext(nCode, wParam, lParam)
		}
		if h.handler(ev) {
			return 1
		}
	}
	return callNext(nCode, wParam, lParam)
}

func mouseProc(nCode int, wParam uintptr, lParam uintptr) uintptr {
	h := activeHook.Load()
	if nCode == 0 && h != nil {
		ms := (*msllHookStruct)(unsafe.Pointer(lParam))
		ev := RawEvent{X: float64(ms.Pt.X), Y: float64(ms.Pt.Y)}
		switch wParam {
		case wmMouseMove:
			ev.Kind = RawMove
		case wmLButtonDown:
			ev.Kind, ev.Button = RawButtonDown, protocol.ButtonLeft
		case wmLButtonUp:
			ev.Kind, ev.Button = RawButtonUp, protocol.ButtonLeft
		case wmRButtonDown:
			ev.Kind, ev.Button = RawButtonDown, protocol.ButtonRight
		case wmRButtonUp:
			ev.Kind, ev.Button = RawButtonUp, protocol.ButtonRight
		case wmMouseWheel:
			ev.Kind = RawScroll
			ev.ScrollDY = float64(int16(ms.MouseData>>16)) / wheelDelta
		case wmMouseHWheel:
			ev.Kind = RawScroll
			ev.ScrollDX = float64(int16(ms.MouseData>>16)) / wheelDelta
		default:
			return callNext(nCode, wParam, lParam)
		}
		if h.handler(ev) {
			return 1
		}
	}
	return callNext(nCode, wParam, lParam)
}

func callNext(nCode int, wParam, lParam uintptr) uintptr {
	ret, _, _ := procCallNextHookEx.Call(0, uintptr(nCode), wParam, lParam)
	return ret
}
