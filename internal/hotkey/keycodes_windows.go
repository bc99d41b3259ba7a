//go:build windows

package hotkey

import "fmt"

// keyCodes maps key names to Windows virtual-key codes.
var keyCodes = map[string]int{
	"ESC": 0x1B, "SPACE": 0x20, "ENTER": 0x0D, "TAB": 0x09, "BACKSPACE": 0x08, "DELETE": 0x2E,
	"LEFT": 0x25, "UP": 0x26, "RIGHT": 0x27, "DOWN": 0x28,
	"HOME": 0x24, "END": 0x23, "PAGEUP": 0x21, "PAGEDOWN": 0x22,
	"INSERT": 0x2D, "PAUSE": 0x13, "PRINTSCREEN": 0x2C, "SCROLLLOCK": 0x91,
}

func init() {
	for vk := 0x41; vk <= 0x5A; vk++ {
		keyCodes[string(rune(vk))] = vk
	}
	for vk := 0x30; vk <= 0x39; vk++ {
		keyCodes[string(rune(vk))] = vk
	}
	for vk := 0x70; vk <= 0x7B; vk++ {
		keyCodes[fmt.Sprintf("F%d", vk-0x6F)] = vk
	}
}
