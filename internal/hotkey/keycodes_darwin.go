//go:build darwin

package hotkey

// keyCodes maps key names to macOS virtual key codes (kVK_*).
var keyCodes = map[string]int{
	"ESC": 53, "SPACE": 49, "ENTER": 36, "TAB": 48, "BACKSPACE": 51, "DELETE": 117,
	"LEFT": 123, "RIGHT": 124, "DOWN": 125, "UP": 126,
	"HOME": 115, "END": 119, "PAGEUP": 116, "PAGEDOWN": 121,

	"A": 0, "B": 11, "C": 8, "D": 2, "E": 14, "F": 3, "G": 5, "H": 4, "I": 34,
	"J": 38, "K": 40, "L": 37, "M": 46, "N": 45, "O": 31, "P": 35, "Q": 12,
	"R": 15, "S": 1, "T": 17, "U": 32, "V": 9, "W": 13, "X": 7, "Y": 16, "Z": 6,

	"0": 29, "1": 18, "2": 19, "3": 20, "4": 21, "5": 23, "6": 22, "7": 26, "8": 28, "9": 25,

	"F1": 122, "F2": 120, "F3": 99, "F4": 118, "F5": 96, "F6": 97,
	"F7": 98, "F8": 100, "F9": 101, "F10": 109, "F11": 103, "F12": 111,
}
