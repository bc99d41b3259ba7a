//go:build !darwin && !windows

package hotkey

// keyCodes maps key names to Linux evdev key codes.
var keyCodes = map[string]int{
	"ESC": 1, "SPACE": 57, "ENTER": 28, "TAB": 15, "BACKSPACE": 14, "DELETE": 111,
	"LEFT": 105, "RIGHT": 106, "UP": 103, "DOWN": 108,
	"HOME": 102, "END": 107, "PAGEUP": 104, "PAGEDOWN": 109,

	"Q": 16, "W": 17, "E": 18, "R": 19, "T": 20, "Y": 21, "U": 22, "I": 23, "O": 24, "P": 25,
	"A": 30, "S": 31, "D": 32, "F": 33, "G": 34, "H": 35, "J": 36, "K": 37, "L": 38,
	"Z": 44, "X": 45, "C": 46, "V": 47, "B": 48, "N": 49, "M": 50,

	"1": 2, "2": 3, "3": 4, "4": 5, "5": 6, "6": 7, "7": 8, "8": 9, "9": 10, "0": 11,

	"F1": 59, "F2": 60, "F3": 61, "F4": 62, "F5": 63, "F6": 64,
	"F7": 65, "F8": 66, "F9": 67, "F10": 68, "F11": 87, "F12": 88,
}
