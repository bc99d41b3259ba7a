// Package keymap translates key codes between the macOS, Linux evdev and
// Windows virtual-key code spaces.
package keymap

import (
	"strings"

	"github.com/pkg/errors"
)

// Space is a key code numbering scheme.
type Space int

const (
	Native Space = iota
	Mac
	Evdev
	VK
)

// ParseSpace converts a config value ("native", "mac", "evdev", "vk").
func ParseSpace(s string) (Space, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "native":
		return Native, nil
	case "mac":
		return Mac, nil
	case "evdev", "linux":
		return Evdev, nil
	case "vk", "windows":
		return VK, nil
	}
	return Native, errors.Errorf("unknown key code space %q", s)
}

// Translator maps a key code from one space to another.
type Translator func(code int) (int, bool)

// Identity passes codes through unchanged.
func Identity(code int) (int, bool) { return code, true }

type entry struct {
	mac, evdev, vk int
}

// table lists keys by macOS kVK code. Modifier and keypad keys keep their
// side and keypad identity.
var table = []entry{
	{0, 30, 'A'}, {11, 48, 'B'}, {8, 46, 'C'}, {2, 32, 'D'}, {14, 18, 'E'},
	{3, 33, 'F'}, {5, 34, 'G'}, {4, 35, 'H'}, {34, 23, 'I'}, {38, 36, 'J'},
	{40, 37, 'K'}, {37, 38, 'L'}, {46, 50, 'M'}, {45, 49, 'N'}, {31, 24, 'O'},
	{35, 25, 'P'}, {12, 16, 'Q'}, {15, 19, 'R'}, {1, 31, 'S'}, {17, 20, 'T'},
	{32, 22, 'U'}, {9, 47, 'V'}, {13, 17, 'W'}, {7, 45, 'X'}, {16, 21, 'Y'},
	{6, 44, 'Z'},

	{29, 11, '0'}, {18, 2, '1'}, {19, 3, '2'}, {20, 4, '3'}, {21, 5, '4'},
	{23, 6, '5'}, {22, 7, '6'}, {26, 8, '7'}, {28, 9, '8'}, {25, 10, '9'},

	{49, 57, 0x20},  // space
	{36, 28, 0x0D},  // return
	{51, 14, 0x08},  // delete (backspace)
	{48, 15, 0x09},  // tab
	{53, 1, 0x1B},   // escape
	{43, 51, 0xBC},  // ,
	{47, 52, 0xBE},  // .
	{44, 53, 0xBF},  // /
	{41, 39, 0xBA},  // ;
	{39, 40, 0xDE},  // '
	{33, 26, 0xDB},  // [
	{30, 27, 0xDD},  // ]
	{42, 43, 0xDC},  // \
	{50, 41, 0xC0},  // `
	{27, 12, 0xBD},  // -
	{24, 13, 0xBB},  // =

	{56, 42, 0xA0},  // left shift
	{60, 54, 0xA1},  // right shift
	{59, 29, 0xA2},  // left control
	{62, 97, 0xA3},  // right control
	{58, 56, 0xA4},  // left option
	{61, 100, 0xA5}, // right option
	{55, 125, 0x5B}, // left command
	{54, 126, 0x5C}, // right command
	{57, 58, 0x14},  // caps lock

	{122, 59, 0x70}, {120, 60, 0x71}, {99, 61, 0x72}, {118, 62, 0x73},
	{96, 63, 0x74}, {97, 64, 0x75}, {98, 65, 0x76}, {100, 66, 0x77},
	{101, 67, 0x78}, {109, 68, 0x79}, {103, 87, 0x7A}, {111, 88, 0x7B},

	{123, 105, 0x25}, // left
	{124, 106, 0x27}, // right
	{125, 108, 0x28}, // down
	{126, 103, 0x26}, // up
	{115, 102, 0x24}, // home
	{119, 107, 0x23}, // end
	{116, 104, 0x21}, // page up
	{121, 109, 0x22}, // page down
	{117, 111, 0x2E}, // forward delete
	{114, 110, 0x2D}, // help / insert

	{71, 69, 0x90}, // clear / num lock
	{82, 82, 0x60}, {83, 79, 0x61}, {84, 80, 0x62}, {85, 81, 0x63}, {86, 75, 0x64},
	{87, 76, 0x65}, {88, 77, 0x66}, {89, 71, 0x67}, {91, 72, 0x68}, {92, 73, 0x69},
	{65, 83, 0x6E}, // keypad .
	{69, 78, 0x6B}, // keypad +
	{78, 74, 0x6D}, // keypad -
	{67, 55, 0x6A}, // keypad *
	{75, 98, 0x6F}, // keypad /
	{76, 96, 0x0D}, // keypad enter
}

func column(s Space) func(entry) int {
	switch s {
	case Mac:
		return func(e entry) int { return e.mac }
	case Evdev:
		return func(e entry) int { return e.evdev }
	case VK:
		return func(e entry) int { return e.vk }
	}
	return nil
}

// New returns a Translator from one space to another. Native on either side,
// or identical spaces, translate to Identity.
func New(from, to Space) Translator {
	if from == Native || to == Native || from == to {
		return Identity
	}
	src, dst := column(from), column(to)
	m := make(map[int]int, len(table))
	for _, e := range table {
		if _, dup := m[src(e)]; !dup {
			m[src(e)] = dst(e)
		}
	}
	return func(code int) (int, bool) {
		v, ok := m[code]
		return v, ok
	}
}
