// Package hotkey parses key combinations such as "Ctrl+Alt+Esc" and matches
// them against captured key events.
package hotkey

import (
	"strings"

	"github.com/pkg/errors"

	"edgelink/internal/protocol"
)

// relevantMods are the modifier bits that take part in matching. Lock keys
// are ignored.
const relevantMods = protocol.ModShift | protocol.ModControl | protocol.ModAlt | protocol.ModCommand

var modifierNames = map[string]uint64{
	"CTRL":    protocol.ModControl,
	"CONTROL": protocol.ModControl,
	"ALT":     protocol.ModAlt,
	"OPTION":  protocol.ModAlt,
	"SHIFT":   protocol.ModShift,
	"CMD":     protocol.ModCommand,
	"WIN":     protocol.ModCommand,
	"SUPER":   protocol.ModCommand,
}

var aliases = map[string]string{
	"ESCAPE": "ESC",
	"RETURN": "ENTER",
}

// Combo is a single non-modifier key plus a set of required modifiers.
type Combo struct {
	Key  string
	Code int
	Mods uint64

	original string
}

// Parse parses a hotkey string (e.g. "Esc", "Ctrl+Alt+Esc"). Names are case
// insensitive and the key must exist on the current platform.
func Parse(s string) (Combo, error) {
	if strings.TrimSpace(s) == "" {
		return Combo{}, errors.New("empty hotkey")
	}

	c := Combo{original: s}
	for _, part := range strings.Split(strings.ToUpper(s), "+") {
		part = strings.TrimSpace(part)
		if alias, ok := aliases[part]; ok {
			part = alias
		}
		if mod, ok := modifierNames[part]; ok {
			c.Mods |= mod
			continue
		}
		if c.Key != "" {
			return Combo{}, errors.Errorf("hotkey %q has more than one key", s)
		}
		code, ok := KeyCode(part)
		if !ok {
			return Combo{}, errors.Errorf("hotkey %q: unknown key %q", s, part)
		}
		c.Key, c.Code = part, code
	}
	if c.Key == "" {
		return Combo{}, errors.Errorf("hotkey %q has no key", s)
	}
	return c, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) Combo {
	c, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Matches reports whether a key-down with the given code and modifier mask
// triggers the combo. A bare key matches whatever modifiers are held; a
// combo with modifiers needs exactly those.
func (c Combo) Matches(code int, mods uint64) bool {
	if c.Key == "" || code != c.Code {
		return false
	}
	return c.Mods == 0 || mods&relevantMods == c.Mods
}

func (c Combo) String() string {
	return c.original
}

// KeyCode returns the platform key code for a key name.
func KeyCode(name string) (int, bool) {
	code, ok := keyCodes[strings.ToUpper(name)]
	return code, ok
}
