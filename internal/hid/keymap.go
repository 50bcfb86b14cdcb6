// Package hid synthesizes pointer and keyboard input against the remote
// display. All state it reports (pointer position, held buttons) is
// tracked locally from the events it sent; the remote end offers no
// readback, so out-of-band input moves the real state away from the
// tracked one.
package hid

import (
	"strings"

	"github.com/canonical/yarf/internal/fault"
)

// Key is one entry in the character map: the code to send and whether the
// glyph lives on the shifted level of its key.
type Key struct {
	Code  uint32
	Shift bool
}

// Linux input event codes for the keys the engine names. The remote
// endpoint interprets codes in this space.
const (
	codeEsc        = 1
	codeBackspace  = 14
	codeTab        = 15
	codeEnter      = 28
	codeLeftCtrl   = 29
	codeLeftShift  = 42
	codeRightShift = 54
	codeLeftAlt    = 56
	codeSpace      = 57
	codeCapsLock   = 58
	codeRightCtrl  = 97
	codeRightAlt   = 100
	codeHome       = 102
	codeUp         = 103
	codePageUp     = 104
	codeLeft       = 105
	codeRight      = 106
	codeEnd        = 107
	codeDown       = 108
	codePageDown   = 109
	codeInsert     = 110
	codeDelete     = 111
	codeLeftMeta   = 125
)

// characterMap places every typeable rune on a key. Shifted entries share
// the code of their unshifted sibling.
var characterMap = map[rune]Key{
	'a': {Code: 30}, 'b': {Code: 48}, 'c': {Code: 46}, 'd': {Code: 32},
	'e': {Code: 18}, 'f': {Code: 33}, 'g': {Code: 34}, 'h': {Code: 35},
	'i': {Code: 23}, 'j': {Code: 36}, 'k': {Code: 37}, 'l': {Code: 38},
	'm': {Code: 50}, 'n': {Code: 49}, 'o': {Code: 24}, 'p': {Code: 25},
	'q': {Code: 16}, 'r': {Code: 19}, 's': {Code: 31}, 't': {Code: 20},
	'u': {Code: 22}, 'v': {Code: 47}, 'w': {Code: 17}, 'x': {Code: 45},
	'y': {Code: 21}, 'z': {Code: 44},

	'1': {Code: 2}, '2': {Code: 3}, '3': {Code: 4}, '4': {Code: 5},
	'5': {Code: 6}, '6': {Code: 7}, '7': {Code: 8}, '8': {Code: 9},
	'9': {Code: 10}, '0': {Code: 11},

	'!': {Code: 2, Shift: true}, '@': {Code: 3, Shift: true},
	'#': {Code: 4, Shift: true}, '$': {Code: 5, Shift: true},
	'%': {Code: 6, Shift: true}, '^': {Code: 7, Shift: true},
	'&': {Code: 8, Shift: true}, '*': {Code: 9, Shift: true},
	'(': {Code: 10, Shift: true}, ')': {Code: 11, Shift: true},

	'-': {Code: 12}, '_': {Code: 12, Shift: true},
	'=': {Code: 13}, '+': {Code: 13, Shift: true},
	'[': {Code: 26}, '{': {Code: 26, Shift: true},
	']': {Code: 27}, '}': {Code: 27, Shift: true},
	';': {Code: 39}, ':': {Code: 39, Shift: true},
	'\'': {Code: 40}, '"': {Code: 40, Shift: true},
	'`': {Code: 41}, '~': {Code: 41, Shift: true},
	'\\': {Code: 43}, '|': {Code: 43, Shift: true},
	',': {Code: 51}, '<': {Code: 51, Shift: true},
	'.': {Code: 52}, '>': {Code: 52, Shift: true},
	'/': {Code: 53}, '?': {Code: 53, Shift: true},

	' ':  {Code: codeSpace},
	'\t': {Code: codeTab},
	'\n': {Code: codeEnter},
}

// keyNames maps the symbolic key names accepted by combos to codes.
var keyNames = map[string]uint32{
	"ESC":         codeEsc,
	"BACKSPACE":   codeBackspace,
	"TAB":         codeTab,
	"ENTER":       codeEnter,
	"SPACE":       codeSpace,
	"CAPS_LOCK":   codeCapsLock,
	"LEFT_CTRL":   codeLeftCtrl,
	"CTRL":        codeLeftCtrl,
	"RIGHT_CTRL":  codeRightCtrl,
	"LEFT_SHIFT":  codeLeftShift,
	"SHIFT":       codeLeftShift,
	"RIGHT_SHIFT": codeRightShift,
	"LEFT_ALT":    codeLeftAlt,
	"ALT":         codeLeftAlt,
	"RIGHT_ALT":   codeRightAlt,
	"SUPER":       codeLeftMeta,
	"META":        codeLeftMeta,
	"HOME":        codeHome,
	"END":         codeEnd,
	"PAGE_UP":     codePageUp,
	"PAGE_DOWN":   codePageDown,
	"INSERT":      codeInsert,
	"DELETE":      codeDelete,
	"UP":          codeUp,
	"DOWN":        codeDown,
	"LEFT":        codeLeft,
	"RIGHT":       codeRight,

	"F1": 59, "F2": 60, "F3": 61, "F4": 62, "F5": 63, "F6": 64,
	"F7": 65, "F8": 66, "F9": 67, "F10": 68, "F11": 87, "F12": 88,
}

// lookupChar resolves a typeable rune. Uppercase letters resolve to their
// lowercase key with shift.
func lookupChar(r rune) (Key, error) {
	if r >= 'A' && r <= 'Z' {
		key := characterMap[r-'A'+'a']
		key.Shift = true
		return key, nil
	}
	key, ok := characterMap[r]
	if !ok {
		return Key{}, fault.Configf("no key mapping for character %q", r)
	}
	return key, nil
}

// lookupName resolves a symbolic key name like ENTER or LEFT_ALT. A
// single-character name resolves through the character map.
func lookupName(name string) (uint32, error) {
	if code, ok := keyNames[strings.ToUpper(name)]; ok {
		return code, nil
	}
	runes := []rune(name)
	if len(runes) == 1 {
		key, err := lookupChar(runes[0])
		if err != nil {
			return 0, err
		}
		return key.Code, nil
	}
	return 0, fault.Configf("unknown key name %q", name)
}
