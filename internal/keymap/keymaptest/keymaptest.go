// Package keymaptest provides an in-memory keymap with a US layout for tests
// that need a keymap.Keymap without libxkbcommon.
package keymaptest

import (
	"bytes"
	"errors"
	"unicode"

	"wlime/internal/keymap"
)

// Lookup keycodes of the US layout (evdev + 8).
const (
	CodeEscape    keymap.Keycode = 9
	Code1         keymap.Keycode = 10
	CodeBackSpace keymap.Keycode = 22
	CodeTab       keymap.Keycode = 23
	CodeQ         keymap.Keycode = 24
	CodeReturn    keymap.Keycode = 36
	CodeControlL  keymap.Keycode = 37
	CodeA         keymap.Keycode = 38
	CodeShiftL    keymap.Keycode = 50
	CodeZ         keymap.Keycode = 52
	CodeAltL      keymap.Keycode = 64
	CodeSpace     keymap.Keycode = 65
	CodeF1        keymap.Keycode = 67
	CodeUp        keymap.Keycode = 111
	CodeLeft      keymap.Keycode = 113
	CodeRight     keymap.Keycode = 114
	CodeDown      keymap.Keycode = 116
	CodeDelete    keymap.Keycode = 119
)

const keysymF1 keymap.Keysym = 0xffbe

var usRows = []struct {
	first keymap.Keycode
	chars string
}{
	{10, "1234567890"},
	{24, "qwertyuiop"},
	{38, "asdfghjkl"},
	{52, "zxcvbnm"},
}

// Keymap is a table-driven keymap.Keymap. Shift (bit 0 of the depressed
// mask) upper-cases letters.
type Keymap struct {
	Text     []byte
	Min, Max keymap.Keycode

	syms   map[keymap.Keycode]keymap.Keysym
	mods   keymap.Modifiers
	closed bool

	// SetModifiersCalls counts SetModifiers invocations.
	SetModifiersCalls int
}

// New returns a US keymap covering [8, 256). Keymaps built with the same
// name compare equal.
func New(name string) *Keymap {
	return NewRange(name, 8, 256)
}

// NewRange returns a US keymap tracking keycodes in [min, max).
func NewRange(name string, min, max keymap.Keycode) *Keymap {
	km := &Keymap{
		Text: []byte("xkb_keymap { /* " + name + " */ };"),
		Min:  min,
		Max:  max,
		syms: map[keymap.Keycode]keymap.Keysym{
			CodeEscape:    keymap.KeyEscape,
			CodeBackSpace: keymap.KeyBackSpace,
			CodeTab:       keymap.KeyTab,
			CodeReturn:    keymap.KeyReturn,
			CodeControlL:  keymap.KeyControlL,
			CodeShiftL:    keymap.KeyShiftL,
			CodeAltL:      keymap.KeyAltL,
			CodeSpace:     ' ',
			CodeF1:        keysymF1,
			CodeUp:        keymap.KeyUp,
			CodeLeft:      keymap.KeyLeft,
			CodeRight:     keymap.KeyRight,
			CodeDown:      keymap.KeyDown,
			CodeDelete:    keymap.KeyDelete,
		},
	}
	for _, row := range usRows {
		for i, c := range row.chars {
			km.syms[row.first+keymap.Keycode(i)] = keymap.Keysym(c)
		}
	}
	return km
}

func (k *Keymap) KeycodeRange() (keymap.Keycode, keymap.Keycode) { return k.Min, k.Max }

func (k *Keymap) SymbolFor(code keymap.Keycode) keymap.Keysym {
	if k.closed {
		return keymap.NoSymbol
	}
	sym := k.syms[code]
	if k.mods.Depressed&1 != 0 && sym >= 'a' && sym <= 'z' {
		sym -= 'a' - 'A'
	}
	return sym
}

func (k *Keymap) CharFor(code keymap.Keycode) (rune, bool) {
	sym := k.SymbolFor(code)
	if sym == keymap.NoSymbol || sym > 0x7e {
		return 0, false
	}
	r := rune(sym)
	return r, unicode.IsPrint(r)
}

func (k *Keymap) SetModifiers(m keymap.Modifiers) {
	k.SetModifiersCalls++
	k.mods = m
}

func (k *Keymap) SerializeModifiers() keymap.Modifiers { return k.mods }

func (k *Keymap) SerializeKeymap() ([]byte, error) {
	if !k.Valid() {
		return nil, keymap.ErrEmpty
	}
	return bytes.Clone(k.Text), nil
}

func (k *Keymap) Equal(other keymap.Keymap) bool {
	o, ok := other.(*Keymap)
	return ok && o != nil && bytes.Equal(k.Text, o.Text)
}

func (k *Keymap) Valid() bool { return k != nil && !k.closed && len(k.Text) > 0 }

func (k *Keymap) Close() error {
	k.closed = true
	return nil
}

// Closed reports whether Close was called.
func (k *Keymap) Closed() bool { return k.closed }

// ErrCompile is returned by a Compiler configured to fail.
var ErrCompile = errors.New("keymaptest: compile failed")

// Compiler compiles any non-empty buffer into a US Keymap whose text is the
// buffer contents.
type Compiler struct {
	Min, Max keymap.Keycode
	Fail     bool

	// Compiled holds every keymap produced, in order.
	Compiled []*Keymap
}

func (c *Compiler) Compile(data []byte) (keymap.Keymap, error) {
	if c.Fail {
		return nil, ErrCompile
	}
	data = bytes.TrimRight(data, "\x00")
	if len(data) == 0 {
		return nil, keymap.ErrEmpty
	}
	min, max := c.Min, c.Max
	if max == 0 {
		min, max = 8, 256
	}
	km := NewRange("", min, max)
	km.Text = bytes.Clone(data)
	c.Compiled = append(c.Compiled, km)
	return km, nil
}

// Last returns the most recently compiled keymap, or nil.
func (c *Compiler) Last() *Keymap {
	if len(c.Compiled) == 0 {
		return nil
	}
	return c.Compiled[len(c.Compiled)-1]
}
