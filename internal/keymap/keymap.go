// Package keymap defines the keymap service the keyboard grab and the
// virtual keyboard are built on, and an xkbcommon implementation of it.
package keymap

import (
	"errors"
	"fmt"
)

// WireOffset is the difference between Wayland wire keycodes (evdev) and
// xkb lookup keycodes. According to the xkb_v1 keymap format, clients must
// add 8 to the key event keycode.
const WireOffset = 8

// Keycode is an xkb lookup keycode, i.e. a wire keycode plus WireOffset.
type Keycode uint32

// InvalidKeycode never resolves to a key.
const InvalidKeycode Keycode = 0xffffffff

// FromWire converts a keycode received over the wire to a lookup keycode.
func FromWire(key uint32) Keycode {
	return Keycode(key + WireOffset)
}

// Wire converts a lookup keycode back to the wire representation.
func (c Keycode) Wire() uint32 {
	return uint32(c) - WireOffset
}

// KeyState mirrors wl_keyboard.key_state.
type KeyState uint32

const (
	Released KeyState = 0
	Pressed  KeyState = 1
)

func (s KeyState) String() string {
	switch s {
	case Released:
		return "released"
	case Pressed:
		return "pressed"
	default:
		return fmt.Sprintf("KeyState(%d)", uint32(s))
	}
}

// Format mirrors wl_keyboard.keymap_format.
type Format uint32

const (
	FormatNoKeymap Format = 0
	FormatXKBV1    Format = 1
)

// Keysym is an X keysym value.
type Keysym uint32

// Keysyms the grab classifies as editing controls.
const (
	NoSymbol     Keysym = 0
	KeyBackSpace Keysym = 0xff08
	KeyTab       Keysym = 0xff09
	KeyReturn    Keysym = 0xff0d
	KeyEscape    Keysym = 0xff1b
	KeyLeft      Keysym = 0xff51
	KeyUp        Keysym = 0xff52
	KeyRight     Keysym = 0xff53
	KeyDown      Keysym = 0xff54
	KeyShiftL    Keysym = 0xffe1
	KeyControlL  Keysym = 0xffe3
	KeyAltL      Keysym = 0xffe9
	KeyDelete    Keysym = 0xffff
)

// Modifiers is the serialized modifier state exchanged with the compositor.
type Modifiers struct {
	Depressed uint32
	Latched   uint32
	Locked    uint32
	Group     uint32
}

// Keymap is a compiled keymap together with its modifier state.
//
// Implementations must copy whatever they need out of the buffer they were
// compiled from; the buffer is unmapped right after compilation.
type Keymap interface {
	// KeycodeRange returns the half-open range [min, max) of keycodes
	// tracked for this keymap.
	KeycodeRange() (min, max Keycode)
	SymbolFor(code Keycode) Keysym
	// CharFor returns the printable character the key produces under the
	// current modifier state.
	CharFor(code Keycode) (rune, bool)
	SetModifiers(m Modifiers)
	SerializeModifiers() Modifiers
	// SerializeKeymap returns the keymap in xkb_v1 text form, without a
	// terminating NUL.
	SerializeKeymap() ([]byte, error)
	Equal(other Keymap) bool
	Valid() bool
	Close() error
}

// Compiler builds a Keymap from the bytes of an xkb_v1 keymap.
type Compiler interface {
	Compile(data []byte) (Keymap, error)
}

// CompilerFunc adapts a function to the Compiler interface.
type CompilerFunc func(data []byte) (Keymap, error)

func (f CompilerFunc) Compile(data []byte) (Keymap, error) { return f(data) }

var (
	// ErrUnsupported is returned when no keymap backend is compiled in.
	ErrUnsupported = errors.New("keymap: xkbcommon support not available")
	// ErrEmpty is returned when compiling an empty buffer.
	ErrEmpty = errors.New("keymap: empty keymap")
)

// trimNUL drops the terminating NUL the wire format carries.
func trimNUL(data []byte) []byte {
	for len(data) > 0 && data[len(data)-1] == 0 {
		data = data[:len(data)-1]
	}
	return data
}
