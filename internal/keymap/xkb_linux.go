//go:build linux && cgo

package keymap

import (
	"bytes"
	"errors"
	"sync"
	"unicode"
	"unsafe"
)

/*
#cgo LDFLAGS: -lxkbcommon

#include <stdlib.h>
#include <string.h>
#include <xkbcommon/xkbcommon.h>
*/
import "C"

// XKBCompiler compiles keymaps with libxkbcommon. All keymaps it produces
// share one xkb context.
type XKBCompiler struct {
	mu  sync.Mutex
	ctx *C.struct_xkb_context
}

// NewXKBCompiler creates a compiler with a fresh xkb context.
func NewXKBCompiler() (*XKBCompiler, error) {
	ctx := C.xkb_context_new(C.XKB_CONTEXT_NO_FLAGS)
	if ctx == nil {
		return nil, errors.New("keymap: xkb_context_new failed")
	}
	return &XKBCompiler{ctx: ctx}, nil
}

// Compile implements Compiler.
func (c *XKBCompiler) Compile(data []byte) (Keymap, error) {
	data = trimNUL(data)
	if len(data) == 0 {
		return nil, ErrEmpty
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return nil, errors.New("keymap: compiler closed")
	}

	km := C.xkb_keymap_new_from_buffer(c.ctx, (*C.char)(unsafe.Pointer(&data[0])), C.size_t(len(data)),
		C.XKB_KEYMAP_FORMAT_TEXT_V1, C.XKB_KEYMAP_COMPILE_NO_FLAGS)
	if km == nil {
		return nil, errors.New("keymap: xkb_keymap_new_from_buffer failed")
	}
	state := C.xkb_state_new(km)
	if state == nil {
		C.xkb_keymap_unref(km)
		return nil, errors.New("keymap: xkb_state_new failed")
	}

	x := &XKB{keyMap: km, state: state}
	text, err := x.serialize()
	if err != nil {
		x.Close()
		return nil, err
	}
	x.text = text
	return x, nil
}

// Close releases the shared context. Keymaps already compiled stay usable.
func (c *XKBCompiler) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx != nil {
		C.xkb_context_unref(c.ctx)
		c.ctx = nil
	}
	return nil
}

// XKB is a Keymap backed by an xkb_keymap and its xkb_state.
type XKB struct {
	keyMap *C.struct_xkb_keymap
	state  *C.struct_xkb_state
	text   []byte
}

func (x *XKB) Valid() bool {
	return x != nil && x.keyMap != nil && x.state != nil
}

// KeycodeRange returns [min, max+1) since xkb reports an inclusive maximum.
func (x *XKB) KeycodeRange() (Keycode, Keycode) {
	if !x.Valid() {
		return 0, 0
	}
	return Keycode(C.xkb_keymap_min_keycode(x.keyMap)), Keycode(C.xkb_keymap_max_keycode(x.keyMap)) + 1
}

func (x *XKB) SymbolFor(code Keycode) Keysym {
	if !x.Valid() || code == InvalidKeycode {
		return NoSymbol
	}
	return Keysym(C.xkb_state_key_get_one_sym(x.state, C.xkb_keycode_t(code)))
}

// CharFor reports only printable characters.
func (x *XKB) CharFor(code Keycode) (rune, bool) {
	if !x.Valid() || code == InvalidKeycode {
		return 0, false
	}
	r := rune(C.xkb_state_key_get_utf32(x.state, C.xkb_keycode_t(code)))
	if r == 0 || !unicode.IsPrint(r) {
		return 0, false
	}
	return r, true
}

// SetModifiers applies a wire modifier update. The group is used for the
// depressed, latched and locked layout alike.
func (x *XKB) SetModifiers(m Modifiers) {
	if !x.Valid() {
		return
	}
	group := C.xkb_layout_index_t(m.Group)
	C.xkb_state_update_mask(x.state,
		C.xkb_mod_mask_t(m.Depressed), C.xkb_mod_mask_t(m.Latched), C.xkb_mod_mask_t(m.Locked),
		group, group, group)
}

func (x *XKB) SerializeModifiers() Modifiers {
	if !x.Valid() {
		return Modifiers{}
	}
	return Modifiers{
		Depressed: uint32(C.xkb_state_serialize_mods(x.state, C.XKB_STATE_MODS_DEPRESSED)),
		Latched:   uint32(C.xkb_state_serialize_mods(x.state, C.XKB_STATE_MODS_LATCHED)),
		Locked:    uint32(C.xkb_state_serialize_mods(x.state, C.XKB_STATE_MODS_LOCKED)),
		Group:     uint32(C.xkb_state_serialize_layout(x.state, C.XKB_STATE_LAYOUT_DEPRESSED)),
	}
}

func (x *XKB) SerializeKeymap() ([]byte, error) {
	if !x.Valid() {
		return nil, ErrEmpty
	}
	return bytes.Clone(x.text), nil
}

func (x *XKB) serialize() ([]byte, error) {
	s := C.xkb_keymap_get_as_string(x.keyMap, C.XKB_KEYMAP_FORMAT_TEXT_V1)
	if s == nil {
		return nil, errors.New("keymap: xkb_keymap_get_as_string failed")
	}
	defer C.free(unsafe.Pointer(s))
	return C.GoBytes(unsafe.Pointer(s), C.int(C.strlen(s))), nil
}

// Equal compares keymaps by their serialized text.
func (x *XKB) Equal(other Keymap) bool {
	o, ok := other.(*XKB)
	if !ok || !x.Valid() || !o.Valid() {
		return false
	}
	return x == o || bytes.Equal(x.text, o.text)
}

func (x *XKB) Close() error {
	if x.state != nil {
		C.xkb_state_unref(x.state)
		x.state = nil
	}
	if x.keyMap != nil {
		C.xkb_keymap_unref(x.keyMap)
		x.keyMap = nil
	}
	return nil
}
