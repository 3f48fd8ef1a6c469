//go:build linux

package wayland

import (
	"log/slog"

	"github.com/rajveermalviya/go-wayland/wayland/client"
	"golang.org/x/sys/unix"

	"wlime/internal/grab"
	"wlime/internal/keymap"
	"wlime/internal/session"
)

const (
	InputMethodManagerInterface = "zwp_input_method_manager_v2"
	inputMethodManagerVersion   = 1
)

// zwp_input_method_manager_v2 requests.
const (
	opInputMethodManagerGetInputMethod uint16 = 0
	opInputMethodManagerDestroy        uint16 = 1
)

// zwp_input_method_v2 requests.
const (
	opInputMethodCommitString          uint16 = 0
	opInputMethodSetPreeditString      uint16 = 1
	opInputMethodDeleteSurroundingText uint16 = 2
	opInputMethodCommit                uint16 = 3
	opInputMethodGrabKeyboard          uint16 = 5
	opInputMethodDestroy               uint16 = 6
)

// zwp_input_method_v2 events.
const (
	evInputMethodActivate        = 0
	evInputMethodDeactivate      = 1
	evInputMethodSurroundingText = 2
	evInputMethodTextChangeCause = 3
	evInputMethodContentType     = 4
	evInputMethodDone            = 5
	evInputMethodUnavailable     = 6
)

// zwp_input_method_keyboard_grab_v2.
const (
	opKeyboardGrabRelease uint16 = 0

	evKeyboardGrabKeymap     = 0
	evKeyboardGrabKey        = 1
	evKeyboardGrabModifiers  = 2
	evKeyboardGrabRepeatInfo = 3
)

// InputMethodHandler receives zwp_input_method_v2 events.
// *session.Session implements it.
type InputMethodHandler interface {
	OnActivate()
	OnDeactivate()
	OnSurroundingText(text string, cursor, anchor uint32)
	OnTextChangeCause(cause uint32)
	OnContentType(hint, purpose uint32)
	OnDone()
	OnUnavailable()
}

var _ InputMethodHandler = (*session.Session)(nil)

// InputMethodManager is a bound zwp_input_method_manager_v2 global.
type InputMethodManager struct {
	client.BaseProxy
	conn conn
	log  *slog.Logger
}

func newInputMethodManager(ctx conn, log *slog.Logger) *InputMethodManager {
	m := &InputMethodManager{conn: ctx, log: log}
	ctx.Register(m)
	return m
}

// GetInputMethod requests the input method object of seat.
func (m *InputMethodManager) GetInputMethod(seat *client.Seat) (*InputMethod, error) {
	im := &InputMethod{conn: m.conn, log: m.log}
	m.conn.Register(im)
	err := newRequest(m.ID(), opInputMethodManagerGetInputMethod).
		uint32(seat.ID()).
		uint32(im.ID()).
		send(m.conn, nil)
	if err != nil {
		return nil, err
	}
	return im, nil
}

func (m *InputMethodManager) Destroy() error {
	defer m.conn.Unregister(m)
	return newRequest(m.ID(), opInputMethodManagerDestroy).send(m.conn, nil)
}

// Dispatch implements client.Dispatcher. The manager has no events.
func (m *InputMethodManager) Dispatch(opcode uint32, fd int, data []byte) {}

// InputMethod is a zwp_input_method_v2 object. Like every proxy in this
// package it is only touched from the dispatch loop.
type InputMethod struct {
	client.BaseProxy
	conn conn
	log  *slog.Logger

	handler InputMethodHandler
	grab    *KeyboardGrab
	dead    bool
}

var _ session.Protocol = (*InputMethod)(nil)

// SetHandler sets the receiver of this object's events.
func (im *InputMethod) SetHandler(h InputMethodHandler) { im.handler = h }

func (im *InputMethod) CommitString(text string) error {
	return newRequest(im.ID(), opInputMethodCommitString).string(text).send(im.conn, nil)
}

func (im *InputMethod) SetPreeditString(text string, cursorBegin, cursorEnd int32) error {
	return newRequest(im.ID(), opInputMethodSetPreeditString).
		string(text).
		int32(cursorBegin).
		int32(cursorEnd).
		send(im.conn, nil)
}

func (im *InputMethod) DeleteSurroundingText(before, after uint32) error {
	return newRequest(im.ID(), opInputMethodDeleteSurroundingText).
		uint32(before).
		uint32(after).
		send(im.conn, nil)
}

func (im *InputMethod) Commit(serial uint32) error {
	return newRequest(im.ID(), opInputMethodCommit).uint32(serial).send(im.conn, nil)
}

// GrabKeyboard creates a keyboard grab. Only one grab may be live per
// input method object.
func (im *InputMethod) GrabKeyboard() (session.GrabProxy, error) {
	if im.grab != nil && !im.grab.dead {
		return nil, session.ErrKeyboardGrabbed
	}
	g := &KeyboardGrab{conn: im.conn, log: im.log}
	im.conn.Register(g)
	if err := newRequest(im.ID(), opInputMethodGrabKeyboard).uint32(g.ID()).send(im.conn, nil); err != nil {
		return nil, err
	}
	im.grab = g
	return g, nil
}

func (im *InputMethod) Destroy() error {
	if im.dead {
		return nil
	}
	im.dead = true
	im.handler = nil
	defer im.conn.Unregister(im)
	return newRequest(im.ID(), opInputMethodDestroy).send(im.conn, nil)
}

// Dispatch implements client.Dispatcher.
func (im *InputMethod) Dispatch(opcode uint32, fd int, data []byte) {
	d := decoder{data: data}
	var deliver func(h InputMethodHandler)

	switch opcode {
	case evInputMethodActivate:
		deliver = func(h InputMethodHandler) { h.OnActivate() }
	case evInputMethodDeactivate:
		deliver = func(h InputMethodHandler) { h.OnDeactivate() }
	case evInputMethodSurroundingText:
		text, cursor, anchor := d.string(), d.uint32(), d.uint32()
		deliver = func(h InputMethodHandler) { h.OnSurroundingText(text, cursor, anchor) }
	case evInputMethodTextChangeCause:
		cause := d.uint32()
		deliver = func(h InputMethodHandler) { h.OnTextChangeCause(cause) }
	case evInputMethodContentType:
		hint, purpose := d.uint32(), d.uint32()
		deliver = func(h InputMethodHandler) { h.OnContentType(hint, purpose) }
	case evInputMethodDone:
		deliver = func(h InputMethodHandler) { h.OnDone() }
	case evInputMethodUnavailable:
		deliver = func(h InputMethodHandler) { h.OnUnavailable() }
	default:
		im.log.Debug("unknown input method event", slog.Uint64("opcode", uint64(opcode)))
		return
	}
	if d.err != nil {
		im.log.Warn("malformed input method event",
			slog.Uint64("opcode", uint64(opcode)), slog.Any("error", d.err))
		return
	}

	if im.dead || im.handler == nil {
		return
	}
	deliver(im.handler)
}

// KeyboardGrab is a zwp_input_method_keyboard_grab_v2 object.
type KeyboardGrab struct {
	client.BaseProxy
	conn conn
	log  *slog.Logger

	handler grab.Handler
	dead    bool
}

var _ session.GrabProxy = (*KeyboardGrab)(nil)

func (g *KeyboardGrab) SetHandler(h grab.Handler) { g.handler = h }

// Release destroys the grab. Events that arrive afterwards are dropped.
func (g *KeyboardGrab) Release() error {
	if g.dead {
		return nil
	}
	g.dead = true
	g.handler = nil
	defer g.conn.Unregister(g)
	return newRequest(g.ID(), opKeyboardGrabRelease).send(g.conn, nil)
}

// Dispatch implements client.Dispatcher.
func (g *KeyboardGrab) Dispatch(opcode uint32, fd int, data []byte) {
	d := decoder{data: data}
	var deliver func(h grab.Handler)
	// The keymap descriptor must be closed if nobody takes it.
	ownedFd := -1

	switch opcode {
	case evKeyboardGrabKeymap:
		format, size := keymap.Format(d.uint32()), d.uint32()
		ownedFd = fd
		deliver = func(h grab.Handler) {
			// OnKeymap closes the descriptor.
			if err := h.OnKeymap(format, fd, size); err != nil {
				g.log.Debug("keymap rejected", slog.Any("error", err))
			}
		}
	case evKeyboardGrabKey:
		serial, time, key, state := d.uint32(), d.uint32(), d.uint32(), keymap.KeyState(d.uint32())
		deliver = func(h grab.Handler) { h.OnKey(serial, time, key, state) }
	case evKeyboardGrabModifiers:
		serial, depressed, latched, locked, group := d.uint32(), d.uint32(), d.uint32(), d.uint32(), d.uint32()
		deliver = func(h grab.Handler) { h.OnModifiers(serial, depressed, latched, locked, group) }
	case evKeyboardGrabRepeatInfo:
		rate, delay := d.int32(), d.int32()
		deliver = func(h grab.Handler) { h.OnRepeatInfo(rate, delay) }
	default:
		g.log.Debug("unknown keyboard grab event", slog.Uint64("opcode", uint64(opcode)))
		closeFd(fd)
		return
	}
	if d.err != nil {
		g.log.Warn("malformed keyboard grab event",
			slog.Uint64("opcode", uint64(opcode)), slog.Any("error", d.err))
		closeFd(ownedFd)
		return
	}

	if g.dead || g.handler == nil {
		closeFd(ownedFd)
		return
	}
	deliver(g.handler)
}

func closeFd(fd int) {
	if fd >= 0 {
		unix.Close(fd)
	}
}
