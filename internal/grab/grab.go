// Package grab implements the keyboard grab of an input method: it turns
// the grabbed key stream into editing events and forwards everything it
// does not consume through a virtual keyboard.
package grab

import (
	"errors"
	"fmt"
	"log/slog"

	"wlime/internal/event"
	"wlime/internal/keymap"
	"wlime/internal/metrics"
	"wlime/internal/shm"
	"wlime/internal/vkbd"
)

// ErrUnsupportedFormat is returned by OnKeymap for anything but xkb_v1.
var ErrUnsupportedFormat = errors.New("grab: unsupported keymap format")

// Protocol is the outbound side of a zwp_input_method_keyboard_grab_v2.
type Protocol interface {
	Release() error
}

// Handler receives the events of a keyboard grab, one method per wire
// event.
type Handler interface {
	OnKeymap(format keymap.Format, fd int, size uint32) error
	OnKey(serial, time, key uint32, state keymap.KeyState)
	OnModifiers(serial, depressed, latched, locked, group uint32)
	OnRepeatInfo(rate, delay int32)
}

// KeyboardFactory creates the virtual keyboard unconsumed keys are
// forwarded to. It is called once, with the first keymap received.
type KeyboardFactory func(km keymap.Keymap) (*vkbd.Keyboard, error)

// RepeatInfo is the key repeat configuration announced by the compositor.
type RepeatInfo struct {
	Rate  int32
	Delay int32
}

// Grab is a live keyboard grab. All methods must be called from the
// dispatch loop.
type Grab struct {
	proto       Protocol
	compiler    keymap.Compiler
	newKeyboard KeyboardFactory

	keymap     keymap.Keymap
	keyboard   *vkbd.Keyboard
	minKeycode keymap.Keycode
	keyState   []keymap.KeyState
	lastSerial uint32
	repeat     RepeatInfo
	closed     bool

	events  event.Emitter
	log     *slog.Logger
	metrics *metrics.IME
}

var _ Handler = (*Grab)(nil)

type Option func(*Grab)

func WithLogger(l *slog.Logger) Option {
	return func(g *Grab) { g.log = l }
}

func WithMetrics(m *metrics.IME) Option {
	return func(g *Grab) { g.metrics = m }
}

// New returns a grab bound to proto. Keymaps received are compiled with
// compiler; the virtual keyboard is created with newKeyboard once the
// first keymap arrives.
func New(proto Protocol, compiler keymap.Compiler, newKeyboard KeyboardFactory, opts ...Option) *Grab {
	g := &Grab{
		proto:       proto,
		compiler:    compiler,
		newKeyboard: newKeyboard,
		log:         slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.log = g.log.With(slog.String("component", "grab"))
	return g
}

// Subscribe registers fn for the editing events of this grab.
func (g *Grab) Subscribe(fn event.Listener) (cancel func()) {
	return g.events.Subscribe(fn)
}

// OnKeymap installs the keymap shared through fd. fd is always closed.
func (g *Grab) OnKeymap(format keymap.Format, fd int, size uint32) error {
	defer shm.CloseFd(fd)

	if g.closed {
		return nil
	}
	if format != keymap.FormatXKBV1 {
		err := fmt.Errorf("%w: %d", ErrUnsupportedFormat, format)
		g.log.Error("keymap ignored", slog.Any("error", err))
		return err
	}

	data, err := shm.MapReadOnly(fd, int(size))
	if err != nil {
		g.log.Warn("map keymap failed", slog.Any("error", err))
		return fmt.Errorf("map keymap: %w", err)
	}
	km, err := g.compiler.Compile(data)
	if uerr := shm.Unmap(data); uerr != nil {
		g.log.Warn("unmap keymap failed", slog.Any("error", uerr))
	}
	if err != nil {
		g.log.Warn("compile keymap failed", slog.Any("error", err))
		return fmt.Errorf("compile keymap: %w", err)
	}
	g.metrics.KeymapReceived()

	old, held := g.keymap, g.keyboardKeymap()
	g.keymap = km
	g.minKeycode, g.keyState = newKeyState(km)

	if g.keyboard == nil {
		kb, err := g.newKeyboard(km)
		if err != nil {
			g.log.Warn("create virtual keyboard failed", slog.Any("error", err))
		}
		g.keyboard = kb
	} else {
		g.keyboard.SetKeymap(km)
	}
	g.closeUnused(old, held)

	for i := range g.keyState {
		g.forward(g.minKeycode+keymap.Keycode(i), keymap.Released)
	}
	g.log.Debug("keymap installed", slog.Int("keycodes", len(g.keyState)))
	return nil
}

// keyboardKeymap returns the keymap the virtual keyboard last transmitted.
func (g *Grab) keyboardKeymap() keymap.Keymap {
	if g.keyboard == nil {
		return nil
	}
	return g.keyboard.Keymap()
}

// closeUnused closes the given keymaps unless the grab or the virtual
// keyboard still holds them. A failed transfer leaves the keyboard on an
// older keymap than the grab.
func (g *Grab) closeUnused(kms ...keymap.Keymap) {
	held := g.keyboardKeymap()
	for i, km := range kms {
		if km == nil || km == g.keymap || km == held {
			continue
		}
		dup := false
		for _, prev := range kms[:i] {
			dup = dup || prev == km
		}
		if !dup {
			km.Close()
		}
	}
}

func newKeyState(km keymap.Keymap) (keymap.Keycode, []keymap.KeyState) {
	min, max := km.KeycodeRange()
	if max < min {
		max = min
	}
	return min, make([]keymap.KeyState, max-min)
}

// accept applies the serial check shared by key and modifier events.
func (g *Grab) accept(serial uint32) bool {
	if serial <= g.lastSerial {
		g.log.Debug("stale event dropped",
			slog.Uint64("serial", uint64(serial)),
			slog.Uint64("last_serial", uint64(g.lastSerial)))
		g.metrics.StaleEvent()
		return false
	}
	g.lastSerial = serial
	return true
}

// OnKey classifies one key event. key is a wire keycode.
func (g *Grab) OnKey(serial, time, key uint32, state keymap.KeyState) {
	if g.closed || !g.accept(serial) || g.keymap == nil {
		return
	}
	code := keymap.FromWire(key)
	g.record(code, state)

	pressed := state == keymap.Pressed
	if ev := controlEvent(g.keymap.SymbolFor(code)); ev != nil {
		if pressed {
			g.events.Emit(ev)
		}
		g.metrics.ConsumedKey()
		return
	}
	if r, ok := g.keymap.CharFor(code); ok {
		if pressed {
			g.events.Emit(event.CharacterPressed{Char: r})
		}
		g.metrics.ConsumedKey()
		return
	}
	g.forward(code, state)
}

func controlEvent(sym keymap.Keysym) event.Event {
	switch sym {
	case keymap.KeyEscape:
		return event.EscapePressed{}
	case keymap.KeyReturn:
		return event.ReturnPressed{}
	case keymap.KeyBackSpace:
		return event.BackspacePressed{}
	case keymap.KeyDelete:
		return event.DeletePressed{}
	case keymap.KeyUp:
		return event.DirectionPressed{Direction: event.Up}
	case keymap.KeyDown:
		return event.DirectionPressed{Direction: event.Down}
	case keymap.KeyLeft:
		return event.DirectionPressed{Direction: event.Left}
	case keymap.KeyRight:
		return event.DirectionPressed{Direction: event.Right}
	}
	return nil
}

func (g *Grab) record(code keymap.Keycode, state keymap.KeyState) {
	if i, ok := g.index(code); ok {
		g.keyState[i] = state
	}
}

func (g *Grab) index(code keymap.Keycode) (int, bool) {
	if code < g.minKeycode || int(code-g.minKeycode) >= len(g.keyState) {
		return 0, false
	}
	return int(code - g.minKeycode), true
}

func (g *Grab) forward(code keymap.Keycode, state keymap.KeyState) {
	if g.keyboard != nil && code >= keymap.WireOffset {
		g.keyboard.SendKey(code, state)
	}
}

// OnModifiers updates the keymap state and forwards it.
func (g *Grab) OnModifiers(serial, depressed, latched, locked, group uint32) {
	if g.closed || !g.accept(serial) || g.keymap == nil {
		return
	}
	mods := keymap.Modifiers{
		Depressed: depressed,
		Latched:   latched,
		Locked:    locked,
		Group:     group,
	}
	g.keymap.SetModifiers(mods)
	if g.keyboard != nil {
		if held := g.keyboard.Keymap(); held != nil && held != g.keymap {
			held.SetModifiers(mods)
		}
		g.keyboard.SendModifiers()
	}
}

func (g *Grab) OnRepeatInfo(rate, delay int32) {
	g.repeat = RepeatInfo{Rate: rate, Delay: delay}
}

// RepeatInfo returns the last repeat configuration received.
func (g *Grab) RepeatInfo() RepeatInfo { return g.repeat }

// LastSerial returns the highest serial accepted so far.
func (g *Grab) LastSerial() uint32 { return g.lastSerial }

// KeyState reports the recorded state of a lookup keycode. Keycodes outside
// the keymap range are always released.
func (g *Grab) KeyState(code keymap.Keycode) keymap.KeyState {
	if i, ok := g.index(code); ok {
		return g.keyState[i]
	}
	return keymap.Released
}

// PressedKeys returns the keycodes currently recorded as pressed, in
// ascending order.
func (g *Grab) PressedKeys() []keymap.Keycode {
	var codes []keymap.Keycode
	for i, s := range g.keyState {
		if s == keymap.Pressed {
			codes = append(codes, g.minKeycode+keymap.Keycode(i))
		}
	}
	return codes
}

// KeycodeRange returns the size of the key state table as [min, max).
func (g *Grab) KeycodeRange() (keymap.Keycode, keymap.Keycode) {
	return g.minKeycode, g.minKeycode + keymap.Keycode(len(g.keyState))
}

// Closed reports whether Close was called.
func (g *Grab) Closed() bool { return g.closed }

// Close releases every key still held, then releases the grab and the
// virtual keyboard. It is idempotent.
func (g *Grab) Close() error {
	if g.closed {
		return nil
	}
	for _, code := range g.PressedKeys() {
		g.forward(code, keymap.Released)
		g.record(code, keymap.Released)
	}
	g.closed = true

	var errs []error
	if err := g.proto.Release(); err != nil {
		errs = append(errs, fmt.Errorf("release grab: %w", err))
	}
	held := g.keyboardKeymap()
	if g.keyboard != nil {
		if err := g.keyboard.Close(); err != nil {
			errs = append(errs, fmt.Errorf("destroy virtual keyboard: %w", err))
		}
		g.keyboard = nil
	}
	current := g.keymap
	g.keymap = nil
	g.closeUnused(current, held)
	return errors.Join(errs...)
}
