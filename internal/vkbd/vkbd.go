// Package vkbd implements the virtual keyboard channel: a keymap-backed
// virtual input device used to re-inject keys the input method does not
// consume.
package vkbd

import (
	"fmt"
	"log/slog"
	"time"

	"wlime/internal/keymap"
	"wlime/internal/metrics"
	"wlime/internal/shm"
)

// Endpoint is the outbound side of a zwp_virtual_keyboard_v1 object.
type Endpoint interface {
	Keymap(format keymap.Format, fd int, size uint32) error
	Key(time uint32, key uint32, state keymap.KeyState) error
	Modifiers(depressed, latched, locked, group uint32) error
	Destroy() error
}

// Keyboard relays key and modifier events to an Endpoint. It is not safe
// for concurrent use; it lives on the dispatch loop.
type Keyboard struct {
	ep     Endpoint
	keymap keymap.Keymap
	usable bool
	closed bool

	shmName string
	now     func() time.Time
	log     *slog.Logger
	metrics *metrics.IME
}

// Option configures a Keyboard.
type Option func(*Keyboard)

// WithShmName transfers keymaps through the named shared-memory segment
// instead of an anonymous memfd.
func WithShmName(name string) Option {
	return func(k *Keyboard) { k.shmName = name }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(k *Keyboard) { k.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(k *Keyboard) { k.log = l }
}

func WithMetrics(m *metrics.IME) Option {
	return func(k *Keyboard) { k.metrics = m }
}

// New creates a Keyboard on ep and sends it km.
func New(ep Endpoint, km keymap.Keymap, opts ...Option) *Keyboard {
	k := &Keyboard{
		ep:  ep,
		now: time.Now,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.log = k.log.With(slog.String("component", "vkbd"))
	k.SetKeymap(km)
	return k
}

// Usable reports whether a keymap has been transmitted successfully.
func (k *Keyboard) Usable() bool { return k.usable && !k.closed }

// Keymap returns the last keymap the compositor received, which modifiers
// are serialized from. It is nil until a transfer succeeds.
func (k *Keyboard) Keymap() keymap.Keymap { return k.keymap }

// SetKeymap transmits km unless it is invalid or equal to the current
// keymap. If the transfer fails the keyboard keeps the last keymap the
// compositor received, and its usable state.
func (k *Keyboard) SetKeymap(km keymap.Keymap) {
	if k.closed || km == nil || !km.Valid() {
		return
	}
	if k.keymap != nil && k.keymap.Equal(km) {
		// Same layout; follow the new instance for modifier state.
		k.keymap = km
		return
	}

	start := k.now()
	if err := k.transmit(km); err != nil {
		k.log.Warn("keymap transfer abandoned", slog.Any("error", err))
		k.metrics.KeymapTransfer(false, 0)
		return
	}
	k.metrics.KeymapTransfer(true, k.now().Sub(start).Seconds())
	k.keymap = km
	k.usable = true
}

func (k *Keyboard) transmit(km keymap.Keymap) error {
	blob, err := km.SerializeKeymap()
	if err != nil {
		return fmt.Errorf("serialize keymap: %w", err)
	}

	// The receiving side expects a NUL-terminated string.
	size := len(blob) + 1
	region, err := shm.Create(k.shmName, size)
	if err != nil {
		return fmt.Errorf("create shared memory: %w", err)
	}
	defer region.Close()

	if _, err := region.Write(append(blob, 0)); err != nil {
		return fmt.Errorf("write keymap: %w", err)
	}
	if err := k.ep.Keymap(keymap.FormatXKBV1, region.Fd(), uint32(size)); err != nil {
		return fmt.Errorf("send keymap: %w", err)
	}
	return nil
}

// SendKey forwards a key event. code is a lookup keycode; it is converted
// to the wire representation here.
func (k *Keyboard) SendKey(code keymap.Keycode, state keymap.KeyState) {
	if !k.Usable() || code == keymap.InvalidKeycode {
		return
	}
	if err := k.ep.Key(uint32(k.now().UnixMilli()), code.Wire(), state); err != nil {
		k.log.Warn("forward key failed", slog.Any("error", err))
		return
	}
	k.metrics.ForwardedKey()
}

// SendModifiers forwards the keymap's current modifier state.
func (k *Keyboard) SendModifiers() {
	if !k.Usable() || k.keymap == nil {
		return
	}
	m := k.keymap.SerializeModifiers()
	if err := k.ep.Modifiers(m.Depressed, m.Latched, m.Locked, m.Group); err != nil {
		k.log.Warn("forward modifiers failed", slog.Any("error", err))
	}
}

// Close destroys the endpoint. The keymap is not closed; it belongs to the
// caller.
func (k *Keyboard) Close() error {
	if k.closed {
		return nil
	}
	k.closed = true
	return k.ep.Destroy()
}
