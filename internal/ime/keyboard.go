package ime

import (
	"wlime/internal/event"
	"wlime/internal/grab"
)

// Keyboard relays the events of one keyboard grab to its listeners.
type Keyboard struct {
	grab   *grab.Grab
	cancel func()
	events event.Emitter
	// escape runs after EscapePressed listeners.
	escape func()
}

// NewKeyboard returns an unbound keyboard.
func NewKeyboard() *Keyboard { return &Keyboard{} }

// Subscribe registers fn for the keyboard's events.
func (k *Keyboard) Subscribe(fn event.Listener) (cancel func()) {
	return k.events.Subscribe(fn)
}

// Bound reports whether the keyboard is attached to a live grab.
func (k *Keyboard) Bound() bool { return k.grab != nil }

func (k *Keyboard) bind(g *grab.Grab) {
	if g == nil || g == k.grab {
		return
	}
	k.unbind()
	k.grab = g
	k.cancel = g.Subscribe(k.handle)
}

func (k *Keyboard) unbind() {
	if k.cancel != nil {
		k.cancel()
		k.cancel = nil
	}
	k.grab = nil
}

func (k *Keyboard) handle(ev event.Event) {
	k.events.Emit(ev)
	if _, ok := ev.(event.EscapePressed); ok && k.escape != nil {
		k.escape()
	}
}
