// Package event defines the semantic signals produced by the input method
// for the editing widget, and a small listener registry to deliver them.
package event

import (
	"fmt"
	"strings"
	"sync"
)

// Event is a semantic signal. The concrete types are the ones in this
// package.
type Event interface {
	ImplementsEvent()
}

// Direction is the arrow key of a DirectionPressed event.
type Direction uint8

const (
	Up Direction = iota
	Down
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "UP"
	case Down:
		return "DOWN"
	case Left:
		return "LEFT"
	case Right:
		return "RIGHT"
	default:
		return "UNKNOWN"
	}
}

// ParseDirection is the inverse of Direction.String, case-insensitive.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(s) {
	case "UP":
		return Up, nil
	case "DOWN":
		return Down, nil
	case "LEFT":
		return Left, nil
	case "RIGHT":
		return Right, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

type (
	// CharacterPressed is sent when a key producing a printable character
	// is pressed.
	CharacterPressed struct {
		Char rune
	}
	EscapePressed    struct{}
	ReturnPressed    struct{}
	BackspacePressed struct{}
	DeletePressed    struct{}
	DirectionPressed struct {
		Direction Direction
	}

	// Activated and Deactivated report a committed change of the input
	// method's activation state.
	Activated   struct{}
	Deactivated struct{}

	// Unavailable reports that the compositor refused the input method
	// role, typically because another client holds it.
	Unavailable struct{}

	// SurroundingTextChanged carries the text around the cursor of the
	// focused text input, applied on the compositor's done event.
	SurroundingTextChanged struct {
		Text   string
		Cursor uint32
		Anchor uint32
	}

	// ContentTypeChanged carries the content hint and purpose of the
	// focused text input.
	ContentTypeChanged struct {
		Hint    uint32
		Purpose uint32
	}
)

func (CharacterPressed) ImplementsEvent()       {}
func (EscapePressed) ImplementsEvent()          {}
func (ReturnPressed) ImplementsEvent()          {}
func (BackspacePressed) ImplementsEvent()       {}
func (DeletePressed) ImplementsEvent()          {}
func (DirectionPressed) ImplementsEvent()       {}
func (Activated) ImplementsEvent()              {}
func (Deactivated) ImplementsEvent()            {}
func (Unavailable) ImplementsEvent()            {}
func (SurroundingTextChanged) ImplementsEvent() {}
func (ContentTypeChanged) ImplementsEvent()     {}

// Listener receives events.
type Listener func(Event)

// Emitter delivers events to registered listeners, synchronously and in
// registration order. The zero value is ready to use.
type Emitter struct {
	mu        sync.Mutex
	next      uint64
	listeners []entry
}

type entry struct {
	id uint64
	fn Listener
}

// Subscribe registers fn and returns a function that removes it again.
func (e *Emitter) Subscribe(fn Listener) (cancel func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.next++
	id := e.next
	e.listeners = append(e.listeners, entry{id: id, fn: fn})
	return func() { e.unsubscribe(id) }
}

func (e *Emitter) unsubscribe(id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, l := range e.listeners {
		if l.id == id {
			e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
			return
		}
	}
}

// Emit sends ev to every listener registered at the time of the call.
// Listeners may subscribe or unsubscribe from within a callback.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	listeners := e.listeners
	e.mu.Unlock()
	for _, l := range listeners {
		l.fn(ev)
	}
}

// Len returns the number of registered listeners.
func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}
