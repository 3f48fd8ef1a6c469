package ime

import (
	"errors"
	"fmt"
	"log/slog"

	"wlime/internal/event"
	"wlime/internal/session"
)

var (
	// ErrNoInput is returned when the input method role is not held.
	ErrNoInput = errors.New("ime: no input")
	// ErrNoKeyboardFactory is returned by GrabKeyboard when no keyboard
	// factory is set.
	ErrNoKeyboardFactory = errors.New("ime: no keyboard factory")
	// ErrKeyboardGrabbed is returned by GrabKeyboard when another input
	// method already grabbed the keyboard.
	ErrKeyboardGrabbed = errors.New("ime: only one input method can grab the keyboard at a time")
)

// Provider hands out the input method session. *wayland.Manager implements
// it.
type Provider interface {
	AcquireInput() (*session.Session, error)
	ReleaseInput()
}

// KeyboardFactory creates the keyboard a grab is delivered to.
type KeyboardFactory func(im *InputMethod) *Keyboard

// Options configures an InputMethod.
type Options struct {
	// KeyboardFactory creates the keyboard used by GrabKeyboard.
	KeyboardFactory KeyboardFactory
	// KeepPreeditOnRelease keeps the preedit text when the keyboard is
	// released. By default it is cleared.
	KeepPreeditOnRelease bool

	Logger *slog.Logger
}

// InputMethod is the widget side of the input method.
type InputMethod struct {
	provider Provider
	factory  KeyboardFactory
	clear    bool
	log      *slog.Logger

	session  *session.Session
	cancel   func()
	keyboard *Keyboard
	events   event.Emitter
}

// New returns an InputMethod and tries to acquire the input. Failure to
// acquire is logged; HasInput reports it and GetInput can retry.
func New(provider Provider, opts Options) *InputMethod {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	im := &InputMethod{
		provider: provider,
		factory:  opts.KeyboardFactory,
		clear:    !opts.KeepPreeditOnRelease,
		log:      log.With(slog.String("component", "ime")),
	}
	if err := im.GetInput(); err != nil {
		im.log.Warn("acquire input", slog.Any("error", err))
	}
	return im
}

// Subscribe registers fn for Activated, Deactivated and Unavailable events.
func (im *InputMethod) Subscribe(fn event.Listener) (cancel func()) {
	return im.events.Subscribe(fn)
}

// HasInput reports whether the input method role is held.
func (im *InputMethod) HasInput() bool {
	return im.session != nil && im.session.Available()
}

// IsActive reports whether a text input is focused.
func (im *InputMethod) IsActive() bool {
	return im.HasInput() && im.session.Active()
}

// GetInput acquires the input method role if it is not held.
func (im *InputMethod) GetInput() error {
	if im.HasInput() {
		return nil
	}
	im.detach()
	s, err := im.provider.AcquireInput()
	if err != nil {
		return fmt.Errorf("acquire input: %w", err)
	}
	im.session = s
	im.cancel = s.Subscribe(im.handleSessionEvent)
	return nil
}

// ReleaseInput gives the input method role back.
func (im *InputMethod) ReleaseInput() {
	if im.session == nil {
		return
	}
	im.ReleaseKeyboard()
	im.detach()
	im.provider.ReleaseInput()
}

func (im *InputMethod) detach() {
	if im.cancel != nil {
		im.cancel()
		im.cancel = nil
	}
	im.session = nil
}

func (im *InputMethod) handleSessionEvent(ev event.Event) {
	switch ev.(type) {
	case event.Activated, event.Deactivated:
		// The focused text input changed; a grab belongs to the old one.
		im.ReleaseKeyboard()
		im.events.Emit(ev)
	case event.Unavailable:
		// The session already dropped its grab.
		im.dropKeyboard()
		im.events.Emit(ev)
	}
}

// SendString commits text to the focused text input.
func (im *InputMethod) SendString(text string) error {
	if !im.IsActive() {
		return nil
	}
	return im.session.CommitString(text)
}

// SendPreeditString shows text as preedit with the cursor spanning
// [cursorBegin, cursorEnd) bytes. A negative cursorBegin hides the cursor.
func (im *InputMethod) SendPreeditString(text string, cursorBegin, cursorEnd int32) error {
	if !im.IsActive() {
		return nil
	}
	return im.session.SetPreedit(text, cursorBegin, cursorEnd)
}

// DeleteText deletes before bytes before and after bytes after the cursor.
func (im *InputMethod) DeleteText(before, after int) error {
	if !im.IsActive() {
		return nil
	}
	if before < 0 || after < 0 {
		return fmt.Errorf("ime: negative delete length %d, %d", before, after)
	}
	return im.session.DeleteSurroundingText(uint32(before), uint32(after))
}

// SetKeyboardFactory replaces the keyboard factory. A keyboard created by
// the previous factory is released.
func (im *InputMethod) SetKeyboardFactory(f KeyboardFactory) {
	im.factory = f
	im.ReleaseKeyboard()
}

// SetClearPreeditOnRelease sets whether releasing the keyboard clears the
// preedit text.
func (im *InputMethod) SetClearPreeditOnRelease(clear bool) { im.clear = clear }

// HasKeyboard reports whether this input method holds the keyboard.
func (im *InputMethod) HasKeyboard() bool { return im.keyboard != nil }

// Keyboard returns the grabbed keyboard, or nil.
func (im *InputMethod) Keyboard() *Keyboard { return im.keyboard }

// GrabKeyboard grabs the keyboard and delivers it to a keyboard created by
// the keyboard factory. Escape always releases it again.
func (im *InputMethod) GrabKeyboard() error {
	if im.keyboard != nil {
		return nil
	}
	switch {
	case !im.HasInput():
		return ErrNoInput
	case im.factory == nil:
		return ErrNoKeyboardFactory
	case im.session.HasKeyboard():
		im.log.Debug("keyboard already grabbed")
		return ErrKeyboardGrabbed
	}

	g, err := im.session.GrabKeyboard()
	if err != nil {
		if errors.Is(err, session.ErrKeyboardGrabbed) {
			return ErrKeyboardGrabbed
		}
		return err
	}
	kb := im.factory(im)
	if kb == nil {
		im.session.ReleaseKeyboard()
		return fmt.Errorf("ime: keyboard factory returned no keyboard")
	}
	kb.bind(g)
	kb.escape = im.ReleaseKeyboard
	im.keyboard = kb
	return nil
}

// ReleaseKeyboard releases the keyboard and, unless configured otherwise,
// clears the preedit text.
func (im *InputMethod) ReleaseKeyboard() {
	if im.keyboard == nil {
		return
	}
	im.dropKeyboard()
	im.session.ReleaseKeyboard()
	if im.clear {
		if err := im.SendPreeditString("", -1, -1); err != nil {
			im.log.Warn("clear preedit", slog.Any("error", err))
		}
	}
}

func (im *InputMethod) dropKeyboard() {
	if im.keyboard == nil {
		return
	}
	im.keyboard.unbind()
	im.keyboard = nil
}
