// Package session implements the input method session: the two-phase
// activation state machine of zwp_input_method_v2, the editing requests
// sent back to the compositor, and ownership of the keyboard grab.
package session

import (
	"errors"
	"fmt"
	"log/slog"

	"wlime/internal/event"
	"wlime/internal/grab"
	"wlime/internal/keymap"
	"wlime/internal/metrics"
)

var (
	// ErrUnavailable is returned once the compositor has refused the input
	// method role.
	ErrUnavailable = errors.New("session: input method unavailable")
	// ErrKeyboardGrabbed is returned when the keyboard is already grabbed
	// through this input method object elsewhere.
	ErrKeyboardGrabbed = errors.New("session: keyboard already grabbed")
	// ErrNoKeyboardFactory is returned by GrabKeyboard when no virtual
	// keyboard can be created for forwarded keys.
	ErrNoKeyboardFactory = errors.New("session: no virtual keyboard factory")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session: closed")
)

// GrabProxy is a keyboard grab object as handed out by the protocol.
type GrabProxy interface {
	grab.Protocol
	SetHandler(h grab.Handler)
}

// Protocol is the outbound side of a zwp_input_method_v2 object.
type Protocol interface {
	CommitString(text string) error
	SetPreeditString(text string, cursorBegin, cursorEnd int32) error
	DeleteSurroundingText(before, after uint32) error
	Commit(serial uint32) error
	GrabKeyboard() (GrabProxy, error)
	Destroy() error
}

// Options configures a Session.
type Options struct {
	// Compiler compiles keymaps received by keyboard grabs.
	Compiler keymap.Compiler
	// KeyboardFactory creates the virtual keyboard of a grab.
	KeyboardFactory grab.KeyboardFactory
	// OnRelease is called when the compositor makes the session
	// unavailable. The owner is expected to drop the session.
	OnRelease func()

	Logger  *slog.Logger
	Metrics *metrics.IME
}

// SurroundingText is the text around the cursor of the focused text input.
type SurroundingText struct {
	Text   string
	Cursor uint32
	Anchor uint32
}

// ContentType is the content hint and purpose of the focused text input.
type ContentType struct {
	Hint    uint32
	Purpose uint32
}

// pending holds state staged by the compositor until the next done event.
type pending struct {
	active      bool
	surrounding *SurroundingText
	changeCause *uint32
	contentType *ContentType
}

// Session is one zwp_input_method_v2 object. All methods must be called from
// the dispatch loop.
type Session struct {
	proto Protocol
	opts  Options

	available bool
	active    bool
	staged    pending
	serial    uint32
	closed    bool

	surrounding SurroundingText
	changeCause uint32
	contentType ContentType

	grab   *grab.Grab
	events event.Emitter
	log    *slog.Logger
}

// New returns an available, inactive session on proto.
func New(proto Protocol, opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		proto:     proto,
		opts:      opts,
		available: true,
		log:       log.With(slog.String("component", "session")),
	}
}

// Subscribe registers fn for activation and availability events.
func (s *Session) Subscribe(fn event.Listener) (cancel func()) {
	return s.events.Subscribe(fn)
}

// SetKeyboardFactory replaces the factory used by later grabs.
func (s *Session) SetKeyboardFactory(f grab.KeyboardFactory) {
	s.opts.KeyboardFactory = f
}

// OnActivate handles the activate event.
func (s *Session) OnActivate() {
	s.StageActivation(true)
	// Activation resets the text input state.
	empty := SurroundingText{}
	s.staged.surrounding = &empty
	var cause uint32
	s.staged.changeCause = &cause
	s.staged.contentType = &ContentType{}
}

// OnDeactivate handles the deactivate event.
func (s *Session) OnDeactivate() { s.StageActivation(false) }

// StageActivation records the activation state to apply on the next done.
func (s *Session) StageActivation(active bool) { s.staged.active = active }

func (s *Session) OnSurroundingText(text string, cursor, anchor uint32) {
	s.staged.surrounding = &SurroundingText{Text: text, Cursor: cursor, Anchor: anchor}
}

func (s *Session) OnTextChangeCause(cause uint32) {
	s.staged.changeCause = &cause
}

func (s *Session) OnContentType(hint, purpose uint32) {
	s.staged.contentType = &ContentType{Hint: hint, Purpose: purpose}
}

// OnDone applies the staged state. Activation events are emitted only when
// the committed value changes.
func (s *Session) OnDone() {
	if s.closed {
		return
	}
	staged := s.staged
	s.staged = pending{active: staged.active}

	if staged.changeCause != nil {
		s.changeCause = *staged.changeCause
	}
	if staged.contentType != nil && *staged.contentType != s.contentType {
		s.contentType = *staged.contentType
		s.events.Emit(event.ContentTypeChanged{Hint: s.contentType.Hint, Purpose: s.contentType.Purpose})
	}
	if staged.surrounding != nil && *staged.surrounding != s.surrounding {
		s.surrounding = *staged.surrounding
		s.events.Emit(event.SurroundingTextChanged{
			Text:   s.surrounding.Text,
			Cursor: s.surrounding.Cursor,
			Anchor: s.surrounding.Anchor,
		})
	}

	if s.active == staged.active {
		return
	}
	s.active = staged.active
	s.opts.Metrics.Active(s.active)
	s.log.Debug("activation changed", slog.Bool("active", s.active))
	if s.active {
		s.events.Emit(event.Activated{})
	} else {
		s.events.Emit(event.Deactivated{})
	}
}

// OnUnavailable handles the unavailable event. The session stays unusable
// from then on.
func (s *Session) OnUnavailable() {
	if !s.available {
		return
	}
	s.available = false
	s.log.Info("compositor denied input method, likely because another one is running")

	s.ReleaseKeyboard()
	if s.active {
		s.active = false
		s.opts.Metrics.Active(false)
		s.events.Emit(event.Deactivated{})
	}
	s.events.Emit(event.Unavailable{})
	if s.opts.OnRelease != nil {
		s.opts.OnRelease()
	}
}

// Available reports whether the compositor accepted the input method role.
func (s *Session) Available() bool { return s.available }

// Active reports the committed activation state.
func (s *Session) Active() bool { return s.active }

// Serial returns the serial the next commit will carry.
func (s *Session) Serial() uint32 { return s.serial }

func (s *Session) SurroundingText() SurroundingText { return s.surrounding }

func (s *Session) ContentType() ContentType { return s.contentType }

// TextChangeCause returns the last committed text change cause.
func (s *Session) TextChangeCause() uint32 { return s.changeCause }

func (s *Session) editable() bool {
	return !s.closed && s.available && s.active
}

// commit sends the pending requests with the next serial.
func (s *Session) commit() error {
	serial := s.serial
	s.serial++
	if err := s.proto.Commit(serial); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.opts.Metrics.Commit()
	return nil
}

// CommitString inserts text at the cursor of the focused text input.
func (s *Session) CommitString(text string) error {
	if !s.editable() {
		return nil
	}
	if err := s.proto.CommitString(text); err != nil {
		return fmt.Errorf("commit string: %w", err)
	}
	return s.commit()
}

// SetPreedit shows text as preedit. A negative cursorBegin hides the cursor.
func (s *Session) SetPreedit(text string, cursorBegin, cursorEnd int32) error {
	if !s.editable() {
		return nil
	}
	if err := s.proto.SetPreeditString(text, cursorBegin, cursorEnd); err != nil {
		return fmt.Errorf("set preedit: %w", err)
	}
	return s.commit()
}

// DeleteSurroundingText deletes before bytes before and after bytes after
// the cursor.
func (s *Session) DeleteSurroundingText(before, after uint32) error {
	if !s.editable() {
		return nil
	}
	if err := s.proto.DeleteSurroundingText(before, after); err != nil {
		return fmt.Errorf("delete surrounding text: %w", err)
	}
	return s.commit()
}

// HasKeyboard reports whether a keyboard grab is live.
func (s *Session) HasKeyboard() bool { return s.grab != nil }

// Keyboard returns the live grab, or nil.
func (s *Session) Keyboard() *grab.Grab { return s.grab }

// GrabKeyboard grabs the keyboard. If a grab is live it is returned.
func (s *Session) GrabKeyboard() (*grab.Grab, error) {
	if s.grab != nil {
		return s.grab, nil
	}
	switch {
	case s.closed:
		return nil, ErrClosed
	case !s.available:
		return nil, ErrUnavailable
	case s.opts.KeyboardFactory == nil:
		return nil, ErrNoKeyboardFactory
	}

	proxy, err := s.proto.GrabKeyboard()
	if err != nil {
		return nil, fmt.Errorf("grab keyboard: %w", err)
	}
	s.grab = grab.New(proxy, s.opts.Compiler, s.opts.KeyboardFactory,
		grab.WithLogger(s.log), grab.WithMetrics(s.opts.Metrics))
	proxy.SetHandler(s.grab)
	s.opts.Metrics.Grabbed(true)
	s.log.Debug("keyboard grabbed")
	return s.grab, nil
}

// ReleaseKeyboard destroys the live grab, if any.
func (s *Session) ReleaseKeyboard() {
	if s.grab == nil {
		return
	}
	g := s.grab
	s.grab = nil
	if err := g.Close(); err != nil {
		s.log.Warn("release keyboard", slog.Any("error", err))
	}
	s.opts.Metrics.Grabbed(false)
	s.log.Debug("keyboard released")
}

// Close releases the keyboard, clears the preedit and destroys the input
// method object. It is idempotent.
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.ReleaseKeyboard()

	var errs []error
	if err := s.proto.SetPreeditString("", -1, -1); err != nil {
		errs = append(errs, fmt.Errorf("clear preedit: %w", err))
	} else if err := s.commit(); err != nil {
		errs = append(errs, err)
	}
	s.closed = true
	if err := s.proto.Destroy(); err != nil {
		errs = append(errs, fmt.Errorf("destroy: %w", err))
	}
	s.opts.Metrics.Active(false)
	return errors.Join(errs...)
}
