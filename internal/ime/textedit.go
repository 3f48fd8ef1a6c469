package ime

import (
	"fmt"
	"log/slog"
	"strings"

	"wlime/internal/event"
)

// Transform maps the edited text to the text committed on Return.
type Transform func(string) string

// ParseTransform returns the named transform: none, upper, lower or trim.
func ParseTransform(name string) (Transform, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return func(s string) string { return s }, nil
	case "upper":
		return strings.ToUpper, nil
	case "lower":
		return strings.ToLower, nil
	case "trim":
		return strings.TrimSpace, nil
	}
	return nil, fmt.Errorf("ime: unknown transform %q", name)
}

// TextEdit edits a line of text in the preedit of the focused text input.
// Return commits the transformed text and releases the keyboard.
type TextEdit struct {
	im        *InputMethod
	keyboard  *Keyboard
	transform Transform
	log       *slog.Logger

	text   []rune
	cursor int
}

// TextEditFactory returns a KeyboardFactory creating a TextEdit per grab.
func TextEditFactory(transform Transform) KeyboardFactory {
	return func(im *InputMethod) *Keyboard {
		return NewTextEdit(im, transform).Keyboard()
	}
}

// NewTextEdit returns an empty TextEdit sending to im. A nil transform
// commits the text unchanged.
func NewTextEdit(im *InputMethod, transform Transform) *TextEdit {
	if transform == nil {
		transform = func(s string) string { return s }
	}
	t := &TextEdit{
		im:        im,
		keyboard:  NewKeyboard(),
		transform: transform,
		log:       im.log,
	}
	t.keyboard.Subscribe(t.handle)
	return t
}

// Keyboard returns the keyboard the TextEdit listens on.
func (t *TextEdit) Keyboard() *Keyboard { return t.keyboard }

// Text returns the edited text.
func (t *TextEdit) Text() string { return string(t.text) }

// Cursor returns the cursor position in characters.
func (t *TextEdit) Cursor() int { return t.cursor }

// SetText replaces the text and moves the cursor to its end.
func (t *TextEdit) SetText(s string) {
	t.text = []rune(s)
	t.cursor = len(t.text)
	t.updatePreedit()
}

// SetCursor moves the cursor, clamped to the text.
func (t *TextEdit) SetCursor(pos int) {
	pos = max(0, min(pos, len(t.text)))
	if pos == t.cursor {
		return
	}
	t.cursor = pos
	t.updatePreedit()
}

func (t *TextEdit) handle(ev event.Event) {
	switch ev := ev.(type) {
	case event.CharacterPressed:
		t.text = append(t.text[:t.cursor], append([]rune{ev.Char}, t.text[t.cursor:]...)...)
		t.cursor++
		t.updatePreedit()
	case event.BackspacePressed:
		if t.cursor == 0 {
			return
		}
		t.text = append(t.text[:t.cursor-1], t.text[t.cursor:]...)
		t.cursor--
		t.updatePreedit()
	case event.DeletePressed:
		if t.cursor == len(t.text) {
			return
		}
		t.text = append(t.text[:t.cursor], t.text[t.cursor+1:]...)
		t.updatePreedit()
	case event.DirectionPressed:
		switch ev.Direction {
		case event.Left:
			t.SetCursor(t.cursor - 1)
		case event.Right:
			t.SetCursor(t.cursor + 1)
		}
	case event.ReturnPressed:
		t.commit()
	}
}

// updatePreedit shows the text with a collapsed cursor. Preedit cursors
// are byte offsets.
func (t *TextEdit) updatePreedit() {
	pos := int32(len(string(t.text[:t.cursor])))
	if err := t.im.SendPreeditString(string(t.text), pos, pos); err != nil {
		t.log.Warn("update preedit", slog.Any("error", err))
	}
}

func (t *TextEdit) commit() {
	text := t.transform(string(t.text))
	t.text = nil
	t.cursor = 0
	if err := t.im.SendString(text); err != nil {
		t.log.Warn("commit text", slog.Any("error", err))
	}
	t.im.ReleaseKeyboard()
}
