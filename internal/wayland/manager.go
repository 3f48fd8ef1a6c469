//go:build linux

package wayland

import (
	"fmt"
	"log/slog"

	"wlime/internal/keymap"
	"wlime/internal/metrics"
	"wlime/internal/session"
	"wlime/internal/vkbd"
)

// InputMethodProtocol is an input method object that can be bound to a
// session.
type InputMethodProtocol interface {
	session.Protocol
	SetHandler(h InputMethodHandler)
}

// Backend creates protocol objects. *Client implements it.
type Backend interface {
	GetInputMethod() (InputMethodProtocol, error)
	CreateVirtualKeyboard() (vkbd.Endpoint, error)
}

var _ Backend = (*Client)(nil)

// ManagerOptions configures the sessions a Manager creates.
type ManagerOptions struct {
	Compiler keymap.Compiler
	// ShmName names the shared memory segment keymaps are sent through.
	// Empty uses an anonymous memfd.
	ShmName string
	Logger  *slog.Logger
	Metrics *metrics.IME
}

// Manager owns the input method session. There is at most one session at
// a time. All methods must be called from the dispatch loop.
type Manager struct {
	backend Backend
	opts    ManagerOptions
	log     *slog.Logger
	current *session.Session
}

func NewManager(backend Backend, opts ManagerOptions) *Manager {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		backend: backend,
		opts:    opts,
		log:     log.With(slog.String("component", "manager")),
	}
}

// AcquireInput returns the live session, creating one if needed.
func (m *Manager) AcquireInput() (*session.Session, error) {
	if m.current != nil {
		return m.current, nil
	}
	im, err := m.backend.GetInputMethod()
	if err != nil {
		return nil, err
	}
	s := session.New(im, session.Options{
		Compiler:        m.opts.Compiler,
		KeyboardFactory: m.CreateVirtualKeyboard,
		OnRelease:       m.ReleaseInput,
		Logger:          m.opts.Logger,
		Metrics:         m.opts.Metrics,
	})
	im.SetHandler(s)
	m.current = s
	m.log.Debug("input acquired")
	return s, nil
}

// Session returns the live session, or nil.
func (m *Manager) Session() *session.Session { return m.current }

// ReleaseInput closes the live session, if any.
func (m *Manager) ReleaseInput() {
	if m.current == nil {
		return
	}
	s := m.current
	m.current = nil
	if err := s.Close(); err != nil {
		m.log.Warn("release input", slog.Any("error", err))
	}
	m.log.Debug("input released")
}

// CreateVirtualKeyboard creates a virtual keyboard seeded with km.
func (m *Manager) CreateVirtualKeyboard(km keymap.Keymap) (*vkbd.Keyboard, error) {
	ep, err := m.backend.CreateVirtualKeyboard()
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard: %w", err)
	}
	opts := []vkbd.Option{
		vkbd.WithShmName(m.opts.ShmName),
		vkbd.WithMetrics(m.opts.Metrics),
	}
	if m.opts.Logger != nil {
		opts = append(opts, vkbd.WithLogger(m.opts.Logger))
	}
	return vkbd.New(ep, km, opts...), nil
}
