//go:build linux

// Package wayland connects to the compositor and implements the
// input-method-unstable-v2 and virtual-keyboard-unstable-v1 protocol
// objects on top of go-wayland's connection handling.
package wayland

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rajveermalviya/go-wayland/wayland/client"

	"wlime/internal/vkbd"
)

var (
	ErrNoInputMethodManager     = errors.New("wayland: compositor does not support zwp_input_method_manager_v2")
	ErrNoVirtualKeyboardManager = errors.New("wayland: compositor does not support zwp_virtual_keyboard_manager_v1")
	ErrNoSeat                   = errors.New("wayland: no seat")
)

// Config selects the compositor connection.
type Config struct {
	// Display is the socket name or path; empty uses $WAYLAND_DISPLAY.
	Display string
	// Seat is the seat name; empty selects the first seat announced.
	Seat string
}

type seatInfo struct {
	seat *client.Seat
	name string
}

// Client is a connection with the globals the input method needs bound.
type Client struct {
	display  *client.Display
	registry *client.Registry
	post     func(fn func()) error
	log      *slog.Logger

	seats     []*seatInfo
	seat      *client.Seat
	imManager *InputMethodManager
	vkManager *VirtualKeyboardManager
}

// Connect opens the connection, binds the seat and both managers, and
// returns once the compositor has announced them. Once Run starts, every
// event is handed to post, usually (*dispatch.Loop).Post, and decoded there.
func Connect(cfg Config, post func(fn func()) error, log *slog.Logger) (*Client, error) {
	if log == nil {
		log = slog.Default()
	}
	display, err := client.Connect(cfg.Display)
	if err != nil {
		return nil, fmt.Errorf("connect to wayland display: %w", err)
	}
	c := &Client{
		display: display,
		post:    post,
		log:     log.With(slog.String("component", "wayland")),
	}
	display.SetErrorHandler(c.handleDisplayError)

	if err := c.bind(cfg.Seat); err != nil {
		display.Context().Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) bind(seatName string) error {
	registry, err := c.display.GetRegistry()
	if err != nil {
		return fmt.Errorf("get registry: %w", err)
	}
	c.registry = registry
	registry.SetGlobalHandler(c.handleGlobal)

	// The first roundtrip announces the globals, the second the seat names.
	for i := 0; i < 2; i++ {
		if err := c.roundtrip(); err != nil {
			return fmt.Errorf("roundtrip: %w", err)
		}
	}

	switch {
	case c.imManager == nil:
		return ErrNoInputMethodManager
	case c.vkManager == nil:
		return ErrNoVirtualKeyboardManager
	}
	for _, s := range c.seats {
		if seatName == "" || s.name == seatName {
			c.seat = s.seat
			c.log.Debug("using seat", slog.String("seat", s.name))
			return nil
		}
	}
	if seatName != "" {
		return fmt.Errorf("%w named %q", ErrNoSeat, seatName)
	}
	return ErrNoSeat
}

func (c *Client) handleGlobal(e client.RegistryGlobalEvent) {
	ctx := c.display.Context()
	var (
		proxy   client.Proxy
		version uint32
	)
	switch e.Interface {
	case "wl_seat":
		seat := client.NewSeat(ctx)
		info := &seatInfo{seat: seat}
		seat.SetNameHandler(func(ev client.SeatNameEvent) { info.name = ev.Name })
		c.seats = append(c.seats, info)
		proxy, version = seat, min(e.Version, 2)
	case InputMethodManagerInterface:
		if c.imManager != nil {
			return
		}
		c.imManager = newInputMethodManager(ctx, c.log)
		proxy, version = c.imManager, inputMethodManagerVersion
	case VirtualKeyboardManagerInterface:
		if c.vkManager != nil {
			return
		}
		c.vkManager = newVirtualKeyboardManager(ctx)
		proxy, version = c.vkManager, virtualKeyboardManagerVersion
	default:
		return
	}
	if err := c.registry.Bind(e.Name, e.Interface, version, proxy); err != nil {
		c.log.Warn("bind global failed", slog.String("interface", e.Interface), slog.Any("error", err))
	}
}

func (c *Client) handleDisplayError(e client.DisplayErrorEvent) {
	c.log.Error("protocol error", slog.Uint64("code", uint64(e.Code)), slog.String("message", e.Message))
}

func (c *Client) roundtrip() error {
	cb, err := c.display.Sync()
	if err != nil {
		return err
	}
	defer c.display.Context().Unregister(cb)
	done := false
	cb.SetDoneHandler(func(client.CallbackDoneEvent) { done = true })
	for !done {
		if err := c.display.Context().Dispatch(); err != nil {
			return err
		}
	}
	return nil
}

// Run reads events until ctx is done or the connection fails. The reader
// goroutine only reads the socket; target lookup and decoding happen on the
// dispatch loop, which must be running, so the connection's object table
// is never shared between goroutines.
func (c *Client) Run(ctx context.Context) error {
	wctx := c.display.Context()
	errCh := make(chan error, 1)
	go func() {
		for {
			sender, opcode, fd, data, err := wctx.ReadMsg()
			if err != nil {
				closeFd(fd)
				errCh <- err
				return
			}
			if err := c.post(func() { c.deliver(sender, opcode, fd, data) }); err != nil {
				closeFd(fd)
				errCh <- err
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		c.Close()
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("wayland connection: %w", err)
	}
}

// deliver runs on the dispatch loop.
func (c *Client) deliver(sender, opcode uint32, fd int, data []byte) {
	d, ok := c.display.Context().GetProxy(sender).(client.Dispatcher)
	if !ok {
		// Destroyed objects are unregistered; late events for them are dropped.
		c.log.Debug("event for unknown object",
			slog.Uint64("id", uint64(sender)), slog.Uint64("opcode", uint64(opcode)))
		closeFd(fd)
		return
	}
	d.Dispatch(opcode, fd, data)
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.display.Context().Close()
}

// GetInputMethod creates the input method object for the selected seat.
func (c *Client) GetInputMethod() (InputMethodProtocol, error) {
	im, err := c.imManager.GetInputMethod(c.seat)
	if err != nil {
		return nil, fmt.Errorf("get input method: %w", err)
	}
	return im, nil
}

// CreateVirtualKeyboard creates a virtual keyboard on the selected seat.
func (c *Client) CreateVirtualKeyboard() (vkbd.Endpoint, error) {
	vk, err := c.vkManager.CreateVirtualKeyboard(c.seat)
	if err != nil {
		return nil, fmt.Errorf("create virtual keyboard: %w", err)
	}
	return vk, nil
}
