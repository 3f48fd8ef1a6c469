package ipc

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Client calls the service of a running daemon.
type Client struct {
	conn *dbus.Conn
	obj  dbus.BusObject
	own  bool
}

// Dial opens a private session bus connection to the daemon owning
// busName. Empty selects DefaultBusName.
func Dial(busName string) (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}
	c := NewClient(conn, busName)
	c.own = true
	return c, nil
}

// NewClient returns a client using conn. Close does not close conn.
func NewClient(conn *dbus.Conn, busName string) *Client {
	if busName == "" {
		busName = DefaultBusName
	}
	return &Client{conn: conn, obj: conn.Object(busName, ObjectPath)}
}

func (c *Client) call(ctx context.Context, method string, args ...interface{}) *dbus.Call {
	return c.obj.CallWithContext(ctx, Interface+"."+method, 0, args...)
}

func (c *Client) SendString(ctx context.Context, text string) error {
	return fromDBusError(c.call(ctx, "SendString", text).Err)
}

func (c *Client) SendPreedit(ctx context.Context, text string, cursorBegin, cursorEnd int32) error {
	return fromDBusError(c.call(ctx, "SendPreedit", text, cursorBegin, cursorEnd).Err)
}

func (c *Client) DeleteText(ctx context.Context, before, after int32) error {
	return fromDBusError(c.call(ctx, "DeleteText", before, after).Err)
}

func (c *Client) GrabKeyboard(ctx context.Context) error {
	return fromDBusError(c.call(ctx, "GrabKeyboard").Err)
}

func (c *Client) ReleaseKeyboard(ctx context.Context) error {
	return fromDBusError(c.call(ctx, "ReleaseKeyboard").Err)
}

func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.call(ctx, "Status").Store(&st.Active, &st.HasInput, &st.HasKeyboard)
	if err != nil {
		return Status{}, fromDBusError(err)
	}
	return st, nil
}

// WatchActive calls fn for every ActiveChanged signal until ctx is done.
func (c *Client) WatchActive(ctx context.Context, fn func(active bool)) error {
	opts := []dbus.MatchOption{
		dbus.WithMatchObjectPath(ObjectPath),
		dbus.WithMatchInterface(Interface),
		dbus.WithMatchMember(SignalActiveChanged),
	}
	if err := c.conn.AddMatchSignal(opts...); err != nil {
		return fmt.Errorf("add signal match: %w", err)
	}
	defer c.conn.RemoveMatchSignal(opts...)

	signals := make(chan *dbus.Signal, 16)
	c.conn.Signal(signals)
	defer c.conn.RemoveSignal(signals)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case sig, ok := <-signals:
			if !ok {
				return fmt.Errorf("ipc: connection closed")
			}
			if sig.Name != Interface+"."+SignalActiveChanged || len(sig.Body) != 1 {
				continue
			}
			if active, ok := sig.Body[0].(bool); ok {
				fn(active)
			}
		}
	}
}

// Close closes the connection if Dial opened it.
func (c *Client) Close() error {
	if !c.own {
		return nil
	}
	return c.conn.Close()
}
