// Package ipc exposes the running input method on the D-Bus session bus
// and provides the client used by wlimectl.
//
// The service is exported at ObjectPath with interface Interface:
//
//	SendString(text s)
//	SendPreedit(text s, cursor_begin i, cursor_end i)
//	DeleteText(before i, after i)
//	GrabKeyboard()
//	ReleaseKeyboard()
//	Status() -> (active b, has_input b, has_keyboard b)
//	signal ActiveChanged(active b)
package ipc

import (
	"errors"

	"github.com/godbus/dbus/v5"

	"wlime/internal/ime"
)

const (
	// DefaultBusName is the well-known name the daemon requests.
	DefaultBusName = "org.wlime.InputMethod"
	// ObjectPath is where the service object lives.
	ObjectPath dbus.ObjectPath = "/org/wlime/InputMethod"
	// Interface is the service interface name.
	Interface = "org.wlime.InputMethod1"

	SignalActiveChanged = "ActiveChanged"
)

// D-Bus error names.
const (
	ErrorNoInput         = Interface + ".Error.NoInput"
	ErrorNoKeyboard      = Interface + ".Error.NoKeyboardFactory"
	ErrorKeyboardGrabbed = Interface + ".Error.KeyboardGrabbed"
	ErrorInvalidArgs     = Interface + ".Error.InvalidArgs"
	ErrorFailed          = Interface + ".Error.Failed"
)

// ErrNameTaken is returned when another process owns the bus name.
var ErrNameTaken = errors.New("ipc: bus name already taken")

// Status is the reply of the Status method.
type Status struct {
	Active      bool
	HasInput    bool
	HasKeyboard bool
}

var errorNames = []struct {
	err  error
	name string
}{
	{ime.ErrNoInput, ErrorNoInput},
	{ime.ErrNoKeyboardFactory, ErrorNoKeyboard},
	{ime.ErrKeyboardGrabbed, ErrorKeyboardGrabbed},
}

// toDBusError converts a controller error to a D-Bus error reply.
func toDBusError(err error) *dbus.Error {
	if err == nil {
		return nil
	}
	for _, e := range errorNames {
		if errors.Is(err, e.err) {
			return dbus.NewError(e.name, []interface{}{err.Error()})
		}
	}
	return dbus.NewError(ErrorFailed, []interface{}{err.Error()})
}

// fromDBusError converts an error reply back to the matching sentinel
// error where there is one.
func fromDBusError(err error) error {
	var dbusErr dbus.Error
	if !errors.As(err, &dbusErr) {
		var ptr *dbus.Error
		if !errors.As(err, &ptr) || ptr == nil {
			return err
		}
		dbusErr = *ptr
	}
	for _, e := range errorNames {
		if dbusErr.Name == e.name {
			return e.err
		}
	}
	return err
}
