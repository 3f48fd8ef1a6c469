package ipc

import (
	"fmt"
	"log/slog"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// Controller performs the requests received over D-Bus. Implementations
// must be safe for concurrent use; godbus calls methods from its own
// goroutines.
type Controller interface {
	SendString(text string) error
	SendPreedit(text string, cursorBegin, cursorEnd int32) error
	DeleteText(before, after int32) error
	GrabKeyboard() error
	ReleaseKeyboard() error
	Status() (Status, error)
}

// ServiceConfig configures a Service.
type ServiceConfig struct {
	// BusName is the well-known name to request. Empty selects
	// DefaultBusName.
	BusName string
	Logger  *slog.Logger
}

// Service exports a Controller on a bus connection.
type Service struct {
	conn    *dbus.Conn
	busName string
	obj     *object
	log     *slog.Logger
}

// object holds the exported methods. godbus exports every method whose
// last result is *dbus.Error.
type object struct {
	ctrl Controller
	log  *slog.Logger
}

func (o *object) SendString(text string) *dbus.Error {
	o.log.Debug("send string", slog.String("text", text))
	return o.reply("SendString", o.ctrl.SendString(text))
}

func (o *object) SendPreedit(text string, cursorBegin, cursorEnd int32) *dbus.Error {
	return o.reply("SendPreedit", o.ctrl.SendPreedit(text, cursorBegin, cursorEnd))
}

func (o *object) DeleteText(before, after int32) *dbus.Error {
	if before < 0 || after < 0 {
		return dbus.NewError(ErrorInvalidArgs, []interface{}{"lengths must not be negative"})
	}
	return o.reply("DeleteText", o.ctrl.DeleteText(before, after))
}

func (o *object) GrabKeyboard() *dbus.Error {
	return o.reply("GrabKeyboard", o.ctrl.GrabKeyboard())
}

func (o *object) ReleaseKeyboard() *dbus.Error {
	return o.reply("ReleaseKeyboard", o.ctrl.ReleaseKeyboard())
}

func (o *object) Status() (bool, bool, bool, *dbus.Error) {
	st, err := o.ctrl.Status()
	if err != nil {
		return false, false, false, o.reply("Status", err)
	}
	return st.Active, st.HasInput, st.HasKeyboard, nil
}

func (o *object) reply(method string, err error) *dbus.Error {
	if err != nil {
		o.log.Debug("request failed", slog.String("method", method), slog.Any("error", err))
	}
	return toDBusError(err)
}

const introspectMethods = `
	<interface name="` + Interface + `">
		<method name="SendString">
			<arg name="text" type="s" direction="in"/>
		</method>
		<method name="SendPreedit">
			<arg name="text" type="s" direction="in"/>
			<arg name="cursor_begin" type="i" direction="in"/>
			<arg name="cursor_end" type="i" direction="in"/>
		</method>
		<method name="DeleteText">
			<arg name="before" type="i" direction="in"/>
			<arg name="after" type="i" direction="in"/>
		</method>
		<method name="GrabKeyboard"/>
		<method name="ReleaseKeyboard"/>
		<method name="Status">
			<arg name="active" type="b" direction="out"/>
			<arg name="has_input" type="b" direction="out"/>
			<arg name="has_keyboard" type="b" direction="out"/>
		</method>
		<signal name="` + SignalActiveChanged + `">
			<arg name="active" type="b"/>
		</signal>
	</interface>`

const introspectXML = `<node>` + introspectMethods + introspect.IntrospectDataString + `</node>`

// NewService returns a service for ctrl on conn. Call Start to export it.
func NewService(conn *dbus.Conn, ctrl Controller, cfg ServiceConfig) *Service {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "ipc"))
	name := cfg.BusName
	if name == "" {
		name = DefaultBusName
	}
	return &Service{
		conn:    conn,
		busName: name,
		obj:     &object{ctrl: ctrl, log: log},
		log:     log,
	}
}

// Start exports the object and requests the bus name.
func (s *Service) Start() error {
	if err := s.conn.Export(s.obj, ObjectPath, Interface); err != nil {
		return fmt.Errorf("export object: %w", err)
	}
	if err := s.conn.Export(introspect.Introspectable(introspectXML), ObjectPath,
		"org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("export introspection: %w", err)
	}

	reply, err := s.conn.RequestName(s.busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("request bus name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%w: %s", ErrNameTaken, s.busName)
	}
	s.log.Info("service started", slog.String("bus_name", s.busName))
	return nil
}

// Stop releases the bus name and unexports the object.
func (s *Service) Stop() error {
	if _, err := s.conn.ReleaseName(s.busName); err != nil {
		return fmt.Errorf("release bus name: %w", err)
	}
	s.conn.Export(nil, ObjectPath, Interface)
	s.conn.Export(nil, ObjectPath, "org.freedesktop.DBus.Introspectable")
	return nil
}

// EmitActiveChanged broadcasts the ActiveChanged signal.
func (s *Service) EmitActiveChanged(active bool) error {
	return s.conn.Emit(ObjectPath, Interface+"."+SignalActiveChanged, active)
}
