//go:build linux

package wayland

import (
	"github.com/rajveermalviya/go-wayland/wayland/client"
	"golang.org/x/sys/unix"

	"wlime/internal/keymap"
	"wlime/internal/vkbd"
)

const (
	VirtualKeyboardManagerInterface = "zwp_virtual_keyboard_manager_v1"
	virtualKeyboardManagerVersion   = 1
)

// zwp_virtual_keyboard_manager_v1 requests.
const opVirtualKeyboardManagerCreate uint16 = 0

// zwp_virtual_keyboard_v1 requests.
const (
	opVirtualKeyboardKeymap    uint16 = 0
	opVirtualKeyboardKey       uint16 = 1
	opVirtualKeyboardModifiers uint16 = 2
	opVirtualKeyboardDestroy   uint16 = 3
)

// VirtualKeyboardManager is a bound zwp_virtual_keyboard_manager_v1 global.
type VirtualKeyboardManager struct {
	client.BaseProxy
	conn conn
}

func newVirtualKeyboardManager(ctx conn) *VirtualKeyboardManager {
	m := &VirtualKeyboardManager{conn: ctx}
	ctx.Register(m)
	return m
}

// CreateVirtualKeyboard creates a virtual keyboard on seat. The keyboard
// cannot send keys before it has been given a keymap.
func (m *VirtualKeyboardManager) CreateVirtualKeyboard(seat *client.Seat) (*VirtualKeyboard, error) {
	vk := &VirtualKeyboard{conn: m.conn}
	m.conn.Register(vk)
	err := newRequest(m.ID(), opVirtualKeyboardManagerCreate).
		uint32(seat.ID()).
		uint32(vk.ID()).
		send(m.conn, nil)
	if err != nil {
		return nil, err
	}
	return vk, nil
}

// Dispatch implements client.Dispatcher. The manager has no events.
func (m *VirtualKeyboardManager) Dispatch(opcode uint32, fd int, data []byte) {}

// VirtualKeyboard is a zwp_virtual_keyboard_v1 object.
type VirtualKeyboard struct {
	client.BaseProxy
	conn conn
	dead bool
}

var _ vkbd.Endpoint = (*VirtualKeyboard)(nil)

// Keymap sends the keymap in fd. The descriptor is duplicated by the
// kernel; the caller keeps ownership.
func (vk *VirtualKeyboard) Keymap(format keymap.Format, fd int, size uint32) error {
	return newRequest(vk.ID(), opVirtualKeyboardKeymap).
		uint32(uint32(format)).
		uint32(size).
		send(vk.conn, unix.UnixRights(fd))
}

func (vk *VirtualKeyboard) Key(time uint32, key uint32, state keymap.KeyState) error {
	return newRequest(vk.ID(), opVirtualKeyboardKey).
		uint32(time).
		uint32(key).
		uint32(uint32(state)).
		send(vk.conn, nil)
}

func (vk *VirtualKeyboard) Modifiers(depressed, latched, locked, group uint32) error {
	return newRequest(vk.ID(), opVirtualKeyboardModifiers).
		uint32(depressed).
		uint32(latched).
		uint32(locked).
		uint32(group).
		send(vk.conn, nil)
}

func (vk *VirtualKeyboard) Destroy() error {
	if vk.dead {
		return nil
	}
	vk.dead = true
	defer vk.conn.Unregister(vk)
	return newRequest(vk.ID(), opVirtualKeyboardDestroy).send(vk.conn, nil)
}

// Dispatch implements client.Dispatcher. The keyboard has no events.
func (vk *VirtualKeyboard) Dispatch(opcode uint32, fd int, data []byte) {}
