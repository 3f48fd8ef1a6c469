//go:build linux

package vkbd

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wlime/internal/keymap"
	"wlime/internal/keymap/keymaptest"
	"wlime/internal/shm"
)

type sentKey struct {
	time  uint32
	key   uint32
	state keymap.KeyState
}

type fakeEndpoint struct {
	keymaps   [][]byte
	formats   []keymap.Format
	keys      []sentKey
	mods      [][4]uint32
	destroyed int

	keymapErr error
}

func (e *fakeEndpoint) Keymap(format keymap.Format, fd int, size uint32) error {
	if e.keymapErr != nil {
		return e.keymapErr
	}
	data, err := shm.MapReadOnly(fd, int(size))
	if err != nil {
		return err
	}
	defer shm.Unmap(data)
	e.formats = append(e.formats, format)
	e.keymaps = append(e.keymaps, append([]byte(nil), data...))
	return nil
}

func (e *fakeEndpoint) Key(time uint32, key uint32, state keymap.KeyState) error {
	e.keys = append(e.keys, sentKey{time, key, state})
	return nil
}

func (e *fakeEndpoint) Modifiers(depressed, latched, locked, group uint32) error {
	e.mods = append(e.mods, [4]uint32{depressed, latched, locked, group})
	return nil
}

func (e *fakeEndpoint) Destroy() error {
	e.destroyed++
	return nil
}

func fixedClock() time.Time { return time.UnixMilli(123456) }

func TestNewTransmitsKeymap(t *testing.T) {
	ep := &fakeEndpoint{}
	km := keymaptest.New("us")

	k := New(ep, km, WithClock(fixedClock))

	require.True(t, k.Usable())
	require.Len(t, ep.keymaps, 1)
	assert.Equal(t, keymap.FormatXKBV1, ep.formats[0])
	assert.Equal(t, append(km.Text, 0), ep.keymaps[0])
}

func TestSetKeymapSkipsEqual(t *testing.T) {
	ep := &fakeEndpoint{}
	k := New(ep, keymaptest.New("us"))

	next := keymaptest.New("us")
	k.SetKeymap(next)
	assert.Len(t, ep.keymaps, 1)
	assert.Same(t, next, k.Keymap())

	k.SetKeymap(keymaptest.New("de"))
	assert.Len(t, ep.keymaps, 2)
}

func TestSetKeymapSkipsInvalid(t *testing.T) {
	ep := &fakeEndpoint{}
	k := New(ep, nil)
	assert.False(t, k.Usable())

	closed := keymaptest.New("us")
	closed.Close()
	k.SetKeymap(closed)
	assert.False(t, k.Usable())
	assert.Empty(t, ep.keymaps)
}

func TestSendKeyWireOffset(t *testing.T) {
	ep := &fakeEndpoint{}
	k := New(ep, keymaptest.New("us"), WithClock(fixedClock))

	k.SendKey(keymaptest.CodeA, keymap.Pressed)
	k.SendKey(keymaptest.CodeA, keymap.Released)

	require.Len(t, ep.keys, 2)
	assert.Equal(t, sentKey{123456, 30, keymap.Pressed}, ep.keys[0])
	assert.Equal(t, sentKey{123456, 30, keymap.Released}, ep.keys[1])
}

func TestSendKeyInvalidKeycode(t *testing.T) {
	ep := &fakeEndpoint{}
	k := New(ep, keymaptest.New("us"))

	k.SendKey(keymap.InvalidKeycode, keymap.Pressed)
	assert.Empty(t, ep.keys)
}

func TestUnusableDropsSends(t *testing.T) {
	ep := &fakeEndpoint{keymapErr: errors.New("broken pipe")}
	k := New(ep, keymaptest.New("us"))

	require.False(t, k.Usable())
	assert.Nil(t, k.Keymap())
	k.SendKey(keymaptest.CodeA, keymap.Pressed)
	k.SendModifiers()
	assert.Empty(t, ep.keys)
	assert.Empty(t, ep.mods)

	// A later successful transfer makes the channel usable.
	ep.keymapErr = nil
	k.SetKeymap(keymaptest.New("de"))
	assert.True(t, k.Usable())
}

func TestFailedTransferKeepsUsable(t *testing.T) {
	ep := &fakeEndpoint{}
	k := New(ep, keymaptest.New("us"))
	require.True(t, k.Usable())

	ep.keymapErr = errors.New("broken pipe")
	k.SetKeymap(keymaptest.New("de"))
	assert.True(t, k.Usable())
}

func TestFailedTransferKeepsLastKeymap(t *testing.T) {
	ep := &fakeEndpoint{}
	us := keymaptest.New("us")
	k := New(ep, us)

	ep.keymapErr = errors.New("broken pipe")
	k.SetKeymap(keymaptest.New("de"))
	assert.Same(t, us, k.Keymap())

	// The layout the compositor never received is sent once it recovers.
	ep.keymapErr = nil
	de := keymaptest.New("de")
	k.SetKeymap(de)
	assert.Len(t, ep.keymaps, 2)
	assert.Same(t, de, k.Keymap())
}

func TestSharedMemoryFailure(t *testing.T) {
	ep := &fakeEndpoint{}
	k := New(ep, keymaptest.New("us"), WithShmName("bad/name"))

	assert.False(t, k.Usable())
	assert.Empty(t, ep.keymaps)
}

func TestNamedSegment(t *testing.T) {
	dir := t.TempDir()
	old := shm.Dir
	shm.Dir = dir
	t.Cleanup(func() { shm.Dir = old })

	ep := &fakeEndpoint{}
	k := New(ep, keymaptest.New("us"), WithShmName("/wlime-test"))

	require.True(t, k.Usable())
	assert.NoFileExists(t, dir+"/wlime-test")
}

func TestSendModifiers(t *testing.T) {
	ep := &fakeEndpoint{}
	km := keymaptest.New("us")
	k := New(ep, km)

	km.SetModifiers(keymap.Modifiers{Depressed: 1, Locked: 2, Group: 1})
	k.SendModifiers()

	require.Len(t, ep.mods, 1)
	assert.Equal(t, [4]uint32{1, 0, 2, 1}, ep.mods[0])
}

func TestClose(t *testing.T) {
	ep := &fakeEndpoint{}
	km := keymaptest.New("us")
	k := New(ep, km)

	require.NoError(t, k.Close())
	require.NoError(t, k.Close())
	assert.Equal(t, 1, ep.destroyed)
	assert.False(t, k.Usable())
	assert.False(t, km.Closed())

	k.SendKey(keymaptest.CodeA, keymap.Pressed)
	assert.Empty(t, ep.keys)
}
