//go:build linux

package shm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func useTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old := Dir
	Dir = dir
	t.Cleanup(func() { Dir = old })
	return dir
}

func TestCreateAnonymous(t *testing.T) {
	r, err := Create("", 16)
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.Valid())
	assert.GreaterOrEqual(t, r.Fd(), 0)
	assert.Equal(t, 16, r.Size())
	assert.Empty(t, r.Name())

	n, err := r.Write([]byte("xkb_keymap {}\x00"))
	require.NoError(t, err)
	assert.Equal(t, 14, n)

	// The data must be visible through the descriptor.
	got, err := MapReadOnly(r.Fd(), r.Size())
	require.NoError(t, err)
	defer Unmap(got)
	assert.Equal(t, "xkb_keymap {}\x00", string(got[:14]))
}

func TestCreateNamedUnlinksOnClose(t *testing.T) {
	dir := useTempDir(t)

	r, err := Create("/wlime-test", 8)
	require.NoError(t, err)
	assert.True(t, r.Valid())
	assert.Equal(t, "/wlime-test", r.Name())

	_, err = os.Stat(filepath.Join(dir, "wlime-test"))
	require.NoError(t, err, "named segment should exist while open")

	require.NoError(t, r.Close())
	assert.False(t, r.Valid())
	assert.Equal(t, -1, r.Fd())

	_, err = os.Stat(filepath.Join(dir, "wlime-test"))
	assert.True(t, os.IsNotExist(err), "named segment should be unlinked")
}

func TestCreateNamedReplacesStaleSegment(t *testing.T) {
	dir := useTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stale"), []byte("left over"), 0600))

	r, err := Create("/stale", 4)
	require.NoError(t, err)
	defer r.Close()
	assert.True(t, r.Valid())
}

func TestCreateFailureLeavesNothing(t *testing.T) {
	dir := useTempDir(t)

	tests := []struct {
		name    string
		segment string
		size    int
		wantErr error
	}{
		{"zero size", "", 0, ErrInvalidSize},
		{"negative size", "/neg", -1, ErrInvalidSize},
		{"nested name", "/a/b", 8, ErrInvalidName},
		{"dot dot", "/..", 8, ErrInvalidName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Create(tt.segment, tt.size)
			assert.Nil(t, r)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteTooLarge(t *testing.T) {
	r, err := Create("", 4)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Write([]byte("12345"))
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestCloseIsIdempotent(t *testing.T) {
	r, err := Create("", 4)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())

	_, err = r.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestNilRegion(t *testing.T) {
	var r *Region
	assert.False(t, r.Valid())
	assert.Equal(t, -1, r.Fd())
	assert.NoError(t, r.Close())
}

func TestMapReadOnlyInvalidSize(t *testing.T) {
	_, err := MapReadOnly(0, 0)
	assert.ErrorIs(t, err, ErrInvalidSize)
	assert.NoError(t, Unmap(nil))
}

func TestCloseFd(t *testing.T) {
	r, err := Create("", 16)
	require.NoError(t, err)
	defer r.Close()

	fd, err := unix.Dup(r.Fd())
	require.NoError(t, err)
	require.NoError(t, CloseFd(fd))
	assert.Error(t, CloseFd(fd), "descriptor already closed")
	assert.NoError(t, CloseFd(-1))
}
