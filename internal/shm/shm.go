// Package shm manages the shared-memory segments used to hand keymaps across
// the Wayland connection.
//
// A Region is created, written once, and released by the code path that
// transfers it. Keymaps received from the compositor are mapped read-only
// with MapReadOnly and unmapped as soon as they have been compiled.
package shm

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Dir is where named segments live. Exposed for tests.
var Dir = "/dev/shm"

var (
	// ErrTooLarge is returned when a write exceeds the region size.
	ErrTooLarge = errors.New("shm: write exceeds region size")
	// ErrClosed is returned when using a region after Close.
	ErrClosed = errors.New("shm: region closed")
	// ErrInvalidSize is returned for non-positive sizes.
	ErrInvalidSize = errors.New("shm: invalid size")
	// ErrInvalidName is returned for names that are not a single path element.
	ErrInvalidName = errors.New("shm: invalid segment name")
	// ErrUnsupported is returned on platforms without memfd and mmap.
	ErrUnsupported = errors.New("shm: not supported on this platform")
)

// noCopy lets go vet's copylocks check flag copies of a Region.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Region is a writable shared-memory mapping backed by a file descriptor.
// A Region has exactly one owner; it must not be copied.
type Region struct {
	noCopy noCopy

	name string
	path string
	size int
	fd   int
	data []byte
}

// Valid reports whether the region was fully acquired and is still open.
func (r *Region) Valid() bool {
	return r != nil && r.fd >= 0 && r.data != nil
}

// Fd returns the descriptor backing the region, or -1 once closed.
func (r *Region) Fd() int {
	if r == nil {
		return -1
	}
	return r.fd
}

// Size returns the size the region was created with.
func (r *Region) Size() int { return r.size }

// Name returns the segment name; empty for anonymous regions.
func (r *Region) Name() string { return r.name }

// Write copies p to the start of the mapping.
func (r *Region) Write(p []byte) (int, error) {
	if !r.Valid() {
		return 0, ErrClosed
	}
	if len(p) > len(r.data) {
		return 0, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(p), len(r.data))
	}
	return copy(r.data, p), nil
}

func segmentPath(name string) (string, error) {
	base := strings.TrimPrefix(name, "/")
	if base == "" || strings.Contains(base, "/") || base == "." || base == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return filepath.Join(Dir, base), nil
}

