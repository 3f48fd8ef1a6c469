//go:build linux

package shm

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// Create allocates a region of size bytes. An empty name creates an
// anonymous memfd; a name such as "/wlime-keymap" creates a named segment
// that is unlinked again on Close.
//
// On error nothing is left open, mapped or linked.
func Create(name string, size int) (*Region, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}

	r := &Region{name: name, size: size, fd: -1}

	var err error
	if name == "" {
		r.fd, err = unix.MemfdCreate("wlime-shm", unix.MFD_CLOEXEC)
		if err != nil {
			return nil, fmt.Errorf("memfd_create: %w", err)
		}
	} else {
		r.path, err = segmentPath(name)
		if err != nil {
			return nil, err
		}
		r.fd, err = openExclusive(r.path)
		if err != nil {
			return nil, err
		}
	}

	if err := unix.Ftruncate(r.fd, int64(size)); err != nil {
		r.abandon()
		return nil, fmt.Errorf("ftruncate %d: %w", size, err)
	}

	r.data, err = unix.Mmap(r.fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		r.abandon()
		return nil, fmt.Errorf("mmap: %w", err)
	}

	return r, nil
}

// openExclusive creates path, replacing a segment left behind by a process
// that died before unlinking it.
func openExclusive(path string) (int, error) {
	const flags = unix.O_RDWR | unix.O_CREAT | unix.O_EXCL | unix.O_NOFOLLOW | unix.O_CLOEXEC
	fd, err := unix.Open(path, flags, 0600)
	if errors.Is(err, unix.EEXIST) {
		if err := unix.Unlink(path); err != nil && !errors.Is(err, unix.ENOENT) {
			return -1, fmt.Errorf("unlink stale segment: %w", err)
		}
		fd, err = unix.Open(path, flags, 0600)
	}
	if err != nil {
		return -1, fmt.Errorf("open %s: %w", path, err)
	}
	return fd, nil
}

// abandon releases whatever a failed Create managed to acquire.
func (r *Region) abandon() {
	if r.fd >= 0 {
		unix.Close(r.fd)
		r.fd = -1
	}
	if r.path != "" {
		unix.Unlink(r.path)
	}
}

// Close unmaps the region, closes its descriptor and unlinks named segments.
// Calling Close more than once is a no-op.
func (r *Region) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.data != nil {
		if err := unix.Munmap(r.data); err != nil {
			errs = append(errs, fmt.Errorf("munmap: %w", err))
		}
		r.data = nil
	}
	if r.fd >= 0 {
		if err := unix.Close(r.fd); err != nil {
			errs = append(errs, fmt.Errorf("close: %w", err))
		}
		r.fd = -1
	}
	if r.path != "" {
		if err := unix.Unlink(r.path); err != nil && !errors.Is(err, unix.ENOENT) {
			errs = append(errs, fmt.Errorf("unlink: %w", err))
		}
		r.path = ""
	}
	return errors.Join(errs...)
}

// MapReadOnly maps size bytes of fd privately and read-only.
func MapReadOnly(fd int, size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap keymap: %w", err)
	}
	return data, nil
}

// Unmap releases a mapping returned by MapReadOnly.
func Unmap(data []byte) error {
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}

// CloseFd closes a descriptor received from the compositor.
func CloseFd(fd int) error {
	if fd < 0 {
		return nil
	}
	return unix.Close(fd)
}
