//go:build !linux

package shm

// Create is only implemented on Linux.
func Create(name string, size int) (*Region, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if name != "" {
		if _, err := segmentPath(name); err != nil {
			return nil, err
		}
	}
	return nil, ErrUnsupported
}

// Close is a no-op; no Region can be created here.
func (r *Region) Close() error { return nil }

func MapReadOnly(fd int, size int) ([]byte, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	return nil, ErrUnsupported
}

func Unmap(data []byte) error { return nil }

func CloseFd(fd int) error {
	if fd < 0 {
		return nil
	}
	return ErrUnsupported
}
