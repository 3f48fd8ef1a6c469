//go:build !linux || !cgo

package keymap

// XKBCompiler is unavailable without cgo on Linux.
type XKBCompiler struct{}

func NewXKBCompiler() (*XKBCompiler, error) {
	return nil, ErrUnsupported
}

func (c *XKBCompiler) Compile(data []byte) (Keymap, error) {
	return nil, ErrUnsupported
}

func (c *XKBCompiler) Close() error { return nil }
