//go:build linux

package wayland

import (
	"errors"
	"fmt"

	"github.com/rajveermalviya/go-wayland/wayland/client"
)

// errShortMessage is reported when an event carries fewer bytes than its
// signature requires.
var errShortMessage = errors.New("wayland: short message")

// conn is the part of *client.Context the protocol objects use.
type conn interface {
	Register(p client.Proxy)
	Unregister(p client.Proxy)
	WriteMsg(b []byte, oob []byte) error
}

// request encodes one wire request: an 8 byte header followed by 32-bit
// aligned arguments.
type request struct {
	buf []byte
}

func newRequest(sender uint32, opcode uint16) *request {
	r := &request{buf: make([]byte, 8, 32)}
	client.PutUint32(r.buf[0:4], sender)
	client.PutUint32(r.buf[4:8], uint32(opcode))
	return r
}

func (r *request) uint32(v uint32) *request {
	var b [4]byte
	client.PutUint32(b[:], v)
	r.buf = append(r.buf, b[:]...)
	return r
}

func (r *request) int32(v int32) *request { return r.uint32(uint32(v)) }

// string appends a length-prefixed, NUL-terminated and padded string.
func (r *request) string(s string) *request {
	n := len(s) + 1
	r.uint32(uint32(n))
	r.buf = append(r.buf, s...)
	r.buf = append(r.buf, make([]byte, paddedLen(n)-len(s))...)
	return r
}

// bytes returns the message with the size written into the header.
func (r *request) bytes() []byte {
	opcode := client.Uint32(r.buf[4:8]) & 0xffff
	client.PutUint32(r.buf[4:8], uint32(len(r.buf))<<16|opcode)
	return r.buf
}

func (r *request) send(c conn, oob []byte) error {
	return c.WriteMsg(r.bytes(), oob)
}

func paddedLen(n int) int {
	return (n + 3) &^ 3
}

// decoder reads event arguments. The first error sticks.
type decoder struct {
	data []byte
	err  error
}

func (d *decoder) uint32() uint32 {
	if d.err != nil {
		return 0
	}
	if len(d.data) < 4 {
		d.err = errShortMessage
		return 0
	}
	v := client.Uint32(d.data[:4])
	d.data = d.data[4:]
	return v
}

func (d *decoder) int32() int32 { return int32(d.uint32()) }

func (d *decoder) string() string {
	n := int(d.uint32())
	if d.err != nil || n == 0 {
		return ""
	}
	padded := paddedLen(n)
	if len(d.data) < padded {
		d.err = fmt.Errorf("%w: string of %d bytes", errShortMessage, n)
		return ""
	}
	s := string(d.data[:n-1])
	d.data = d.data[padded:]
	return s
}
