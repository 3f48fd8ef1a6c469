//go:build linux

package wayland

import (
	"context"
	"io"
	"log/slog"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/rajveermalviya/go-wayland/wayland/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wlime/internal/dispatch"
)

// wireEvent encodes one server-to-client message.
func wireEvent(sender uint32, opcode uint16, payload []byte) []byte {
	b := make([]byte, 8+len(payload))
	client.PutUint32(b[0:4], sender)
	client.PutUint32(b[4:8], uint32(len(b))<<16|uint32(opcode))
	copy(b[8:], payload)
	return b
}

// connectFake connects a go-wayland display to a socket served by the test.
// Requests from the client are discarded.
func connectFake(t *testing.T) (*client.Display, *net.UnixConn) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wayland-test")
	ln, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	accepted := make(chan *net.UnixConn, 1)
	go func() {
		conn, err := ln.AcceptUnix()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- conn
	}()

	display, err := client.Connect(path)
	require.NoError(t, err)
	t.Cleanup(func() { display.Context().Close() })

	server, ok := <-accepted
	require.True(t, ok)
	t.Cleanup(func() { server.Close() })
	go io.Copy(io.Discard, server)
	return display, server
}

func runLoop(t *testing.T) *dispatch.Loop {
	t.Helper()
	loop := dispatch.New(dispatch.DefaultQueueSize)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		loop.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop
}

func TestRunDecodesOnDispatchLoop(t *testing.T) {
	display, server := connectFake(t)
	loop := runLoop(t)
	wctx := display.Context()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := &Client{display: display, post: loop.Post, log: log}

	var (
		im *InputMethod
		h  = &recordingHandler{}
	)
	require.NoError(t, loop.Call(context.Background(), func() error {
		seat := client.NewSeat(wctx)
		mgr := newInputMethodManager(wctx, log)
		var err error
		im, err = mgr.GetInputMethod(seat)
		if err != nil {
			return err
		}
		im.SetHandler(h)
		return nil
	}))
	imID := im.ID()

	runCtx, stop := context.WithCancel(context.Background())
	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(runCtx) }()

	// The compositor streams wl_display.delete_id while the loop keeps
	// creating and destroying objects.
	const rounds = 2000
	written := make(chan error, 1)
	go func() {
		for i := 0; i < rounds; i++ {
			if _, err := server.Write(wireEvent(display.ID(), 1, args(uint32(1000+i)))); err != nil {
				written <- err
				return
			}
		}
		if _, err := server.Write(wireEvent(9999, 0, nil)); err != nil {
			written <- err
			return
		}
		if _, err := server.Write(wireEvent(imID, evInputMethodActivate, nil)); err != nil {
			written <- err
			return
		}
		_, err := server.Write(wireEvent(imID, evInputMethodDone, nil))
		written <- err
	}()

	for i := 0; i < rounds/4; i++ {
		require.NoError(t, loop.Call(context.Background(), func() error {
			vk, err := newVirtualKeyboardManager(wctx).CreateVirtualKeyboard(client.NewSeat(wctx))
			if err != nil {
				return err
			}
			return vk.Destroy()
		}))
	}
	require.NoError(t, <-written)

	require.Eventually(t, func() bool {
		var calls []string
		_ = loop.Call(context.Background(), func() error {
			calls = append(calls, h.calls...)
			return nil
		})
		return len(calls) == 2
	}, 5*time.Second, 10*time.Millisecond)

	var calls []string
	require.NoError(t, loop.Call(context.Background(), func() error {
		calls = h.calls
		return nil
	}))
	assert.Equal(t, []string{"activate", "done"}, calls)

	select {
	case err := <-runErr:
		t.Fatalf("Run ended early: %v", err)
	default:
	}

	stop()
	select {
	case err := <-runErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRunReportsClosedConnection(t *testing.T) {
	display, server := connectFake(t)
	loop := runLoop(t)
	c := &Client{display: display, post: loop.Post, log: slog.New(slog.NewTextHandler(io.Discard, nil))}

	runErr := make(chan error, 1)
	go func() { runErr <- c.Run(context.Background()) }()
	require.NoError(t, server.Close())

	select {
	case err := <-runErr:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not notice the closed connection")
	}
}
