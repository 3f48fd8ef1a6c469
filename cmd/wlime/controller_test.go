package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wlime/internal/dispatch"
	"wlime/internal/ime"
	"wlime/internal/ipc"
	"wlime/internal/session"
)

var errNoCompositor = errors.New("no compositor")

type failingProvider struct{ acquired int }

func (p *failingProvider) AcquireInput() (*session.Session, error) {
	p.acquired++
	return nil, errNoCompositor
}

func (p *failingProvider) ReleaseInput() {}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runLoop(t *testing.T) *dispatch.Loop {
	t.Helper()
	loop := dispatch.New(0)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})
	<-loop.Running()
	return loop
}

func TestControllerWithoutInputMethod(t *testing.T) {
	c := &controller{loop: runLoop(t), im: func() *ime.InputMethod { return nil }}

	assert.ErrorIs(t, c.SendString("x"), ime.ErrNoInput)
	assert.ErrorIs(t, c.GrabKeyboard(), ime.ErrNoInput)
	_, err := c.Status()
	assert.ErrorIs(t, err, ime.ErrNoInput)
}

func TestControllerWithoutInput(t *testing.T) {
	loop := runLoop(t)
	provider := &failingProvider{}

	var im *ime.InputMethod
	require.NoError(t, loop.Call(context.Background(), func() error {
		im = ime.New(provider, ime.Options{
			KeyboardFactory: ime.TextEditFactory(nil),
			Logger:          quietLogger(),
		})
		return nil
	}))
	c := &controller{loop: loop, im: func() *ime.InputMethod { return im }}

	st, err := c.Status()
	require.NoError(t, err)
	assert.Equal(t, ipc.Status{}, st)

	// Editing requests are no-ops while inactive.
	assert.NoError(t, c.SendString("hello"))
	assert.NoError(t, c.SendPreedit("he", 2, 2))
	assert.NoError(t, c.DeleteText(1, 0))

	// Grabbing retries the input before failing.
	before := provider.acquired
	assert.ErrorIs(t, c.GrabKeyboard(), ime.ErrNoInput)
	assert.Equal(t, before+1, provider.acquired)

	assert.NoError(t, c.ReleaseKeyboard())
}

func TestControllerAfterLoopStopped(t *testing.T) {
	loop := dispatch.New(0)
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)
	<-loop.Running()
	cancel()
	<-loop.Done()

	c := &controller{loop: loop, im: func() *ime.InputMethod { return nil }}
	assert.ErrorIs(t, c.ReleaseKeyboard(), dispatch.ErrStopped)
}
