package main

import (
	"context"
	"time"

	"wlime/internal/dispatch"
	"wlime/internal/ime"
	"wlime/internal/ipc"
)

const callTimeout = 2 * time.Second

// controller runs D-Bus requests on the dispatch loop.
type controller struct {
	loop *dispatch.Loop
	im   func() *ime.InputMethod
}

var _ ipc.Controller = (*controller)(nil)

func (c *controller) call(fn func(im *ime.InputMethod) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
	defer cancel()
	return c.loop.Call(ctx, func() error {
		im := c.im()
		if im == nil {
			return ime.ErrNoInput
		}
		return fn(im)
	})
}

func (c *controller) SendString(text string) error {
	return c.call(func(im *ime.InputMethod) error { return im.SendString(text) })
}

func (c *controller) SendPreedit(text string, cursorBegin, cursorEnd int32) error {
	return c.call(func(im *ime.InputMethod) error {
		return im.SendPreeditString(text, cursorBegin, cursorEnd)
	})
}

func (c *controller) DeleteText(before, after int32) error {
	return c.call(func(im *ime.InputMethod) error {
		return im.DeleteText(int(before), int(after))
	})
}

func (c *controller) GrabKeyboard() error {
	return c.call(func(im *ime.InputMethod) error {
		if err := im.GetInput(); err != nil {
			return ime.ErrNoInput
		}
		return im.GrabKeyboard()
	})
}

func (c *controller) ReleaseKeyboard() error {
	return c.call(func(im *ime.InputMethod) error {
		im.ReleaseKeyboard()
		return nil
	})
}

func (c *controller) Status() (ipc.Status, error) {
	var st ipc.Status
	err := c.call(func(im *ime.InputMethod) error {
		st = ipc.Status{
			Active:      im.IsActive(),
			HasInput:    im.HasInput(),
			HasKeyboard: im.HasKeyboard(),
		}
		return nil
	})
	return st, err
}
