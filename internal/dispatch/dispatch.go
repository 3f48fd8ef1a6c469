// Package dispatch provides the single goroutine every protocol callback,
// control request and configuration reload runs on.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrStopped is returned when posting to a loop that has finished running.
var ErrStopped = errors.New("dispatch: loop stopped")

// DefaultQueueSize is the number of functions that can be queued before
// Post blocks.
const DefaultQueueSize = 256

// Loop runs posted functions one at a time, in posting order.
type Loop struct {
	queue chan func()
	dead  chan struct{}
	once  sync.Once
	// running is closed when Run starts.
	running chan struct{}
}

// New returns a loop with the given queue size. A size <= 0 selects
// DefaultQueueSize.
func New(size int) *Loop {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Loop{
		queue:   make(chan func(), size),
		dead:    make(chan struct{}),
		running: make(chan struct{}),
	}
}

// Post queues fn. It does not wait for fn to run. Functions posted before
// Run starts are run once it does.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.dead:
		return ErrStopped
	default:
	}
	select {
	case l.queue <- fn:
		return nil
	case <-l.dead:
		return ErrStopped
	}
}

// Call runs fn on the loop and waits for it to return. It must not be
// called from the loop itself.
func (l *Loop) Call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	wrapped := func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("dispatch: panic: %v", r)
			}
		}()
		done <- fn()
	}

	select {
	case l.queue <- wrapped:
	case <-l.dead:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-done:
		return err
	case <-l.dead:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued functions until ctx is done and returns ctx.Err().
// Functions still queued at that point are dropped. Run may be called once.
func (l *Loop) Run(ctx context.Context) error {
	started := false
	l.once.Do(func() {
		close(l.running)
		started = true
	})
	if !started {
		return errors.New("dispatch: loop already running")
	}
	defer close(l.dead)

	for {
		select {
		case fn := <-l.queue:
			fn()
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Running is closed once Run has been called.
func (l *Loop) Running() <-chan struct{} { return l.running }

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} { return l.dead }
