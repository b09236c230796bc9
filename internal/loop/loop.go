// Package loop provides the single logical thread the editor client runs on.
// Inbound frames, timer callbacks and UI calls are all funnelled through a
// Scheduler so that components never need locks.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/uminmay/collaborative-ai-editor/internal/clock"
)

// ErrStopped is returned by Call once the loop has stopped.
var ErrStopped = errors.New("event loop stopped")

// Scheduler runs callbacks one at a time, in the order they were posted.
type Scheduler interface {
	// Post queues f to run on the loop. It never blocks.
	Post(f func())

	// AfterFunc runs f on the loop once d has elapsed, unless the returned
	// Timer is stopped first.
	AfterFunc(d time.Duration, f func()) *Timer

	// Now returns the scheduler's current time.
	Now() time.Time
}

// Timer is a pending callback. Once Stop returns the callback is guaranteed
// not to run, even if its deadline already passed and it is sitting in the
// queue.
type Timer struct {
	timer   *clock.Timer
	stopped atomic.Bool
}

// Stop cancels the callback. Safe to call on a nil Timer.
func (t *Timer) Stop() {
	if t == nil {
		return
	}
	t.stopped.Store(true)
	if t.timer != nil {
		t.timer.Stop()
	}
}

func afterFunc(c clock.Clock, post func(func()), d time.Duration, f func()) *Timer {
	t := &Timer{}
	t.timer = c.AfterFunc(d, func() {
		post(func() {
			if t.stopped.Load() {
				return
			}
			f()
		})
	})
	return t
}

// Loop is a Scheduler backed by a goroutine started with Run.
type Loop struct {
	clock clock.Clock

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	done    chan struct{}
	stopped bool
}

// New creates a Loop. A nil clock means real time.
func New(c clock.Clock) *Loop {
	if c == nil {
		c = clock.Real()
	}
	return &Loop{
		clock: c,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Post queues f. Calls after Stop are dropped.
func (l *Loop) Post(f func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc implements Scheduler.
func (l *Loop) AfterFunc(d time.Duration, f func()) *Timer {
	return afterFunc(l.clock, l.Post, d, f)
}

// Now implements Scheduler.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Call runs f on the loop and waits for it to finish.
func (l *Loop) Call(ctx context.Context, f func()) error {
	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		f()
	})
	select {
	case <-finished:
		return nil
	case <-l.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes callbacks until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return ctx.Err()
		case <-l.done:
			return nil
		case <-l.wake:
		}

		for {
			f, ok := l.next()
			if !ok {
				break
			}
			f()
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || len(l.queue) == 0 {
		return nil, false
	}
	f := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return f, true
}

// Stop ends Run and discards queued callbacks.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	l.stopped = true
	l.queue = nil
	close(l.done)
}
