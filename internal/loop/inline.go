package loop

import (
	"time"

	"github.com/uminmay/collaborative-ai-editor/internal/clock"
)

// Inline is a Scheduler that runs callbacks on the caller's goroutine. With a
// clock.FakeClock, timers fire during Advance, which makes every interleaving
// of timers and frames reproducible in tests. Inline is not safe for
// concurrent use.
type Inline struct {
	clock   clock.Clock
	queue   []func()
	running bool
}

// NewInline creates an Inline scheduler on c.
func NewInline(c clock.Clock) *Inline {
	return &Inline{clock: c}
}

// Post runs f now, or after the callback currently running returns.
func (s *Inline) Post(f func()) {
	s.queue = append(s.queue, f)
	if s.running {
		return
	}
	s.running = true
	defer func() { s.running = false }()
	for len(s.queue) > 0 {
		next := s.queue[0]
		s.queue = s.queue[1:]
		next()
	}
}

// AfterFunc implements Scheduler.
func (s *Inline) AfterFunc(d time.Duration, f func()) *Timer {
	return afterFunc(s.clock, s.Post, d, f)
}

// Now implements Scheduler.
func (s *Inline) Now() time.Time {
	return s.clock.Now()
}
