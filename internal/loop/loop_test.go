package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/uminmay/collaborative-ai-editor/internal/clock"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestLoopRunsInPostOrder(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 100; i++ {
		i := i
		l.Post(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	if err := l.Call(ctx, func() {}); err != nil {
		t.Fatalf("Call failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 100 {
		t.Fatalf("expected 100 callbacks, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("callback %d ran at position %d", v, i)
		}
	}
}

func TestLoopCallAfterStop(t *testing.T) {
	l := New(nil)
	l.Stop()
	if err := l.Call(context.Background(), func() {}); err != ErrStopped {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
}

func TestLoopTimerFires(t *testing.T) {
	l := New(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	fired := make(chan struct{})
	l.AfterFunc(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestInlineTimerStopPreventsQueuedCallback(t *testing.T) {
	c := clock.Fake(epoch)
	s := NewInline(c)

	var timer *Timer
	fired := false
	// The first callback stops the second one, which is already due in the
	// same Advance.
	s.AfterFunc(time.Second, func() { timer.Stop() })
	timer = s.AfterFunc(time.Second, func() { fired = true })

	c.Advance(time.Second)
	if fired {
		t.Fatal("stopped timer ran")
	}
}

func TestInlinePostIsRunToCompletion(t *testing.T) {
	s := NewInline(clock.Fake(epoch))
	var order []string
	s.Post(func() {
		s.Post(func() { order = append(order, "inner") })
		order = append(order, "outer")
	})
	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("unexpected order %v", order)
	}
}

func TestNilTimerStop(t *testing.T) {
	var timer *Timer
	timer.Stop()
}
