package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/uminmay/collaborative-ai-editor/internal/clock"
	"github.com/uminmay/collaborative-ai-editor/internal/loop"
	"github.com/uminmay/collaborative-ai-editor/internal/model"
	"github.com/uminmay/collaborative-ai-editor/internal/protocol"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type fakeChannel struct {
	sent   [][]byte
	failed bool
	closed bool
}

func (c *fakeChannel) Send(data []byte) error {
	if c.failed {
		return errors.New("broken pipe")
	}
	c.sent = append(c.sent, data)
	return nil
}

func (c *fakeChannel) Close() error {
	c.closed = true
	return nil
}

// fakeTransport records every dial and lets the test drive its outcome.
type fakeTransport struct {
	dials  []Events
	events Events
}

func (t *fakeTransport) Open(ctx context.Context, events Events) {
	t.dials = append(t.dials, events)
	t.events = events
}

func newTestManager(opts Options) (*Manager, *fakeTransport, *clock.FakeClock, *[]StateEvent) {
	fc := clock.Fake(epoch)
	tr := &fakeTransport{}
	m := NewManager(tr, loop.NewInline(fc), opts)
	var events []StateEvent
	m.SetOnStateChange(func(e StateEvent) { events = append(events, e) })
	return m, tr, fc, &events
}

func TestManagerOpenAndSend(t *testing.T) {
	m, tr, _, events := newTestManager(Options{})

	if err := m.Send(protocol.Load("a.txt")); !errors.Is(err, model.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected before connect, got %v", err)
	}

	m.Connect()
	if m.State() != StateConnecting {
		t.Fatalf("expected connecting, got %s", m.State())
	}

	ch := &fakeChannel{}
	tr.events.Opened(ch)
	if m.State() != StateOpen {
		t.Fatalf("expected open, got %s", m.State())
	}

	if err := m.Send(protocol.Load("a.txt")); err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}
	if len(ch.sent) != 1 || string(ch.sent[0]) != `{"path":"a.txt","type":"load"}` {
		t.Errorf("unexpected bytes on the wire: %q", ch.sent)
	}

	last := (*events)[len(*events)-1]
	if last.Reconnected {
		t.Error("first open should not be flagged as a reconnect")
	}
}

func TestManagerDeliversDecodedFrames(t *testing.T) {
	m, tr, _, _ := newTestManager(Options{})
	var got []*protocol.Frame
	m.SetOnFrame(func(f *protocol.Frame) { got = append(got, f) })

	m.Connect()
	tr.events.Opened(&fakeChannel{})

	tr.events.Received([]byte(`{"type":"editor_left","user":{"id":3,"username":"carol"}}`))
	tr.events.Received([]byte(`{"type":"content_update","content":"x"}`)) // missing user
	tr.events.Received([]byte(`not json`))
	tr.events.Received([]byte(`{"type":"active_editors","users":[]}`))

	if len(got) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(got))
	}
	if got[0].Type != protocol.MessageTypeEditorLeft || got[1].Type != protocol.MessageTypeActiveEditors {
		t.Errorf("frames out of order: %s, %s", got[0].Type, got[1].Type)
	}
}

func TestManagerBackoffSchedule(t *testing.T) {
	m, tr, fc, events := newTestManager(Options{
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		MaxAttempts: 5,
	})

	m.Connect()
	tr.events.Opened(&fakeChannel{})
	tr.events.Closed(errors.New("connection reset"))

	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 32 * time.Second}
	for i, delay := range want {
		if m.State() != StateReconnecting {
			t.Fatalf("attempt %d: expected reconnecting, got %s", i+1, m.State())
		}
		last := (*events)[len(*events)-1]
		if last.Attempt != i+1 || last.Delay != delay {
			t.Errorf("attempt %d: expected delay %s, got attempt %d delay %s", i+1, delay, last.Attempt, last.Delay)
		}
		if !errors.Is(last.Err, model.ErrTransientChannel) {
			t.Errorf("attempt %d: expected transient error, got %v", i+1, last.Err)
		}

		dials := len(tr.dials)
		fc.Advance(delay - time.Millisecond)
		if len(tr.dials) != dials {
			t.Fatalf("attempt %d: dialled before the delay elapsed", i+1)
		}
		fc.Advance(time.Millisecond)
		if len(tr.dials) != dials+1 {
			t.Fatalf("attempt %d: expected a dial after %s", i+1, delay)
		}
		tr.events.Closed(errors.New("connection refused"))
	}

	if m.State() != StateClosed {
		t.Fatalf("expected closed after exhausting attempts, got %s", m.State())
	}
	last := (*events)[len(*events)-1]
	if !errors.Is(last.Err, model.ErrTerminalChannel) {
		t.Errorf("expected terminal error, got %v", last.Err)
	}

	dials := len(tr.dials)
	fc.Advance(10 * time.Minute)
	if len(tr.dials) != dials {
		t.Error("no dial expected after terminal failure")
	}
	if err := m.Send(protocol.Load("a.txt")); !errors.Is(err, model.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected after terminal failure, got %v", err)
	}
}

func TestManagerBackoffIsCapped(t *testing.T) {
	m, tr, fc, events := newTestManager(Options{
		BaseDelay:   time.Second,
		MaxDelay:    5 * time.Second,
		MaxAttempts: 4,
	})

	m.Connect()
	tr.events.Closed(errors.New("refused"))

	want := []time.Duration{2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, delay := range want {
		last := (*events)[len(*events)-1]
		if last.Delay != delay {
			t.Errorf("attempt %d: expected %s, got %s", i+1, delay, last.Delay)
		}
		fc.Advance(delay)
		tr.events.Closed(errors.New("refused"))
	}
	if m.State() != StateClosed {
		t.Errorf("expected closed, got %s", m.State())
	}
}

func TestManagerOpenResetsAttempts(t *testing.T) {
	m, tr, fc, events := newTestManager(Options{BaseDelay: time.Second, MaxAttempts: 5})

	m.Connect()
	tr.events.Opened(&fakeChannel{})
	tr.events.Closed(errors.New("reset"))
	fc.Advance(2 * time.Second)
	tr.events.Closed(errors.New("refused"))
	fc.Advance(4 * time.Second)

	tr.events.Opened(&fakeChannel{})
	last := (*events)[len(*events)-1]
	if last.State != StateOpen || !last.Reconnected {
		t.Fatalf("expected reconnected open, got %+v", last)
	}
	if m.Attempt() != 0 {
		t.Errorf("expected attempt counter reset, got %d", m.Attempt())
	}

	tr.events.Closed(errors.New("reset"))
	last = (*events)[len(*events)-1]
	if last.Attempt != 1 || last.Delay != 2*time.Second {
		t.Errorf("expected schedule to restart at 2s, got attempt %d delay %s", last.Attempt, last.Delay)
	}
}

func TestManagerCloseCancelsRetry(t *testing.T) {
	m, tr, fc, _ := newTestManager(Options{BaseDelay: time.Second})

	m.Connect()
	ch := &fakeChannel{}
	tr.events.Opened(ch)
	stale := tr.events
	tr.events.Closed(errors.New("reset"))

	m.Close()
	dials := len(tr.dials)
	fc.Advance(time.Minute)
	if len(tr.dials) != dials {
		t.Error("retry fired after Close")
	}
	if m.State() != StateClosed {
		t.Errorf("expected closed, got %s", m.State())
	}

	// Events from an abandoned attempt are ignored.
	late := &fakeChannel{}
	stale.Opened(late)
	if m.State() != StateClosed || !late.closed {
		t.Error("stale open should be closed and ignored")
	}
}

func TestManagerSendFailure(t *testing.T) {
	m, tr, _, _ := newTestManager(Options{})
	m.Connect()
	tr.events.Opened(&fakeChannel{failed: true})

	err := m.Send(protocol.Save("a.txt", "x"))
	if !errors.Is(err, model.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}
