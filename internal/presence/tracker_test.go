package presence

import (
	"testing"
	"time"

	"github.com/uminmay/collaborative-ai-editor/internal/clock"
	"github.com/uminmay/collaborative-ai-editor/internal/loop"
	"github.com/uminmay/collaborative-ai-editor/internal/model"
	"github.com/uminmay/collaborative-ai-editor/internal/protocol"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type recordingSender struct {
	frames []*protocol.Frame
}

func (r *recordingSender) Send(frame *protocol.Frame) error {
	r.frames = append(r.frames, frame)
	return nil
}

func editor(id model.UserID, name string) protocol.Editor {
	return protocol.Editor{User: model.User{ID: id, Username: name, Color: "#2196F3"}}
}

func newTracker() (*Tracker, *recordingSender, *clock.FakeClock) {
	fc := clock.Fake(epoch)
	sender := &recordingSender{}
	tr := New(sender, loop.NewInline(fc), Options{Interval: 5 * time.Second})
	tr.SetPath("/a.txt")
	return tr, sender, fc
}

func TestSnapshotReplacesSetAndExcludesLocal(t *testing.T) {
	tr, _, _ := newTracker()
	var rendered []model.Participant
	tr.SetOnChange(func(p []model.Participant) { rendered = p })

	tr.SetLocalUser(1)
	tr.HandleSnapshot([]protocol.Editor{editor(1, "alice"), editor(2, "bob"), editor(3, "carol")})

	if tr.Count() != 2 || len(rendered) != 2 {
		t.Fatalf("expected 2 co-editors, got %d (rendered %d)", tr.Count(), len(rendered))
	}
	if rendered[0].Username != "bob" || rendered[1].Username != "carol" {
		t.Errorf("expected snapshot order kept, got %+v", rendered)
	}
	if _, ok := tr.Lookup(1); !ok {
		t.Error("local user must be retained for identity comparison")
	}

	tr.HandleSnapshot([]protocol.Editor{editor(3, "carol")})
	if tr.Count() != 1 || rendered[0].Username != "carol" {
		t.Errorf("expected wholesale replacement, got %+v", rendered)
	}
	if _, ok := tr.Lookup(2); ok {
		t.Error("bob must be gone after the snapshot")
	}
}

func TestJoinAndLeaveRequestSnapshot(t *testing.T) {
	tr, sender, _ := newTracker()

	tr.HandleJoined(model.User{ID: 2, Username: "bob"})
	tr.HandleLeft(model.User{ID: 2, Username: "bob"})

	if len(sender.frames) != 2 {
		t.Fatalf("expected 2 polls, got %d", len(sender.frames))
	}
	for _, f := range sender.frames {
		if f.Type != protocol.MessageTypeCheckActive || f.Path != "/a.txt" {
			t.Errorf("unexpected frame %+v", f)
		}
	}
}

func TestHeartbeat(t *testing.T) {
	tr, sender, fc := newTracker()

	tr.Start()
	tr.Start()
	fc.Advance(4 * time.Second)
	if len(sender.frames) != 0 {
		t.Fatalf("expected no poll before the interval, got %d", len(sender.frames))
	}
	fc.Advance(time.Second)
	if len(sender.frames) != 1 {
		t.Fatalf("expected 1 poll, got %d", len(sender.frames))
	}
	fc.Advance(10 * time.Second)
	if len(sender.frames) != 3 {
		t.Fatalf("expected 3 polls, got %d", len(sender.frames))
	}

	tr.Stop()
	fc.Advance(time.Minute)
	if len(sender.frames) != 3 {
		t.Errorf("expected heartbeat stopped, got %d polls", len(sender.frames))
	}
}

func TestCursorUpdate(t *testing.T) {
	tr, _, _ := newTracker()
	tr.HandleSnapshot([]protocol.Editor{editor(2, "bob")})

	tr.HandleCursor(&protocol.Frame{
		Type:     protocol.MessageTypeCursorUpdate,
		Path:     "/a.txt",
		Position: 7,
		User:     &model.User{ID: 2, Username: "bob"},
	})

	p, _ := tr.Lookup(2)
	if p.CursorPosition == nil || *p.CursorPosition != 7 {
		t.Errorf("expected cursor 7, got %v", p.CursorPosition)
	}

	tr.HandleCursor(&protocol.Frame{Type: protocol.MessageTypeCursorUpdate, Position: 9})
	p, _ = tr.Lookup(2)
	if *p.CursorPosition != 7 {
		t.Error("cursor update without a user must be ignored")
	}
}

func TestResetClearsEverything(t *testing.T) {
	tr, sender, fc := newTracker()
	tr.SetLocalUser(1)
	tr.HandleSnapshot([]protocol.Editor{editor(2, "bob")})
	tr.Start()

	tr.Reset()
	fc.Advance(time.Minute)

	if tr.Count() != 0 || tr.Running() {
		t.Errorf("expected empty stopped tracker, got count %d running %v", tr.Count(), tr.Running())
	}
	tr.Refresh()
	if len(sender.frames) != 0 {
		t.Errorf("expected no polls without a path, got %d", len(sender.frames))
	}
}

func TestActiveEditorsForAnotherFileDropped(t *testing.T) {
	tr, _, _ := newTracker()
	tr.HandleSnapshot([]protocol.Editor{editor(2, "bob")})

	t.Run("stale reply for the previous file", func(t *testing.T) {
		tr.HandleActiveEditors(&protocol.Frame{
			Type:  protocol.MessageTypeActiveEditors,
			Path:  "/old.txt",
			Users: []protocol.Editor{editor(3, "carol"), editor(4, "dave")},
		})
		if tr.Count() != 1 {
			t.Errorf("expected snapshot for /old.txt to be ignored, got %d editors", tr.Count())
		}
	})

	t.Run("reply for the open file", func(t *testing.T) {
		tr.HandleActiveEditors(&protocol.Frame{
			Type:  protocol.MessageTypeActiveEditors,
			Path:  "/a.txt",
			Users: []protocol.Editor{editor(3, "carol"), editor(4, "dave")},
		})
		if tr.Count() != 2 {
			t.Errorf("expected 2 editors, got %d", tr.Count())
		}
	})

	t.Run("reply without a path", func(t *testing.T) {
		tr.HandleActiveEditors(&protocol.Frame{
			Type:  protocol.MessageTypeActiveEditors,
			Users: []protocol.Editor{},
		})
		if tr.Count() != 0 {
			t.Errorf("expected empty snapshot applied, got %d editors", tr.Count())
		}
	})
}
