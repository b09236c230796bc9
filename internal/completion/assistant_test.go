package completion

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

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

func (r *recordingSender) ofType(typ protocol.MessageType) []*protocol.Frame {
	var out []*protocol.Frame
	for _, f := range r.frames {
		if f.Type == typ {
			out = append(out, f)
		}
	}
	return out
}

func suggestion(text string, cursor int) *protocol.Frame {
	return &protocol.Frame{Type: protocol.MessageTypeCompletionSuggestion, Completion: text, CursorPosition: cursor}
}

func newAssistant() (*Assistant, *recordingSender, *clock.FakeClock) {
	fc := clock.Fake(epoch)
	sender := &recordingSender{}
	a := New(sender, loop.NewInline(fc), Options{Delay: 500 * time.Millisecond, Timeout: 10 * time.Second})
	a.SetPath("/a.txt")
	return a, sender, fc
}

func TestRequestIsDebounced(t *testing.T) {
	a, sender, fc := newAssistant()

	a.Edit("h", 1)
	fc.Advance(300 * time.Millisecond)
	a.Edit("he", 2)
	fc.Advance(300 * time.Millisecond)
	a.Edit("hel", 3)
	fc.Advance(499 * time.Millisecond)
	if n := len(sender.ofType(protocol.MessageTypeRequestCompletion)); n != 0 {
		t.Fatalf("expected no request inside the window, got %d", n)
	}

	fc.Advance(time.Millisecond)
	reqs := sender.ofType(protocol.MessageTypeRequestCompletion)
	if len(reqs) != 1 || reqs[0].Content != "hel" || reqs[0].CursorPosition != 3 || reqs[0].Path != "/a.txt" {
		t.Fatalf("expected one request for hel at 3, got %+v", reqs)
	}
	if a.State() != StateRequesting {
		t.Errorf("expected requesting, got %s", a.State())
	}
}

func TestAcceptCommitsSuggestion(t *testing.T) {
	a, sender, fc := newAssistant()
	var accepted string
	var caret int
	a.SetOnAccept(func(content string, c int) { accepted, caret = content, c })
	var shown []*model.PendingCompletion
	a.SetOnSuggestion(func(p *model.PendingCompletion) { shown = append(shown, p) })

	a.Edit("print", 5)
	fc.Advance(500 * time.Millisecond)
	if !a.HandleSuggestion(suggestion("()", 5)) {
		t.Fatal("suggestion must be displayed")
	}
	if a.State() != StateSuggesting || a.Pending() == nil {
		t.Fatalf("expected suggesting, got %s", a.State())
	}

	if !a.Key("Tab") {
		t.Error("accept key must be consumed")
	}
	if accepted != "print()" || caret != 7 {
		t.Errorf("expected print() with caret 7, got %q %d", accepted, caret)
	}
	frames := sender.ofType(protocol.MessageTypeAcceptCompletion)
	if len(frames) != 1 || frames[0].Content != "print()" {
		t.Errorf("expected accept_completion with print(), got %+v", frames)
	}
	if a.State() != StateIdle || a.Pending() != nil {
		t.Errorf("expected idle with nothing pending, got %s", a.State())
	}
	if len(shown) != 2 || shown[1] != nil {
		t.Errorf("expected ghost text shown then cleared, got %v", shown)
	}
}

func TestOtherKeyDiscards(t *testing.T) {
	a, sender, fc := newAssistant()
	var restored string
	restoredCaret := -1
	a.SetOnDiscard(func(content string, c int) { restored, restoredCaret = content, c })

	a.Edit("foo bar", 3)
	fc.Advance(500 * time.Millisecond)
	a.HandleSuggestion(suggestion("d", 3))

	if a.Key("x") {
		t.Error("other keys must not be consumed")
	}
	if restored != "foo bar" || restoredCaret != 3 {
		t.Errorf("expected revert to foo bar at 3, got %q %d", restored, restoredCaret)
	}
	if a.State() != StateIdle {
		t.Errorf("expected idle, got %s", a.State())
	}
	if n := len(sender.ofType(protocol.MessageTypeAcceptCompletion)); n != 0 {
		t.Errorf("discard must not send accept_completion, got %d", n)
	}
}

func TestStaleSuggestionDropped(t *testing.T) {
	a, _, fc := newAssistant()
	var shown []*model.PendingCompletion
	a.SetOnSuggestion(func(p *model.PendingCompletion) { shown = append(shown, p) })

	a.Edit("hello", 5)
	fc.Advance(500 * time.Millisecond)
	a.Edit("hello!", 6)

	if a.HandleSuggestion(suggestion(" world", 5)) {
		t.Error("suggestion for an overtaken request must be dropped")
	}
	if a.State() != StateIdle || len(shown) != 0 {
		t.Errorf("expected idle with nothing shown, got %s %v", a.State(), shown)
	}
}

func TestSuggestionForDifferentCursorDropped(t *testing.T) {
	a, _, fc := newAssistant()
	a.Edit("hello", 5)
	fc.Advance(500 * time.Millisecond)

	if a.HandleSuggestion(suggestion(" world", 4)) {
		t.Error("suggestion for another cursor must be dropped")
	}
}

func TestRequestsSuppressedWhileOutstanding(t *testing.T) {
	a, sender, fc := newAssistant()

	a.Edit("a", 1)
	fc.Advance(500 * time.Millisecond)
	a.Edit("ab", 2)
	fc.Advance(500 * time.Millisecond)

	if n := len(sender.ofType(protocol.MessageTypeRequestCompletion)); n != 1 {
		t.Fatalf("expected the second request suppressed, got %d", n)
	}
}

func TestEditWhileSuggestingDiscards(t *testing.T) {
	a, sender, fc := newAssistant()
	a.Edit("ab", 2)
	fc.Advance(500 * time.Millisecond)
	a.HandleSuggestion(suggestion("c", 2))

	a.Edit("abz", 3)
	if a.Pending() != nil || a.State() != StateIdle {
		t.Fatal("edit must discard the pending suggestion")
	}

	fc.Advance(500 * time.Millisecond)
	reqs := sender.ofType(protocol.MessageTypeRequestCompletion)
	if len(reqs) != 2 || reqs[1].Content != "abz" {
		t.Errorf("expected a new request for abz, got %+v", reqs)
	}
}

func TestRequestTimeoutReturnsToIdle(t *testing.T) {
	a, _, fc := newAssistant()
	a.Edit("ab", 2)
	fc.Advance(500 * time.Millisecond)
	fc.Advance(10 * time.Second)

	if a.State() != StateIdle {
		t.Fatalf("expected idle after timeout, got %s", a.State())
	}
	if a.HandleSuggestion(suggestion("c", 2)) {
		t.Error("late suggestion must be dropped")
	}
}

func TestErrorAndEmptyCompletion(t *testing.T) {
	t.Run("error", func(t *testing.T) {
		a, _, fc := newAssistant()
		a.Edit("ab", 2)
		fc.Advance(500 * time.Millisecond)
		a.HandleError(protocol.ErrorFrame("provider unavailable", "/a.txt", "request_completion"))
		if a.State() != StateIdle {
			t.Errorf("expected idle, got %s", a.State())
		}
	})

	t.Run("empty", func(t *testing.T) {
		a, _, fc := newAssistant()
		a.Edit("ab", 2)
		fc.Advance(500 * time.Millisecond)
		if a.HandleSuggestion(suggestion("", 2)) {
			t.Error("empty completion must not be displayed")
		}
		if a.State() != StateIdle {
			t.Errorf("expected idle, got %s", a.State())
		}
	})
}

func TestInvalidateDropsSuggestion(t *testing.T) {
	a, _, fc := newAssistant()
	discarded := false
	a.SetOnDiscard(func(string, int) { discarded = true })

	a.Edit("ab", 2)
	fc.Advance(500 * time.Millisecond)
	a.HandleSuggestion(suggestion("c", 2))
	a.Invalidate("remote", 2)

	if a.Pending() != nil {
		t.Error("remote update must drop the suggestion")
	}
	if discarded {
		t.Error("remote update must not revert to the old content")
	}
}

func TestResetCancelsDebounce(t *testing.T) {
	a, sender, fc := newAssistant()
	a.Edit("ab", 2)
	a.Reset()
	fc.Advance(time.Minute)

	if n := len(sender.ofType(protocol.MessageTypeRequestCompletion)); n != 0 {
		t.Errorf("expected no request after reset, got %d", n)
	}
}

// **Feature: collaborative-editor, Property 2: at most one pending completion**
// *For any* interleaving of edits, elapsed time, replies and keys, no second
// request is sent while one is outstanding, and after any edit nothing is
// pending.
// **Validates: Requirements 8.3**
func TestSinglePendingCompletionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	const (
		opEdit = iota
		opWait
		opReply
		opKey
	)

	properties.Property("one outstanding request, nothing pending after an edit", prop.ForAll(
		func(ops []int) bool {
			fc := clock.Fake(epoch)
			sender := &recordingSender{}
			a := New(sender, loop.NewInline(fc), Options{Delay: 500 * time.Millisecond, Timeout: time.Hour})
			a.SetPath("/a.txt")
			content := ""
			for _, op := range ops {
				wasRequesting := a.State() == StateRequesting
				before := len(sender.ofType(protocol.MessageTypeRequestCompletion))

				switch op {
				case opEdit:
					content += "a"
					a.Edit(content, model.RuneLen(content))
					if a.Pending() != nil || a.State() == StateSuggesting {
						return false
					}
				case opWait:
					fc.Advance(500 * time.Millisecond)
				case opReply:
					if reqs := sender.ofType(protocol.MessageTypeRequestCompletion); len(reqs) > 0 {
						a.HandleSuggestion(suggestion("b", reqs[len(reqs)-1].CursorPosition))
					}
				case opKey:
					a.Key("Escape")
				}

				after := len(sender.ofType(protocol.MessageTypeRequestCompletion))
				if wasRequesting && a.State() == StateRequesting && after > before {
					return false
				}
				if after-before > 1 {
					return false
				}
				if (a.Pending() != nil) != (a.State() == StateSuggesting) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(opEdit, opKey)),
	))

	properties.TestingRun(t)
}
