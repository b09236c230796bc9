// Package completion drives inline AI suggestions: a debounced request, a
// ghost-text overlay and its accept or discard.
//
// State machine:
//
//	Idle -> Requesting -> Suggesting -> Idle (accepted or discarded)
//
// At most one request is outstanding and at most one suggestion is pending.
// A suggestion whose request was overtaken by an edit is dropped.
package completion

import (
	"log/slog"
	"time"

	"github.com/uminmay/collaborative-ai-editor/internal/loop"
	"github.com/uminmay/collaborative-ai-editor/internal/model"
	"github.com/uminmay/collaborative-ai-editor/internal/protocol"
)

const (
	DefaultDelay     = 1500 * time.Millisecond
	DefaultTimeout   = 10 * time.Second
	DefaultAcceptKey = "Tab"
)

// State is the assistant state.
type State int

const (
	StateIdle State = iota
	StateRequesting
	StateSuggesting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRequesting:
		return "requesting"
	case StateSuggesting:
		return "suggesting"
	default:
		return "unknown"
	}
}

// Sender delivers outbound frames.
type Sender interface {
	Send(frame *protocol.Frame) error
}

// Options configures an Assistant.
type Options struct {
	// Delay is the quiet period after the last edit before a request.
	Delay time.Duration

	// Timeout bounds how long a request may stay outstanding.
	Timeout time.Duration

	// AcceptKey is the key that commits the suggestion.
	AcceptKey string

	Logger *slog.Logger
}

type request struct {
	generation uint64
	cursor     int
	content    string
}

// Assistant is the completion state machine for one file.
type Assistant struct {
	sender Sender
	sched  loop.Scheduler
	log    *slog.Logger
	opts   Options

	path    string
	state   State
	content string
	caret   int

	// generation advances on every edit; a reply is current only if it
	// answers the request made at the current generation.
	generation uint64
	outgoing   request
	pending    *model.PendingCompletion

	debounce *loop.Timer
	timeout  *loop.Timer

	onSuggestion func(pending *model.PendingCompletion)
	onAccept     func(content string, caret int)
	onDiscard    func(content string, caret int)
}

// New creates an Idle assistant.
func New(sender Sender, sched loop.Scheduler, opts Options) *Assistant {
	if opts.Delay <= 0 {
		opts.Delay = DefaultDelay
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.AcceptKey == "" {
		opts.AcceptKey = DefaultAcceptKey
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	opts.Logger = opts.Logger.With("component", "completion")
	return &Assistant{
		sender: sender,
		sched:  sched,
		log:    opts.Logger,
		opts:   opts,
	}
}

// SetOnSuggestion sets the handler called when the ghost text appears (non-nil)
// or disappears (nil).
func (a *Assistant) SetOnSuggestion(handler func(pending *model.PendingCompletion)) {
	a.onSuggestion = handler
}

// SetOnAccept sets the handler that commits accepted content as a local edit.
func (a *Assistant) SetOnAccept(handler func(content string, caret int)) {
	a.onAccept = handler
}

// SetOnDiscard sets the handler that restores the pre-suggestion content and caret.
func (a *Assistant) SetOnDiscard(handler func(content string, caret int)) {
	a.onDiscard = handler
}

func (a *Assistant) State() State                      { return a.state }
func (a *Assistant) Pending() *model.PendingCompletion { return a.pending }
func (a *Assistant) AcceptKey() string                 { return a.opts.AcceptKey }

// SetPath sets the file requests are made for.
func (a *Assistant) SetPath(path string) {
	a.path = path
}

// Edit records a local edit. A pending suggestion is dropped and the
// request debounce restarts.
func (a *Assistant) Edit(content string, caret int) {
	a.generation++
	a.content = content
	a.caret = model.ClampOffset(content, caret)
	if a.state == StateSuggesting {
		a.clearPending()
	}
	a.debounce.Stop()
	a.debounce = a.sched.AfterFunc(a.opts.Delay, a.request)
}

// MoveCaret records a caret move without an edit. An outstanding request
// for the old caret becomes stale.
func (a *Assistant) MoveCaret(position int) {
	a.generation++
	a.caret = model.ClampOffset(a.content, position)
}

// Invalidate adopts content replaced from outside, such as a load or a
// remote update. The pending suggestion no longer applies and is dropped;
// no request is scheduled.
func (a *Assistant) Invalidate(content string, caret int) {
	a.generation++
	a.content = content
	a.caret = model.ClampOffset(content, caret)
	if a.state == StateSuggesting {
		a.clearPending()
	}
}

// Key handles an input key. It reports whether the key was consumed: the
// accept key is consumed while a suggestion is shown, any other key discards
// the suggestion and is left for normal handling.
func (a *Assistant) Key(key string) bool {
	if a.state != StateSuggesting {
		return false
	}
	if key == a.opts.AcceptKey {
		a.accept()
		return true
	}
	a.Dismiss()
	return false
}

// Dismiss discards a displayed suggestion and restores the original content.
func (a *Assistant) Dismiss() {
	if a.state != StateSuggesting {
		return
	}
	p := a.pending
	a.clearPending()
	a.log.Debug("suggestion discarded", "path", a.path)
	if a.onDiscard != nil {
		a.onDiscard(p.OriginalContent, p.InsertionOffset)
	}
}

// HandleSuggestion applies a completion_suggestion frame. It reports
// whether the suggestion is now displayed.
func (a *Assistant) HandleSuggestion(frame *protocol.Frame) bool {
	if a.state != StateRequesting {
		a.log.Debug("dropping unexpected suggestion", "state", a.state)
		return false
	}
	a.finishRequest()

	if a.outgoing.generation != a.generation || frame.CursorPosition != a.outgoing.cursor {
		a.log.Debug("dropping stale suggestion", "cursor", frame.CursorPosition, "requested", a.outgoing.cursor)
		return false
	}
	if frame.Completion == "" {
		return false
	}

	a.pending = &model.PendingCompletion{
		SuggestedText:   frame.Completion,
		InsertionOffset: a.outgoing.cursor,
		OriginalContent: a.outgoing.content,
	}
	a.state = StateSuggesting
	if a.onSuggestion != nil {
		a.onSuggestion(a.pending)
	}
	return true
}

// HandleError returns an outstanding request to Idle.
func (a *Assistant) HandleError(frame *protocol.Frame) {
	if a.state != StateRequesting {
		return
	}
	a.log.Warn("completion failed", "path", a.path, "message", frame.Message)
	a.finishRequest()
}

// Reset cancels timers and forgets any request or suggestion.
func (a *Assistant) Reset() {
	a.debounce.Stop()
	a.debounce = nil
	a.timeout.Stop()
	a.timeout = nil
	a.generation++
	if a.state == StateSuggesting {
		a.clearPending()
	}
	a.state = StateIdle
}

func (a *Assistant) request() {
	a.debounce = nil
	switch a.state {
	case StateRequesting:
		a.log.Debug("completion request suppressed", "path", a.path)
		return
	case StateSuggesting:
		return
	}
	if a.path == "" || a.content == "" {
		return
	}

	frame := protocol.RequestCompletion(a.path, a.content, a.caret)
	if err := a.sender.Send(frame); err != nil {
		a.log.Debug("completion request not sent", "path", a.path, "err", err)
		return
	}
	a.outgoing = request{generation: a.generation, cursor: a.caret, content: a.content}
	a.state = StateRequesting
	a.timeout = a.sched.AfterFunc(a.opts.Timeout, a.expire)
}

func (a *Assistant) expire() {
	a.timeout = nil
	if a.state != StateRequesting {
		return
	}
	a.log.Warn("completion request timed out", "path", a.path, "timeout", a.opts.Timeout)
	a.state = StateIdle
}

func (a *Assistant) finishRequest() {
	a.timeout.Stop()
	a.timeout = nil
	a.state = StateIdle
}

func (a *Assistant) accept() {
	p := a.pending
	a.clearPending()

	content := p.Applied()
	if err := a.sender.Send(protocol.AcceptCompletion(a.path, content)); err != nil {
		a.log.Warn("accepted completion not sent", "path", a.path, "err", err)
	}
	a.log.Info("suggestion accepted", "path", a.path, "length", model.RuneLen(p.SuggestedText))
	if a.onAccept != nil {
		a.onAccept(content, p.CaretAfter())
	}
}

func (a *Assistant) clearPending() {
	a.pending = nil
	a.state = StateIdle
	if a.onSuggestion != nil {
		a.onSuggestion(nil)
	}
}
