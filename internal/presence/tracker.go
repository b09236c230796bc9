// Package presence tracks who else is editing the open file.
//
// The snapshot is authoritative: join and leave notifications only trigger a
// fresh poll, and a heartbeat polls on a fixed interval so that events missed
// while disconnected are reconciled.
package presence

import (
	"log/slog"
	"time"

	"github.com/uminmay/collaborative-ai-editor/internal/loop"
	"github.com/uminmay/collaborative-ai-editor/internal/model"
	"github.com/uminmay/collaborative-ai-editor/internal/protocol"
)

// DefaultInterval is the heartbeat period.
const DefaultInterval = 5 * time.Second

// Sender delivers outbound frames.
type Sender interface {
	Send(frame *protocol.Frame) error
}

// Options configures a Tracker.
type Options struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Tracker is the refreshable set of co-editors.
type Tracker struct {
	sender   Sender
	sched    loop.Scheduler
	log      *slog.Logger
	interval time.Duration

	path     string
	local    model.UserID
	hasLocal bool

	// participants keeps snapshot order; the local user is retained.
	participants []model.Participant

	heartbeat *loop.Timer
	running   bool

	onChange func(participants []model.Participant)
}

// New creates an empty Tracker.
func New(sender Sender, sched loop.Scheduler, opts Options) *Tracker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Tracker{
		sender:   sender,
		sched:    sched,
		log:      opts.Logger.With("component", "presence"),
		interval: opts.Interval,
	}
}

// SetOnChange sets the handler receiving the rendered participant list.
func (t *Tracker) SetOnChange(handler func(participants []model.Participant)) {
	t.onChange = handler
}

// SetPath sets the file whose editors are polled.
func (t *Tracker) SetPath(path string) {
	t.path = path
}

// SetLocalUser sets the identity excluded from the rendered set.
func (t *Tracker) SetLocalUser(id model.UserID) {
	t.local = id
	t.hasLocal = true
	t.notify()
}

// HandleSnapshot replaces the participant set.
func (t *Tracker) HandleSnapshot(editors []protocol.Editor) {
	next := make([]model.Participant, 0, len(editors))
	seen := make(map[model.UserID]bool, len(editors))
	for _, e := range editors {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		next = append(next, e.Participant())
	}
	t.participants = next
	t.notify()
}

// HandleActiveEditors applies an active_editors frame. A snapshot naming
// another file is a stale reply and is dropped.
func (t *Tracker) HandleActiveEditors(frame *protocol.Frame) {
	if frame.Path != "" && frame.Path != t.path {
		t.log.Debug("dropping snapshot for another file", "path", frame.Path)
		return
	}
	t.HandleSnapshot(frame.Users)
}

// HandleJoined logs the join and polls for the authoritative set.
func (t *Tracker) HandleJoined(user model.User) {
	t.log.Info("editor joined", "path", t.path, "user", user.Username)
	t.Refresh()
}

// HandleLeft logs the departure and polls for the authoritative set.
func (t *Tracker) HandleLeft(user model.User) {
	t.log.Info("editor left", "path", t.path, "user", user.Username)
	t.Refresh()
}

// HandleCursor records a co-editor's caret.
func (t *Tracker) HandleCursor(frame *protocol.Frame) {
	if frame.User == nil || (frame.Path != "" && frame.Path != t.path) {
		return
	}
	for i := range t.participants {
		if t.participants[i].UserID == frame.User.ID {
			pos := frame.Position
			t.participants[i].CursorPosition = &pos
			t.notify()
			return
		}
	}
}

// Refresh polls the server for a snapshot. Best-effort.
func (t *Tracker) Refresh() {
	if t.path == "" {
		return
	}
	if err := t.sender.Send(protocol.CheckActive(t.path)); err != nil {
		t.log.Debug("presence poll not sent", "path", t.path, "err", err)
	}
}

// Start begins the heartbeat.
func (t *Tracker) Start() {
	if t.running {
		return
	}
	t.running = true
	t.arm()
}

// Stop ends the heartbeat. The participant set is kept.
func (t *Tracker) Stop() {
	t.running = false
	t.heartbeat.Stop()
	t.heartbeat = nil
}

// Reset stops the heartbeat and forgets everything.
func (t *Tracker) Reset() {
	t.Stop()
	t.path = ""
	t.hasLocal = false
	t.participants = nil
	t.notify()
}

// Running reports whether the heartbeat is active.
func (t *Tracker) Running() bool {
	return t.running
}

// Participants returns the co-editors, excluding the local user.
func (t *Tracker) Participants() []model.Participant {
	out := make([]model.Participant, 0, len(t.participants))
	for _, p := range t.participants {
		if t.hasLocal && p.UserID == t.local {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Count returns the number of co-editors, excluding the local user.
func (t *Tracker) Count() int {
	return len(t.Participants())
}

// Lookup finds a participant by id, including the local user.
func (t *Tracker) Lookup(id model.UserID) (model.Participant, bool) {
	for _, p := range t.participants {
		if p.UserID == id {
			return p, true
		}
	}
	return model.Participant{}, false
}

func (t *Tracker) arm() {
	t.heartbeat = t.sched.AfterFunc(t.interval, t.beat)
}

func (t *Tracker) beat() {
	if !t.running {
		return
	}
	t.Refresh()
	t.arm()
}

func (t *Tracker) notify() {
	if t.onChange != nil {
		t.onChange(t.Participants())
	}
}
