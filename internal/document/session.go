// Package document holds the local copy of one open file: dirty tracking,
// debounced saving and last-writer-wins application of remote updates.
package document

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/uminmay/collaborative-ai-editor/internal/loop"
	"github.com/uminmay/collaborative-ai-editor/internal/model"
	"github.com/uminmay/collaborative-ai-editor/internal/protocol"
)

// DefaultSaveDelay is the quiet period after the last edit before a save.
const DefaultSaveDelay = time.Second

// deletionMarkers identify error messages that mean the file is gone.
var deletionMarkers = []string{"file not found", "deleted", "no such file"}

// State is the session life-cycle state.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
	StateError
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Sender delivers outbound frames.
type Sender interface {
	Send(frame *protocol.Frame) error
}

// Options configures a Session.
type Options struct {
	SaveDelay time.Duration
	Logger    *slog.Logger
}

// Session is the authoritative local copy of one file.
type Session struct {
	sender    Sender
	sched     loop.Scheduler
	log       *slog.Logger
	saveDelay time.Duration

	path    string
	state   State
	content string
	caret   int

	dirty        bool
	saveInFlight bool
	saveTimer    *loop.Timer

	local      model.User
	identified bool

	onContent  func(content string, caret int)
	onStatus   func(status model.Status)
	onIdentity func(user model.User)
}

// New creates an Unloaded session.
func New(sender Sender, sched loop.Scheduler, opts Options) *Session {
	if opts.SaveDelay <= 0 {
		opts.SaveDelay = DefaultSaveDelay
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Session{
		sender:    sender,
		sched:     sched,
		log:       opts.Logger.With("component", "document"),
		saveDelay: opts.SaveDelay,
	}
}

// SetOnContent sets the handler called when a load or a remote update
// replaces the content.
func (s *Session) SetOnContent(handler func(content string, caret int)) {
	s.onContent = handler
}

// SetOnStatus sets the handler for user-visible status changes.
func (s *Session) SetOnStatus(handler func(status model.Status)) {
	s.onStatus = handler
}

// SetOnIdentity sets the handler called when a load response names the local user.
func (s *Session) SetOnIdentity(handler func(user model.User)) {
	s.onIdentity = handler
}

func (s *Session) Path() string    { return s.path }
func (s *Session) State() State    { return s.state }
func (s *Session) Content() string { return s.content }
func (s *Session) Caret() int      { return s.caret }
func (s *Session) Dirty() bool     { return s.dirty }

// LocalUser returns the identity from the last load response.
func (s *Session) LocalUser() (model.User, bool) {
	return s.local, s.identified
}

// Open starts loading path. If the channel is not open the request is sent
// by Reload once it is.
func (s *Session) Open(path string) {
	s.Close()
	s.path = path
	s.state = StateLoading
	s.requestLoad()
}

// Reload requests fresh content after a reconnect. Unsaved edits are
// flushed first so the reload returns them.
func (s *Session) Reload() {
	switch s.state {
	case StateUnloaded, StateError:
		return
	case StateLoaded:
		if s.dirty {
			s.stopSaveTimer()
			s.save()
		}
	}
	s.state = StateLoading
	s.requestLoad()
}

// Close forgets the file and cancels the pending save.
func (s *Session) Close() {
	s.stopSaveTimer()
	s.path = ""
	s.state = StateUnloaded
	s.content = ""
	s.caret = 0
	s.dirty = false
	s.saveInFlight = false
}

// Edit records new local content and restarts the save debounce.
func (s *Session) Edit(content string, caret int) error {
	switch s.state {
	case StateLoaded:
	case StateError:
		return fmt.Errorf("edit %s: %w: %w", s.path, model.ErrReadOnly, model.ErrRemoteFileGone)
	case StateUnloaded:
		return fmt.Errorf("edit: %w", model.ErrNoSession)
	default:
		return fmt.Errorf("edit %s: %w", s.path, model.ErrReadOnly)
	}

	s.content = content
	s.caret = model.ClampOffset(content, caret)
	s.dirty = true
	s.stopSaveTimer()
	s.saveTimer = s.sched.AfterFunc(s.saveDelay, s.save)
	return nil
}

// MoveCaret records the caret and broadcasts it. Broadcasts are best-effort.
func (s *Session) MoveCaret(position int) {
	if s.state != StateLoaded {
		return
	}
	s.caret = model.ClampOffset(s.content, position)
	if err := s.sender.Send(protocol.CursorUpdate(s.path, s.caret)); err != nil {
		s.log.Debug("cursor update not sent", "path", s.path, "err", err)
	}
}

// HandleLoad applies a load response. It reports whether the frame was for
// the pending load; responses for any other path are dropped.
func (s *Session) HandleLoad(frame *protocol.Frame) bool {
	if s.state != StateLoading || frame.Path != s.path {
		s.log.Debug("dropping stale load", "path", frame.Path, "open", s.path, "state", s.state)
		return false
	}

	s.stopSaveTimer()
	s.content = frame.Content
	s.caret = model.ClampOffset(s.content, s.caret)
	s.dirty = false
	s.saveInFlight = false
	s.state = StateLoaded

	s.local = model.User{ID: frame.CurrentUserID, Username: frame.Username, Color: frame.Color}
	s.identified = true
	if s.onIdentity != nil {
		s.onIdentity(s.local)
	}

	s.log.Info("file loaded", "path", s.path, "user", s.local.ID)
	s.notifyContent()
	s.status(model.Info("File loaded"))
	return true
}

// HandleSaveAck confirms the last save.
func (s *Session) HandleSaveAck(frame *protocol.Frame) {
	if frame.Path != "" && frame.Path != s.path {
		return
	}
	if !s.saveInFlight {
		return
	}
	s.saveInFlight = false
	s.status(model.Info("Saved successfully"))
}

// HandleContentUpdate applies another participant's save. The remote
// content replaces the local copy and the caret keeps its numeric offset.
// The pending save, if any, is left running. It reports whether the update
// was applied.
func (s *Session) HandleContentUpdate(frame *protocol.Frame) bool {
	if s.state != StateLoaded {
		return false
	}
	if frame.Path != "" && frame.Path != s.path {
		s.log.Debug("dropping update for another file", "path", frame.Path, "open", s.path)
		return false
	}
	if frame.User == nil || (s.identified && frame.User.ID == s.local.ID) {
		return false
	}

	s.content = frame.Content
	s.caret = model.ClampOffset(s.content, s.caret)
	s.log.Info("remote update applied", "path", s.path, "user", frame.User.ID)
	s.notifyContent()
	s.status(model.Info("Changes received from " + frame.User.Username))
	return true
}

// HandleError applies an error frame that concerns this file.
func (s *Session) HandleError(frame *protocol.Frame) {
	if s.state == StateUnloaded || s.state == StateError {
		return
	}

	if IsDeletion(frame.Message) {
		s.fail("This file was deleted or is no longer accessible: " + frame.Message)
		return
	}
	if s.loadFailed(frame) {
		s.fail("This file could not be opened: " + frame.Message)
		return
	}

	if s.saveInFlight {
		// Saved again by the next edit's debounce, not now.
		s.saveInFlight = false
		s.dirty = true
	}
	s.log.Warn("server error", "path", s.path, "message", frame.Message)
	s.status(model.Failure(frame.Message))
}

// loadFailed reports whether frame rejects the pending load. An error naming
// another operation, such as a save sent before a reload, keeps it pending.
func (s *Session) loadFailed(frame *protocol.Frame) bool {
	if frame.Op == string(protocol.MessageTypeLoad) {
		return true
	}
	return s.state == StateLoading && frame.Op == ""
}

// fail makes the session terminal: edits are rejected and no save or load
// is sent again.
func (s *Session) fail(message string) {
	s.stopSaveTimer()
	s.state = StateError
	s.dirty = false
	s.saveInFlight = false
	err := fmt.Errorf("%s: %w", s.path, model.ErrRemoteFileGone)
	s.log.Error("file unavailable", "err", err, "message", message)
	s.status(model.Terminal(message))
}

// IsDeletion reports whether an error message means the file is gone.
func IsDeletion(message string) bool {
	lower := strings.ToLower(message)
	for _, marker := range deletionMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (s *Session) requestLoad() {
	if err := s.sender.Send(protocol.Load(s.path)); err != nil {
		s.log.Debug("load deferred until connected", "path", s.path, "err", err)
	}
}

func (s *Session) save() {
	s.saveTimer = nil
	if !s.dirty || s.state != StateLoaded {
		return
	}
	if err := s.sender.Send(protocol.Save(s.path, s.content)); err != nil {
		s.log.Warn("save not sent", "path", s.path, "err", err)
		return
	}
	s.dirty = false
	s.saveInFlight = true
	s.status(model.Info("Saving..."))
}

func (s *Session) stopSaveTimer() {
	s.saveTimer.Stop()
	s.saveTimer = nil
}

func (s *Session) notifyContent() {
	if s.onContent != nil {
		s.onContent(s.content, s.caret)
	}
}

func (s *Session) status(status model.Status) {
	if s.onStatus != nil {
		s.onStatus(status)
	}
}
