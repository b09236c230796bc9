// Package session is the controller of the editor client: it owns the
// connection and the per-file session, and is the single dispatch point for
// inbound frames.
package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/uminmay/collaborative-ai-editor/internal/completion"
	"github.com/uminmay/collaborative-ai-editor/internal/connection"
	"github.com/uminmay/collaborative-ai-editor/internal/document"
	"github.com/uminmay/collaborative-ai-editor/internal/loop"
	"github.com/uminmay/collaborative-ai-editor/internal/model"
	"github.com/uminmay/collaborative-ai-editor/internal/presence"
	"github.com/uminmay/collaborative-ai-editor/internal/protocol"
)

// Config holds timing and key configuration for the per-file components.
type Config struct {
	SaveDelay         time.Duration
	CompletionDelay   time.Duration
	CompletionTimeout time.Duration
	HeartbeatInterval time.Duration
	AcceptKey         string
	Logger            *slog.Logger
}

// FileSession holds the components bound to one open file.
type FileSession struct {
	Document   *document.Session
	Presence   *presence.Tracker
	Completion *completion.Assistant
}

// Manager owns the connection and at most one open file. It must only be
// used from the scheduler it was created with.
type Manager struct {
	conn   *connection.Manager
	sched  loop.Scheduler
	view   View
	config Config
	log    *slog.Logger

	file *FileSession
}

// NewManager creates a Manager and takes over conn's frame and state handlers.
func NewManager(conn *connection.Manager, sched loop.Scheduler, view View, config Config) *Manager {
	if view == nil {
		view = NopView{}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	m := &Manager{
		conn:   conn,
		sched:  sched,
		view:   view,
		config: config,
		log:    config.Logger.With("component", "session"),
	}
	conn.SetOnFrame(m.dispatch)
	conn.SetOnStateChange(m.connectionChanged)
	return m
}

// Connect opens the connection.
func (m *Manager) Connect() {
	m.conn.Connect()
}

// Close closes the open file and the connection.
func (m *Manager) Close() {
	m.CloseFile()
	m.conn.Close()
}

// File returns the open file session, or nil.
func (m *Manager) File() *FileSession {
	return m.file
}

// Open switches to path. The previous file, if any, is closed first.
func (m *Manager) Open(path string) {
	m.CloseFile()

	logger := m.config.Logger.With("path", path)
	f := &FileSession{
		Document: document.New(m.conn, m.sched, document.Options{
			SaveDelay: m.config.SaveDelay,
			Logger:    logger,
		}),
		Presence: presence.New(m.conn, m.sched, presence.Options{
			Interval: m.config.HeartbeatInterval,
			Logger:   logger,
		}),
		Completion: completion.New(m.conn, m.sched, completion.Options{
			Delay:     m.config.CompletionDelay,
			Timeout:   m.config.CompletionTimeout,
			AcceptKey: m.config.AcceptKey,
			Logger:    logger,
		}),
	}
	m.file = f

	f.Document.SetOnStatus(m.view.StatusChanged)
	f.Document.SetOnIdentity(func(user model.User) {
		f.Presence.SetLocalUser(user.ID)
	})
	f.Document.SetOnContent(func(content string, caret int) {
		f.Completion.Invalidate(content, caret)
		m.view.ContentChanged(content, caret)
	})
	f.Presence.SetOnChange(m.view.PresenceChanged)
	f.Completion.SetOnSuggestion(m.view.SuggestionChanged)
	f.Completion.SetOnAccept(func(content string, caret int) {
		if err := m.commit(content, caret); err != nil {
			m.log.Warn("accepted completion not committed", "err", err)
		}
	})
	f.Completion.SetOnDiscard(m.view.ContentChanged)

	f.Presence.SetPath(path)
	f.Completion.SetPath(path)
	f.Document.Open(path)
	if m.conn.State() == connection.StateOpen {
		f.Presence.Start()
	}
}

// CloseFile navigates away from the open file, cancelling its timers.
func (m *Manager) CloseFile() {
	if m.file == nil {
		return
	}
	m.file.Completion.Reset()
	m.file.Presence.Reset()
	m.file.Document.Close()
	m.file = nil
}

// Edit applies a local edit to the open file.
func (m *Manager) Edit(content string, caret int) error {
	if m.file == nil {
		return fmt.Errorf("edit: %w", model.ErrNoSession)
	}
	return m.commit(content, caret)
}

// MoveCaret moves the caret. A displayed suggestion is discarded.
func (m *Manager) MoveCaret(position int) error {
	if m.file == nil {
		return fmt.Errorf("move caret: %w", model.ErrNoSession)
	}
	m.file.Completion.Dismiss()
	m.file.Document.MoveCaret(position)
	m.file.Completion.MoveCaret(m.file.Document.Caret())
	return nil
}

// Key offers an input key to the completion assistant. It reports whether
// the key was consumed; unconsumed keys are handled by the caller as input.
func (m *Manager) Key(key string) bool {
	if m.file == nil {
		return false
	}
	return m.file.Completion.Key(key)
}

func (m *Manager) commit(content string, caret int) error {
	f := m.file
	if err := f.Document.Edit(content, caret); err != nil {
		return err
	}
	f.Completion.Edit(f.Document.Content(), f.Document.Caret())
	m.view.ContentChanged(f.Document.Content(), f.Document.Caret())
	return nil
}

func (m *Manager) dispatch(frame *protocol.Frame) {
	f := m.file
	if f == nil {
		if frame.Type == protocol.MessageTypeError {
			m.view.StatusChanged(model.Failure(frame.Message))
		}
		m.log.Debug("no open file, dropping frame", "type", frame.Type)
		return
	}

	switch frame.Type {
	case protocol.MessageTypeLoad:
		if f.Document.HandleLoad(frame) {
			f.Presence.HandleSnapshot(frame.ActiveEditors)
		}
	case protocol.MessageTypeSave:
		f.Document.HandleSaveAck(frame)
	case protocol.MessageTypeContentUpdate:
		f.Document.HandleContentUpdate(frame)
	case protocol.MessageTypeActiveEditors:
		f.Presence.HandleActiveEditors(frame)
	case protocol.MessageTypeEditorJoined:
		f.Presence.HandleJoined(*frame.User)
	case protocol.MessageTypeEditorLeft:
		f.Presence.HandleLeft(*frame.User)
	case protocol.MessageTypeCursorUpdate:
		f.Presence.HandleCursor(frame)
	case protocol.MessageTypeCompletionSuggestion:
		f.Completion.HandleSuggestion(frame)
	case protocol.MessageTypeError:
		m.routeError(frame)
	default:
		m.log.Debug("unhandled frame", "type", frame.Type)
	}
}

func (m *Manager) routeError(frame *protocol.Frame) {
	f := m.file
	switch {
	case frame.Op == string(protocol.MessageTypeRequestCompletion):
		f.Completion.HandleError(frame)
	case frame.Path != "" && frame.Path != f.Document.Path():
		m.log.Debug("dropping error for another file", "path", frame.Path)
	default:
		f.Document.HandleError(frame)
		if f.Document.State() == document.StateError {
			f.Completion.Reset()
			f.Presence.Stop()
		}
	}
}

func (m *Manager) connectionChanged(event connection.StateEvent) {
	m.view.ConnectionChanged(event)

	switch event.State {
	case connection.StateOpen:
		m.view.StatusChanged(model.Info("Connected"))
		if m.file != nil {
			m.file.Document.Reload()
			if m.file.Document.State() != document.StateError {
				m.file.Presence.Start()
			}
		}
	case connection.StateReconnecting:
		m.view.StatusChanged(model.Failure(fmt.Sprintf(
			"Connection lost, reconnecting in %s (attempt %d)", event.Delay, event.Attempt)))
		if m.file != nil {
			m.file.Presence.Stop()
			m.file.Completion.Reset()
		}
	case connection.StateClosed:
		if event.Err == nil {
			return
		}
		m.log.Error("connection closed permanently", "err", event.Err)
		m.view.StatusChanged(model.Terminal("Connection lost. Reconnect to continue editing."))
		m.CloseFile()
	}
}
