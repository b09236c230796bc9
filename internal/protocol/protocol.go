// Package protocol defines the typed frames exchanged between editor clients
// and the relay server, one JSON object per frame discriminated by "type".
package protocol

import "github.com/uminmay/collaborative-ai-editor/internal/model"

// MessageType represents the type of a frame.
type MessageType string

const (
	MessageTypeLoad                 MessageType = "load"
	MessageTypeSave                 MessageType = "save"
	MessageTypeContentUpdate        MessageType = "content_update"
	MessageTypeCheckActive          MessageType = "check_active"
	MessageTypeActiveEditors        MessageType = "active_editors"
	MessageTypeEditorJoined         MessageType = "editor_joined"
	MessageTypeEditorLeft           MessageType = "editor_left"
	MessageTypeCursorUpdate         MessageType = "cursor_update"
	MessageTypeRequestCompletion    MessageType = "request_completion"
	MessageTypeCompletionSuggestion MessageType = "completion_suggestion"
	MessageTypeAcceptCompletion     MessageType = "accept_completion"
	MessageTypeError                MessageType = "error"
)

// Direction is the side a frame travels from.
type Direction int

const (
	ClientToServer Direction = iota
	ServerToClient
)

func (d Direction) String() string {
	if d == ClientToServer {
		return "client->server"
	}
	return "server->client"
}

// Editor is a presence entry as sent by the server.
type Editor struct {
	model.User
	Cursor     *int    `json:"cursor,omitempty"`
	LastActive float64 `json:"last_active,omitempty"`
}

// Participant converts the wire entry into a presence participant.
func (e Editor) Participant() model.Participant {
	return model.ParticipantFromUser(e.User, e.Cursor)
}

// Frame is a decoded protocol message. Which fields are meaningful depends on
// Type and Direction; see the schema table in codec.go.
type Frame struct {
	Type           MessageType  `json:"type"`
	Path           string       `json:"path,omitempty"`
	Content        string       `json:"content,omitempty"`
	CurrentUserID  model.UserID `json:"current_user_id,omitempty"`
	Username       string       `json:"username,omitempty"`
	Color          string       `json:"color,omitempty"`
	ActiveEditors  []Editor     `json:"active_editors,omitempty"`
	User           *model.User  `json:"user,omitempty"`
	Users          []Editor     `json:"users,omitempty"`
	Position       int          `json:"position,omitempty"`
	CursorPosition int          `json:"cursor_position,omitempty"`
	Completion     string       `json:"completion,omitempty"`
	Message        string       `json:"message,omitempty"`
	Status         string       `json:"status,omitempty"`
	Op             string       `json:"op,omitempty"`
	Timestamp      float64      `json:"timestamp,omitempty"`
}

// Load builds a client load request.
func Load(path string) *Frame {
	return &Frame{Type: MessageTypeLoad, Path: path}
}

// Save builds a client save request.
func Save(path, content string) *Frame {
	return &Frame{Type: MessageTypeSave, Path: path, Content: content}
}

// CheckActive builds a presence poll.
func CheckActive(path string) *Frame {
	return &Frame{Type: MessageTypeCheckActive, Path: path}
}

// CursorUpdate builds a caret broadcast.
func CursorUpdate(path string, position int) *Frame {
	return &Frame{Type: MessageTypeCursorUpdate, Path: path, Position: position}
}

// RequestCompletion builds a suggestion request.
func RequestCompletion(path, content string, cursor int) *Frame {
	return &Frame{Type: MessageTypeRequestCompletion, Path: path, Content: content, CursorPosition: cursor}
}

// AcceptCompletion builds the frame persisting an accepted suggestion.
func AcceptCompletion(path, content string) *Frame {
	return &Frame{Type: MessageTypeAcceptCompletion, Path: path, Content: content}
}

// ErrorFrame builds a server error frame.
func ErrorFrame(message, path, op string) *Frame {
	return &Frame{Type: MessageTypeError, Message: message, Path: path, Op: op}
}
