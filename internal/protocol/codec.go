package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/uminmay/collaborative-ai-editor/internal/model"
)

type schema struct {
	required []string
	optional []string
}

type schemaKey struct {
	dir Direction
	typ MessageType
}

var schemas = map[schemaKey]schema{
	{ClientToServer, MessageTypeLoad}:              {required: []string{"path"}},
	{ClientToServer, MessageTypeSave}:              {required: []string{"path", "content"}},
	{ClientToServer, MessageTypeCheckActive}:       {required: []string{"path"}},
	{ClientToServer, MessageTypeCursorUpdate}:      {required: []string{"path", "position"}},
	{ClientToServer, MessageTypeRequestCompletion}: {required: []string{"content", "cursor_position"}, optional: []string{"path"}},
	{ClientToServer, MessageTypeAcceptCompletion}:  {required: []string{"content"}, optional: []string{"path"}},

	{ServerToClient, MessageTypeLoad}: {
		required: []string{"path", "content", "current_user_id"},
		optional: []string{"username", "color", "active_editors"},
	},
	{ServerToClient, MessageTypeSave}:                 {optional: []string{"status", "path"}},
	{ServerToClient, MessageTypeContentUpdate}:        {required: []string{"content", "user"}, optional: []string{"path"}},
	{ServerToClient, MessageTypeActiveEditors}:        {required: []string{"users"}, optional: []string{"path", "content"}},
	{ServerToClient, MessageTypeEditorJoined}:         {required: []string{"user"}},
	{ServerToClient, MessageTypeEditorLeft}:           {required: []string{"user"}},
	{ServerToClient, MessageTypeCursorUpdate}:         {required: []string{"position"}, optional: []string{"path", "user", "timestamp"}},
	{ServerToClient, MessageTypeCompletionSuggestion}: {required: []string{"completion", "cursor_position"}},
	{ServerToClient, MessageTypeError}:                {required: []string{"message"}, optional: []string{"path", "op"}},
}

// Decode parses one frame travelling in dir and checks that the fields its
// type requires are present. All failures wrap model.ErrProtocol.
func Decode(data []byte, dir Direction) (*Frame, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: malformed frame: %v", model.ErrProtocol, err)
	}

	var typ MessageType
	if err := json.Unmarshal(raw["type"], &typ); err != nil || typ == "" {
		return nil, fmt.Errorf("%w: missing frame type", model.ErrProtocol)
	}

	s, ok := schemas[schemaKey{dir, typ}]
	if !ok {
		return nil, fmt.Errorf("%w: unexpected %s frame %q", model.ErrProtocol, dir, typ)
	}
	for _, name := range s.required {
		v, ok := raw[name]
		if !ok || string(v) == "null" {
			return nil, fmt.Errorf("%w: %s frame missing %q", model.ErrProtocol, typ, name)
		}
	}

	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("%w: invalid %s frame: %v", model.ErrProtocol, typ, err)
	}
	return &frame, nil
}

// Encode serializes the frame for dir. Required fields are always written,
// even when zero; optional fields only when set.
func Encode(frame *Frame, dir Direction) ([]byte, error) {
	s, ok := schemas[schemaKey{dir, frame.Type}]
	if !ok {
		return nil, fmt.Errorf("%w: cannot encode %s frame %q", model.ErrProtocol, dir, frame.Type)
	}

	out := map[string]any{"type": frame.Type}
	for _, name := range s.required {
		v, set := frame.field(name)
		if name == "user" && !set {
			return nil, fmt.Errorf("%w: %s frame missing %q", model.ErrProtocol, frame.Type, name)
		}
		out[name] = v
	}
	for _, name := range s.optional {
		if v, set := frame.field(name); set {
			out[name] = v
		}
	}
	return json.Marshal(out)
}

// field returns the value stored under the JSON name and whether it is set.
func (f *Frame) field(name string) (any, bool) {
	switch name {
	case "path":
		return f.Path, f.Path != ""
	case "content":
		return f.Content, f.Content != ""
	case "current_user_id":
		return f.CurrentUserID, f.CurrentUserID != 0
	case "username":
		return f.Username, f.Username != ""
	case "color":
		return f.Color, f.Color != ""
	case "active_editors":
		return editorsOrEmpty(f.ActiveEditors), f.ActiveEditors != nil
	case "user":
		return f.User, f.User != nil
	case "users":
		return editorsOrEmpty(f.Users), f.Users != nil
	case "position":
		return f.Position, f.Position != 0
	case "cursor_position":
		return f.CursorPosition, f.CursorPosition != 0
	case "completion":
		return f.Completion, f.Completion != ""
	case "message":
		return f.Message, f.Message != ""
	case "status":
		return f.Status, f.Status != ""
	case "op":
		return f.Op, f.Op != ""
	case "timestamp":
		return f.Timestamp, f.Timestamp != 0
	}
	return nil, false
}

// editorsOrEmpty keeps an empty presence list as [] rather than null.
func editorsOrEmpty(editors []Editor) []Editor {
	if editors == nil {
		return []Editor{}
	}
	return editors
}
