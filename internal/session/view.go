package session

import (
	"github.com/uminmay/collaborative-ai-editor/internal/connection"
	"github.com/uminmay/collaborative-ai-editor/internal/model"
)

// View observes session state. All calls happen on the scheduler.
type View interface {
	// ContentChanged reports the committed content and caret.
	ContentChanged(content string, caret int)

	// PresenceChanged reports the co-editors of the open file.
	PresenceChanged(participants []model.Participant)

	// SuggestionChanged reports the ghost text, or nil when none is shown.
	SuggestionChanged(pending *model.PendingCompletion)

	StatusChanged(status model.Status)
	ConnectionChanged(event connection.StateEvent)
}

// NopView ignores every notification.
type NopView struct{}

func (NopView) ContentChanged(string, int)                 {}
func (NopView) PresenceChanged([]model.Participant)        {}
func (NopView) SuggestionChanged(*model.PendingCompletion) {}
func (NopView) StatusChanged(model.Status)                 {}
func (NopView) ConnectionChanged(connection.StateEvent)    {}
