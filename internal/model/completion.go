package model

// PendingCompletion is a suggestion that is displayed but not committed.
type PendingCompletion struct {
	SuggestedText   string
	InsertionOffset int
	OriginalContent string
}

// Applied returns the content with the suggestion committed at its offset.
func (p *PendingCompletion) Applied() string {
	return InsertAt(p.OriginalContent, p.InsertionOffset, p.SuggestedText)
}

// CaretAfter returns the caret offset right after the inserted text.
func (p *PendingCompletion) CaretAfter() int {
	return ClampOffset(p.OriginalContent, p.InsertionOffset) + RuneLen(p.SuggestedText)
}
