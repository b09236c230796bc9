package model

// UserID identifies a user on the server.
type UserID int64

// User is the identity carried by presence and broadcast frames.
type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
	Color    string `json:"color,omitempty"`
}

// Participant is a co-editor of the currently open file.
type Participant struct {
	UserID         UserID
	Username       string
	Color          string
	CursorPosition *int
}

// ParticipantFromUser converts a wire user into a participant.
func ParticipantFromUser(u User, cursor *int) Participant {
	return Participant{
		UserID:         u.ID,
		Username:       u.Username,
		Color:          u.Color,
		CursorPosition: cursor,
	}
}
