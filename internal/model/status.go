package model

import "time"

// StatusKind classifies a user-visible status message.
type StatusKind string

const (
	StatusInfo     StatusKind = "info"
	StatusError    StatusKind = "error"
	StatusTerminal StatusKind = "terminal"
)

// Status is a status line for the UI. A zero Duration means the message stays
// until replaced.
type Status struct {
	Kind     StatusKind
	Message  string
	Duration time.Duration
}

// Info returns a transient informational status.
func Info(message string) Status {
	return Status{Kind: StatusInfo, Message: message, Duration: 2 * time.Second}
}

// Failure returns a transient error status.
func Failure(message string) Status {
	return Status{Kind: StatusError, Message: message, Duration: 3 * time.Second}
}

// Terminal returns a sticky status for a state the user has to act on.
func Terminal(message string) Status {
	return Status{Kind: StatusTerminal, Message: message}
}
