package model

import "errors"

var (
	// ErrNotConnected is returned when a frame is sent while the channel is not open.
	ErrNotConnected = errors.New("not connected")

	// ErrTransientChannel reports a recoverable channel failure; a reconnect is scheduled.
	ErrTransientChannel = errors.New("connection lost")

	// ErrTerminalChannel reports that reconnect attempts are exhausted.
	ErrTerminalChannel = errors.New("connection failed permanently")

	// ErrRemoteFileGone is returned when the open file was deleted or became inaccessible.
	ErrRemoteFileGone = errors.New("file deleted remotely")

	// ErrProtocol is returned for malformed or unexpected frames.
	ErrProtocol = errors.New("protocol error")

	// ErrReadOnly is returned when an edit is attempted before the file is loaded
	// or after the session reached its terminal state.
	ErrReadOnly = errors.New("document is read-only")

	// ErrNoSession is returned when an operation needs an open file and none is open.
	ErrNoSession = errors.New("no file is open")

	// ErrUserNotFound is returned when a user is not in the relay store.
	ErrUserNotFound = errors.New("user not found")
)
