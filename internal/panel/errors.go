package panel

import "errors"

var (
	// ErrNotModified is returned by a Transport when an edit would not change the message
	ErrNotModified = errors.New("message is not modified")
	// ErrNotFound is returned by a Transport when the message to edit no longer exists
	ErrNotFound = errors.New("message to edit not found")

	ErrUnknownSelection = errors.New("unknown selection")
	ErrInvalidPayload   = errors.New("invalid selection payload")
	ErrUnknownRoom      = errors.New("unknown room")
	ErrNoSession        = errors.New("no active panel")
)
