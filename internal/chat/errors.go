package chat

import "errors"

// Error taxonomy surfaced to the session gateway. Every one of these is
// recoverable: the gateway reports it to the originating client and keeps
// the session (and all other sessions) running.
var (
	// ErrNotFound means a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrNotMember means the identity is not a member of the conversation
	// it tried to read or write.
	ErrNotMember = errors.New("not a conversation member")

	// ErrConflict means a create collided with an existing entity.
	ErrConflict = errors.New("already exists")

	// ErrEmptyText means a message text was blank after trimming.
	ErrEmptyText = errors.New("empty message text")

	// ErrValidation means the input was malformed.
	ErrValidation = errors.New("invalid input")

	// ErrUnauthorized means the presented credentials were rejected.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrBackpressure means a session was dropped for exceeding its event
	// queue bound and must resynchronize on reconnect.
	ErrBackpressure = errors.New("session queue overflow")
)
