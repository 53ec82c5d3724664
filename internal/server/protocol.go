// Package server defines the JSON wire envelope exchanged with clients and
// the mapping from core errors onto wire error kinds.
package server

import (
	"encoding/json"
	"errors"

	"github.com/privchat/privchat-server/internal/chat"
)

// Envelope is the frame exchanged in both directions: commands carry a
// client-chosen requestId that responses echo back; events omit it.
type Envelope struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Client command types. The first frame on a connection must be CmdAuth.
const (
	CmdAuth             = "auth"
	CmdMessageSend      = "message.send"
	CmdMessageHistory   = "message.history"
	CmdConvCreateDirect = "conversation.createDirect"
	CmdConvCreateGroup  = "conversation.createGroup"
	CmdConvList         = "conversation.list"
	CmdUserSearch       = "user.search"
	CmdUserGet          = "user.get"
	CmdUserUpdateName   = "user.updateDisplayName"
	CmdPresenceGet      = "presence.get"
	CmdSubscribe        = "subscription.subscribe"
	CmdUnsubscribe      = "subscription.unsubscribe"
)

// Server response types. Realtime event types are defined in models.
const (
	TypeAck   = "ack"
	TypeError = "error"
)

// ErrorPayload is the payload of an error frame.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// errorKind maps a core error onto its wire kind. Unknown errors map to
// "internal" so storage details never leak to clients.
func errorKind(err error) string {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		return "not_found"
	case errors.Is(err, chat.ErrNotMember):
		return "not_member"
	case errors.Is(err, chat.ErrConflict):
		return "conflict"
	case errors.Is(err, chat.ErrEmptyText):
		return "empty_text"
	case errors.Is(err, chat.ErrValidation):
		return "validation"
	case errors.Is(err, chat.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, chat.ErrBackpressure):
		return "backpressure"
	default:
		return "internal"
	}
}

// errorMessage returns the client-facing description for an error. Internal
// errors get a generic message; taxonomy errors describe themselves.
func errorMessage(err error) string {
	if errorKind(err) == "internal" {
		return "internal error"
	}
	return err.Error()
}

func mustMarshal(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		// Every payload type in this package is marshalable; reaching this
		// is a programming error.
		panic(err)
	}
	return data
}
