// Package models defines the persistent and wire-visible record types shared
// by the storage layer, the chat core, and the session gateway.
package models

import "time"

// Identity is a registered user profile. Identities are never deleted;
// deactivated accounts keep their record with Disabled set.
type Identity struct {
	ID          string    `json:"id"`
	Email       string    `json:"email,omitempty"`
	DisplayName string    `json:"displayName"`
	AvatarRef   string    `json:"avatarRef,omitempty"`
	Disabled    bool      `json:"disabled,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// MessageSummary is the cached projection of the most recent message in a
// conversation. It is derived data: recomputed on every append and never
// authoritative on its own.
type MessageSummary struct {
	Seq       int64     `json:"seq"`
	SenderID  string    `json:"senderId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Conversation is a named set of member identities sharing a message stream.
// Direct conversations are keyed by their unordered member pair and are
// created idempotently.
type Conversation struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Direct      bool            `json:"direct"`
	MemberIDs   []string        `json:"memberIds"`
	CreatedAt   time.Time       `json:"createdAt"`
	LastMessage *MessageSummary `json:"lastMessage,omitempty"`
}

// HasMember reports whether id belongs to the conversation's member set.
func (c *Conversation) HasMember(id string) bool {
	for _, m := range c.MemberIDs {
		if m == id {
			return true
		}
	}
	return false
}

// Message is a single immutable log entry. Seq is assigned by the message
// log, monotonically increasing and gapless per conversation; it is the
// ordering key, not CreatedAt.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Seq            int64     `json:"seq"`
	SenderID       string    `json:"senderId"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// PresenceRecord is the current presence state of one identity. LastSeen is
// monotonically non-decreasing and only meaningful while Online is false.
type PresenceRecord struct {
	IdentityID string    `json:"identityId"`
	Online     bool      `json:"online"`
	LastSeen   time.Time `json:"lastSeen"`
}

// Event types fanned out to subscribed sessions.
const (
	EventMessageAppended     = "message.appended"
	EventPresenceChanged     = "presence.changed"
	EventConversationUpdated = "conversation.updated"
)

// Event is a realtime notification scoped to one conversation. Payload is a
// JSON-marshalable value matching the event type: a Message for
// message.appended, a PresenceRecord for presence.changed, and a Conversation
// for conversation.updated.
type Event struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	Payload        any    `json:"payload"`
}
