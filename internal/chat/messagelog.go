package chat

import (
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/privchat/privchat-server/internal/models"
	"github.com/privchat/privchat-server/internal/store"
)

// MaxMessageTextLen bounds the text of a single message. The gateway already
// limits frame size; this keeps the bound enforced at the component boundary
// for non-gateway callers too.
const MaxMessageTextLen = 4096

// MessageLog owns the append-only, per-conversation ordered message
// sequence. Appends are durable before any side effect fires; fan-out and
// summary updates are best-effort after the fact.
type MessageLog struct {
	store         *store.Store
	conversations *Conversations
	router        *Router
	appendLocks   *keyedMutex
}

// NewMessageLog returns a MessageLog. The router may be nil in tests that
// only exercise persistence.
func NewMessageLog(s *store.Store, convs *Conversations, router *Router) *MessageLog {
	return &MessageLog{
		store:         s,
		conversations: convs,
		router:        router,
		appendLocks:   newKeyedMutex(),
	}
}

// Append validates and durably appends a message, assigns the next sequence
// number for the conversation, then updates the conversation summary and
// publishes message.appended and conversation.updated to subscribed
// sessions. The per-conversation lock is held through the publish so event
// order always equals sequence order.
func (l *MessageLog) Append(conversationID, senderID, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyText
	}
	if len(text) > MaxMessageTextLen {
		return models.Message{}, ErrValidation
	}

	conv, err := l.conversations.Get(conversationID)
	if err != nil {
		return models.Message{}, err
	}
	if !conv.HasMember(senderID) {
		return models.Message{}, ErrNotMember
	}

	unlock := l.appendLocks.lock(conversationID)
	defer unlock()

	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
	}
	seq, err := l.store.AppendMessage(msg)
	if err != nil {
		return models.Message{}, err
	}
	msg.Seq = seq

	// The append is durable from here on. Neither a summary failure nor a
	// fan-out failure rolls it back.
	summary := models.MessageSummary{
		Seq:       msg.Seq,
		SenderID:  msg.SenderID,
		Text:      msg.Text,
		CreatedAt: msg.CreatedAt,
	}
	if err := l.conversations.RecordLastMessage(conversationID, summary); err != nil {
		log.Printf("Failed to record last message for conversation %s: %v", conversationID, err)
	} else {
		conv.LastMessage = &summary
	}

	if l.router != nil {
		l.router.Publish(conversationID, models.Event{
			Type:           models.EventMessageAppended,
			ConversationID: conversationID,
			Payload:        msg,
		})
		l.router.Publish(conversationID, models.Event{
			Type:           models.EventConversationUpdated,
			ConversationID: conversationID,
			Payload:        conv,
		})
	}
	return msg, nil
}

// ListSince returns up to limit messages with sequence numbers greater than
// afterSeq, oldest first. afterSeq = 0 replays full history; a reconnecting
// client passes its last known sequence number to catch up. The requester
// must be a member of the conversation.
func (l *MessageLog) ListSince(conversationID, requesterID string, afterSeq int64, limit int) ([]models.Message, error) {
	conv, err := l.conversations.Get(conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(requesterID) {
		return nil, ErrNotMember
	}
	if limit <= 0 {
		limit = 100
	}
	return l.store.ListMessagesSince(conversationID, afterSeq, limit)
}
