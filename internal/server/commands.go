// Package server dispatches client commands against the chat core and maps
// the results back onto acknowledgement and error frames.
package server

import (
	"encoding/json"

	"github.com/privchat/privchat-server/internal/chat"
	"github.com/privchat/privchat-server/internal/models"
)

// handleCommand routes one client command. Every command is answered with
// either an ack carrying its result or an error carrying the taxonomy kind;
// both echo the command's requestId.
func (s *session) handleCommand(env Envelope) {
	switch env.Type {
	case CmdAuth:
		// Already authenticated during the handshake.
		s.reply(envelopeError(env.RequestID, chat.ErrValidation))
	case CmdMessageSend:
		s.cmdMessageSend(env)
	case CmdMessageHistory:
		s.cmdMessageHistory(env)
	case CmdConvCreateDirect:
		s.cmdCreateDirect(env)
	case CmdConvCreateGroup:
		s.cmdCreateGroup(env)
	case CmdConvList:
		s.cmdConversationList(env)
	case CmdUserSearch:
		s.cmdUserSearch(env)
	case CmdUserGet:
		s.cmdUserGet(env)
	case CmdUserUpdateName:
		s.cmdUpdateDisplayName(env)
	case CmdPresenceGet:
		s.cmdPresenceGet(env)
	case CmdSubscribe:
		s.cmdSubscribe(env)
	case CmdUnsubscribe:
		s.cmdUnsubscribe(env)
	default:
		s.reply(envelopeError(env.RequestID, chat.ErrValidation))
	}
}

func (s *session) ack(requestID string, payload any) {
	s.reply(Envelope{Type: TypeAck, RequestID: requestID, Payload: mustMarshal(payload)})
}

func (s *session) decode(env Envelope, into any) bool {
	if err := json.Unmarshal(env.Payload, into); err != nil {
		s.reply(envelopeError(env.RequestID, chat.ErrValidation))
		return false
	}
	return true
}

func (s *session) cmdMessageSend(env Envelope) {
	var payload struct {
		ConversationID string `json:"conversationId"`
		Text           string `json:"text"`
	}
	if !s.decode(env, &payload) {
		return
	}
	msg, err := s.gateway.messages.Append(payload.ConversationID, s.identity.ID, payload.Text)
	if err != nil {
		s.reply(envelopeError(env.RequestID, err))
		return
	}
	s.ack(env.RequestID, map[string]any{"message": msg})
}

func (s *session) cmdMessageHistory(env Envelope) {
	var payload struct {
		ConversationID string `json:"conversationId"`
		AfterSeq       int64  `json:"afterSeq"`
		Limit          int    `json:"limit"`
	}
	if !s.decode(env, &payload) {
		return
	}
	limit := payload.Limit
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	msgs, err := s.gateway.messages.ListSince(payload.ConversationID, s.identity.ID, payload.AfterSeq, limit)
	if err != nil {
		s.reply(envelopeError(env.RequestID, err))
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	s.ack(env.RequestID, map[string]any{"messages": msgs})
}

func (s *session) cmdCreateDirect(env Envelope) {
	var payload struct {
		MemberID string `json:"memberId"`
	}
	if !s.decode(env, &payload) {
		return
	}
	conv, err := s.gateway.convs.CreateDirect(s.identity.ID, payload.MemberID)
	if err != nil {
		s.reply(envelopeError(env.RequestID, err))
		return
	}
	s.ack(env.RequestID, map[string]any{"conversation": conv})
	s.gateway.notifyConversation(conv)
}

func (s *session) cmdCreateGroup(env Envelope) {
	var payload struct {
		MemberIDs []string `json:"memberIds"`
		Title     string   `json:"title"`
	}
	if !s.decode(env, &payload) {
		return
	}
	// The creator is always a member, whether or not the client listed it.
	members := append([]string{s.identity.ID}, payload.MemberIDs...)
	conv, err := s.gateway.convs.CreateGroup(members, payload.Title)
	if err != nil {
		s.reply(envelopeError(env.RequestID, err))
		return
	}
	s.ack(env.RequestID, map[string]any{"conversation": conv})
	s.gateway.notifyConversation(conv)
}

func (s *session) cmdConversationList(env Envelope) {
	convs, err := s.gateway.convs.ListForMember(s.identity.ID)
	if err != nil {
		s.reply(envelopeError(env.RequestID, err))
		return
	}
	if convs == nil {
		convs = []models.Conversation{}
	}
	s.ack(env.RequestID, map[string]any{"conversations": convs})
}

func (s *session) cmdUserSearch(env Envelope) {
	var payload struct {
		Query   string `json:"query"`
		Limit   int    `json:"limit"`
		AfterID string `json:"afterId"`
	}
	if !s.decode(env, &payload) {
		return
	}
	limit := payload.Limit
	if limit <= 0 || limit > s.searchLimit {
		limit = s.searchLimit
	}
	found, err := s.gateway.directory.Search(payload.Query, limit, payload.AfterID)
	if err != nil {
		s.reply(envelopeError(env.RequestID, err))
		return
	}
	if found == nil {
		found = []models.Identity{}
	}
	s.ack(env.RequestID, map[string]any{"identities": found})
}

func (s *session) cmdUserGet(env Envelope) {
	var payload struct {
		ID string `json:"id"`
	}
	if !s.decode(env, &payload) {
		return
	}
	ident, err := s.gateway.directory.Get(payload.ID)
	if err != nil {
		s.reply(envelopeError(env.RequestID, err))
		return
	}
	s.ack(env.RequestID, map[string]any{"identity": ident})
}

func (s *session) cmdUpdateDisplayName(env Envelope) {
	var payload struct {
		DisplayName string `json:"displayName"`
	}
	if !s.decode(env, &payload) {
		return
	}
	// Sessions may only rename their own identity.
	ident, err := s.gateway.directory.UpdateDisplayName(s.identity.ID, payload.DisplayName)
	if err != nil {
		s.reply(envelopeError(env.RequestID, err))
		return
	}
	s.identity = ident
	s.ack(env.RequestID, map[string]any{"identity": ident})
}

func (s *session) cmdPresenceGet(env Envelope) {
	var payload struct {
		ID string `json:"id"`
	}
	if !s.decode(env, &payload) {
		return
	}
	if _, err := s.gateway.directory.Get(payload.ID); err != nil {
		s.reply(envelopeError(env.RequestID, err))
		return
	}
	s.ack(env.RequestID, map[string]any{"presence": s.gateway.presence.Get(payload.ID)})
}

func (s *session) cmdSubscribe(env Envelope) {
	var payload struct {
		ConversationID string `json:"conversationId"`
	}
	if !s.decode(env, &payload) {
		return
	}
	member, err := s.gateway.convs.IsMember(payload.ConversationID, s.identity.ID)
	if err != nil {
		s.reply(envelopeError(env.RequestID, err))
		return
	}
	if !member {
		s.reply(envelopeError(env.RequestID, chat.ErrNotMember))
		return
	}
	if err := s.gateway.router.Subscribe(s.id, payload.ConversationID); err != nil {
		s.reply(envelopeError(env.RequestID, err))
		return
	}
	s.ack(env.RequestID, map[string]any{"subscribed": payload.ConversationID})
}

func (s *session) cmdUnsubscribe(env Envelope) {
	var payload struct {
		ConversationID string `json:"conversationId"`
	}
	if !s.decode(env, &payload) {
		return
	}
	s.gateway.router.Unsubscribe(s.id, payload.ConversationID)
	s.ack(env.RequestID, map[string]any{"unsubscribed": payload.ConversationID})
}
