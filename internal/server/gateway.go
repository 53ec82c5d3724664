// Package server coordinates session registration, presence fan-out, and
// connection cleanup for the PrivChat WebSocket service via the Gateway type.
package server

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/privchat/privchat-server/internal/auth"
	"github.com/privchat/privchat-server/internal/chat"
	"github.com/privchat/privchat-server/internal/models"
)

// Gateway is the boundary component: it accepts authenticated sessions and
// translates client commands into calls against the chat core, and core
// events into outbound client frames. All session goroutines are tracked so
// shutdown can wait for them.
type Gateway struct {
	directory *chat.Directory
	convs     *chat.Conversations
	messages  *chat.MessageLog
	presence  *chat.Presence
	router    *chat.Router
	verifier  *auth.Service

	mu       sync.Mutex
	sessions map[*session]struct{}
	wg       sync.WaitGroup
}

// NewGateway wires the chat core components behind a gateway.
func NewGateway(dir *chat.Directory, convs *chat.Conversations, messages *chat.MessageLog,
	presence *chat.Presence, router *chat.Router, verifier *auth.Service) *Gateway {
	return &Gateway{
		directory: dir,
		convs:     convs,
		messages:  messages,
		presence:  presence,
		router:    router,
		verifier:  verifier,
		sessions:  make(map[*session]struct{}),
	}
}

func (g *Gateway) register(s *session) {
	g.mu.Lock()
	g.sessions[s] = struct{}{}
	count := len(g.sessions)
	g.mu.Unlock()
	log.Printf("Session %s opened for %s from %s. Active sessions: %d", s.id, s.identity.ID, s.addr, count)
}

func (g *Gateway) unregister(s *session) {
	g.mu.Lock()
	delete(g.sessions, s)
	count := len(g.sessions)
	g.mu.Unlock()
	log.Printf("Session %s closed for %s. Active sessions: %d", s.id, s.identity.ID, count)
}

// publishPresence fans a presence.changed event out to every conversation
// the identity belongs to. Only member sessions subscribed to a shared
// conversation learn about the change.
func (g *Gateway) publishPresence(identityID string) {
	rec := g.presence.Get(identityID)
	convs, err := g.convs.ListForMember(identityID)
	if err != nil {
		log.Printf("Failed to list conversations for presence fan-out of %s: %v", identityID, err)
		return
	}
	for _, conv := range convs {
		g.router.Publish(conv.ID, models.Event{
			Type:           models.EventPresenceChanged,
			ConversationID: conv.ID,
			Payload:        rec,
		})
	}
}

// notifyConversation pushes a conversation.updated frame to every live
// session whose identity is a member. Creation happens before any member can
// subscribe to the new conversation, so this goes through the gateway's
// session registry rather than the router.
func (g *Gateway) notifyConversation(conv models.Conversation) {
	g.mu.Lock()
	recipients := make([]*session, 0, len(g.sessions))
	for s := range g.sessions {
		if conv.HasMember(s.identity.ID) {
			recipients = append(recipients, s)
		}
	}
	g.mu.Unlock()

	// reply may drop and close an unresponsive session, which re-enters the
	// gateway via unregister; it must run outside the registry lock.
	env := Envelope{Type: models.EventConversationUpdated, Payload: mustMarshal(conv)}
	for _, s := range recipients {
		s.reply(env)
	}
}

// Shutdown closes all live sessions and waits for their goroutines to
// finish, or until the timeout is reached.
func (g *Gateway) Shutdown(timeout time.Duration) error {
	log.Println("Initiating gateway shutdown...")

	g.mu.Lock()
	sessions := make([]*session, 0, len(g.sessions))
	for s := range g.sessions {
		sessions = append(sessions, s)
	}
	g.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}

	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Gateway shutdown completed")
		return nil
	case <-time.After(timeout):
		log.Println("Gateway shutdown timeout reached, some sessions may still be closing")
		return context.DeadlineExceeded
	}
}
