package chat

import (
	"log"
	"sync"

	"github.com/privchat/privchat-server/internal/models"
)

// Router fans published events out to subscribed sessions. Every session
// owns a bounded queue, written by publishers and drained by exactly one
// consumer (the session's write pump). Publishing never blocks: a session
// whose queue is full loses all of its subscriptions and is told to
// resynchronize, so one slow consumer can never stall the others or grow
// memory without bound.
type Router struct {
	mu       sync.Mutex
	sessions map[string]*routerSession
	byConv   map[string]map[string]*routerSession
}

type routerSession struct {
	id       string
	queue    chan models.Event
	overflow func()
	subs     map[string]struct{}
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{
		sessions: make(map[string]*routerSession),
		byConv:   make(map[string]map[string]*routerSession),
	}
}

// Attach registers a session and returns its event queue. overflow is
// invoked (once, outside router locks) if the queue ever fills up; by then
// the session has already lost its subscriptions. Attaching an id that is
// already attached replaces the old registration.
func (r *Router) Attach(sessionID string, queueCap int, overflow func()) <-chan models.Event {
	if queueCap <= 0 {
		queueCap = 256
	}

	r.mu.Lock()
	if old, ok := r.sessions[sessionID]; ok {
		r.dropLocked(old)
		close(old.queue)
	}
	session := &routerSession{
		id:       sessionID,
		queue:    make(chan models.Event, queueCap),
		overflow: overflow,
		subs:     make(map[string]struct{}),
	}
	r.sessions[sessionID] = session
	r.mu.Unlock()

	return session.queue
}

// Detach removes a session and closes its queue. Called on disconnect.
func (r *Router) Detach(sessionID string) {
	r.mu.Lock()
	session, ok := r.sessions[sessionID]
	if ok {
		r.dropLocked(session)
		delete(r.sessions, sessionID)
	}
	r.mu.Unlock()

	if ok {
		close(session.queue)
	}
}

// Subscribe adds the session to the conversation's fan-out set.
func (r *Router) Subscribe(sessionID, conversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	session.subs[conversationID] = struct{}{}

	subscribers := r.byConv[conversationID]
	if subscribers == nil {
		subscribers = make(map[string]*routerSession)
		r.byConv[conversationID] = subscribers
	}
	subscribers[sessionID] = session
	return nil
}

// Unsubscribe removes the session from one conversation's fan-out set.
func (r *Router) Unsubscribe(sessionID, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(session.subs, conversationID)
	r.removeFromConvLocked(conversationID, sessionID)
}

// UnsubscribeAll removes every subscription the session holds. Called on
// disconnect before Detach.
func (r *Router) UnsubscribeAll(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session, ok := r.sessions[sessionID]; ok {
		r.dropLocked(session)
	}
}

// Publish delivers the event to every session subscribed to the
// conversation. Events published for one conversation arrive at each
// subscriber in publish order; there is no ordering across conversations.
// Sessions whose queues are full are dropped from all subscriptions and
// notified through their overflow callback.
func (r *Router) Publish(conversationID string, event models.Event) {
	var overflowed []*routerSession

	r.mu.Lock()
	for _, session := range r.byConv[conversationID] {
		select {
		case session.queue <- event:
		default:
			overflowed = append(overflowed, session)
		}
	}
	for _, session := range overflowed {
		r.dropLocked(session)
		log.Printf("Session %s dropped: event queue full", session.id)
	}
	r.mu.Unlock()

	// Overflow callbacks run outside the lock; they typically close the
	// connection, which re-enters the router via Detach.
	for _, session := range overflowed {
		if session.overflow != nil {
			session.overflow()
		}
	}
}

// SubscriptionCount reports how many sessions are subscribed to the
// conversation.
func (r *Router) SubscriptionCount(conversationID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byConv[conversationID])
}

// dropLocked removes all of a session's subscriptions. Caller holds r.mu.
func (r *Router) dropLocked(session *routerSession) {
	for conversationID := range session.subs {
		r.removeFromConvLocked(conversationID, session.id)
	}
	session.subs = make(map[string]struct{})
}

func (r *Router) removeFromConvLocked(conversationID, sessionID string) {
	subscribers := r.byConv[conversationID]
	delete(subscribers, sessionID)
	if len(subscribers) == 0 {
		delete(r.byConv, conversationID)
	}
}
