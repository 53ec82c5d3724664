package chat

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/privchat/privchat-server/internal/models"
	"github.com/privchat/privchat-server/internal/store"
)

// Presence tracks online state per identity, reference counted by session:
// one identity may hold several live sessions (devices, tabs), and it only
// goes offline when the last one closes. Disconnects are driven by the
// gateway's liveness machinery, never by a client farewell.
type Presence struct {
	store    *store.Store
	mu       sync.Mutex
	sessions map[string]map[string]struct{} // identity id -> live session ids
	lastSeen map[string]time.Time
}

// NewPresence returns a Presence tracker. The store persists last-seen
// timestamps across restarts; it may be nil in tests.
func NewPresence(s *store.Store) *Presence {
	return &Presence{
		store:    s,
		sessions: make(map[string]map[string]struct{}),
		lastSeen: make(map[string]time.Time),
	}
}

// SetOnline records a live session for the identity. It returns true when
// the identity transitioned from offline to online, so the caller can
// publish exactly one presence.changed per transition.
func (p *Presence) SetOnline(identityID, sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	open := p.sessions[identityID]
	if open == nil {
		open = make(map[string]struct{})
		p.sessions[identityID] = open
	}
	wasOnline := len(open) > 0
	open[sessionID] = struct{}{}
	return !wasOnline
}

// SetOffline removes a session. It returns true when this was the last open
// session and the identity transitioned to offline; LastSeen is stamped and
// persisted at that point. LastSeen never moves backwards.
func (p *Presence) SetOffline(identityID, sessionID string) bool {
	p.mu.Lock()

	open := p.sessions[identityID]
	if open == nil {
		p.mu.Unlock()
		return false
	}
	delete(open, sessionID)
	if len(open) > 0 {
		p.mu.Unlock()
		return false
	}
	delete(p.sessions, identityID)

	now := time.Now().UTC()
	if now.After(p.lastSeen[identityID]) {
		p.lastSeen[identityID] = now
	}
	rec := models.PresenceRecord{IdentityID: identityID, LastSeen: p.lastSeen[identityID]}
	p.mu.Unlock()

	if p.store != nil {
		if err := p.store.UpdateLastSeen(identityID, rec); err != nil {
			log.Printf("Failed to persist last seen for %s: %v", identityID, err)
		}
	}
	return true
}

// Get returns the identity's current presence. Offline identities report the
// most recent last-seen timestamp, falling back to the persisted one when
// the process has not observed the identity since starting.
func (p *Presence) Get(identityID string) models.PresenceRecord {
	p.mu.Lock()
	if len(p.sessions[identityID]) > 0 {
		p.mu.Unlock()
		return models.PresenceRecord{IdentityID: identityID, Online: true, LastSeen: time.Now().UTC()}
	}
	seen, ok := p.lastSeen[identityID]
	p.mu.Unlock()

	if !ok && p.store != nil {
		rec, err := p.store.GetLastSeen(identityID)
		if err == nil {
			return rec
		}
		if !errors.Is(err, store.ErrNotFound) {
			log.Printf("Failed to load last seen for %s: %v", identityID, err)
		}
	}
	return models.PresenceRecord{IdentityID: identityID, LastSeen: seen}
}
