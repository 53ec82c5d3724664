package chat

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/privchat/privchat-server/internal/models"
	"github.com/privchat/privchat-server/internal/store"
)

// Conversations owns conversation records and their membership sets. Direct
// conversations are created idempotently per unordered member pair.
type Conversations struct {
	store     *store.Store
	directory *Directory
	pairLocks *keyedMutex
}

// NewConversations returns a Conversations store. The directory is used to
// validate that members exist before a conversation is created.
func NewConversations(s *store.Store, dir *Directory) *Conversations {
	return &Conversations{
		store:     s,
		directory: dir,
		pairLocks: newKeyedMutex(),
	}
}

// pairKey canonicalizes an unordered member pair into the index key that
// makes direct-chat creation idempotent.
func pairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return a + "|" + b
}

// CreateDirect returns the direct conversation between the two members,
// creating it on first use. Calling it again with the members in either
// order returns the same conversation. The per-pair lock serializes racing
// creators; the unique pair index in the store backs it up.
func (c *Conversations) CreateDirect(memberA, memberB string) (models.Conversation, error) {
	if memberA == "" || memberB == "" || memberA == memberB {
		return models.Conversation{}, ErrValidation
	}
	for _, id := range []string{memberA, memberB} {
		if _, err := c.directory.Get(id); err != nil {
			return models.Conversation{}, err
		}
	}

	key := pairKey(memberA, memberB)
	unlock := c.pairLocks.lock(key)
	defer unlock()

	existing, err := c.store.GetConversationByPairKey(key)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return models.Conversation{}, err
	}

	conv := models.Conversation{
		ID:        uuid.NewString(),
		Title:     "",
		Direct:    true,
		MemberIDs: sortedMembers(memberA, memberB),
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.CreateConversation(conv, key); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			// Lost a race outside this process; the stored one wins.
			return c.store.GetConversationByPairKey(key)
		}
		return models.Conversation{}, err
	}
	return conv, nil
}

// CreateGroup creates a group conversation with the given title and member
// set. At least two distinct, existing members are required.
func (c *Conversations) CreateGroup(memberIDs []string, title string) (models.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Conversation{}, ErrValidation
	}

	distinct := make(map[string]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		if id == "" {
			return models.Conversation{}, ErrValidation
		}
		distinct[id] = struct{}{}
	}
	if len(distinct) < 2 {
		return models.Conversation{}, ErrValidation
	}

	members := make([]string, 0, len(distinct))
	for id := range distinct {
		if _, err := c.directory.Get(id); err != nil {
			return models.Conversation{}, err
		}
		members = append(members, id)
	}
	sort.Strings(members)

	conv := models.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		MemberIDs: members,
		CreatedAt: time.Now().UTC(),
	}
	if err := c.store.CreateConversation(conv, ""); err != nil {
		return models.Conversation{}, err
	}
	return conv, nil
}

// Get loads one conversation.
func (c *Conversations) Get(id string) (models.Conversation, error) {
	conv, err := c.store.GetConversation(id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Conversation{}, ErrNotFound
	}
	return conv, err
}

// IsMember reports whether the identity belongs to the conversation.
func (c *Conversations) IsMember(conversationID, identityID string) (bool, error) {
	return c.store.IsMember(conversationID, identityID)
}

// ListForMember returns the identity's conversations, most recently active
// first.
func (c *Conversations) ListForMember(identityID string) ([]models.Conversation, error) {
	return c.store.ListConversationsForMember(identityID)
}

// RecordLastMessage caches the latest append's summary on the conversation.
// Last-write-wins by sequence number: a stale summary from a slower caller
// never overwrites a newer one.
func (c *Conversations) RecordLastMessage(conversationID string, summary models.MessageSummary) error {
	return c.store.UpdateLastMessage(conversationID, summary)
}

func sortedMembers(ids ...string) []string {
	members := append([]string(nil), ids...)
	sort.Strings(members)
	return members
}
