package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/privchat/privchat-server/internal/models"
	"github.com/privchat/privchat-server/internal/store"
)

// DefaultAvatarRef is assigned to new identities that did not pick an avatar.
const DefaultAvatarRef = "profil/userdefault.jpeg"

// Directory owns identity profile records: creation at registration,
// display-name updates, soft-disable, and bounded substring search.
type Directory struct {
	store *store.Store
}

// NewDirectory returns a Directory backed by the given store.
func NewDirectory(s *store.Store) *Directory {
	return &Directory{store: s}
}

// Create registers a new identity. The display name defaults to the local
// part of the email when empty. Returns ErrConflict if the email is taken.
func (d *Directory) Create(email, displayName, avatarRef string) (models.Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	at := strings.Index(email, "@")
	if at < 1 || at == len(email)-1 {
		return models.Identity{}, ErrValidation
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = email[:at]
	}
	if avatarRef == "" {
		avatarRef = DefaultAvatarRef
	}

	ident := models.Identity{
		ID:          uuid.NewString(),
		Email:       email,
		DisplayName: displayName,
		AvatarRef:   avatarRef,
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.store.CreateIdentity(ident); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.Identity{}, ErrConflict
		}
		return models.Identity{}, err
	}
	return ident, nil
}

// Get resolves an identity by id. Disabled identities still resolve so old
// conversations keep their sender names.
func (d *Directory) Get(id string) (models.Identity, error) {
	ident, err := d.store.GetIdentity(id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Identity{}, ErrNotFound
	}
	return ident, err
}

// UpdateDisplayName changes an identity's display name. Only the owning
// identity may call this; the gateway enforces that by passing the session's
// own id.
func (d *Directory) UpdateDisplayName(id, name string) (models.Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Identity{}, ErrValidation
	}
	if err := d.store.UpdateDisplayName(id, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Identity{}, ErrNotFound
		}
		return models.Identity{}, err
	}
	return d.Get(id)
}

// Disable soft-disables an identity. The record is kept; it only stops
// appearing in search results.
func (d *Directory) Disable(id string) error {
	err := d.store.DisableIdentity(id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Search returns up to limit enabled identities whose display name contains
// query, case-insensitively. afterID is a cursor: pass the last id of the
// previous page to fetch the next one.
func (d *Directory) Search(query string, limit int, afterID string) ([]models.Identity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	return d.store.SearchIdentities(query, limit, afterID)
}
