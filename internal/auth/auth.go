// Package auth implements the credential verifier: account registration and
// login with bcrypt-hashed passwords, and opaque session tokens that the
// gateway exchanges for an identity id.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/privchat/privchat-server/internal/chat"
	"github.com/privchat/privchat-server/internal/models"
	"github.com/privchat/privchat-server/internal/store"
)

// MinPasswordLen is the minimum accepted password length at registration.
const MinPasswordLen = 6

// Service issues and verifies credentials. Tokens are persisted so sessions
// survive a server restart.
type Service struct {
	store     *store.Store
	directory *chat.Directory
}

// NewService returns a credential service backed by the given store and
// identity directory.
func NewService(s *store.Store, dir *chat.Directory) *Service {
	return &Service{store: s, directory: dir}
}

// Register creates a credential and its identity profile, then issues a
// session token. The display name defaults to the email local part.
// Returns chat.ErrConflict when the email is already registered.
func (s *Service) Register(email, password string) (models.Identity, string, error) {
	if len(password) < MinPasswordLen {
		return models.Identity{}, "", chat.ErrValidation
	}

	ident, err := s.directory.Create(email, "", "")
	if err != nil {
		return models.Identity{}, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return models.Identity{}, "", err
	}
	if err := s.store.CreateCredential(ident.Email, ident.ID, string(hash)); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return models.Identity{}, "", chat.ErrConflict
		}
		return models.Identity{}, "", err
	}

	token, err := s.issueToken(ident.ID)
	if err != nil {
		return models.Identity{}, "", err
	}
	return ident, token, nil
}

// Login checks the password for an email and issues a session token.
// Unknown accounts and wrong passwords both return chat.ErrUnauthorized.
func (s *Service) Login(email, password string) (models.Identity, string, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	identityID, hash, err := s.store.GetCredential(email)
	if errors.Is(err, store.ErrNotFound) {
		return models.Identity{}, "", chat.ErrUnauthorized
	}
	if err != nil {
		return models.Identity{}, "", err
	}
	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return models.Identity{}, "", chat.ErrUnauthorized
	}

	ident, err := s.directory.Get(identityID)
	if err != nil {
		return models.Identity{}, "", err
	}
	if ident.Disabled {
		return models.Identity{}, "", chat.ErrUnauthorized
	}

	token, err := s.issueToken(identityID)
	if err != nil {
		return models.Identity{}, "", err
	}
	return ident, token, nil
}

// Verify resolves a session token to the identity id it was issued for.
// Returns chat.ErrUnauthorized for unknown or revoked tokens.
func (s *Service) Verify(token string) (string, error) {
	if token == "" {
		return "", chat.ErrUnauthorized
	}
	identityID, err := s.store.LookupToken(token)
	if errors.Is(err, store.ErrNotFound) {
		return "", chat.ErrUnauthorized
	}
	if err != nil {
		return "", err
	}
	return identityID, nil
}

// Logout revokes a token. Revoking an unknown token succeeds quietly.
func (s *Service) Logout(token string) error {
	return s.store.DeleteToken(token)
}

func (s *Service) issueToken(identityID string) (string, error) {
	token := uuid.NewString()
	if err := s.store.InsertToken(token, identityID, time.Now().UTC()); err != nil {
		return "", err
	}
	return token, nil
}
