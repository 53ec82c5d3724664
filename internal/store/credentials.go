package store

import (
	"database/sql"
	"time"

	"github.com/pkg/errors"
)

// CreateCredential stores the bcrypt hash for a newly registered account.
// Returns ErrDuplicate if the email already has a credential.
func (s *Store) CreateCredential(email, identityID, passwordHash string) error {
	return withRetry(func() error {
		_, err := s.conn.Exec(
			"INSERT INTO credentials (email, identity_id, password_hash) VALUES (?, ?, ?)",
			email, identityID, passwordHash,
		)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return errors.Wrap(err, "insert credential")
	})
}

// GetCredential returns the identity id and password hash for an email.
func (s *Store) GetCredential(email string) (identityID, passwordHash string, err error) {
	err = withRetry(func() error {
		return s.conn.QueryRow(
			"SELECT identity_id, password_hash FROM credentials WHERE email = ?", email,
		).Scan(&identityID, &passwordHash)
	})
	if err == sql.ErrNoRows {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", errors.Wrap(err, "select credential")
	}
	return identityID, passwordHash, nil
}

// InsertToken records an issued session token.
func (s *Store) InsertToken(token, identityID string, issuedAt time.Time) error {
	return withRetry(func() error {
		_, err := s.conn.Exec(
			"INSERT INTO tokens (token, identity_id, issued_at) VALUES (?, ?, ?)",
			token, identityID, formatTime(issuedAt),
		)
		return errors.Wrap(err, "insert token")
	})
}

// LookupToken resolves a token to its identity id, or ErrNotFound.
func (s *Store) LookupToken(token string) (string, error) {
	var identityID string
	err := withRetry(func() error {
		return s.conn.QueryRow(
			"SELECT identity_id FROM tokens WHERE token = ?", token,
		).Scan(&identityID)
	})
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "select token")
	}
	return identityID, nil
}

// DeleteToken revokes a token. Deleting an unknown token is not an error.
func (s *Store) DeleteToken(token string) error {
	return withRetry(func() error {
		_, err := s.conn.Exec("DELETE FROM tokens WHERE token = ?", token)
		return errors.Wrap(err, "delete token")
	})
}
