package store

import (
	"database/sql"

	"github.com/pkg/errors"

	"github.com/privchat/privchat-server/internal/models"
)

// CreateIdentity inserts a new identity row. Returns ErrDuplicate if the
// email is already registered.
func (s *Store) CreateIdentity(id models.Identity) error {
	return withRetry(func() error {
		_, err := s.conn.Exec(
			`INSERT INTO identities (id, email, display_name, avatar_ref, disabled, created_at, last_seen)
			 VALUES (?, ?, ?, ?, 0, ?, ?)`,
			id.ID, id.Email, id.DisplayName, id.AvatarRef,
			formatTime(id.CreatedAt), formatTime(id.CreatedAt),
		)
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return errors.Wrap(err, "insert identity")
	})
}

// GetIdentity returns the identity with the given id, including disabled
// identities. Returns ErrNotFound if no such row exists.
func (s *Store) GetIdentity(id string) (models.Identity, error) {
	var (
		ident     models.Identity
		disabled  int
		createdAt string
	)
	err := withRetry(func() error {
		return s.conn.QueryRow(
			`SELECT id, email, display_name, avatar_ref, disabled, created_at
			 FROM identities WHERE id = ?`, id,
		).Scan(&ident.ID, &ident.Email, &ident.DisplayName, &ident.AvatarRef, &disabled, &createdAt)
	})
	if err == sql.ErrNoRows {
		return models.Identity{}, ErrNotFound
	}
	if err != nil {
		return models.Identity{}, errors.Wrap(err, "select identity")
	}
	ident.Disabled = disabled != 0
	ident.CreatedAt = parseTime(createdAt)
	return ident, nil
}

// UpdateDisplayName sets a new display name. Returns ErrNotFound when the
// identity does not exist.
func (s *Store) UpdateDisplayName(id, name string) error {
	return s.updateIdentityColumn(id, "display_name", name)
}

// DisableIdentity soft-disables an identity; the row is never deleted.
func (s *Store) DisableIdentity(id string) error {
	return s.updateIdentityColumn(id, "disabled", "1")
}

func (s *Store) updateIdentityColumn(id, column, value string) error {
	return withRetry(func() error {
		result, err := s.conn.Exec(
			"UPDATE identities SET "+column+" = ? WHERE id = ?", value, id,
		)
		if err != nil {
			return errors.Wrap(err, "update identity")
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return errors.Wrap(err, "update identity")
		}
		if affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SearchIdentities returns up to limit enabled identities whose display name
// contains query (case-insensitive), ordered by id. A non-empty afterID
// resumes after that id so repeated pages never rescan earlier rows.
func (s *Store) SearchIdentities(query string, limit int, afterID string) ([]models.Identity, error) {
	var out []models.Identity
	err := withRetry(func() error {
		rows, err := s.conn.Query(
			`SELECT id, email, display_name, avatar_ref, created_at
			 FROM identities
			 WHERE disabled = 0 AND id > ? AND display_name LIKE ? ESCAPE '\'
			 ORDER BY id
			 LIMIT ?`,
			afterID, "%"+escapeLike(query)+"%", limit,
		)
		if err != nil {
			return errors.Wrap(err, "search identities")
		}
		defer rows.Close()

		out = out[:0]
		for rows.Next() {
			var (
				ident     models.Identity
				createdAt string
			)
			if err := rows.Scan(&ident.ID, &ident.Email, &ident.DisplayName, &ident.AvatarRef, &createdAt); err != nil {
				return errors.Wrap(err, "scan identity")
			}
			ident.CreatedAt = parseTime(createdAt)
			out = append(out, ident)
		}
		return errors.Wrap(rows.Err(), "search identities")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// UpdateLastSeen persists the offline timestamp so presence survives restarts.
func (s *Store) UpdateLastSeen(id string, t models.PresenceRecord) error {
	return withRetry(func() error {
		_, err := s.conn.Exec(
			"UPDATE identities SET last_seen = ? WHERE id = ?",
			formatTime(t.LastSeen), id,
		)
		return errors.Wrap(err, "update last_seen")
	})
}

// GetLastSeen returns the persisted offline timestamp for an identity.
func (s *Store) GetLastSeen(id string) (models.PresenceRecord, error) {
	var lastSeen string
	err := withRetry(func() error {
		return s.conn.QueryRow(
			"SELECT last_seen FROM identities WHERE id = ?", id,
		).Scan(&lastSeen)
	})
	if err == sql.ErrNoRows {
		return models.PresenceRecord{}, ErrNotFound
	}
	if err != nil {
		return models.PresenceRecord{}, errors.Wrap(err, "select last_seen")
	}
	return models.PresenceRecord{IdentityID: id, LastSeen: parseTime(lastSeen)}, nil
}

// escapeLike escapes the LIKE wildcards so user input matches literally.
func escapeLike(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '%', '_', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
