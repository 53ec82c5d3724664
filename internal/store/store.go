// Package store implements durable persistence for identities, credentials,
// conversations, and messages on an embedded sqlite database.
package store

import (
	"database/sql"
	stderrors "errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// Sentinel errors returned by store operations. Callers map them onto the
// chat error taxonomy; the store itself stays below that layer.
var (
	ErrNotFound  = stderrors.New("store: not found")
	ErrDuplicate = stderrors.New("store: duplicate")
)

// timeLayout is RFC 3339 with fixed-width nanoseconds so stored UTC
// timestamps order lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Store wraps the sqlite connection pool and owns schema management.
type Store struct {
	conn *sql.DB
}

// Open opens (creating if necessary) the database at path and initializes
// the schema. WAL mode keeps readers from blocking the single writer.
func Open(path string) (*Store, error) {
	conn, err := sql.Open("sqlite3", path+"?_foreign_keys=1&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, errors.Wrap(err, "open database")
	}

	s := &Store{conn: conn}
	if err := s.init(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS identities (
			id TEXT PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			display_name TEXT NOT NULL,
			avatar_ref TEXT NOT NULL DEFAULT '',
			disabled INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL,
			last_seen TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS credentials (
			email TEXT PRIMARY KEY,
			identity_id TEXT NOT NULL REFERENCES identities(id),
			password_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS tokens (
			token TEXT PRIMARY KEY,
			identity_id TEXT NOT NULL REFERENCES identities(id),
			issued_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS conversations (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			direct INTEGER NOT NULL,
			pair_key TEXT UNIQUE,
			created_at TEXT NOT NULL,
			last_seq INTEGER NOT NULL DEFAULT 0,
			last_sender TEXT NOT NULL DEFAULT '',
			last_text TEXT NOT NULL DEFAULT '',
			last_at TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS members (
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			identity_id TEXT NOT NULL REFERENCES identities(id),
			PRIMARY KEY (conversation_id, identity_id)
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT NOT NULL,
			conversation_id TEXT NOT NULL REFERENCES conversations(id),
			seq INTEGER NOT NULL,
			sender_id TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at TEXT NOT NULL,
			PRIMARY KEY (conversation_id, seq)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_members_identity ON members(identity_id)`,
		`CREATE INDEX IF NOT EXISTS idx_identities_display_name ON identities(display_name COLLATE NOCASE)`,
	}

	for _, query := range queries {
		if _, err := s.conn.Exec(query); err != nil {
			return errors.Wrap(err, "init schema")
		}
	}
	return nil
}

// withRetry runs op, retrying with exponential backoff while sqlite reports
// a transient busy or locked state. Any other failure is permanent and is
// returned immediately.
func withRetry(op func() error) error {
	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Millisecond),
		backoff.WithMaxInterval(250*time.Millisecond),
	), 5)

	return backoff.Retry(func() error {
		err := op()
		if err == nil || isTransient(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func isTransient(err error) bool {
	var serr sqlite3.Error
	if stderrors.As(err, &serr) {
		return serr.Code == sqlite3.ErrBusy || serr.Code == sqlite3.ErrLocked
	}
	return false
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	if stderrors.As(err, &serr) {
		return serr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			serr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
