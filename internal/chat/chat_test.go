package chat

import (
	"path/filepath"
	"testing"

	"github.com/privchat/privchat-server/internal/models"
	"github.com/privchat/privchat-server/internal/store"
)

// newTestStore creates a throwaway sqlite database for one test.
func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createIdentity registers a test identity and returns it.
func createIdentity(t *testing.T, dir *Directory, email string) models.Identity {
	t.Helper()

	ident, err := dir.Create(email, "", "")
	if err != nil {
		t.Fatalf("Failed to create identity %s: %v", email, err)
	}
	return ident
}
