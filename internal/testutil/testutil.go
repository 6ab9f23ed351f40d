// Package testutil provides shared test helpers for setting up registries and stores.
package testutil

import (
	"os"
	"testing"

	"github.com/starford/raido/internal/metadata"
	"github.com/starford/raido/internal/models"
	"github.com/starford/raido/internal/registry"
)

// TestRegistry creates a temporary SQLite registry that is automatically cleaned up.
func TestRegistry(t *testing.T) *registry.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "raido-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := registry.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore creates a temporary store directory with a metadata.Provider.
func TestStore(t *testing.T) (string, *metadata.FS) {
	t.Helper()
	storeDir := t.TempDir()
	store, err := metadata.NewFS(storeDir)
	if err != nil {
		t.Fatal(err)
	}
	return storeDir, store
}

// SeedUser stores a user in the registry, failing the test on error.
func SeedUser(t *testing.T, db *registry.DB, user models.User) {
	t.Helper()
	if err := db.PutUser(user); err != nil {
		t.Fatal(err)
	}
}

// SeedDomain adds a validated domain owned by the given user and returns its ID.
func SeedDomain(t *testing.T, db *registry.DB, name, owner string, team ...string) int64 {
	t.Helper()
	d, err := db.AddDomain(name, owner, true, team...)
	if err != nil {
		t.Fatal(err)
	}
	return d.ID
}
