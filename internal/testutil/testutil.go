// Package testutil provides shared test helpers for setting up vaults and
// mirror databases.
package testutil

import (
	"os"
	"testing"

	"github.com/aldmark/skald/internal/mirror"
	"github.com/aldmark/skald/internal/storage"
)

// TestMirror creates a temporary SQLite mirror that is automatically
// cleaned up.
func TestMirror(t *testing.T) *mirror.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "skald-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := mirror.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestVault creates a temporary vault directory with a storage.Provider.
func TestVault(t *testing.T) (string, *storage.FS) {
	t.Helper()
	vaultDir := t.TempDir()
	store, err := storage.NewFS(vaultDir)
	if err != nil {
		t.Fatal(err)
	}
	return vaultDir, store
}
