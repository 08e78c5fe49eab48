// Package testutil provides test utilities shared across packages.
package testutil

import (
	"context"
	"testing"

	"github.com/fintrax/pettyflow/internal/storage"
)

// SetupTestDB creates a migrated in-memory SQLite store, with the default
// chart of accounts and keyword rules seeded by the migrations. Cleanup is
// registered automatically.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}
