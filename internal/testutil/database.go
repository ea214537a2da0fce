// Package testutil provides shared test helpers for the import pipeline.
package testutil

import (
	"context"
	"testing"

	"github.com/PL7092/MyMoney-sub001/internal/storage"
)

// SetupTestDB creates an in-memory SQLite storage with migrations applied
// (including the seeded system rules) and registers cleanup.
func SetupTestDB(t *testing.T) *storage.SQLiteStorage {
	t.Helper()

	s, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return s
}
