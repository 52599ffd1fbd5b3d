package testutil

import (
	"testing"

	"techpost/internal/database"
)

// NewTestDatabase creates a migrated in-memory SQLite database using
// FixedClock. The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:", FixedClock())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db
}
