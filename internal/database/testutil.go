package database

import (
	"testing"
)

// NewTestDB creates an in-memory SQLite database with all migrations
// applied, for use in tests.
func NewTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		db.Close()
	})

	return db
}
