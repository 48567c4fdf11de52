package db

import (
	"path/filepath"
	"testing"
)

// NewTestDB creates a migrated database in a temporary directory that is
// closed when the test finishes.
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	db, err := NewDB(filepath.Join(t.TempDir(), "picker.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
