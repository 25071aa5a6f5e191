package db

import (
	"testing"
)

// NewTestDB creates a migrated in-memory database that is closed when
// the test completes. Intended for other packages' tests; in-memory
// keeps them fast and isolated.
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	d, err := OpenInMemory()
	if err != nil {
		t.Fatalf("create test db: %v", err)
	}

	t.Cleanup(func() {
		_ = d.Close()
	})

	return d
}
