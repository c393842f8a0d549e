package core

import (
	"os"
	"testing"
)

// SetupTempDB opens a database in a fresh temp directory and tears both
// down when the test finishes.
func SetupTempDB(tb testing.TB, dbOpts ...Option) (db *DB, dir string) {
	tb.Helper()

	// the directory must not exist yet so Open takes the creation path
	dir, err := os.MkdirTemp("", "hashdb_test_*")
	if err != nil {
		tb.Fatalf("MkdirTemp failed: %v", err)
	}
	if err := os.Remove(dir); err != nil {
		tb.Fatalf("Remove failed: %v", err)
	}

	db, err = Open(dir, dbOpts...)
	if err != nil {
		_ = os.RemoveAll(dir)
		tb.Fatalf("Open(%q) failed: %v", dir, err)
	}

	tb.Cleanup(func() {
		_ = db.Close()
		_ = os.RemoveAll(dir)
	})

	return db, dir
}
