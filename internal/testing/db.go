// Package testing provides shared test helpers for the hynous-data project.
package testing

import (
	"os"
	"testing"

	"github.com/rs/zerolog"

	"github.com/hynous/hynous-data/internal/store"
)

// NewTestStore creates a file-backed store with the schema applied.
// Each test gets its own temporary database file for isolation.
// Returns the store and a cleanup function that is safe to call once
// the test is done.
func NewTestStore(t *testing.T) (*store.Store, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "test_hynous_*.db")
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	s, err := store.Open(tmpPath, zerolog.Nop())
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to open test store: %v", err)
	}

	if err := s.InitSchema(); err != nil {
		_ = s.Close()
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to apply test schema: %v", err)
	}

	return s, func() {
		if err := s.Close(); err != nil {
			t.Logf("Warning: failed to close test store: %v", err)
		}
		// WAL mode leaves sidecar files next to the database.
		_ = os.Remove(tmpPath)
		_ = os.Remove(tmpPath + "-wal")
		_ = os.Remove(tmpPath + "-shm")
	}
}

// CreateTempDBFile creates a temporary database file for tests that need
// to drive store.Open themselves. Returns the path and a cleanup function.
func CreateTempDBFile(t *testing.T) (string, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "hynous_*.db")
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	return tmpPath, func() {
		_ = os.Remove(tmpPath)
		_ = os.Remove(tmpPath + "-wal")
		_ = os.Remove(tmpPath + "-shm")
	}
}
