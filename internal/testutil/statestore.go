package testutil

import (
	"testing"

	"github.com/codelynx/photolala/internal/photolala"
	"github.com/codelynx/photolala/internal/statedb"
)

// NewTestStateStore creates a new in-memory SQLite state store with
// migrations applied. The store is automatically closed when the test
// completes.
func NewTestStateStore(t *testing.T) photolala.StateStore {
	t.Helper()

	s, err := statedb.Open(":memory:")
	if err != nil {
		t.Fatalf("failed to open state store: %v", err)
	}

	t.Cleanup(func() {
		s.Close()
	})

	return s
}
