package testutil

import (
	"testing"

	"github.com/codelynx/photolala/internal/cache"
	"github.com/codelynx/photolala/internal/photolala"
)

// NewTestCache creates an artifact cache in a temporary directory with the
// given quota.
func NewTestCache(t *testing.T, quota int64) *cache.Cache {
	t.Helper()

	c, err := cache.New(t.TempDir(), quota, FixedClock(), photolala.NewNopLogger())
	if err != nil {
		t.Fatalf("failed to create cache: %v", err)
	}
	return c
}
