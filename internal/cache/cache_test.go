package cache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codelynx/photolala/internal/photolala"
)

// tickingClock returns a strictly increasing time so LRU ordering is
// deterministic.
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTickingClock() *tickingClock {
	return &tickingClock{now: time.Unix(1700000000, 0)}
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func testHash(prefix byte) string {
	return string(prefix) + strings.Repeat("0", 31)
}

func newTestCache(t *testing.T, quota int64) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), quota, newTickingClock(), photolala.NewNopLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func TestCache_PutAndGet(t *testing.T) {
	c := newTestCache(t, 1<<20)
	hash := testHash('a')
	data := []byte("thumbnail bytes")

	if err := c.Put(hash, photolala.KindThumbnail, data); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := c.Get(hash, photolala.KindThumbnail)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get() = %q, want %q", got, data)
	}

	// Kinds are distinct namespaces.
	if _, err := c.Get(hash, photolala.KindPhoto); !errors.Is(err, photolala.ErrNotFound) {
		t.Errorf("Get(other kind) error = %v, want ErrNotFound", err)
	}
}

func TestCache_GetMissing(t *testing.T) {
	c := newTestCache(t, 1<<20)
	if _, err := c.Get(testHash('b'), photolala.KindPhoto); !errors.Is(err, photolala.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestCache_RejectsOversizedArtifact(t *testing.T) {
	c := newTestCache(t, 10)
	err := c.Put(testHash('c'), photolala.KindPhoto, make([]byte, 11))
	var qe *photolala.QuotaExceededError
	if !errors.As(err, &qe) {
		t.Fatalf("Put() error = %v, want QuotaExceededError", err)
	}
}

func TestCache_EvictsLeastRecentlyAccessed(t *testing.T) {
	// Quota 100, eviction target 80%. Four 25-byte artifacts fill the
	// quota exactly; a fifth forces eviction down to 55 (80 minus the
	// incoming 25), removing the two least recently accessed entries.
	c := newTestCache(t, 100)
	data := make([]byte, 25)

	first, second, third, fourth := testHash('1'), testHash('2'), testHash('3'), testHash('4')
	c.Put(first, photolala.KindPhoto, data)
	c.Put(second, photolala.KindPhoto, data)
	c.Put(third, photolala.KindPhoto, data)

	// Touch first so second and third become the LRU victims.
	if _, err := c.Get(first, photolala.KindPhoto); err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	c.Put(fourth, photolala.KindPhoto, data)
	if err := c.Put(testHash('5'), photolala.KindPhoto, data); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	for _, victim := range []string{second, third} {
		if _, err := c.Get(victim, photolala.KindPhoto); !errors.Is(err, photolala.ErrNotFound) {
			t.Errorf("least-recently-accessed artifact %s survived eviction, error = %v", victim, err)
		}
	}
	if _, err := c.Get(first, photolala.KindPhoto); err != nil {
		t.Errorf("recently accessed artifact evicted, error = %v", err)
	}
	if _, err := c.Get(fourth, photolala.KindPhoto); err != nil {
		t.Errorf("recently written artifact evicted, error = %v", err)
	}
}

func TestCache_EvictionSkipsPinned(t *testing.T) {
	c := newTestCache(t, 100)
	data := make([]byte, 40)

	pinned := testHash('a')
	c.Put(pinned, photolala.KindPhoto, data)
	c.Pin(pinned, photolala.KindPhoto)

	c.Put(testHash('b'), photolala.KindPhoto, data)
	// Forces eviction; pinned must survive even though it is the LRU.
	if err := c.Put(testHash('c'), photolala.KindPhoto, data); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	if _, err := c.Get(pinned, photolala.KindPhoto); err != nil {
		t.Errorf("pinned artifact was evicted, error = %v", err)
	}

	// After unpinning it becomes evictable again.
	c.Unpin(pinned, photolala.KindPhoto)
	c.Put(testHash('d'), photolala.KindPhoto, data)
	c.Put(testHash('e'), photolala.KindPhoto, data)
	if _, err := c.Get(pinned, photolala.KindPhoto); !errors.Is(err, photolala.ErrNotFound) {
		t.Errorf("unpinned artifact survived eviction, error = %v", err)
	}
}

func TestCache_ScanRebuildsIndex(t *testing.T) {
	dir := t.TempDir()
	clock := newTickingClock()

	c, err := New(dir, 1<<20, clock, photolala.NewNopLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	hash := testHash('f')
	data := []byte("survives restarts")
	if err := c.Put(hash, photolala.KindMetadata, data); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	// Re-open over the same directory: the untracked artifact is found.
	reopened, err := New(dir, 1<<20, clock, photolala.NewNopLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	got, err := reopened.Get(hash, photolala.KindMetadata)
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("Get() = %q, want %q", got, data)
	}

	count, total, _ := reopened.Stats()
	if count != 1 || total != int64(len(data)) {
		t.Errorf("Stats() = (%d, %d), want (1, %d)", count, total, len(data))
	}
}

func TestCache_ScanIgnoresInterruptedWrites(t *testing.T) {
	dir := t.TempDir()

	// A crash mid-write leaves a temp file behind.
	shardDir := filepath.Join(dir, string(photolala.KindPhoto), "ab")
	if err := os.MkdirAll(shardDir, 0755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	orphan := filepath.Join(shardDir, tempPrefix+"1234")
	if err := os.WriteFile(orphan, []byte("half-written"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	c, err := New(dir, 1<<20, newTickingClock(), photolala.NewNopLogger())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	count, total, _ := c.Stats()
	if count != 0 || total != 0 {
		t.Errorf("Stats() = (%d, %d), want (0, 0): temp files must not be indexed", count, total)
	}
	if _, err := os.Stat(orphan); !os.IsNotExist(err) {
		t.Errorf("orphaned temp file still on disk after scan")
	}
}

func TestCache_PutOverwriteAdjustsTotal(t *testing.T) {
	c := newTestCache(t, 1000)
	hash := testHash('9')

	c.Put(hash, photolala.KindPhoto, make([]byte, 100))
	c.Put(hash, photolala.KindPhoto, make([]byte, 40))

	count, total, _ := c.Stats()
	if count != 1 || total != 40 {
		t.Errorf("Stats() = (%d, %d), want (1, 40)", count, total)
	}
}
