// Package cache implements the local artifact cache: derived artifacts
// (photo bytes awaiting upload, thumbnails, extracted metadata) addressed
// by content hash, held on disk under a byte quota with
// least-recently-accessed eviction.
package cache

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/codelynx/photolala/internal/photolala"
)

// evictTargetFraction is the fraction of the quota eviction shrinks the
// cache to, so a put at the boundary does not immediately thrash.
const evictTargetFraction = 0.8

// tempPrefix names in-progress atomic writes. Scan skips them.
const tempPrefix = ".tmp-"

type entryKey struct {
	hash string
	kind photolala.ArtifactKind
}

type entry struct {
	size       int64
	lastAccess time.Time
}

// Cache is a quota-bounded on-disk artifact store. Artifacts live at
// <root>/<kind>/<hh>/<hash> where hh is the first two hex digits of the
// hash, keeping directories small. Safe for concurrent use.
type Cache struct {
	root   string
	quota  int64
	clock  photolala.Clock
	logger photolala.Logger

	mu      sync.Mutex
	entries map[entryKey]*entry
	total   int64
	pins    map[entryKey]int
}

// New opens a cache rooted at root with the given byte quota. Any
// artifacts already on disk are indexed by scanning the directory tree;
// their last-access times start from file modification times.
func New(root string, quota int64, clock photolala.Clock, logger photolala.Logger) (*Cache, error) {
	if quota <= 0 {
		return nil, fmt.Errorf("cache quota must be positive, got %d", quota)
	}
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating cache root: %w", err)
	}

	c := &Cache{
		root:    root,
		quota:   quota,
		clock:   clock,
		logger:  logger,
		entries: make(map[entryKey]*entry),
		pins:    make(map[entryKey]int),
	}
	if err := c.scan(); err != nil {
		return nil, err
	}
	return c, nil
}

// scan rebuilds the size/access index from disk.
func (c *Cache) scan() error {
	for _, kind := range photolala.AllKinds {
		kindDir := filepath.Join(c.root, string(kind))
		err := filepath.WalkDir(kindDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if d.IsDir() {
				return nil
			}
			if strings.HasPrefix(d.Name(), tempPrefix) {
				// Leftover from a write interrupted mid-rename.
				os.Remove(path)
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			key := entryKey{hash: d.Name(), kind: kind}
			c.entries[key] = &entry{size: info.Size(), lastAccess: info.ModTime()}
			c.total += info.Size()
			return nil
		})
		if err != nil {
			return fmt.Errorf("scanning cache directory: %w", err)
		}
	}
	return nil
}

func (c *Cache) path(key entryKey) string {
	return filepath.Join(c.root, string(key.kind), key.hash[:2], key.hash)
}

// Get returns an artifact's bytes and bumps its access time.
// Returns photolala.ErrNotFound when the artifact is not cached.
func (c *Cache) Get(hash string, kind photolala.ArtifactKind) ([]byte, error) {
	rc, _, err := c.Open(hash, kind)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("reading cached artifact: %w", err)
	}
	return data, nil
}

// Open returns a reader over an artifact's bytes along with its size, and
// bumps the artifact's access time.
func (c *Cache) Open(hash string, kind photolala.ArtifactKind) (io.ReadCloser, int64, error) {
	key := entryKey{hash: hash, kind: kind}

	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		return nil, 0, photolala.ErrNotFound
	}
	e.lastAccess = c.clock.Now()
	size := e.size
	path := c.path(key)
	c.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Index said present but the file vanished; drop the entry.
			c.mu.Lock()
			c.dropLocked(key)
			c.mu.Unlock()
			return nil, 0, photolala.ErrNotFound
		}
		return nil, 0, fmt.Errorf("opening cached artifact: %w", err)
	}
	return f, size, nil
}

// Put stores an artifact, evicting least-recently-accessed entries first
// if the write would exceed the quota. An artifact larger than the whole
// quota is refused with QuotaExceededError.
func (c *Cache) Put(hash string, kind photolala.ArtifactKind, data []byte) error {
	if err := photolala.ValidateContentHash(hash); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown artifact kind %q", kind)
	}
	size := int64(len(data))
	if size > c.quota {
		return &photolala.QuotaExceededError{Requested: size, Quota: c.quota}
	}

	key := entryKey{hash: hash, kind: kind}

	c.mu.Lock()
	defer c.mu.Unlock()

	existing := int64(0)
	if e, ok := c.entries[key]; ok {
		existing = e.size
	}
	if c.total-existing+size > c.quota {
		c.evictLocked(int64(float64(c.quota)*evictTargetFraction) - size)
	}

	path := c.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	if err := writeFileAtomic(path, bytes.NewReader(data), size); err != nil {
		return fmt.Errorf("writing cached artifact: %w", err)
	}

	c.total += size - existing
	c.entries[key] = &entry{size: size, lastAccess: c.clock.Now()}
	return nil
}

// Pin protects an artifact from eviction while a backup task is in
// flight. Pins are counted; each Pin needs a matching Unpin.
func (c *Cache) Pin(hash string, kind photolala.ArtifactKind) {
	key := entryKey{hash: hash, kind: kind}
	c.mu.Lock()
	c.pins[key]++
	c.mu.Unlock()
}

// Unpin releases one pin on an artifact.
func (c *Cache) Unpin(hash string, kind photolala.ArtifactKind) {
	key := entryKey{hash: hash, kind: kind}
	c.mu.Lock()
	if c.pins[key] > 1 {
		c.pins[key]--
	} else {
		delete(c.pins, key)
	}
	c.mu.Unlock()
}

// EvictUntilUnderQuota evicts least-recently-accessed artifacts until the
// cache is at or below the eviction target.
func (c *Cache) EvictUntilUnderQuota() {
	c.mu.Lock()
	c.evictLocked(int64(float64(c.quota) * evictTargetFraction))
	c.mu.Unlock()
}

// evictLocked removes unpinned entries, oldest access first, until total
// is at or below target. Caller holds c.mu.
func (c *Cache) evictLocked(target int64) {
	if target < 0 {
		target = 0
	}
	for c.total > target {
		var victim entryKey
		var victimEntry *entry
		for key, e := range c.entries {
			if c.pins[key] > 0 {
				continue
			}
			if victimEntry == nil || e.lastAccess.Before(victimEntry.lastAccess) {
				victim = key
				victimEntry = e
			}
		}
		if victimEntry == nil {
			// Everything left is pinned.
			return
		}
		if err := os.Remove(c.path(victim)); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("evicting cached artifact failed", "hash", victim.hash, "kind", victim.kind, "error", err)
			return
		}
		c.logger.Debug("evicted cached artifact", "hash", victim.hash, "kind", victim.kind, "size", victimEntry.size)
		c.dropLocked(victim)
	}
}

func (c *Cache) dropLocked(key entryKey) {
	if e, ok := c.entries[key]; ok {
		c.total -= e.size
		delete(c.entries, key)
	}
}

// Stats reports the number of cached artifacts, total bytes, and quota.
func (c *Cache) Stats() (count int, total int64, quota int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries), c.total, c.quota
}

// writeFileAtomic writes exactly size bytes from r to path via temp file
// and rename.
func writeFileAtomic(path string, r io.Reader, size int64) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("writing data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if written != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	success = true
	return nil
}
