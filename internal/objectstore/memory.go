package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/codelynx/photolala/internal/photolala"
)

// MemoryStore is an in-memory implementation of the ObjectStore interface
// with storage-tier simulation. It backs the "memory" store type for
// experiments and is the workhorse of component tests: tiers can be
// flipped, restores completed on demand, and network failures injected.
// Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	objects  map[string]*memoryObject
	putCount map[string]int
	failWith error
}

type memoryObject struct {
	data         []byte
	etag         string
	lastModified time.Time
	tier         photolala.Tier
}

// NewMemoryStore creates an empty in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects:  make(map[string]*memoryObject),
		putCount: make(map[string]int),
	}
}

var _ photolala.ObjectStore = (*MemoryStore)(nil)

// FailWith makes every subsequent operation fail with a transient error
// wrapping err. Pass nil to restore normal service.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

func (m *MemoryStore) checkNetwork() error {
	if m.failWith != nil {
		return photolala.Transient(m.failWith)
	}
	return nil
}

// Put stores an object in the hot tier.
func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkNetwork(); err != nil {
		return err
	}

	m.objects[key] = &memoryObject{
		data:         data,
		etag:         photolala.HashBytes(data),
		lastModified: time.Now(),
		tier:         photolala.TierHot,
	}
	m.putCount[key]++
	return nil
}

// Get retrieves an object's bytes. Archived objects fail fast with
// ArchivedError.
func (m *MemoryStore) Get(ctx context.Context, key string, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.RLock()
	if err := m.checkNetwork(); err != nil {
		m.mu.RUnlock()
		return err
	}
	obj, ok := m.objects[key]
	if !ok {
		m.mu.RUnlock()
		return fmt.Errorf("object %s: %w", key, photolala.ErrNotFound)
	}
	if obj.tier != photolala.TierHot {
		m.mu.RUnlock()
		return &photolala.ArchivedError{ContentHash: lastSegment(key)}
	}
	data := obj.data
	m.mu.RUnlock()

	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write content: %w", err)
	}
	return nil
}

// Head returns object metadata without the body.
func (m *MemoryStore) Head(ctx context.Context, key string) (photolala.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return photolala.ObjectInfo{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkNetwork(); err != nil {
		return photolala.ObjectInfo{}, err
	}

	obj, ok := m.objects[key]
	if !ok {
		return photolala.ObjectInfo{}, fmt.Errorf("object %s: %w", key, photolala.ErrNotFound)
	}
	return photolala.ObjectInfo{
		Key:          key,
		Size:         int64(len(obj.data)),
		ETag:         obj.etag,
		LastModified: obj.lastModified,
	}, nil
}

// List returns metadata for every object under prefix, ordered by key.
func (m *MemoryStore) List(ctx context.Context, prefix string) ([]photolala.ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkNetwork(); err != nil {
		return nil, err
	}

	var out []photolala.ObjectInfo
	for key, obj := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, photolala.ObjectInfo{
				Key:          key,
				Size:         int64(len(obj.data)),
				ETag:         obj.etag,
				LastModified: obj.lastModified,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes the given keys. Missing keys are ignored.
func (m *MemoryStore) Delete(ctx context.Context, keys []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkNetwork(); err != nil {
		return err
	}

	for _, key := range keys {
		delete(m.objects, key)
	}
	return nil
}

// Restore requests that an archived object be thawed. Requesting a
// restore already in progress is a no-op.
func (m *MemoryStore) Restore(ctx context.Context, key string, urgency photolala.Urgency) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !urgency.Valid() {
		return fmt.Errorf("unknown urgency %q", urgency)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkNetwork(); err != nil {
		return err
	}

	obj, ok := m.objects[key]
	if !ok {
		return fmt.Errorf("object %s: %w", key, photolala.ErrNotFound)
	}
	if obj.tier == photolala.TierArchived {
		obj.tier = photolala.TierThawInProgress
	}
	return nil
}

// Tier reports the storage tier the object currently resides in.
func (m *MemoryStore) Tier(ctx context.Context, key string) (photolala.Tier, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkNetwork(); err != nil {
		return "", err
	}

	obj, ok := m.objects[key]
	if !ok {
		return "", fmt.Errorf("object %s: %w", key, photolala.ErrNotFound)
	}
	return obj.tier, nil
}

// Test hooks.

// SetTier forces an object's tier, e.g. to simulate lifecycle archival.
func (m *MemoryStore) SetTier(key string, tier photolala.Tier) {
	m.mu.Lock()
	if obj, ok := m.objects[key]; ok {
		obj.tier = tier
	}
	m.mu.Unlock()
}

// CompleteRestore finishes an in-progress thaw, making the object readable.
func (m *MemoryStore) CompleteRestore(key string) {
	m.mu.Lock()
	if obj, ok := m.objects[key]; ok && obj.tier == photolala.TierThawInProgress {
		obj.tier = photolala.TierHot
	}
	m.mu.Unlock()
}

// PutCount returns how many times key was written. Used by dedup tests.
func (m *MemoryStore) PutCount(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.putCount[key]
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

func lastSegment(key string) string {
	if i := strings.LastIndexByte(key, '/'); i >= 0 {
		return key[i+1:]
	}
	return key
}
