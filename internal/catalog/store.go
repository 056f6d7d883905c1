package catalog

import (
	"sort"
	"sync"
)

// Store is the in-memory sharded catalog index: content hash -> PhotoRecord.
// Each shard has its own lock so sync merges and local edits to different
// shards can proceed concurrently, while edits to the same shard are
// serialized. The Store exclusively owns record lifetime; it hands out
// copies, never internal pointers.
type Store struct {
	shards [ShardCount]shard
}

type shard struct {
	mu      sync.RWMutex
	records map[string]*PhotoRecord
	dirty   bool
}

// NewStore creates an empty catalog store.
func NewStore() *Store {
	s := &Store{}
	for i := range s.shards {
		s.shards[i].records = make(map[string]*PhotoRecord)
	}
	return s
}

// Upsert inserts or replaces a record in its owning shard and marks the
// shard dirty. Upserting a record identical to the stored one is a no-op
// for dirty-tracking purposes. Reports whether the shard changed.
func (s *Store) Upsert(rec *PhotoRecord) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}
	idx, err := ShardIndexFor(rec.ContentHash)
	if err != nil {
		return false, err
	}

	sh := &s.shards[idx]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if existing, ok := sh.records[rec.ContentHash]; ok && existing.Equal(rec) {
		return false, nil
	}
	sh.records[rec.ContentHash] = rec.clone()
	sh.dirty = true
	return true, nil
}

// Lookup returns a copy of the record for hash, if present.
func (s *Store) Lookup(hash string) (*PhotoRecord, bool) {
	idx, err := ShardIndexFor(hash)
	if err != nil {
		return nil, false
	}

	sh := &s.shards[idx]
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	rec, ok := sh.records[hash]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// Delete removes the record for hash and marks its shard dirty.
// Reports whether a record was removed.
func (s *Store) Delete(hash string) bool {
	idx, err := ShardIndexFor(hash)
	if err != nil {
		return false
	}

	sh := &s.shards[idx]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, ok := sh.records[hash]; !ok {
		return false
	}
	delete(sh.records, hash)
	sh.dirty = true
	return true
}

// Len returns the total number of records across all shards.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.records)
		sh.mu.RUnlock()
	}
	return n
}

// ShardRecords returns copies of a shard's records ordered by hash.
func (s *Store) ShardRecords(index int) ([]*PhotoRecord, error) {
	if err := ValidateShardIndex(index); err != nil {
		return nil, err
	}

	sh := &s.shards[index]
	sh.mu.RLock()
	defer sh.mu.RUnlock()

	out := make([]*PhotoRecord, 0, len(sh.records))
	for _, rec := range sh.records {
		out = append(out, rec.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ContentHash < out[j].ContentHash })
	return out, nil
}

// AllRecords returns copies of every record, ordered by hash.
func (s *Store) AllRecords() []*PhotoRecord {
	var out []*PhotoRecord
	for i := 0; i < ShardCount; i++ {
		recs, _ := s.ShardRecords(i)
		out = append(out, recs...)
	}
	return out
}

// MergeShard overwrites local records with the given remote records
// (last-writer-wins, no per-field merge). The shard's dirty flag is left
// untouched: merged remote state is by definition already published.
func (s *Store) MergeShard(index int, recs []*PhotoRecord) error {
	if err := ValidateShardIndex(index); err != nil {
		return err
	}
	for _, rec := range recs {
		idx, err := ShardIndexFor(rec.ContentHash)
		if err != nil {
			return err
		}
		if idx != index {
			return &CorruptShardError{Shard: index, Reason: "record " + rec.ContentHash + " belongs to another shard"}
		}
	}

	sh := &s.shards[index]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	for _, rec := range recs {
		sh.records[rec.ContentHash] = rec.clone()
	}
	return nil
}

// ReplaceShard discards a shard's contents and installs the given records.
// Used when loading from disk; does not mark the shard dirty.
func (s *Store) ReplaceShard(index int, recs []*PhotoRecord) error {
	if err := ValidateShardIndex(index); err != nil {
		return err
	}

	sh := &s.shards[index]
	sh.mu.Lock()
	defer sh.mu.Unlock()

	sh.records = make(map[string]*PhotoRecord, len(recs))
	for _, rec := range recs {
		sh.records[rec.ContentHash] = rec.clone()
	}
	sh.dirty = false
	return nil
}

// DirtyShards returns the indexes of shards modified since the last
// MarkClean, in ascending order.
func (s *Store) DirtyShards() []int {
	var out []int
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		if sh.dirty {
			out = append(out, i)
		}
		sh.mu.RUnlock()
	}
	return out
}

// MarkClean clears a shard's dirty flag after a successful publish.
func (s *Store) MarkClean(index int) {
	if err := ValidateShardIndex(index); err != nil {
		return
	}
	sh := &s.shards[index]
	sh.mu.Lock()
	sh.dirty = false
	sh.mu.Unlock()
}

// MarkDirty forces a shard dirty, e.g. after a corrupt shard was discarded
// and repopulated from source.
func (s *Store) MarkDirty(index int) {
	if err := ValidateShardIndex(index); err != nil {
		return
	}
	sh := &s.shards[index]
	sh.mu.Lock()
	sh.dirty = true
	sh.mu.Unlock()
}
