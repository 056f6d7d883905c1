package catalog

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// FormatVersion is the manifest format this binary reads and writes.
const FormatVersion = 1

// Manifest is the small per-catalog-root document listing each shard's
// content checksum. Comparing two manifests tells a reader which shards
// changed without downloading the whole catalog.
type Manifest struct {
	FormatVersion  int               `json:"format_version"`
	ShardChecksums map[string]string `json:"shard_checksums"`
	LastSyncedAt   time.Time         `json:"last_synced_at"`
}

// NewManifest creates an empty manifest at the current format version.
func NewManifest() *Manifest {
	return &Manifest{
		FormatVersion:  FormatVersion,
		ShardChecksums: make(map[string]string),
	}
}

// SetChecksum records the checksum for a shard. Empty shards are removed
// from the map entirely so an all-empty catalog has an empty manifest.
func (m *Manifest) SetChecksum(index int, checksum string) {
	key := strconv.Itoa(index)
	if checksum == emptyShardChecksum {
		delete(m.ShardChecksums, key)
		return
	}
	m.ShardChecksums[key] = checksum
}

// Checksum returns the recorded checksum for a shard. Shards absent from
// the manifest report the checksum of an empty shard.
func (m *Manifest) Checksum(index int) string {
	if sum, ok := m.ShardChecksums[strconv.Itoa(index)]; ok {
		return sum
	}
	return emptyShardChecksum
}

// ChangedShards returns the indexes of shards whose checksum differs
// between m and other, in ascending order. A nil other means every shard
// listed in m changed.
func (m *Manifest) ChangedShards(other *Manifest) []int {
	var out []int
	for i := 0; i < ShardCount; i++ {
		theirs := emptyShardChecksum
		if other != nil {
			theirs = other.Checksum(i)
		}
		if m.Checksum(i) != theirs {
			out = append(out, i)
		}
	}
	return out
}

// Encode serializes the manifest as JSON.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// ParseManifest decodes a manifest, rejecting unknown format versions.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("manifest declares version %d: %w", m.FormatVersion, ErrUnknownManifestVersion)
	}
	if m.ShardChecksums == nil {
		m.ShardChecksums = make(map[string]string)
	}
	return &m, nil
}

// ManifestFor builds a manifest describing the current contents of a store.
func ManifestFor(s *Store, at time.Time) (*Manifest, error) {
	m := NewManifest()
	m.LastSyncedAt = at
	for i := 0; i < ShardCount; i++ {
		recs, err := s.ShardRecords(i)
		if err != nil {
			return nil, err
		}
		data, err := EncodeShard(recs)
		if err != nil {
			return nil, err
		}
		m.SetChecksum(i, Checksum(data))
	}
	return m, nil
}

// emptyShardChecksum is the checksum of zero serialized entries.
var emptyShardChecksum = Checksum(nil)
