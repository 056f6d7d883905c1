package catalog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// On-disk layout of a local catalog root:
//
//	<dir>/
//	  manifest.json
//	  shard-0.csv .. shard-15.csv
//
// Shard files carry their content checksum as a trailing comment line so a
// shard can be verified without the manifest. Writes are atomic
// (temp file + fsync + rename) so a crash never leaves a half-written
// manifest or shard visible to readers.

const (
	manifestFileName   = "manifest.json"
	checksumLinePrefix = "#sha256:"
)

func shardFileName(index int) string {
	return fmt.Sprintf("shard-%d.csv", index)
}

// SaveDir writes the store's shards and a fresh manifest to dir.
// Shards are written before the manifest, mirroring the remote publish
// ordering: the manifest never references a shard that was not written.
func SaveDir(s *Store, dir string, at time.Time) (*Manifest, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating catalog directory: %w", err)
	}

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
		sum := Checksum(data)
		m.SetChecksum(i, sum)

		path := filepath.Join(dir, shardFileName(i))
		if len(recs) == 0 {
			// Empty shards are represented by absence.
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, fmt.Errorf("removing empty shard file: %w", err)
			}
			continue
		}

		file := append(data, []byte(checksumLinePrefix+sum+"\n")...)
		if err := writeFileAtomic(path, file); err != nil {
			return nil, fmt.Errorf("writing shard %d: %w", i, err)
		}
	}

	encoded, err := m.Encode()
	if err != nil {
		return nil, err
	}
	if err := writeFileAtomic(filepath.Join(dir, manifestFileName), encoded); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	return m, nil
}

// LoadDir reads a catalog root from dir. A missing manifest yields an
// empty store. Shards that fail checksum verification are discarded and
// reported; their entries are simply absent until re-derived from source.
func LoadDir(dir string) (*Store, *Manifest, []*CorruptShardError, error) {
	s := NewStore()

	manifestData, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil, nil, nil
		}
		return nil, nil, nil, fmt.Errorf("reading manifest: %w", err)
	}

	m, err := ParseManifest(manifestData)
	if err != nil {
		return nil, nil, nil, err
	}

	var corrupt []*CorruptShardError
	for i := 0; i < ShardCount; i++ {
		recs, cerr := loadShardFile(filepath.Join(dir, shardFileName(i)), i, m.Checksum(i))
		if cerr != nil {
			corrupt = append(corrupt, cerr)
			continue
		}
		if err := s.ReplaceShard(i, recs); err != nil {
			return nil, nil, nil, err
		}
	}
	return s, m, corrupt, nil
}

// loadShardFile reads and verifies one shard file. Any verification or
// parse failure is reported as a CorruptShardError; the shard is then
// treated as empty rather than partially recovered.
func loadShardFile(path string, index int, wantChecksum string) ([]*PhotoRecord, *CorruptShardError) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if wantChecksum != emptyShardChecksum {
				return nil, &CorruptShardError{Shard: index, Reason: "shard file missing"}
			}
			return nil, nil
		}
		return nil, &CorruptShardError{Shard: index, Reason: err.Error()}
	}

	entries, trailer, err := splitShardFile(data)
	if err != nil {
		return nil, &CorruptShardError{Shard: index, Reason: err.Error()}
	}

	sum := Checksum(entries)
	if sum != trailer {
		return nil, &CorruptShardError{Shard: index, Reason: "trailing checksum mismatch"}
	}
	if sum != wantChecksum {
		return nil, &CorruptShardError{Shard: index, Reason: "checksum does not match manifest"}
	}

	recs, err := DecodeShard(entries)
	if err != nil {
		return nil, &CorruptShardError{Shard: index, Reason: err.Error()}
	}
	for _, rec := range recs {
		idx, err := ShardIndexFor(rec.ContentHash)
		if err != nil || idx != index {
			return nil, &CorruptShardError{Shard: index, Reason: "record " + rec.ContentHash + " belongs to another shard"}
		}
	}
	return recs, nil
}

// splitShardFile separates entry bytes from the trailing checksum line.
func splitShardFile(data []byte) (entries []byte, checksum string, err error) {
	idx := bytes.LastIndex(data, []byte(checksumLinePrefix))
	if idx < 0 {
		return nil, "", fmt.Errorf("missing trailing checksum line")
	}
	line := strings.TrimSpace(string(data[idx:]))
	return data[:idx], strings.TrimPrefix(line, checksumLinePrefix), nil
}

// writeFileAtomic writes data to path via a temp file in the same
// directory, fsync, and rename.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
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

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming temp file: %w", err)
	}
	success = true
	return nil
}
