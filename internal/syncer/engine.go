// Package syncer keeps a local sharded catalog converged with its remote
// copy. Remote change detection is a single manifest HEAD; only shards
// whose checksums differ are transferred, gzip-compressed.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/codelynx/photolala/internal/catalog"
	"github.com/codelynx/photolala/internal/photolala"
)

// State describes the sync relationship with the remote catalog.
type State string

const (
	StateUnsynced        State = "unsynced"
	StateSyncing         State = "syncing"
	StateSynced          State = "synced"
	StateOfflineFallback State = "offline-fallback"
)

// Engine synchronizes one catalog root. All remote failures that look like
// connectivity problems degrade to OfflineFallback so callers keep working
// against the last-known-good local catalog; only corrupt remote state is
// reported as an error.
type Engine struct {
	store   photolala.ObjectStore
	local   *catalog.Store
	root    string
	clock   photolala.Clock
	logger  photolala.Logger
	retry   photolala.RetryPolicy

	mu           sync.Mutex
	state        State
	remoteETag   string             // manifest fingerprint at last pull
	lastRemote   *catalog.Manifest  // manifest as of the last pull
	remoteHashes map[string]struct{} // hashes known to exist remotely
}

// New creates a sync engine for the given catalog root.
func New(store photolala.ObjectStore, local *catalog.Store, root string, clock photolala.Clock, logger photolala.Logger) *Engine {
	return &Engine{
		store:        store,
		local:        local,
		root:         root,
		clock:        clock,
		logger:       logger,
		retry:        photolala.DefaultRetryPolicy(),
		state:        StateUnsynced,
		remoteHashes: make(map[string]struct{}),
	}
}

// State reports the engine's current sync state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// HasRemote reports whether the given content hash was present in the
// remote catalog as of the last successful sync. Used by the backup
// pipeline to skip uploads of bytes the remote already holds.
func (e *Engine) HasRemote(hash string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.remoteHashes[hash]
	return ok
}

// Sync performs one pull/merge/publish round. An unreachable remote is not
// an error: the engine parks in OfflineFallback and the local catalog keeps
// serving reads. Sync runs are serialized per engine.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.state = StateSyncing

	if err := e.pull(ctx); err != nil {
		if isUnreachable(err) {
			e.logger.Info("sync: remote unreachable, serving local catalog", "root", e.root, "error", err)
			e.state = StateOfflineFallback
			return nil
		}
		e.state = StateUnsynced
		return fmt.Errorf("pulling catalog %s: %w", e.root, err)
	}

	if err := e.publish(ctx); err != nil {
		if isUnreachable(err) {
			e.logger.Info("sync: publish failed, will retry next sync", "root", e.root, "error", err)
			e.state = StateOfflineFallback
			return nil
		}
		e.state = StateUnsynced
		return fmt.Errorf("publishing catalog %s: %w", e.root, err)
	}

	e.state = StateSynced
	return nil
}

// pull fetches the remote manifest if its fingerprint moved and merges the
// shards that changed since the last pull. Callers hold e.mu.
func (e *Engine) pull(ctx context.Context) error {
	manifestKey := photolala.ManifestKey(e.root)

	var info photolala.ObjectInfo
	err := e.retry.Do(ctx, func(ctx context.Context) error {
		var headErr error
		info, headErr = e.store.Head(ctx, manifestKey)
		return headErr
	})
	if errors.Is(err, photolala.ErrNotFound) {
		// Nothing published yet for this root.
		return nil
	}
	if err != nil {
		return err
	}

	if info.ETag == e.remoteETag {
		return nil
	}

	var buf bytes.Buffer
	if err := e.retry.Do(ctx, func(ctx context.Context) error {
		buf.Reset()
		return e.store.Get(ctx, manifestKey, &buf)
	}); err != nil {
		return err
	}

	remote, err := catalog.ParseManifest(buf.Bytes())
	if err != nil {
		return err
	}

	changed := remote.ChangedShards(e.lastRemote)
	for _, idx := range changed {
		if err := e.mergeShard(ctx, remote, idx); err != nil {
			return err
		}
	}

	e.remoteETag = info.ETag
	e.lastRemote = remote
	return nil
}

// mergeShard downloads one shard, verifies it against the manifest, and
// merges its records into the local catalog (remote wins on hash
// collision). A shard the manifest calls empty is merged as no records.
func (e *Engine) mergeShard(ctx context.Context, remote *catalog.Manifest, idx int) error {
	wantSum := remote.Checksum(idx)

	var recs []*catalog.PhotoRecord
	if wantSum != catalog.Checksum(nil) {
		data, err := e.downloadShard(ctx, idx)
		if err != nil {
			if errors.Is(err, photolala.ErrNotFound) {
				return fmt.Errorf("manifest references missing shard %d: %w",
					idx, &catalog.CorruptShardError{Shard: idx, Reason: "shard object missing"})
			}
			return err
		}
		if got := catalog.Checksum(data); got != wantSum {
			return fmt.Errorf("shard %d: %w", idx,
				&catalog.CorruptShardError{Shard: idx, Reason: "checksum mismatch"})
		}
		recs, err = catalog.DecodeShard(data)
		if err != nil {
			return fmt.Errorf("decoding shard %d: %w", idx, err)
		}
	}

	if err := e.local.MergeShard(idx, recs); err != nil {
		return err
	}
	for _, rec := range recs {
		e.remoteHashes[rec.ContentHash] = struct{}{}
	}
	e.logger.Debug("sync: merged shard", "root", e.root, "shard", idx, "records", len(recs))
	return nil
}

// downloadShard fetches and decompresses one shard object.
func (e *Engine) downloadShard(ctx context.Context, idx int) ([]byte, error) {
	var compressed bytes.Buffer
	if err := e.retry.Do(ctx, func(ctx context.Context) error {
		compressed.Reset()
		return e.store.Get(ctx, photolala.ShardKey(e.root, idx), &compressed)
	}); err != nil {
		return nil, err
	}
	return gunzipBytes(compressed.Bytes())
}

// publish uploads every shard that differs from the last-seen remote
// manifest, then the manifest describing them. The diff compares shard
// checksums rather than in-memory dirty flags: each CLI command is a
// fresh process, so records loaded from disk carry no dirty state yet may
// still be unpublished. The manifest goes last so a crash mid-publish
// never leaves it referencing a shard that was not uploaded. Callers
// hold e.mu.
func (e *Engine) publish(ctx context.Context) error {
	manifest := catalog.NewManifest()
	manifest.LastSyncedAt = e.clock.Now()

	type shardUpload struct {
		idx     int
		data    []byte
		records int
	}
	var uploads []shardUpload
	changed := 0
	for i := 0; i < catalog.ShardCount; i++ {
		recs, err := e.local.ShardRecords(i)
		if err != nil {
			return err
		}
		data, err := catalog.EncodeShard(recs)
		if err != nil {
			return err
		}
		sum := catalog.Checksum(data)
		manifest.SetChecksum(i, sum)

		remoteSum := catalog.Checksum(nil)
		if e.lastRemote != nil {
			remoteSum = e.lastRemote.Checksum(i)
		}
		if sum == remoteSum {
			continue
		}
		changed++
		if len(recs) > 0 {
			uploads = append(uploads, shardUpload{idx: i, data: data, records: len(recs)})
		}
		// A shard that became empty needs no object upload: readers treat
		// shards absent from the manifest as empty without fetching.
	}

	if changed == 0 && e.lastRemote != nil {
		return nil
	}

	for _, up := range uploads {
		compressed, err := gzipBytes(up.data)
		if err != nil {
			return err
		}
		key := photolala.ShardKey(e.root, up.idx)
		if err := e.retry.Do(ctx, func(ctx context.Context) error {
			return e.store.Put(ctx, key, bytes.NewReader(compressed), int64(len(compressed)))
		}); err != nil {
			return err
		}
		e.logger.Debug("sync: uploaded shard", "root", e.root, "shard", up.idx, "records", up.records)
	}

	encoded, err := manifest.Encode()
	if err != nil {
		return err
	}
	manifestKey := photolala.ManifestKey(e.root)
	if err := e.retry.Do(ctx, func(ctx context.Context) error {
		return e.store.Put(ctx, manifestKey, bytes.NewReader(encoded), int64(len(encoded)))
	}); err != nil {
		return err
	}

	for i := 0; i < catalog.ShardCount; i++ {
		e.local.MarkClean(i)
	}
	for _, rec := range e.local.AllRecords() {
		e.remoteHashes[rec.ContentHash] = struct{}{}
	}
	e.lastRemote = manifest

	// Refresh the fingerprint so the next sync skips re-pulling our own
	// write. Best effort: a stale fingerprint only costs one extra pull.
	if info, err := e.store.Head(ctx, manifestKey); err == nil {
		e.remoteETag = info.ETag
	}
	return nil
}

// isUnreachable reports whether an error means the remote could not be
// talked to (as opposed to remote state being bad).
func isUnreachable(err error) bool {
	return photolala.IsTransient(err)
}

func gzipBytes(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("compressing: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compressing: %w", err)
	}
	return buf.Bytes(), nil
}

func gunzipBytes(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("decompressing: %w", err)
	}
	return out, nil
}
