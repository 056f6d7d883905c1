package photolala

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/codelynx/photolala/internal/catalog"
)

// CatalogSyncer converges the local catalog with its remote copy.
// Implemented by *syncer.Engine.
type CatalogSyncer interface {
	Sync(ctx context.Context) error
	// HasRemote reports whether a hash exists in the remote catalog.
	HasRemote(hash string) bool
}

// BackupQueue accepts upload tasks. Implemented by *backup.Pipeline.
type BackupQueue interface {
	Enqueue(contentHash string, kind ArtifactKind) error
	CancelHash(contentHash string)
	// Flush blocks until every enqueued task reaches a terminal state.
	Flush()
}

// TierCoordinator owns archive tier state and thaw requests. Implemented
// by *lifecycle.Coordinator.
type TierCoordinator interface {
	RequestThaw(ctx context.Context, contentHash string, urgency Urgency) (*ArchivalRecord, error)
	PollThaw(ctx context.Context, handle string) (*ArchivalRecord, error)
	ReadableTier(contentHash string) (Tier, error)
	MarkArchived(contentHash string) error
}

// ArtifactCache stages artifact bytes on local disk. Implemented by
// *cache.Cache.
type ArtifactCache interface {
	Get(hash string, kind ArtifactKind) ([]byte, error)
	Put(hash string, kind ArtifactKind, data []byte) error
}

// Service orchestrates the photo catalog: starring, retrieval, sync,
// backup, and tier lifecycle. It works entirely through the collaborator
// interfaces so tests and the app layer choose the implementations.
type Service struct {
	Catalog   *catalog.Store
	Store     ObjectStore
	Cache     ArtifactCache
	Backup    BackupQueue
	Syncer    CatalogSyncer
	Lifecycle TierCoordinator
	Clock     Clock
	Logger    Logger
	Retry     RetryPolicy
}

// Star hashes a photo's bytes, records it in the catalog, stages the
// bytes in the cache, and schedules the upload. Returns the catalog
// record. Starring the same bytes twice is a no-op beyond metadata
// refresh.
func (s *Service) Star(ctx context.Context, item *PhotoItem) (*catalog.PhotoRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r, err := item.Open()
	if err != nil {
		return nil, fmt.Errorf("opening photo %s: %w", item.DisplayName, err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, fmt.Errorf("reading photo %s: %w", item.DisplayName, err)
	}

	hash := HashBytes(data)
	rec := &catalog.PhotoRecord{
		ContentHash:   hash,
		DisplayName:   item.DisplayName,
		ByteSize:      int64(len(data)),
		CapturedAt:    item.CapturedAt,
		ModifiedAt:    item.ModifiedAt,
		PixelWidth:    item.PixelWidth,
		PixelHeight:   item.PixelHeight,
		SourceLocalID: item.LocalID,
	}
	if _, err := s.Catalog.Upsert(rec); err != nil {
		return nil, fmt.Errorf("recording photo %s: %w", item.DisplayName, err)
	}

	if err := s.Cache.Put(hash, KindPhoto, data); err != nil {
		return nil, fmt.Errorf("staging photo %s: %w", item.DisplayName, err)
	}
	if err := s.Backup.Enqueue(hash, KindPhoto); err != nil {
		return nil, fmt.Errorf("scheduling upload of %s: %w", item.DisplayName, err)
	}

	s.Logger.Info("starred photo", "hash", hash, "name", item.DisplayName, "bytes", len(data))
	return rec, nil
}

// StarSource stars every photo a source offers. Photos that fail to open
// are skipped with a warning; the first catalog or staging failure aborts.
func (s *Service) StarSource(ctx context.Context, source PhotoSource) (starred int, err error) {
	items, err := source.Items()
	if err != nil {
		return 0, fmt.Errorf("enumerating photos: %w", err)
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return starred, err
		}
		if _, err := s.Star(ctx, item); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return starred, err
			}
			s.Logger.Warn("skipping photo", "name", item.DisplayName, "error", err)
			continue
		}
		starred++
	}
	return starred, nil
}

// Unstar removes a photo from the catalog and cancels any pending upload
// tasks for it. Already-uploaded remote bytes are left in place.
func (s *Service) Unstar(ctx context.Context, contentHash string) error {
	if err := ValidateContentHash(contentHash); err != nil {
		return err
	}
	if !s.Catalog.Delete(contentHash) {
		return fmt.Errorf("photo %s: %w", contentHash, ErrNotFound)
	}
	s.Backup.CancelHash(contentHash)
	s.Logger.Info("unstarred photo", "hash", contentHash)
	return nil
}

// Lookup returns the catalog record for a hash.
func (s *Service) Lookup(contentHash string) (*catalog.PhotoRecord, bool) {
	return s.Catalog.Lookup(contentHash)
}

// List returns every catalog record ordered by hash.
func (s *Service) List() []*catalog.PhotoRecord {
	recs := s.Catalog.AllRecords()
	sort.Slice(recs, func(i, j int) bool { return recs[i].ContentHash < recs[j].ContentHash })
	return recs
}

// Retrieve writes an artifact's bytes to w: from the local cache when
// present, otherwise from the remote store (populating the cache).
// Archived photos fail fast with ArchivedError before any byte transfer.
func (s *Service) Retrieve(ctx context.Context, contentHash string, kind ArtifactKind, w io.Writer) error {
	if err := ValidateContentHash(contentHash); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("unknown artifact kind %q", kind)
	}

	if data, err := s.Cache.Get(contentHash, kind); err == nil {
		_, err := w.Write(data)
		return err
	}

	// Only full photo bytes get archived; derived artifacts stay hot.
	if kind == KindPhoto {
		if _, err := s.Lifecycle.ReadableTier(contentHash); err != nil {
			return err
		}
	}

	key := ObjectKey(kind, contentHash)
	var buf bytes.Buffer
	err := s.Retry.Do(ctx, func(ctx context.Context) error {
		buf.Reset()
		return s.Store.Get(ctx, key, &buf)
	})
	if err != nil {
		if IsArchived(err) {
			// The remote knows better than our local records.
			if markErr := s.Lifecycle.MarkArchived(contentHash); markErr != nil {
				s.Logger.Warn("failed to record archived tier", "hash", contentHash, "error", markErr)
			}
		}
		return fmt.Errorf("retrieving %s: %w", key, err)
	}

	if err := s.Cache.Put(contentHash, kind, buf.Bytes()); err != nil {
		// A full cache must not block reads.
		s.Logger.Warn("failed to cache artifact", "hash", contentHash, "kind", kind, "error", err)
	}
	_, err = w.Write(buf.Bytes())
	return err
}

// Sync runs one catalog sync round.
func (s *Service) Sync(ctx context.Context) error {
	return s.Syncer.Sync(ctx)
}

// RequestThaw asks for an archived photo to be made readable.
func (s *Service) RequestThaw(ctx context.Context, contentHash string, urgency Urgency) (*ArchivalRecord, error) {
	return s.Lifecycle.RequestThaw(ctx, contentHash, urgency)
}

// PollThaw reports progress of a thaw request.
func (s *Service) PollThaw(ctx context.Context, handle string) (*ArchivalRecord, error) {
	return s.Lifecycle.PollThaw(ctx, handle)
}

// deletionMarker is the scheduled-deletion document written for an
// account, keyed by the date the deletion becomes due.
type deletionMarker struct {
	UserID      string    `json:"user_id"`
	ScheduledAt time.Time `json:"scheduled_at"`
	DeleteAfter time.Time `json:"delete_after"`
}

const deletionDateLayout = "2006-01-02"

// ScheduleAccountDeletion writes a scheduled-deletion marker that falls
// due graceDays from now. The marker names the user so DeleteAccountNow
// (or the server-side sweeper) can find it.
func (s *Service) ScheduleAccountDeletion(ctx context.Context, userID string, graceDays int) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user ID is required")
	}
	if graceDays < 0 {
		return "", fmt.Errorf("grace period must not be negative")
	}

	now := s.Clock.Now().UTC()
	due := now.AddDate(0, 0, graceDays)
	marker := deletionMarker{UserID: userID, ScheduledAt: now, DeleteAfter: due}
	data, err := json.Marshal(marker)
	if err != nil {
		return "", fmt.Errorf("encoding deletion marker: %w", err)
	}

	key := fmt.Sprintf("scheduled-deletions/%s/%s.json", due.Format(deletionDateLayout), userID)
	err = s.Retry.Do(ctx, func(ctx context.Context) error {
		return s.Store.Put(ctx, key, bytes.NewReader(data), int64(len(data)))
	})
	if err != nil {
		return "", fmt.Errorf("writing deletion marker: %w", err)
	}
	s.Logger.Info("scheduled account deletion", "user", userID, "due", due.Format(deletionDateLayout))
	return key, nil
}

// accountPrefixes lists the remote prefixes holding one user's data in
// the hosted bucket layout, where every artifact and catalog object is
// namespaced by account.
func accountPrefixes(userID string) []string {
	return []string{
		"photos/" + userID + "/",
		"thumbnails/" + userID + "/",
		"metadata/" + userID + "/",
		"catalogs/" + userID + "/",
		"users/" + userID + "/",
	}
}

// DeleteAccountNow permanently removes all of a user's remote data:
// every object under the user's prefixes, identity mappings pointing at
// the user, and any scheduled-deletion markers. Other accounts' objects
// in the same bucket are untouched. Irreversible.
func (s *Service) DeleteAccountNow(ctx context.Context, userID string) (deleted int, err error) {
	if userID == "" {
		return 0, fmt.Errorf("user ID is required")
	}

	for _, prefix := range accountPrefixes(userID) {
		n, err := s.deletePrefix(ctx, prefix)
		if err != nil {
			return deleted, err
		}
		deleted += n
	}

	n, err := s.deleteIdentities(ctx, userID)
	if err != nil {
		return deleted, err
	}
	deleted += n

	n, err = s.deleteMarkers(ctx, userID)
	if err != nil {
		return deleted, err
	}
	deleted += n

	s.Logger.Info("deleted account data", "user", userID, "objects", deleted)
	return deleted, nil
}

func (s *Service) deletePrefix(ctx context.Context, prefix string) (int, error) {
	infos, err := s.Store.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("listing %s: %w", prefix, err)
	}
	if len(infos) == 0 {
		return 0, nil
	}
	keys := make([]string, len(infos))
	for i, info := range infos {
		keys[i] = info.Key
	}
	if err := s.Store.Delete(ctx, keys); err != nil {
		return 0, fmt.Errorf("deleting %s: %w", prefix, err)
	}
	return len(keys), nil
}

// deleteIdentities removes identity mappings whose body is the user ID.
// Identities live under identities/<provider>:<subject> with the user ID
// as the object body.
func (s *Service) deleteIdentities(ctx context.Context, userID string) (int, error) {
	infos, err := s.Store.List(ctx, "identities/")
	if err != nil {
		return 0, fmt.Errorf("listing identities: %w", err)
	}

	var stale []string
	for _, info := range infos {
		var body bytes.Buffer
		if err := s.Store.Get(ctx, info.Key, &body); err != nil {
			return 0, fmt.Errorf("reading identity %s: %w", info.Key, err)
		}
		if strings.TrimSpace(body.String()) == userID {
			stale = append(stale, info.Key)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := s.Store.Delete(ctx, stale); err != nil {
		return 0, fmt.Errorf("deleting identities: %w", err)
	}
	return len(stale), nil
}

func (s *Service) deleteMarkers(ctx context.Context, userID string) (int, error) {
	infos, err := s.Store.List(ctx, "scheduled-deletions/")
	if err != nil {
		return 0, fmt.Errorf("listing deletion markers: %w", err)
	}

	var mine []string
	for _, info := range infos {
		if strings.HasSuffix(info.Key, "/"+userID+".json") {
			mine = append(mine, info.Key)
		}
	}
	if len(mine) == 0 {
		return 0, nil
	}
	if err := s.Store.Delete(ctx, mine); err != nil {
		return 0, fmt.Errorf("deleting markers: %w", err)
	}
	return len(mine), nil
}
