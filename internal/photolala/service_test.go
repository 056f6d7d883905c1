package photolala_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/codelynx/photolala/internal/backup"
	"github.com/codelynx/photolala/internal/catalog"
	"github.com/codelynx/photolala/internal/lifecycle"
	"github.com/codelynx/photolala/internal/objectstore"
	"github.com/codelynx/photolala/internal/photolala"
	"github.com/codelynx/photolala/internal/syncer"
	"github.com/codelynx/photolala/internal/testutil"
)

type fixture struct {
	svc      *photolala.Service
	store    *objectstore.MemoryStore
	pipeline *backup.Pipeline
	clock    *testutil.StubClock
}

// newFixture wires a full service against an in-memory remote store, the
// way the app layer does in production.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, objectstore.NewMemoryStore())
}

func TestService_StarUploadsPhoto(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	source := testutil.NewMemoryPhotoSource()
	item := source.AddPhoto("lib-1", "sunset.jpg", []byte("sunset jpeg bytes"))

	rec, err := f.svc.Star(ctx, item)
	if err != nil {
		t.Fatalf("Star() error = %v", err)
	}
	wantHash := photolala.HashBytes([]byte("sunset jpeg bytes"))
	if rec.ContentHash != wantHash {
		t.Errorf("ContentHash = %q, want %q", rec.ContentHash, wantHash)
	}
	if rec.DisplayName != "sunset.jpg" {
		t.Errorf("DisplayName = %q, want %q", rec.DisplayName, "sunset.jpg")
	}
	if rec.SourceLocalID != "lib-1" {
		t.Errorf("SourceLocalID = %q, want %q", rec.SourceLocalID, "lib-1")
	}

	if _, ok := f.svc.Lookup(wantHash); !ok {
		t.Error("Lookup() missing starred photo")
	}

	f.pipeline.Flush()
	key := photolala.ObjectKey(photolala.KindPhoto, wantHash)
	if got := f.store.PutCount(key); got != 1 {
		t.Errorf("PutCount(%s) = %d, want 1", key, got)
	}
}

func TestService_StarIdenticalBytesUploadsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	source := testutil.NewMemoryPhotoSource()

	// The same photo exported twice: different names and library IDs,
	// identical bytes.
	a := source.AddPhoto("lib-1", "IMG_0001.jpg", []byte("identical bytes"))
	b := source.AddPhoto("lib-2", "copy of IMG_0001.jpg", []byte("identical bytes"))

	if _, err := f.svc.Star(ctx, a); err != nil {
		t.Fatalf("Star(a) error = %v", err)
	}
	if _, err := f.svc.Star(ctx, b); err != nil {
		t.Fatalf("Star(b) error = %v", err)
	}
	f.pipeline.Flush()

	hash := photolala.HashBytes([]byte("identical bytes"))
	key := photolala.ObjectKey(photolala.KindPhoto, hash)
	if got := f.store.PutCount(key); got != 1 {
		t.Errorf("PutCount(%s) = %d, want 1 (identical bytes deduped)", key, got)
	}
	if got := len(f.svc.List()); got != 1 {
		t.Errorf("List() length = %d, want 1 record for identical bytes", got)
	}
}

func TestService_StarSourceSkipsBrokenPhotos(t *testing.T) {
	f := newFixture(t)
	source := testutil.NewMemoryPhotoSource()
	source.AddPhoto("lib-1", "good.jpg", []byte("fine"))
	source.AddBrokenPhoto("lib-2", "bad.jpg")
	source.AddPhoto("lib-3", "also-good.jpg", []byte("also fine"))

	starred, err := f.svc.StarSource(context.Background(), source)
	if err != nil {
		t.Fatalf("StarSource() error = %v", err)
	}
	if starred != 2 {
		t.Errorf("starred = %d, want 2", starred)
	}
}

func TestService_Unstar(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	source := testutil.NewMemoryPhotoSource()
	item := source.AddPhoto("lib-1", "fleeting.jpg", []byte("fleeting"))

	rec, err := f.svc.Star(ctx, item)
	if err != nil {
		t.Fatalf("Star() error = %v", err)
	}
	if err := f.svc.Unstar(ctx, rec.ContentHash); err != nil {
		t.Fatalf("Unstar() error = %v", err)
	}
	if _, ok := f.svc.Lookup(rec.ContentHash); ok {
		t.Error("Lookup() found record after Unstar")
	}

	if err := f.svc.Unstar(ctx, rec.ContentHash); !photolala.IsNotFound(err) {
		t.Errorf("second Unstar() error = %v, want not-found", err)
	}
}

func TestService_RetrievePopulatesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	content := []byte("remote photo bytes")
	hash := photolala.HashBytes(content)
	key := photolala.ObjectKey(photolala.KindPhoto, hash)
	if err := f.store.Put(ctx, key, bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var out bytes.Buffer
	if err := f.svc.Retrieve(ctx, hash, photolala.KindPhoto, &out); err != nil {
		t.Fatalf("Retrieve() error = %v", err)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Errorf("Retrieve() = %q, want %q", out.Bytes(), content)
	}

	// Second read is served from cache: even with the network down.
	f.store.FailWith(bytes.ErrTooLarge)
	out.Reset()
	if err := f.svc.Retrieve(ctx, hash, photolala.KindPhoto, &out); err != nil {
		t.Fatalf("cached Retrieve() error = %v", err)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Errorf("cached Retrieve() = %q, want %q", out.Bytes(), content)
	}
}

func TestService_RetrieveArchivedFailsFast(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	content := []byte("glacier photo")
	hash := photolala.HashBytes(content)
	key := photolala.ObjectKey(photolala.KindPhoto, hash)
	if err := f.store.Put(ctx, key, bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	f.store.SetTier(key, photolala.TierArchived)

	// First read discovers the archive tier from the remote.
	var out bytes.Buffer
	err := f.svc.Retrieve(ctx, hash, photolala.KindPhoto, &out)
	if !photolala.IsArchived(err) {
		t.Fatalf("Retrieve() error = %v, want ArchivedError", err)
	}

	// Second read fails fast from the local archival record, no network.
	f.store.FailWith(bytes.ErrTooLarge)
	err = f.svc.Retrieve(ctx, hash, photolala.KindPhoto, &out)
	if !photolala.IsArchived(err) {
		t.Fatalf("second Retrieve() error = %v, want ArchivedError", err)
	}
}

func TestService_ThawRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	content := []byte("come back soon")
	hash := photolala.HashBytes(content)
	key := photolala.ObjectKey(photolala.KindPhoto, hash)
	if err := f.store.Put(ctx, key, bytes.NewReader(content), int64(len(content))); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	f.store.SetTier(key, photolala.TierArchived)

	rec, err := f.svc.RequestThaw(ctx, hash, photolala.UrgencyStandard)
	if err != nil {
		t.Fatalf("RequestThaw() error = %v", err)
	}
	f.store.CompleteRestore(key)
	polled, err := f.svc.PollThaw(ctx, rec.ThawHandle)
	if err != nil {
		t.Fatalf("PollThaw() error = %v", err)
	}
	if polled.Tier != photolala.TierHot {
		t.Fatalf("Tier = %q, want %q", polled.Tier, photolala.TierHot)
	}

	var out bytes.Buffer
	if err := f.svc.Retrieve(ctx, hash, photolala.KindPhoto, &out); err != nil {
		t.Fatalf("Retrieve() after thaw error = %v", err)
	}
	if !bytes.Equal(out.Bytes(), content) {
		t.Errorf("Retrieve() = %q, want %q", out.Bytes(), content)
	}
}

func TestService_FreshCatalogScenario(t *testing.T) {
	// A photo starred on one device appears on a second device after its
	// sync, and the second device can retrieve the bytes.
	store := objectstore.NewMemoryStore()
	ctx := context.Background()

	deviceA := newFixtureWithStore(t, store)
	source := testutil.NewMemoryPhotoSource()
	item := source.AddPhoto("lib-1", "shared.jpg", []byte("shared bytes"))
	rec, err := deviceA.svc.Star(ctx, item)
	if err != nil {
		t.Fatalf("Star() error = %v", err)
	}
	deviceA.pipeline.Flush()
	if err := deviceA.svc.Sync(ctx); err != nil {
		t.Fatalf("device A Sync() error = %v", err)
	}

	deviceB := newFixtureWithStore(t, store)
	if err := deviceB.svc.Sync(ctx); err != nil {
		t.Fatalf("device B Sync() error = %v", err)
	}
	got, ok := deviceB.svc.Lookup(rec.ContentHash)
	if !ok {
		t.Fatal("device B Lookup() missing synced record")
	}
	if got.DisplayName != "shared.jpg" {
		t.Errorf("DisplayName = %q, want %q", got.DisplayName, "shared.jpg")
	}

	var out bytes.Buffer
	if err := deviceB.svc.Retrieve(ctx, rec.ContentHash, photolala.KindPhoto, &out); err != nil {
		t.Fatalf("device B Retrieve() error = %v", err)
	}
	if !bytes.Equal(out.Bytes(), []byte("shared bytes")) {
		t.Errorf("Retrieve() = %q, want %q", out.Bytes(), "shared bytes")
	}
}

// newFixtureWithStore wires a fixture sharing a remote store with others.
func newFixtureWithStore(t *testing.T, store *objectstore.MemoryStore) *fixture {
	t.Helper()

	clock := testutil.FixedClock()
	logger := photolala.NewNopLogger()
	cat := catalog.NewStore()
	artifactCache := testutil.NewTestCache(t, 1<<20)
	ledger := testutil.NewTestStateStore(t)

	eng := syncer.New(store, cat, "shared-root", clock, logger)
	pipeline := backup.New(store, artifactCache, ledger, eng, clock, logger, 2, 3)
	pipeline.Start(context.Background())
	t.Cleanup(pipeline.Stop)
	coord := lifecycle.New(store, ledger, clock, testutil.NewStubIDGenerator(), logger)

	svc := &photolala.Service{
		Catalog:   cat,
		Store:     store,
		Cache:     artifactCache,
		Backup:    pipeline,
		Syncer:    eng,
		Lifecycle: coord,
		Clock:     clock,
		Logger:    logger,
		Retry:     photolala.RetryPolicy{MaxAttempts: 1},
	}
	return &fixture{svc: svc, store: store, pipeline: pipeline, clock: clock}
}

func TestService_ScheduleAccountDeletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	key, err := f.svc.ScheduleAccountDeletion(ctx, "u-123", 30)
	if err != nil {
		t.Fatalf("ScheduleAccountDeletion() error = %v", err)
	}
	// FixedClock is 2024-01-15; 30 days of grace puts the due date at
	// 2024-02-14.
	want := "scheduled-deletions/2024-02-14/u-123.json"
	if key != want {
		t.Errorf("marker key = %q, want %q", key, want)
	}

	var body bytes.Buffer
	if err := f.store.Get(ctx, key, &body); err != nil {
		t.Fatalf("Get(marker) error = %v", err)
	}
	if !strings.Contains(body.String(), `"user_id":"u-123"`) {
		t.Errorf("marker body = %s, want user_id field", body.String())
	}

	if _, err := f.svc.ScheduleAccountDeletion(ctx, "", 30); err == nil {
		t.Error("ScheduleAccountDeletion() expected error for empty user ID")
	}
	if _, err := f.svc.ScheduleAccountDeletion(ctx, "u-123", -1); err == nil {
		t.Error("ScheduleAccountDeletion() expected error for negative grace")
	}
}

func TestService_DeleteAccountNow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	put := func(key, body string) {
		t.Helper()
		if err := f.store.Put(ctx, key, strings.NewReader(body), int64(len(body))); err != nil {
			t.Fatalf("Put(%s) error = %v", key, err)
		}
	}
	put("photos/u-123/aaaa", "photo")
	put("photos/u-123/bbbb", "photo")
	put("thumbnails/u-123/aaaa", "thumb")
	put("metadata/u-123/aaaa", "meta")
	put("catalogs/u-123/dev/manifest.json", "{}")
	put("users/u-123/profile.json", "{}")
	put("identities/apple:xyz", "u-123")
	put("scheduled-deletions/2024-02-14/u-123.json", "{}")

	// Another account sharing the bucket.
	put("photos/u-999/cccc", "photo")
	put("catalogs/u-999/dev/manifest.json", "{}")
	put("identities/google:abc", "u-999")
	put("scheduled-deletions/2024-02-14/u-999.json", "{}")

	deleted, err := f.svc.DeleteAccountNow(ctx, "u-123")
	if err != nil {
		t.Fatalf("DeleteAccountNow() error = %v", err)
	}
	if deleted != 8 {
		t.Errorf("deleted = %d, want 8", deleted)
	}

	// Everything belonging to the other user survives.
	if f.store.Len() != 4 {
		t.Errorf("store.Len() = %d, want 4 surviving objects", f.store.Len())
	}
	var body bytes.Buffer
	for _, key := range []string{
		"photos/u-999/cccc",
		"catalogs/u-999/dev/manifest.json",
		"identities/google:abc",
		"scheduled-deletions/2024-02-14/u-999.json",
	} {
		body.Reset()
		if err := f.store.Get(ctx, key, &body); err != nil {
			t.Errorf("other account's object %s deleted: %v", key, err)
		}
	}
}
