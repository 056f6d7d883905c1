package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/codelynx/photolala/internal/backup"
	"github.com/codelynx/photolala/internal/cache"
	"github.com/codelynx/photolala/internal/catalog"
	"github.com/codelynx/photolala/internal/config"
	"github.com/codelynx/photolala/internal/lifecycle"
	"github.com/codelynx/photolala/internal/objectstore"
	"github.com/codelynx/photolala/internal/photolala"
	"github.com/codelynx/photolala/internal/statedb"
	"github.com/codelynx/photolala/internal/syncer"
)

// PhotoApp is the application layer between the CLI and the service. It
// constructs all dependencies from config, loads the on-disk catalog, and
// persists it again on Close.
type PhotoApp struct {
	cfg        *config.Config
	store      photolala.ObjectStore
	state      photolala.StateStore
	cache      *cache.Cache
	catalog    *catalog.Store
	engine     *syncer.Engine
	pipeline   *backup.Pipeline
	service    *photolala.Service
	clock      photolala.Clock
	logger     photolala.Logger
	logFile    *os.File
	catalogDir string
}

// NewPhotoApp creates a fully wired PhotoApp from the given config.
// operation identifies the CLI command being run (e.g. "Star", "Sync").
// The caller must call Close when done.
func NewPhotoApp(ctx context.Context, cfg *config.Config, operation string) (*PhotoApp, error) {
	opID := time.Now().UTC().Format("20060102T150405Z") + "-" + operation
	slogger, logFile, err := newLogger(cfg.LogDir, opID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}
	clock := photolala.RealClock{}

	store, err := objectstore.NewStoreFromConfig(ctx, cfg.Store)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("creating object store: %w", err)
	}

	state, err := openStateStore(cfg.Database)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	artifactCache, err := cache.New(cfg.Cache.Dir, cfg.Cache.MaxBytes, clock, logger)
	if err != nil {
		state.Close()
		logFile.Close()
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	catalogDir := filepath.Join(cfg.BaseDir, "catalog")
	cat, _, corrupt, err := catalog.LoadDir(catalogDir)
	if err != nil {
		state.Close()
		logFile.Close()
		return nil, fmt.Errorf("loading catalog: %w", err)
	}
	for _, c := range corrupt {
		// Discarded shards repopulate from source and remote on the next
		// star or sync.
		logger.Warn("catalog shard discarded", "shard", c.Shard, "reason", c.Reason)
	}

	eng := syncer.New(store, cat, cfg.CatalogRoot, clock, logger)

	workers := cfg.Backup.Workers
	if workers <= 0 {
		workers = config.DefaultWorkers
	}
	maxAttempts := cfg.Backup.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = config.DefaultMaxAttempts
	}
	pipeline := backup.New(store, artifactCache, state, eng, clock, logger, workers, maxAttempts)
	pipeline.Start(context.Background())

	coord := lifecycle.New(store, state, clock, photolala.UUIDGenerator{}, logger)

	svc := &photolala.Service{
		Catalog:   cat,
		Store:     store,
		Cache:     artifactCache,
		Backup:    pipeline,
		Syncer:    eng,
		Lifecycle: coord,
		Clock:     clock,
		Logger:    logger,
		Retry:     photolala.DefaultRetryPolicy(),
	}

	return &PhotoApp{
		cfg:        cfg,
		store:      store,
		state:      state,
		cache:      artifactCache,
		catalog:    cat,
		engine:     eng,
		pipeline:   pipeline,
		service:    svc,
		clock:      clock,
		logger:     logger,
		logFile:    logFile,
		catalogDir: catalogDir,
	}, nil
}

func openStateStore(cfg config.DatabaseConfig) (photolala.StateStore, error) {
	switch cfg.Type {
	case "", "sqlite":
		dataDir := cfg.DataDir
		if dataDir == "" {
			return nil, fmt.Errorf("sqlite database requires data_dir to be set")
		}
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		return statedb.Open(filepath.Join(dataDir, "photolala.db"))
	case "memory":
		return statedb.Open(":memory:")
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// StarPath stars the photo file at rawPath, or every photo under it when
// it is a directory. Returns the number of photos starred.
func (a *PhotoApp) StarPath(ctx context.Context, rawPath string, recursive bool) (int, error) {
	p, err := filepath.Abs(rawPath)
	if err != nil {
		return 0, fmt.Errorf("resolving path: %w", err)
	}
	return a.service.StarSource(ctx, NewDirectorySource(p, recursive))
}

// Unstar removes a photo from the catalog and cancels pending uploads.
func (a *PhotoApp) Unstar(ctx context.Context, contentHash string) error {
	return a.service.Unstar(ctx, contentHash)
}

// BackupAll enqueues an upload for every catalog record and waits for the
// pipeline to drain. Returns how many photos ended up uploaded and how
// many failed.
func (a *PhotoApp) BackupAll(ctx context.Context) (uploaded, failed int, err error) {
	recs := a.service.List()
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return 0, 0, err
		}
		if err := a.pipeline.Enqueue(rec.ContentHash, photolala.KindPhoto); err != nil {
			return 0, 0, fmt.Errorf("enqueueing %s: %w", rec.ContentHash, err)
		}
	}
	a.pipeline.Flush()

	for _, rec := range recs {
		if a.pipeline.State(rec.ContentHash, photolala.KindPhoto) == backup.StateUploaded {
			uploaded++
		} else {
			failed++
		}
	}
	return uploaded, failed, nil
}

// Sync runs one catalog sync round against the remote.
func (a *PhotoApp) Sync(ctx context.Context) error {
	return a.service.Sync(ctx)
}

// SyncState reports the catalog's sync state after the last Sync.
func (a *PhotoApp) SyncState() syncer.State {
	return a.engine.State()
}

// List returns every catalog record ordered by hash.
func (a *PhotoApp) List() []*catalog.PhotoRecord {
	return a.service.List()
}

// Lookup returns the catalog record for a hash.
func (a *PhotoApp) Lookup(contentHash string) (*catalog.PhotoRecord, bool) {
	return a.service.Lookup(contentHash)
}

// Retrieve writes an artifact's bytes to w.
func (a *PhotoApp) Retrieve(ctx context.Context, contentHash string, kind photolala.ArtifactKind, w io.Writer) error {
	return a.service.Retrieve(ctx, contentHash, kind, w)
}

// RequestThaw asks for an archived photo to be restored.
func (a *PhotoApp) RequestThaw(ctx context.Context, contentHash string, expedited bool) (*photolala.ArchivalRecord, error) {
	urgency := photolala.UrgencyStandard
	if expedited {
		urgency = photolala.UrgencyExpedited
	}
	return a.service.RequestThaw(ctx, contentHash, urgency)
}

// ThawStatus reports progress of a thaw request by handle.
func (a *PhotoApp) ThawStatus(ctx context.Context, handle string) (*photolala.ArchivalRecord, error) {
	return a.service.PollThaw(ctx, handle)
}

// CacheStats reports entry count, bytes used, and the configured quota.
func (a *PhotoApp) CacheStats() (count int, total int64, quota int64) {
	return a.cache.Stats()
}

// CachePrune evicts least-recently-used artifacts until the cache is
// under quota.
func (a *PhotoApp) CachePrune() {
	a.cache.EvictUntilUnderQuota()
}

// ScheduleAccountDeletion writes a deletion marker falling due after the
// grace period. Returns the marker's remote key.
func (a *PhotoApp) ScheduleAccountDeletion(ctx context.Context, userID string, graceDays int) (string, error) {
	return a.service.ScheduleAccountDeletion(ctx, userID, graceDays)
}

// DeleteAccountNow permanently removes all remote data for the user.
func (a *PhotoApp) DeleteAccountNow(ctx context.Context, userID string) (int, error) {
	return a.service.DeleteAccountNow(ctx, userID)
}

// Close stops the upload workers, persists the catalog to disk, and
// releases all resources. The first error encountered is returned.
func (a *PhotoApp) Close() error {
	var firstErr error

	a.pipeline.Stop()

	if _, err := catalog.SaveDir(a.catalog, a.catalogDir, a.clock.Now()); err != nil {
		firstErr = fmt.Errorf("saving catalog: %w", err)
	}

	if err := a.state.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing state database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
