// Package lifecycle tracks which storage tier each backed-up photo
// resides in and drives thaw (archive restore) requests. Tier state is
// persisted in the local state database so repeated requests never issue
// duplicate restores.
package lifecycle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codelynx/photolala/internal/photolala"
)

const (
	// StandardThawETA is the expected wait for a standard-urgency restore.
	StandardThawETA = 12 * time.Hour
	// ExpeditedThawETA is the expected wait for an expedited restore.
	ExpeditedThawETA = time.Hour
	// RetentionWindow is how long a thawed copy stays readable before the
	// object reverts to the archive tier.
	RetentionWindow = 7 * 24 * time.Hour
)

// Coordinator owns archival records and thaw requests for photo artifacts.
type Coordinator struct {
	store  photolala.ObjectStore
	state  photolala.StateStore
	clock  photolala.Clock
	ids    photolala.IDGenerator
	logger photolala.Logger

	mu sync.Mutex
}

// New creates a coordinator.
func New(store photolala.ObjectStore, state photolala.StateStore, clock photolala.Clock, ids photolala.IDGenerator, logger photolala.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		state:  state,
		clock:  clock,
		ids:    ids,
		logger: logger,
	}
}

// RequestThaw asks the remote store to restore an archived photo.
// Idempotent: a thaw already in progress returns the existing record and
// handle without issuing another restore. A photo that is already
// readable returns a Hot record.
func (c *Coordinator) RequestThaw(ctx context.Context, contentHash string, urgency photolala.Urgency) (*photolala.ArchivalRecord, error) {
	if err := photolala.ValidateContentHash(contentHash); err != nil {
		return nil, err
	}
	if !urgency.Valid() {
		return nil, fmt.Errorf("unknown urgency %q", urgency)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.state.GetArchivalRecord(contentHash)
	if err != nil {
		return nil, fmt.Errorf("loading archival record: %w", err)
	}
	if rec != nil {
		rec = c.refreshLocked(rec)
		if rec.Tier == photolala.TierThawInProgress {
			return rec, nil
		}
		if rec.Tier == photolala.TierHot {
			return rec, nil
		}
	}

	key := photolala.ObjectKey(photolala.KindPhoto, contentHash)
	tier, err := c.store.Tier(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("probing tier of %s: %w", key, err)
	}
	if tier == photolala.TierHot {
		rec = &photolala.ArchivalRecord{ContentHash: contentHash, Tier: photolala.TierHot}
		if err := c.state.PutArchivalRecord(rec); err != nil {
			return nil, fmt.Errorf("saving archival record: %w", err)
		}
		return rec, nil
	}

	if err := c.store.Restore(ctx, key, urgency); err != nil {
		return nil, fmt.Errorf("requesting restore of %s: %w", key, err)
	}

	now := c.clock.Now()
	eta := StandardThawETA
	if urgency == photolala.UrgencyExpedited {
		eta = ExpeditedThawETA
	}
	rec = &photolala.ArchivalRecord{
		ContentHash: contentHash,
		Tier:        photolala.TierThawInProgress,
		ThawHandle:  c.ids.New(),
		Urgency:     urgency,
		RequestedAt: now,
		ETA:         now.Add(eta),
	}
	if err := c.state.PutArchivalRecord(rec); err != nil {
		return nil, fmt.Errorf("saving archival record: %w", err)
	}
	c.logger.Info("lifecycle: thaw requested",
		"hash", contentHash, "urgency", urgency, "handle", rec.ThawHandle, "eta", rec.ETA)
	return rec, nil
}

// PollThaw probes the remote tier for an in-progress thaw. When the
// restore has completed the record flips to Hot with a retention window.
func (c *Coordinator) PollThaw(ctx context.Context, handle string) (*photolala.ArchivalRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.state.FindArchivalRecordByHandle(handle)
	if err != nil {
		return nil, fmt.Errorf("loading archival record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("thaw handle %s: %w", handle, photolala.ErrNotFound)
	}

	rec = c.refreshLocked(rec)
	if rec.Tier != photolala.TierThawInProgress {
		return rec, nil
	}

	tier, err := c.store.Tier(ctx, photolala.ObjectKey(photolala.KindPhoto, rec.ContentHash))
	if err != nil {
		return nil, fmt.Errorf("probing tier: %w", err)
	}
	if tier == photolala.TierHot {
		rec.Tier = photolala.TierHot
		rec.RetentionUntil = c.clock.Now().Add(RetentionWindow)
		if err := c.state.PutArchivalRecord(rec); err != nil {
			return nil, fmt.Errorf("saving archival record: %w", err)
		}
		c.logger.Info("lifecycle: thaw complete",
			"hash", rec.ContentHash, "readable_until", rec.RetentionUntil)
	}
	return rec, nil
}

// ReadableTier reports whether a photo's bytes can be read right now.
// Archived or still-thawing photos return ArchivedError so callers fail
// fast instead of attempting a byte read: a restore in progress does not
// make the object's bytes available until it completes, so ThawInProgress
// is a visible state but not a readable one. A photo without an archival
// record is assumed Hot.
func (c *Coordinator) ReadableTier(contentHash string) (photolala.Tier, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.state.GetArchivalRecord(contentHash)
	if err != nil {
		return "", fmt.Errorf("loading archival record: %w", err)
	}
	if rec == nil {
		return photolala.TierHot, nil
	}

	rec = c.refreshLocked(rec)
	if rec.Tier != photolala.TierHot {
		return rec.Tier, &photolala.ArchivedError{ContentHash: contentHash}
	}
	return photolala.TierHot, nil
}

// MarkArchived records that a photo was discovered to live in the archive
// tier, e.g. when a remote read failed with ArchivedError.
func (c *Coordinator) MarkArchived(contentHash string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rec, err := c.state.GetArchivalRecord(contentHash)
	if err != nil {
		return fmt.Errorf("loading archival record: %w", err)
	}
	if rec != nil && rec.Tier == photolala.TierThawInProgress {
		// A pending thaw stays pending.
		return nil
	}
	return c.state.PutArchivalRecord(&photolala.ArchivalRecord{
		ContentHash: contentHash,
		Tier:        photolala.TierArchived,
	})
}

// refreshLocked applies time-based transitions: a Hot record past its
// retention window reverts to Archived. Callers hold c.mu.
func (c *Coordinator) refreshLocked(rec *photolala.ArchivalRecord) *photolala.ArchivalRecord {
	if rec.Tier == photolala.TierHot && !rec.RetentionUntil.IsZero() && c.clock.Now().After(rec.RetentionUntil) {
		rec.Tier = photolala.TierArchived
		rec.RetentionUntil = time.Time{}
		if err := c.state.PutArchivalRecord(rec); err != nil {
			c.logger.Warn("lifecycle: failed to persist retention lapse",
				"hash", rec.ContentHash, "error", err)
		} else {
			c.logger.Info("lifecycle: retention window lapsed", "hash", rec.ContentHash)
		}
	}
	return rec
}
