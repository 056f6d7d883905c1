package photolala

import (
	"context"
	"io"
	"time"
)

// Tier is the storage tier an uploaded object resides in. Only Hot and
// ThawInProgress objects are byte-readable; reads of Archived objects fail
// fast with ArchivedError, never silently block.
type Tier string

const (
	TierHot            Tier = "hot"
	TierArchived       Tier = "archived"
	TierThawInProgress Tier = "thawing"
)

// Urgency selects the archive retrieval speed/cost tradeoff.
type Urgency string

const (
	UrgencyStandard  Urgency = "standard"
	UrgencyExpedited Urgency = "expedited"
)

// Valid reports whether u is a known urgency.
func (u Urgency) Valid() bool {
	return u == UrgencyStandard || u == UrgencyExpedited
}

// ObjectInfo describes a stored object without its bytes.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

// ObjectStore is the remote object storage collaborator. Implementations
// stream bytes and must never buffer whole photos in memory. Failed or
// cancelled uploads must not leave a readable partial object: a key is
// only visible after a complete, verified put.
type ObjectStore interface {
	// Put stores an object. size is the number of bytes that will be read
	// from r; a short or long read fails the put.
	Put(ctx context.Context, key string, r io.Reader, size int64) error

	// Get retrieves an object's bytes and writes them to w.
	// Returns ErrNotFound if the key does not exist and ArchivedError if
	// the object is in the archive tier.
	Get(ctx context.Context, key string, w io.Writer) error

	// Head returns object metadata without downloading the body.
	// Returns ErrNotFound if the key does not exist.
	Head(ctx context.Context, key string) (ObjectInfo, error)

	// List returns metadata for every object under prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)

	// Delete removes the given keys. Missing keys are not an error.
	Delete(ctx context.Context, keys []string) error

	// Restore requests that an archived object be made readable again.
	// Requesting a restore that is already in progress is not an error.
	Restore(ctx context.Context, key string, urgency Urgency) error

	// Tier reports the storage tier the object currently resides in.
	Tier(ctx context.Context, key string) (Tier, error)
}
