package photolala

import "time"

// ArchivalRecord tracks the storage tier of an uploaded photo artifact and
// any thaw in flight for it. Records hold only a content-hash
// back-reference into the catalog, never ownership, so catalog rebuilds
// never strand tier state.
type ArchivalRecord struct {
	ContentHash    string
	Tier           Tier
	ThawHandle     string // set while a thaw is in progress
	Urgency        Urgency
	RequestedAt    time.Time
	ETA            time.Time
	RetentionUntil time.Time // while Hot after a thaw: when it reverts to Archived
}

// StateStore persists local state that must survive restarts: the upload
// ledger (which content hashes have been durably uploaded, per artifact
// kind) and archival records.
type StateStore interface {
	// RecordUpload marks (contentHash, kind) as uploaded. Idempotent.
	RecordUpload(contentHash string, kind ArtifactKind, at time.Time) error

	// HasUpload reports whether (contentHash, kind) was ever uploaded.
	HasUpload(contentHash string, kind ArtifactKind) (bool, error)

	// GetArchivalRecord returns the archival record for a hash, or nil.
	GetArchivalRecord(contentHash string) (*ArchivalRecord, error)

	// FindArchivalRecordByHandle returns the record carrying the given
	// thaw handle, or nil.
	FindArchivalRecordByHandle(handle string) (*ArchivalRecord, error)

	// PutArchivalRecord inserts or replaces the record for its hash.
	PutArchivalRecord(rec *ArchivalRecord) error

	// Close closes the underlying storage.
	Close() error
}
