package catalog

import (
	"fmt"
	"time"
)

// PhotoRecord is one catalog entry per distinct content hash.
// The content hash is the primary key and is immutable: it is derived from
// the photo's bytes alone, so two records never share a hash unless their
// bytes are identical.
type PhotoRecord struct {
	ContentHash string // 32 lowercase hex chars (128-bit digest)
	DisplayName string
	ByteSize    int64
	CapturedAt  time.Time
	ModifiedAt  time.Time

	// PixelWidth and PixelHeight are zero when dimensions are unknown.
	PixelWidth  uint32
	PixelHeight uint32

	// SourceLocalID is the platform photo-library identifier, set only when
	// the photo originated from a managed photo library rather than a file.
	SourceLocalID string
}

// Validate checks that the record carries a well-formed content hash.
func (r *PhotoRecord) Validate() error {
	if err := ValidateHash(r.ContentHash); err != nil {
		return fmt.Errorf("record %q: %w", r.DisplayName, err)
	}
	return nil
}

// Equal reports whether two records are field-for-field identical.
// Timestamps are compared at second precision, matching the precision of
// the serialized form.
func (r *PhotoRecord) Equal(o *PhotoRecord) bool {
	if o == nil {
		return false
	}
	return r.ContentHash == o.ContentHash &&
		r.DisplayName == o.DisplayName &&
		r.ByteSize == o.ByteSize &&
		r.CapturedAt.Unix() == o.CapturedAt.Unix() &&
		r.ModifiedAt.Unix() == o.ModifiedAt.Unix() &&
		r.PixelWidth == o.PixelWidth &&
		r.PixelHeight == o.PixelHeight &&
		r.SourceLocalID == o.SourceLocalID
}

// clone returns a copy so callers never alias store-owned records.
func (r *PhotoRecord) clone() *PhotoRecord {
	c := *r
	return &c
}

// ValidateHash checks that hash is a 32-character lowercase hex string.
func ValidateHash(hash string) error {
	if len(hash) != HashHexLen {
		return fmt.Errorf("invalid content hash %q: want %d hex chars, got %d", hash, HashHexLen, len(hash))
	}
	for i := 0; i < len(hash); i++ {
		c := hash[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return fmt.Errorf("invalid content hash %q: non-hex character at %d", hash, i)
		}
	}
	return nil
}

// HashHexLen is the length of a content hash in hex characters.
const HashHexLen = 32
