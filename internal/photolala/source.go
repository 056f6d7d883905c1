package photolala

import (
	"io"
	"time"
)

// PhotoItem is one photo offered by a photo source. The core only ever
// calls Open to hash and upload bytes; it never assumes a filesystem path.
type PhotoItem struct {
	// LocalID identifies the photo within its source: a platform
	// photo-library identifier, or empty for plain files.
	LocalID     string
	DisplayName string
	CapturedAt  time.Time
	ModifiedAt  time.Time
	PixelWidth  uint32
	PixelHeight uint32

	// Open returns a fresh reader over the photo's bytes. It may be called
	// more than once (hashing and uploading are separate passes).
	Open func() (io.ReadCloser, error)
}

// PhotoSource supplies photos to star and back up: a local directory
// walker, a platform photo library, or an in-memory fake in tests.
type PhotoSource interface {
	// Items enumerates the source's photos.
	Items() ([]*PhotoItem, error)
}
