package testutil

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/codelynx/photolala/internal/photolala"
)

// MemoryPhotoSource is an in-memory photo library for testing.
type MemoryPhotoSource struct {
	items []*photolala.PhotoItem
}

// NewMemoryPhotoSource creates an empty photo source.
func NewMemoryPhotoSource() *MemoryPhotoSource {
	return &MemoryPhotoSource{}
}

// AddPhoto adds a photo with the given content and sensible defaults for
// the remaining metadata.
func (s *MemoryPhotoSource) AddPhoto(localID, displayName string, content []byte) *photolala.PhotoItem {
	data := bytes.Clone(content)
	item := &photolala.PhotoItem{
		LocalID:     localID,
		DisplayName: displayName,
		CapturedAt:  time.Date(2023, 7, 4, 9, 0, 0, 0, time.UTC),
		ModifiedAt:  time.Date(2023, 7, 4, 9, 0, 0, 0, time.UTC),
		PixelWidth:  4032,
		PixelHeight: 3024,
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
	s.items = append(s.items, item)
	return item
}

// AddBrokenPhoto adds a photo whose content cannot be opened.
func (s *MemoryPhotoSource) AddBrokenPhoto(localID, displayName string) *photolala.PhotoItem {
	item := &photolala.PhotoItem{
		LocalID:     localID,
		DisplayName: displayName,
		Open: func() (io.ReadCloser, error) {
			return nil, fmt.Errorf("photo %s: content unavailable", localID)
		},
	}
	s.items = append(s.items, item)
	return item
}

// Items returns the photos added so far.
func (s *MemoryPhotoSource) Items() ([]*photolala.PhotoItem, error) {
	return s.items, nil
}
