package app

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/codelynx/photolala/internal/photolala"
)

// photoExtensions are the file extensions treated as photos when walking
// a directory.
var photoExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".heic": true,
	".heif": true,
	".tif":  true,
	".tiff": true,
	".webp": true,
	".dng":  true,
}

// DirectorySource is a PhotoSource over files on disk. Capture time is
// unknown for plain files; modification time comes from the filesystem.
type DirectorySource struct {
	root      string
	recursive bool
}

var _ photolala.PhotoSource = (*DirectorySource)(nil)

// NewDirectorySource creates a source over the photo files under root.
// When recursive is false only direct children are considered.
func NewDirectorySource(root string, recursive bool) *DirectorySource {
	return &DirectorySource{root: root, recursive: recursive}
}

// Items enumerates photo files under the root. A root pointing at a
// single photo file yields that one item.
func (s *DirectorySource) Items() ([]*photolala.PhotoItem, error) {
	info, err := os.Stat(s.root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.root, err)
	}
	if !info.IsDir() {
		if !isPhotoFile(s.root) {
			return nil, fmt.Errorf("%s is not a recognized photo file", s.root)
		}
		return []*photolala.PhotoItem{fileItem(s.root, info)}, nil
	}

	var items []*photolala.PhotoItem
	err = filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !s.recursive && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !isPhotoFile(path) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		items = append(items, fileItem(path, fi))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", s.root, err)
	}
	return items, nil
}

func isPhotoFile(path string) bool {
	return photoExtensions[strings.ToLower(filepath.Ext(path))]
}

func fileItem(path string, info fs.FileInfo) *photolala.PhotoItem {
	return &photolala.PhotoItem{
		DisplayName: filepath.Base(path),
		ModifiedAt:  info.ModTime(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}
}
