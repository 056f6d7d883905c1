package photolala

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/codelynx/photolala/internal/catalog"
)

// Content hashing. A photo's identity is the 128-bit digest of its raw
// bytes, hex-encoded to 32 characters. The hash names objects in the
// remote store and deduplicates uploads: two local files with identical
// bytes map to exactly one backup.

// HashBytes returns the content hash of b.
func HashBytes(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

// HashReader consumes r and returns the content hash and the number of
// bytes read.
func HashReader(r io.Reader) (string, int64, error) {
	h := md5.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// ValidateContentHash checks that hash is a well-formed content hash.
func ValidateContentHash(hash string) error {
	return catalog.ValidateHash(hash)
}
