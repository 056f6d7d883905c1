package photolala

import "fmt"

// ArtifactKind identifies the artifact stored for a content hash: the
// photo bytes themselves or a derived artifact.
type ArtifactKind string

const (
	KindPhoto     ArtifactKind = "photo"
	KindThumbnail ArtifactKind = "thumbnail"
	KindMetadata  ArtifactKind = "metadata"
)

// AllKinds lists every artifact kind in upload order.
var AllKinds = []ArtifactKind{KindPhoto, KindThumbnail, KindMetadata}

// Valid reports whether k is a known artifact kind.
func (k ArtifactKind) Valid() bool {
	switch k {
	case KindPhoto, KindThumbnail, KindMetadata:
		return true
	}
	return false
}

// ObjectKey returns the remote storage key for an artifact. Keys are
// derived deterministically from content hash and kind.
func ObjectKey(kind ArtifactKind, contentHash string) string {
	switch kind {
	case KindPhoto:
		return "photos/" + contentHash
	case KindThumbnail:
		return "thumbnails/" + contentHash
	case KindMetadata:
		return "metadata/" + contentHash
	}
	panic(fmt.Sprintf("unknown artifact kind %q", kind))
}

// ManifestKey returns the remote key of a catalog root's manifest.
func ManifestKey(root string) string {
	return "catalogs/" + root + "/manifest.json"
}

// ShardKey returns the remote key of one catalog shard. Shards are stored
// gzip-compressed.
func ShardKey(root string, index int) string {
	return fmt.Sprintf("catalogs/%s/shards/%d.csv.gz", root, index)
}
