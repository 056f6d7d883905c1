package catalog

import (
	"errors"
	"fmt"
)

// ErrUnknownManifestVersion is returned when a manifest declares a format
// version this binary does not understand. Readers must not guess: an
// unknown version means a newer writer owns the data.
var ErrUnknownManifestVersion = errors.New("unknown catalog manifest format version")

// CorruptShardError reports a shard that failed checksum verification or
// contained records outside its hash range. Corrupt shards are discarded
// and rebuilt from source, never repaired in place.
type CorruptShardError struct {
	Shard  int
	Reason string
}

func (e *CorruptShardError) Error() string {
	return fmt.Sprintf("catalog shard %d corrupt: %s", e.Shard, e.Reason)
}

// IsCorruptShard reports whether err is a CorruptShardError.
func IsCorruptShard(err error) bool {
	var ce *CorruptShardError
	return errors.As(err, &ce)
}
