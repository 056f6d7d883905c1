package catalog

import "fmt"

// ShardCount is the fixed number of shards the hash space is partitioned
// into. A record's shard is selected by the first hex digit of its content
// hash, so membership is always derived, never stored.
const ShardCount = 16

// ShardIndexFor returns the shard index for a content hash.
// It is a pure function of the hash's leading hex digit and is stable
// across runs.
func ShardIndexFor(hash string) (int, error) {
	if err := ValidateHash(hash); err != nil {
		return 0, err
	}
	c := hash[0]
	if c >= '0' && c <= '9' {
		return int(c - '0'), nil
	}
	return int(c-'a') + 10, nil
}

// ValidateShardIndex checks that index identifies an existing shard.
func ValidateShardIndex(index int) error {
	if index < 0 || index >= ShardCount {
		return fmt.Errorf("shard index out of range: %d", index)
	}
	return nil
}
