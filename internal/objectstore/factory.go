package objectstore

import (
	"context"
	"fmt"

	"github.com/codelynx/photolala/internal/config"
	"github.com/codelynx/photolala/internal/photolala"
)

// NewStoreFromConfig creates an ObjectStore implementation based on the store config type.
func NewStoreFromConfig(ctx context.Context, cfg config.StoreConfig) (photolala.ObjectStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 store requires s3_bucket to be set")
		}
		return NewS3Store(ctx, S3Options{
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKey,
			SecretAccessKey: cfg.S3SecretKey,
		})
	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Type)
	}
}
