package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/codelynx/photolala/internal/photolala"
)

// deleteBatchSize is the S3 DeleteObjects per-request limit.
const deleteBatchSize = 1000

// restoreDays is how long a thawed copy stays readable before S3 drops it
// back to the archive tier.
const restoreDays = 7

// S3Store implements the ObjectStore interface on Amazon S3. Objects are
// uploaded through the transfer manager (multipart for large photos) and
// archived objects are thawed via S3 restore requests. S3's atomic PUT
// semantics give us the "no readable partial object" guarantee for free.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ photolala.ObjectStore = (*S3Store)(nil)

// S3Options configures an S3Store.
type S3Options struct {
	Bucket string
	Prefix string
	Region string

	// Optional static credentials; when empty the default AWS credential
	// chain (environment, shared config, instance role) is used.
	AccessKeyID     string
	SecretAccessKey string

	// Optional custom endpoint for S3-compatible services.
	Endpoint string
}

// NewS3Store creates an S3-backed object store.
func NewS3Store(ctx context.Context, opts S3Options) (*S3Store, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 store requires a bucket")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   opts.Bucket,
		prefix:   opts.Prefix,
	}, nil
}

func (s *S3Store) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimSuffix(s.prefix, "/") + "/" + key
}

// Put stores an object. The transfer manager switches to multipart
// uploads for large bodies; either the whole object lands or nothing does.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.fullKey(key)),
		Body:          r,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return classify(fmt.Errorf("uploading %s: %w", key, err))
	}
	return nil
}

// Get retrieves an object's bytes and writes them to w.
func (s *S3Store) Get(ctx context.Context, key string, w io.Writer) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return fmt.Errorf("object %s: %w", key, photolala.ErrNotFound)
		}
		var invalidState *types.InvalidObjectState
		if errors.As(err, &invalidState) {
			// The object lives in an archive storage class.
			return &photolala.ArchivedError{ContentHash: lastSegment(key)}
		}
		return classify(fmt.Errorf("downloading %s: %w", key, err))
	}
	defer out.Body.Close()

	if _, err := io.Copy(w, out.Body); err != nil {
		return classify(fmt.Errorf("reading %s: %w", key, err))
	}
	return nil
}

// Head returns object metadata without downloading the body.
func (s *S3Store) Head(ctx context.Context, key string) (photolala.ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return photolala.ObjectInfo{}, fmt.Errorf("object %s: %w", key, photolala.ErrNotFound)
		}
		return photolala.ObjectInfo{}, classify(fmt.Errorf("heading %s: %w", key, err))
	}

	return photolala.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}

// List returns metadata for every object under prefix.
func (s *S3Store) List(ctx context.Context, prefix string) ([]photolala.ObjectInfo, error) {
	full := s.fullKey(prefix)
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(full),
	})

	var out []photolala.ObjectInfo
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, classify(fmt.Errorf("listing %s: %w", prefix, err))
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.prefix != "" {
				key = strings.TrimPrefix(key, strings.TrimSuffix(s.prefix, "/")+"/")
			}
			out = append(out, photolala.ObjectInfo{
				Key:          key,
				Size:         aws.ToInt64(obj.Size),
				ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return out, nil
}

// Delete removes the given keys in batches of up to 1000 per request.
func (s *S3Store) Delete(ctx context.Context, keys []string) error {
	for start := 0; start < len(keys); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(keys) {
			end = len(keys)
		}

		objects := make([]types.ObjectIdentifier, 0, end-start)
		for _, key := range keys[start:end] {
			objects = append(objects, types.ObjectIdentifier{Key: aws.String(s.fullKey(key))})
		}

		out, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return classify(fmt.Errorf("deleting objects: %w", err))
		}
		if len(out.Errors) > 0 {
			first := out.Errors[0]
			return fmt.Errorf("deleting %s: %s (%d failures total)",
				aws.ToString(first.Key), aws.ToString(first.Message), len(out.Errors))
		}
	}
	return nil
}

// Restore requests that an archived object be made readable again.
// An already-running restore is not an error.
func (s *S3Store) Restore(ctx context.Context, key string, urgency photolala.Urgency) error {
	tier := types.TierStandard
	if urgency == photolala.UrgencyExpedited {
		tier = types.TierExpedited
	}

	_, err := s.client.RestoreObject(ctx, &s3.RestoreObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
		RestoreRequest: &types.RestoreRequest{
			Days: aws.Int32(restoreDays),
			GlacierJobParameters: &types.GlacierJobParameters{
				Tier: tier,
			},
		},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "RestoreAlreadyInProgress" {
			return nil
		}
		if isNotFound(err) {
			return fmt.Errorf("object %s: %w", key, photolala.ErrNotFound)
		}
		return classify(fmt.Errorf("restoring %s: %w", key, err))
	}
	return nil
}

// Tier reports the storage tier the object currently resides in, derived
// from its storage class and any restore in progress.
func (s *S3Store) Tier(ctx context.Context, key string) (photolala.Tier, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.fullKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return "", fmt.Errorf("object %s: %w", key, photolala.ErrNotFound)
		}
		return "", classify(fmt.Errorf("heading %s: %w", key, err))
	}

	switch out.StorageClass {
	case types.StorageClassGlacier, types.StorageClassDeepArchive:
	default:
		return photolala.TierHot, nil
	}

	// Archive storage class: the x-amz-restore header tells us whether a
	// restored copy exists or a restore is still running.
	restore := aws.ToString(out.Restore)
	switch {
	case strings.Contains(restore, `ongoing-request="true"`):
		return photolala.TierThawInProgress, nil
	case strings.Contains(restore, `ongoing-request="false"`):
		return photolala.TierHot, nil
	default:
		return photolala.TierArchived, nil
	}
}

// isNotFound matches both NoSuchKey and the bare 404 HeadObject returns.
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound"
}

// classify wraps retriable S3 failures as transient so the shared retry
// policy picks them up. Anything that never reached the service (DNS,
// connection reset) is also transient.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "InternalError", "RequestTimeout", "ServiceUnavailable", "Throttling", "ThrottlingException":
			return photolala.Transient(err)
		}
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return photolala.Transient(err)
}
