package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/your-org/facegate/internal/config"
)

// MinIOStore keeps enrollment thumbnails and station captures in one bucket.
type MinIOStore struct {
	client *minio.Client
	bucket string
}

func NewMinIOStore(cfg config.MinIOConfig) (*MinIOStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("minio bucket is required")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	return &MinIOStore{client: client, bucket: cfg.Bucket}, nil
}

// EnsureBucket creates the bucket if it is missing. The api, station and
// worker processes all call it at startup, so losing the creation race to
// another process is not an error.
func (s *MinIOStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
	switch minio.ToErrorResponse(err).Code {
	case "", "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
		return nil
	}
	return fmt.Errorf("create bucket %s: %w", s.bucket, err)
}

// PutObject stores a thumbnail or capture. The owning identity or station
// is parsed from the key and attached as object metadata.
func (s *MinIOStore) PutObject(ctx context.Context, key string, data []byte, contentType string) error {
	opts := putOptions(key, contentType)
	if _, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), opts); err != nil {
		return objectError("put", key, err)
	}
	return nil
}

// GetObject returns ErrObjectNotFound for missing keys.
func (s *MinIOStore) GetObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, objectError("get", key, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key only surfaces on first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, objectError("read", key, err)
	}
	return data, nil
}

// DeleteObject succeeds when the key is already gone.
func (s *MinIOStore) DeleteObject(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{})
	if err = objectError("delete", key, err); errors.Is(err, ErrObjectNotFound) {
		return nil
	}
	return err
}

// ListObjects returns object keys under prefix in lexical order.
func (s *MinIOStore) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, objectError("list", prefix, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		keys = append(keys, obj.Key)
	}
	slices.Sort(keys)
	return keys, nil
}

// DeleteObjects removes keys in one batch request and reports every key
// that could not be removed.
func (s *MinIOStore) DeleteObjects(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	objectsCh := make(chan minio.ObjectInfo, len(keys))
	for _, key := range keys {
		objectsCh <- minio.ObjectInfo{Key: key}
	}
	close(objectsCh)

	var errs []error
	for result := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		if err := objectError("delete", result.ObjectName, result.Err); err != nil && !errors.Is(err, ErrObjectNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *MinIOStore) Ping(ctx context.Context) error {
	ok, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("minio: %w", err)
	}
	if !ok {
		return fmt.Errorf("minio: bucket %s does not exist", s.bucket)
	}
	return nil
}

// objectError wraps err with the operation and key, mapping missing keys
// to ErrObjectNotFound. A nil err stays nil.
func objectError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("%s object %s: %w", op, key, ErrObjectNotFound)
	}
	return fmt.Errorf("%s object %s: %w", op, key, err)
}

// ownerLabels names the metadata key for the segment after each root.
var ownerLabels = map[string]string{
	ThumbnailRoot: "identity",
	CaptureRoot:   "station",
}

func putOptions(key, contentType string) minio.PutObjectOptions {
	if contentType == "" {
		contentType = "image/jpeg"
	}
	opts := minio.PutObjectOptions{ContentType: contentType}
	for root, label := range ownerLabels {
		if owner, ok := keyOwner(key, root); ok {
			opts.UserMetadata = map[string]string{label: owner}
		}
	}
	return opts
}

// keyOwner returns the path segment right after root.
func keyOwner(key, root string) (string, bool) {
	rest, ok := strings.CutPrefix(key, root)
	if !ok {
		return "", false
	}
	owner, _, found := strings.Cut(rest, "/")
	return owner, found && owner != ""
}
