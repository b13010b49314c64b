package blob

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/studydeck/content-api/pkg/config"
)

// MinioStore keeps uploaded slide files in an S3-compatible bucket.
type MinioStore struct {
	client        *minio.Client
	bucket        string
	publicBaseURL string
	endpoint      string
	useSSL        bool
}

// NewMinioStore connects to the object store and ensures the bucket exists.
func NewMinioStore(cfg config.BlobConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create blob client: %w", err)
	}

	store := &MinioStore{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: strings.TrimRight(cfg.PublicBaseURL, "/"),
		endpoint:      cfg.Endpoint,
		useSSL:        cfg.UseSSL,
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
	}

	return store, nil
}

// Upload stores the slide file under the given path.
func (s *MinioStore) Upload(ctx context.Context, path string, r io.Reader, size int64, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, s.bucket, path, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("upload blob %s: %w", path, err)
	}
	return nil
}

// Remove deletes the slide file at path. Removing a missing object is not an error.
func (s *MinioStore) Remove(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove blob %s: %w", path, err)
	}
	return nil
}

// PublicURL returns the externally reachable URL for a stored path.
func (s *MinioStore) PublicURL(path string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + path
	}
	scheme := "http"
	if s.useSSL {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", scheme, s.endpoint, s.bucket, path)
}

// Probe verifies the bucket is reachable.
func (s *MinioStore) Probe(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("probe bucket %s: %w", s.bucket, err)
	}
	if !exists {
		return fmt.Errorf("bucket %s missing", s.bucket)
	}
	return nil
}
