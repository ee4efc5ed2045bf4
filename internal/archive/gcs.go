package archive

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// BlobStore puts one object into a bucket, overwriting any existing object of that name.
type BlobStore interface {
	PutObject(ctx context.Context, bucket, object string, content []byte, contentType string) error
}

// GCSStore is a BlobStore on Google Cloud Storage.
type GCSStore struct {
	client *storage.Client
}

// NewGCSStore creates a storage client. credentialsFile is optional; without it the
// client uses application default credentials.
func NewGCSStore(ctx context.Context, credentialsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSStore{client: client}, nil
}

func (s *GCSStore) PutObject(ctx context.Context, bucket, object string, content []byte, contentType string) error {
	writer := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := writer.Write(content); err != nil {
		_ = writer.Close()
		return fmt.Errorf("write gs://%s/%s: %w", bucket, object, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close GCS writer for gs://%s/%s: %w", bucket, object, err)
	}
	return nil
}

// Close releases the storage client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

// IsPermanent reports errors a retry cannot fix: missing buckets and 4xx responses other
// than request timeouts and rate limiting.
func IsPermanent(err error) bool {
	if errors.Is(err, storage.ErrBucketNotExist) {
		return true
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusRequestTimeout, http.StatusTooManyRequests:
			return false
		}
		return gerr.Code >= 400 && gerr.Code < 500
	}
	return false
}
