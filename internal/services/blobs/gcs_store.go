// Failure screenshot storage backends. Screenshots are evidence attached to
// job error records; losing one downgrades the record, it never fails the job.

package blobs

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
)

// GCSStore uploads screenshots to a Cloud Storage bucket
type GCSStore struct {
	client *storage.Client
	bucket string
	logger arbor.ILogger
}

// NewGCSStore creates a screenshot store backed by the given bucket.
// Credentials come from the ambient service account.
func NewGCSStore(ctx context.Context, bucket string, logger arbor.ILogger) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("GCS bucket name is required")
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	logger.Info().Str("bucket", bucket).Msg("GCS screenshot store initialized")

	return &GCSStore{
		client: client,
		bucket: bucket,
		logger: logger,
	}, nil
}

// Upload writes the image under the given key and returns a gs:// reference
func (s *GCSStore) Upload(ctx context.Context, key string, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("empty screenshot")
	}

	obj := s.client.Bucket(s.bucket).Object(key)
	w := obj.NewWriter(ctx)
	w.ContentType = "image/png"

	if _, err := w.Write(image); err != nil {
		w.Close()
		return "", fmt.Errorf("failed to write screenshot %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize screenshot %s: %w", key, err)
	}

	ref := fmt.Sprintf("gs://%s/%s", s.bucket, key)
	s.logger.Debug().Str("ref", ref).Int("bytes", len(image)).Msg("Screenshot uploaded")
	return ref, nil
}

// Close releases the storage client
func (s *GCSStore) Close() error {
	return s.client.Close()
}

var _ interfaces.ScreenshotStore = (*GCSStore)(nil)
