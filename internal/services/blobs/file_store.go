package blobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
)

// FileStore keeps screenshots on local disk. The default backend for
// development and the fallback when no bucket is configured.
type FileStore struct {
	dir    string
	logger arbor.ILogger
}

// NewFileStore creates a filesystem screenshot store rooted at dir
func NewFileStore(dir string, logger arbor.ILogger) (*FileStore, error) {
	if dir == "" {
		dir = "screenshots"
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create screenshot directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

// Upload writes the image under dir/key and returns the file path
func (s *FileStore) Upload(ctx context.Context, key string, image []byte) (string, error) {
	if len(image) == 0 {
		return "", fmt.Errorf("empty screenshot")
	}

	path := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create screenshot subdirectory: %w", err)
	}
	if err := os.WriteFile(path, image, 0644); err != nil {
		return "", fmt.Errorf("failed to write screenshot %s: %w", key, err)
	}

	s.logger.Debug().Str("path", path).Int("bytes", len(image)).Msg("Screenshot saved")
	return path, nil
}

var _ interfaces.ScreenshotStore = (*FileStore)(nil)
