package blob

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Store is the binary-object collaborator. Uploads happen elsewhere; this
// core only needs to release file references when rooms or messages are
// purged.
type Store interface {
	// Remove releases the object behind an opaque URL. Removing an
	// unknown URL is a no-op.
	Remove(ctx context.Context, url string) error
}

// LocalStore maps upload URLs of the form "/uploads/<name>" onto files in a
// local directory.
type LocalStore struct {
	dir       string
	urlPrefix string
	logger    *zap.Logger
}

func NewLocalStore(dir, urlPrefix string, logger *zap.Logger) *LocalStore {
	return &LocalStore{dir: dir, urlPrefix: urlPrefix, logger: logger}
}

func (s *LocalStore) Remove(ctx context.Context, url string) error {
	name, ok := strings.CutPrefix(url, s.urlPrefix)
	if !ok || name == "" {
		// Not one of ours; nothing to release.
		return nil
	}

	// The URL is opaque caller input; keep the path inside the dir.
	path := filepath.Join(s.dir, filepath.Base(name))
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		s.logger.Warn("Failed to remove stored file",
			zap.String("url", url),
			zap.Error(err),
		)
		return err
	}

	s.logger.Debug("Removed stored file", zap.String("url", url))
	return nil
}

// NopStore ignores removals. Used when no binary-object storage is wired.
type NopStore struct{}

func (NopStore) Remove(ctx context.Context, url string) error {
	return nil
}
