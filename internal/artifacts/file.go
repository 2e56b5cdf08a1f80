package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joshsymonds/advisor/pkg/logger"
	"github.com/joshsymonds/advisor/pkg/pathutil"
)

// FileStore keeps blobs under a local directory.
type FileStore struct {
	logger  logger.Logger
	baseDir string
}

// NewFileStore creates a file store rooted at baseDir.
func NewFileStore(baseDir string) (*FileStore, error) {
	return NewFileStoreWithLogger(baseDir, logger.GetGlobalLogger())
}

// NewFileStoreWithLogger creates a file store with a custom logger.
func NewFileStoreWithLogger(baseDir string, log logger.Logger) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating artifact directory: %w", err)
	}
	return &FileStore{baseDir: baseDir, logger: log}, nil
}

func (s *FileStore) path(key string) (string, error) {
	clean, err := pathutil.ValidateKey(key)
	if err != nil {
		return "", err
	}
	return pathutil.JoinAndValidate(s.baseDir, filepath.FromSlash(clean))
}

// Put writes data under key, replacing any previous blob.
func (s *FileStore) Put(_ context.Context, key string, data []byte, _ string) error {
	p, err := s.path(key)
	if err != nil {
		return fmt.Errorf("invalid artifact key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("creating artifact directory: %w", err)
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing artifact %s: %w", key, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing artifact %s: %w", key, err)
	}

	s.logger.Debug("Stored artifact", "key", key, "bytes", len(data))
	return nil
}

// Get reads the blob under key.
func (s *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact key: %w", err)
	}
	data, err := os.ReadFile(p) // #nosec G304 - path is validated
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("reading artifact %s: %w", key, err)
	}
	return data, nil
}

// Exists reports whether a blob exists under key.
func (s *FileStore) Exists(_ context.Context, key string) (bool, error) {
	p, err := s.path(key)
	if err != nil {
		return false, fmt.Errorf("invalid artifact key: %w", err)
	}
	info, err := os.Stat(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

// Delete removes the blob under key. Missing blobs are not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return fmt.Errorf("invalid artifact key: %w", err)
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting artifact %s: %w", key, err)
	}
	return nil
}
