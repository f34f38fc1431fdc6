// Package local implements artifact storage on the local filesystem.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/skillsenselab/recap/artifact"
	"github.com/skillsenselab/recap/logger"
)

func init() {
	artifact.RegisterFactory(artifact.ProviderLocal, func(cfg artifact.Config, _ *logger.Logger) (artifact.Store, error) {
		return NewStore(cfg.BasePath)
	})
}

// Store implements artifact.Store using the local filesystem.
type Store struct {
	basePath string
}

// NewStore creates a filesystem-backed artifact store rooted at basePath.
func NewStore(basePath string) (*Store, error) {
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("artifact: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("artifact: create base directory: %w", err)
	}
	return &Store{basePath: abs}, nil
}

// Put writes the artifact to a local file.
func (s *Store) Put(_ context.Context, key string, reader io.Reader) error {
	fullPath := filepath.Join(s.basePath, filepath.Clean(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("artifact: create directory: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return fmt.Errorf("artifact: create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, reader); err != nil {
		return fmt.Errorf("artifact: write file: %w", err)
	}
	return nil
}

// Get returns a reader for the local artifact at key.
func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	fullPath := filepath.Join(s.basePath, filepath.Clean(key))
	f, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("artifact: not found: %s", key)
		}
		return nil, fmt.Errorf("artifact: open file: %w", err)
	}
	return f, nil
}

// Delete removes a local artifact. Returns nil if it does not exist.
func (s *Store) Delete(_ context.Context, key string) error {
	fullPath := filepath.Join(s.basePath, filepath.Clean(key))
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("artifact: delete file: %w", err)
	}
	return nil
}

// Exists checks whether a local artifact exists.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	fullPath := filepath.Join(s.basePath, filepath.Clean(key))
	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("artifact: stat file: %w", err)
	}
	return true, nil
}

// Path returns the absolute filesystem path for a key. The on-device
// provider and ffmpeg both need a real file path rather than a reader.
func (s *Store) Path(key string) string {
	return filepath.Join(s.basePath, filepath.Clean(key))
}
