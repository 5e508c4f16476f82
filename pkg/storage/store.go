// Package storage persists serialized graph segments and announces them.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// Store persists one serialized segment and returns its location.
type Store interface {
	Put(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) (string, error)
}

// FileStore writes segments to the local filesystem.
type FileStore struct {
	root string
}

// NewFileStore creates a store rooted at root. An empty root resolves paths
// against the working directory.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: root}
}

// Put writes data to path through a temporary file, so a reader never sees
// a partial segment. Metadata is not stored.
func (s *FileStore) Put(ctx context.Context, path string, data []byte, _ string, _ map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	full := path
	if s.root != "" {
		full = filepath.Join(s.root, path)
	}

	if dir := filepath.Dir(full); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write segment: %w", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to move segment into place: %w", err)
	}
	return full, nil
}
