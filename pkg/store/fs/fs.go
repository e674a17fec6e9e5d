// Package fs implements a blob store on the local filesystem.
package fs

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/marmos91/cipherfs/pkg/store"
)

// FSStore stores each blob in its own file below a base directory.
//
// Keys are hex-encoded to produce filesystem-safe names. Writes go to a
// temporary file in the same directory and are renamed into place, so a
// reader never observes a partially written blob.
//
// Thread Safety:
// Safe for concurrent use. The closed flag is the only shared state; the
// filesystem serializes the rest.
type FSStore struct {
	basePath string
	syncData bool

	mu     sync.RWMutex
	closed bool
}

// FSStoreConfig configures a filesystem store.
type FSStoreConfig struct {
	// Path is the directory holding the blobs (created if missing)
	Path string `mapstructure:"path"`

	// Sync forces an fsync of every blob before it is renamed into place
	Sync bool `mapstructure:"sync"`
}

// NewFSStore creates a filesystem store rooted at cfg.Path.
//
// The base directory is created with permissions 0700 since it holds
// encrypted file material.
func NewFSStore(ctx context.Context, cfg FSStoreConfig) (*FSStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("filesystem store: path is required")
	}

	if err := os.MkdirAll(cfg.Path, 0700); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &FSStore{
		basePath: cfg.Path,
		syncData: cfg.Sync,
	}, nil
}

// Path returns the base directory.
func (s *FSStore) Path() string {
	return s.basePath
}

func (s *FSStore) blobPath(key string) string {
	return filepath.Join(s.basePath, hex.EncodeToString([]byte(key)))
}

func (s *FSStore) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrClosed
	}
	return nil
}

// Get implements store.Store.
func (s *FSStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.blobPath(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %s: %w", key, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read blob %s: %w", key, err)
	}
	return data, nil
}

// Put implements store.Store.
func (s *FSStore) Put(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return store.ErrInvalidKey
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.basePath, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary blob: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write blob %s: %w", key, err)
	}

	if s.syncData {
		if err := tmp.Sync(); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
			return fmt.Errorf("failed to sync blob %s: %w", key, err)
		}
	}

	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close blob %s: %w", key, err)
	}

	if err := os.Rename(tmpName, s.blobPath(key)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to commit blob %s: %w", key, err)
	}

	return nil
}

// Exists implements store.Store.
func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := s.checkOpen(); err != nil {
		return false, err
	}

	_, err := os.Stat(s.blobPath(key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("failed to stat blob %s: %w", key, err)
}

// Delete implements store.Store.
func (s *FSStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	err := os.Remove(s.blobPath(key))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete blob %s: %w", key, err)
	}
	return nil
}

// Close implements store.Store. Blobs on disk are kept.
func (s *FSStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return store.ErrClosed
	}
	s.closed = true
	return nil
}
