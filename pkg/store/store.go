// Package store defines the blob-store contract underneath the persistence
// adapter.
//
// A Store is a flat key/value space holding the encrypted metadata and content
// blocks of every file object. It knows nothing about encryption, file types or
// reference counting: the persistence adapter in pkg/files decides the key
// layout and the bytes, the store only keeps them.
//
// Implementations:
//   - pkg/store/memory: in-process map (tests, ephemeral mounts)
//   - pkg/store/fs: one file per key in a local directory
//   - pkg/store/badger: embedded BadgerDB
//   - pkg/store/s3: Amazon S3 or compatible object storage
package store

import (
	"context"
	"errors"
)

// Store provides persistence for opaque blobs keyed by string.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
// Concurrent Puts to the same key are last-writer-wins. The registry
// guarantees a single resident object per identifier, so the keys of one file
// object are never written concurrently in practice.
type Store interface {
	// Get returns the blob stored under key.
	//
	// Returns ErrNotFound (wrapped) if the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)

	// Put stores data under key, replacing any previous value.
	//
	// Implementations must not retain data after Put returns.
	Put(ctx context.Context, key string, data []byte) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the resources held by the store. Subsequent calls
	// return ErrClosed.
	Close() error
}

var (
	// ErrNotFound indicates the requested key does not exist.
	//
	// Implementations wrap it with the key:
	//
	//	return nil, fmt.Errorf("blob %s: %w", key, store.ErrNotFound)
	ErrNotFound = errors.New("blob not found")

	// ErrClosed indicates the store has been closed.
	ErrClosed = errors.New("store is closed")

	// ErrInvalidKey indicates the key is empty or malformed for the backend.
	ErrInvalidKey = errors.New("invalid blob key")
)
