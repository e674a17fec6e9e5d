package files

import "errors"

// Standard file object errors.
//
// Callers should use errors.Is() to check for these conditions, since the
// returned errors carry the identifier and operation as context.
var (
	// ErrNotFound indicates no backing store exists for the identifier
	ErrNotFound = errors.New("file not found")

	// ErrExists indicates a backing store (or directory entry) already exists
	ErrExists = errors.New("file already exists")

	// ErrTypeMismatch indicates the stored type differs from the requested one
	ErrTypeMismatch = errors.New("file type mismatch")

	// ErrReadOnly indicates a write was attempted in read-only mode
	ErrReadOnly = errors.New("read-only file system")

	// ErrCorrupted indicates a header or block failed authentication or decoding
	ErrCorrupted = errors.New("file corrupted")

	// ErrVersionMismatch indicates a header written with another format version
	ErrVersionMismatch = errors.New("file format version mismatch")

	// ErrClosed indicates the adapter or file object was already finalized
	ErrClosed = errors.New("file closed")

	// ErrInvalidParams indicates invalid adapter parameters
	ErrInvalidParams = errors.New("invalid file parameters")
)
