package filetable

import (
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/cipherfs/pkg/files"
)

// Standard file table errors.
//
// Every error returned by the table wraps one of these, so callers should
// test with errors.Is(). The adapter's original cause stays reachable
// through the same chain.
var (
	// ErrNotFound indicates an open of an identifier with no backing store
	ErrNotFound = errors.New("file not found")

	// ErrAlreadyExists indicates a create over a resident or stored identifier
	ErrAlreadyExists = errors.New("file already exists")

	// ErrTypeMismatch indicates an open with a type other than the stored one
	ErrTypeMismatch = errors.New("file type mismatch")

	// ErrInternal indicates a caller contract violation, such as closing an
	// object the table does not track or closing it twice
	ErrInternal = errors.New("file table internal error")

	// ErrFlushFailure indicates finalization failed for at least one object
	ErrFlushFailure = errors.New("flush failure")

	// ErrReadOnly indicates a create on a read-only table
	ErrReadOnly = errors.New("read-only file table")

	// ErrClosed indicates the table was shut down
	ErrClosed = errors.New("file table is shut down")

	// ErrLocked indicates an object was held locked by a caller at shutdown
	ErrLocked = errors.New("file locked at shutdown")

	// ErrInvalidOptions indicates construction options failed validation
	ErrInvalidOptions = errors.New("invalid file table options")
)

// FlushFailure records one object whose finalization failed.
type FlushFailure struct {
	ID  files.ID
	Err error
}

// FlushError aggregates every finalization failure of one eviction batch,
// GC pass or shutdown. It matches ErrFlushFailure and unwraps to each
// individual cause.
type FlushError struct {
	Failures []FlushFailure
}

func (e *FlushError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d object(s)", ErrFlushFailure, len(e.Failures))
	for _, f := range e.Failures {
		fmt.Fprintf(&b, "; %s: %v", f.ID, f.Err)
	}
	return b.String()
}

// Is reports whether target is ErrFlushFailure.
func (e *FlushError) Is(target error) bool {
	return target == ErrFlushFailure
}

// Unwrap returns the individual failure causes.
func (e *FlushError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// IDs returns the identifiers that failed to finalize.
func (e *FlushError) IDs() []files.ID {
	ids := make([]files.ID, len(e.Failures))
	for i, f := range e.Failures {
		ids[i] = f.ID
	}
	return ids
}

// translate maps adapter errors onto the table's sentinels, keeping the
// original error in the chain.
func translate(op string, id files.ID, err error) error {
	switch {
	case errors.Is(err, files.ErrNotFound):
		return fmt.Errorf("%s %s: %w: %w", op, id, ErrNotFound, err)
	case errors.Is(err, files.ErrExists):
		return fmt.Errorf("%s %s: %w: %w", op, id, ErrAlreadyExists, err)
	case errors.Is(err, files.ErrTypeMismatch):
		return fmt.Errorf("%s %s: %w: %w", op, id, ErrTypeMismatch, err)
	case errors.Is(err, files.ErrReadOnly):
		return fmt.Errorf("%s %s: %w: %w", op, id, ErrReadOnly, err)
	default:
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
}
