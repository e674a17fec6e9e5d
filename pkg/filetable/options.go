package filetable

import (
	"fmt"

	"github.com/marmos91/cipherfs/pkg/files"
)

// Flags are the table-wide mode bits fixed at construction.
type Flags uint32

const (
	// FlagReadOnly rejects creates and every write to file objects
	FlagReadOnly Flags = 1 << iota
	// FlagNoAuthentication skips header MAC verification on open
	FlagNoAuthentication
	// FlagStoreTime records access, modification and change times
	FlagStoreTime
)

// Has reports whether every bit of f is set.
func (fl Flags) Has(f Flags) bool {
	return fl&f == f
}

// Defaults.
const (
	DefaultVersion     = 4
	DefaultBlockSize   = 4096
	DefaultIVSize      = 12
	DefaultMaxClosed   = 101
	DefaultEjectBatch  = 8
	DefaultBlockCache  = files.DefaultCacheBlocks
	DefaultConcurrency = 4
)

// Options configure a FileTable. Start from DefaultOptions.
type Options struct {
	// Version is the on-store format version (1..4)
	Version uint32

	// Flags are the table-wide mode bits
	Flags Flags

	// BlockSize is the content block size for new files (power of two)
	BlockSize uint32

	// IVSize is the nonce size for new files in bytes
	IVSize int

	// MaxClosed is how many closed objects stay cached before eviction
	MaxClosed int

	// EjectBatch is how many of the oldest closed objects one eviction removes
	EjectBatch int

	// BlockCache is the number of clean decrypted blocks cached per file
	BlockCache int

	// FinalizeConcurrency bounds parallel finalization inside one batch
	// (zero means DefaultConcurrency)
	FinalizeConcurrency int

	// Metrics receives registry activity (nil disables)
	Metrics Metrics

	// ErrorSink receives errors of implicit closes (nil logs them)
	ErrorSink ErrorSink
}

// DefaultOptions returns the reference configuration.
func DefaultOptions() Options {
	return Options{
		Version:    DefaultVersion,
		BlockSize:  DefaultBlockSize,
		IVSize:     DefaultIVSize,
		MaxClosed:  DefaultMaxClosed,
		EjectBatch: DefaultEjectBatch,
		BlockCache: DefaultBlockCache,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if err := o.FileParams().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidOptions, err)
	}
	if o.MaxClosed < 0 {
		return fmt.Errorf("%w: max closed must be non-negative, got %d", ErrInvalidOptions, o.MaxClosed)
	}
	if o.EjectBatch < 1 {
		return fmt.Errorf("%w: eject batch must be at least 1, got %d", ErrInvalidOptions, o.EjectBatch)
	}
	if o.FinalizeConcurrency < 0 {
		return fmt.Errorf("%w: finalize concurrency must be non-negative, got %d", ErrInvalidOptions, o.FinalizeConcurrency)
	}
	return nil
}

// FileParams converts the options into file object parameters for the
// persistence adapter.
func (o Options) FileParams() files.Params {
	return files.Params{
		Version:     o.Version,
		BlockSize:   o.BlockSize,
		IVSize:      o.IVSize,
		ReadOnly:    o.Flags.Has(FlagReadOnly),
		VerifyMAC:   !o.Flags.Has(FlagNoAuthentication),
		StoreTime:   o.Flags.Has(FlagStoreTime),
		CacheBlocks: o.BlockCache,
	}
}
