package files

import (
	"fmt"
	"math/bits"
)

// Format limits.
const (
	MinVersion   = 1
	MaxVersion   = 4
	MinBlockSize = 512
	MaxBlockSize = 1 << 20
	MinIVSize    = 12
	MaxIVSize    = 32

	// DefaultCacheBlocks is the number of clean decrypted blocks kept per
	// regular file.
	DefaultCacheBlocks = 16
)

// Params are the table-wide settings the adapter applies to every file.
//
// BlockSize and IVSize only apply to newly created files; existing files
// keep the values recorded in their header.
type Params struct {
	Version     uint32
	BlockSize   uint32
	IVSize      int
	ReadOnly    bool
	VerifyMAC   bool
	StoreTime   bool
	CacheBlocks int
}

// Validate checks Params against the format limits.
func (p Params) Validate() error {
	if p.Version < MinVersion || p.Version > MaxVersion {
		return fmt.Errorf("%w: version %d not in [%d, %d]", ErrInvalidParams, p.Version, MinVersion, MaxVersion)
	}
	if p.BlockSize < MinBlockSize || p.BlockSize > MaxBlockSize || bits.OnesCount32(p.BlockSize) != 1 {
		return fmt.Errorf("%w: block size %d must be a power of two in [%d, %d]", ErrInvalidParams, p.BlockSize, MinBlockSize, MaxBlockSize)
	}
	if p.IVSize < MinIVSize || p.IVSize > MaxIVSize {
		return fmt.Errorf("%w: iv size %d not in [%d, %d]", ErrInvalidParams, p.IVSize, MinIVSize, MaxIVSize)
	}
	if p.CacheBlocks < 0 {
		return fmt.Errorf("%w: cache blocks must be non-negative", ErrInvalidParams)
	}
	return nil
}
