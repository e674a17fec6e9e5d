// Package files implements the encrypted file objects held by the file
// table: regular files, directories and symlinks, plus the persistence
// adapter that opens, creates and finalizes them over a blob store.
package files

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// IDSize is the length of a file identifier in bytes.
const IDSize = 32

// KeySize is the length of the master key in bytes.
const KeySize = 32

// ID names the encrypted representation of one logical file.
//
// IDs are comparable and can be used directly as map keys. The byte order
// defined by Compare is the process-wide lock order for file objects.
type ID [IDSize]byte

// ParseID decodes a hex-encoded identifier.
func ParseID(s string) (ID, error) {
	var id ID
	raw, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid file id %q: %w", s, err)
	}
	if len(raw) != IDSize {
		return id, fmt.Errorf("invalid file id %q: want %d bytes, got %d", s, IDSize, len(raw))
	}
	copy(id[:], raw)
	return id, nil
}

// String returns the lowercase hex encoding of the identifier.
func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// Compare orders identifiers lexicographically by their bytes.
func (id ID) Compare(other ID) int {
	return bytes.Compare(id[:], other[:])
}

// IsZero reports whether every byte of the identifier is zero.
func (id ID) IsZero() bool {
	return id == ID{}
}

// Key is the master key. It is never logged.
type Key [KeySize]byte

// String hides the key material from fmt and slog.
func (Key) String() string {
	return "files.Key(REDACTED)"
}

// Type tags the variant of a file object.
type Type uint32

const (
	// TypeRegular holds byte content split into encrypted blocks.
	TypeRegular Type = iota + 1
	// TypeDirectory holds a name to identifier map.
	TypeDirectory
	// TypeSymlink holds a link target.
	TypeSymlink
)

// String returns a human-readable name for the type.
func (t Type) String() string {
	switch t {
	case TypeRegular:
		return "regular"
	case TypeDirectory:
		return "directory"
	case TypeSymlink:
		return "symlink"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

// Valid reports whether t is one of the known file types.
func (t Type) Valid() bool {
	return t >= TypeRegular && t <= TypeSymlink
}

// ParseType parses the names produced by Type.String.
func ParseType(s string) (Type, error) {
	switch s {
	case "regular", "file":
		return TypeRegular, nil
	case "directory", "dir":
		return TypeDirectory, nil
	case "symlink", "link":
		return TypeSymlink, nil
	default:
		return 0, fmt.Errorf("unknown file type %q", s)
	}
}
