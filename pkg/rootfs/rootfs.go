// Package rootfs answers filesystem-wide space queries for the directory
// that holds the encrypted store.
package rootfs

import (
	"errors"
	"fmt"
	"os"

	"github.com/hanwen/go-fuse/v2/fuse"
)

// ErrNotSupported is returned by Statfs on platforms without statfs(2).
var ErrNotSupported = errors.New("statfs not supported on this platform")

// Service reports space and inode statistics of the filesystem under Path.
// It implements filetable.RootService.
type Service struct {
	Path string
}

// New returns a Service for path, which must be an existing directory.
func New(path string) (*Service, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("root filesystem: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root filesystem: %s is not a directory", path)
	}
	return &Service{Path: path}, nil
}

// Statfs fills out with the statistics of the underlying filesystem.
func (s *Service) Statfs(out *fuse.StatfsOut) error {
	if out == nil {
		return fmt.Errorf("statfs %s: nil output", s.Path)
	}
	return statfs(s.Path, out)
}
