//go:build !linux

package rootfs

import (
	"fmt"

	"github.com/hanwen/go-fuse/v2/fuse"
)

func statfs(path string, _ *fuse.StatfsOut) error {
	return fmt.Errorf("statfs %s: %w", path, ErrNotSupported)
}
