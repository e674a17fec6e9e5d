package files

import (
	"context"
	"fmt"
)

// Symlink stores a link target in block 0.
type Symlink struct {
	*base

	target       string
	contentDirty bool
}

func newSymlink(b *base) *Symlink {
	return &Symlink{base: b}
}

func (s *Symlink) load(ctx context.Context) error {
	data, err := s.readBlock(ctx, 0)
	if err != nil {
		return err
	}
	s.target = string(data)
	return nil
}

// Target returns the link target.
func (s *Symlink) Target() string {
	return s.target
}

// SetTarget replaces the link target.
func (s *Symlink) SetTarget(target string) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if target == "" {
		return fmt.Errorf("symlink %s: empty target", s.id)
	}
	s.target = target
	s.hdr.Size = uint64(len(target))
	s.contentDirty = true
	s.touchModify()
	return nil
}

// Flush writes the target and the header.
func (s *Symlink) Flush(ctx context.Context) error {
	if s.wiped {
		return nil
	}
	if s.contentDirty {
		if err := s.writeBlock(ctx, 0, []byte(s.target)); err != nil {
			return err
		}
		s.contentDirty = false
	}
	return s.writeHeader(ctx)
}
