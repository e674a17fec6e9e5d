package files

import (
	"context"
	"fmt"
	"io"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
)

// RegularFile is a byte-addressable encrypted file.
//
// Content is split into fixed-size blocks that are encrypted on their
// own. Decrypted clean blocks are cached in a small LRU; modified blocks
// stay in memory until Flush. Blocks that were never written read as
// zeros.
type RegularFile struct {
	*base

	blockSize uint64
	cache     *lru.Cache[uint64, []byte]
	dirty     map[uint64][]byte
	// dropped holds blocks cut off by Truncate that still exist in the
	// store until the next Flush.
	dropped map[uint64]struct{}
}

func newRegularFile(b *base) (*RegularFile, error) {
	f := &RegularFile{
		base:      b,
		blockSize: uint64(b.hdr.BlockSize),
		dirty:     make(map[uint64][]byte),
		dropped:   make(map[uint64]struct{}),
	}
	if n := b.params.CacheBlocks; n > 0 {
		cache, err := lru.New[uint64, []byte](n)
		if err != nil {
			return nil, fmt.Errorf("failed to create block cache: %w", err)
		}
		f.cache = cache
	}
	return f, nil
}

// Size returns the logical size in bytes.
func (f *RegularFile) Size() int64 {
	return int64(f.hdr.Size)
}

// block returns the plaintext of block n, looking at dirty blocks, the
// cache and the store in that order. The returned slice must not be
// modified unless it came from the dirty map.
func (f *RegularFile) block(ctx context.Context, n uint64) ([]byte, error) {
	if data, ok := f.dirty[n]; ok {
		return data, nil
	}
	if _, ok := f.dropped[n]; ok {
		return nil, nil
	}
	if f.cache != nil {
		if data, ok := f.cache.Get(n); ok {
			return data, nil
		}
	}
	data, err := f.readBlock(ctx, n)
	if err != nil {
		return nil, err
	}
	if f.cache != nil {
		f.cache.Add(n, data)
	}
	return data, nil
}

// dirtyBlock returns a writable copy of block n registered as dirty.
func (f *RegularFile) dirtyBlock(ctx context.Context, n uint64) ([]byte, error) {
	if data, ok := f.dirty[n]; ok {
		return data, nil
	}
	data, err := f.block(ctx, n)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, len(data), f.blockSize)
	copy(buf, data)
	f.dirty[n] = buf
	delete(f.dropped, n)
	if f.cache != nil {
		f.cache.Remove(n)
	}
	return buf, nil
}

// ReadAt reads len(p) bytes starting at off. It returns io.EOF when
// fewer bytes are available.
func (f *RegularFile) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if f.wiped {
		return 0, fmt.Errorf("%s: %w", f.id, ErrClosed)
	}
	if off < 0 {
		return 0, fmt.Errorf("read %s: negative offset %d", f.id, off)
	}
	size := f.hdr.Size
	if uint64(off) >= size {
		return 0, io.EOF
	}

	want := uint64(len(p))
	if remain := size - uint64(off); want > remain {
		want = remain
	}

	var done uint64
	for done < want {
		pos := uint64(off) + done
		n, inBlock := pos/f.blockSize, pos%f.blockSize
		chunk := min(f.blockSize-inBlock, want-done)

		data, err := f.block(ctx, n)
		if err != nil {
			return int(done), err
		}

		dst := p[done : done+chunk]
		copied := 0
		if inBlock < uint64(len(data)) {
			copied = copy(dst, data[inBlock:])
		}
		clear(dst[copied:])
		done += chunk
	}

	if done < uint64(len(p)) {
		return int(done), io.EOF
	}
	return int(done), nil
}

// WriteAt writes p at off, growing the file as needed.
func (f *RegularFile) WriteAt(ctx context.Context, p []byte, off int64) (int, error) {
	if err := f.checkWritable(); err != nil {
		return 0, err
	}
	if off < 0 {
		return 0, fmt.Errorf("write %s: negative offset %d", f.id, off)
	}

	var done uint64
	total := uint64(len(p))
	for done < total {
		pos := uint64(off) + done
		n, inBlock := pos/f.blockSize, pos%f.blockSize
		chunk := min(f.blockSize-inBlock, total-done)

		buf, err := f.dirtyBlock(ctx, n)
		if err != nil {
			return int(done), err
		}
		if end := inBlock + chunk; uint64(len(buf)) < end {
			prev := len(buf)
			buf = buf[:end]
			clear(buf[prev:])
		}
		copy(buf[inBlock:], p[done:done+chunk])
		f.dirty[n] = buf
		done += chunk
	}

	if end := uint64(off) + total; end > f.hdr.Size {
		f.hdr.Size = end
	}
	if total > 0 {
		f.touchModify()
	}
	return int(done), nil
}

// Truncate changes the size of the file. Growing leaves a sparse tail
// that reads as zeros.
func (f *RegularFile) Truncate(ctx context.Context, size int64) error {
	if err := f.checkWritable(); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("truncate %s: negative size %d", f.id, size)
	}

	newSize := uint64(size)
	oldSize := f.hdr.Size
	if newSize < oldSize {
		keep := (newSize + f.blockSize - 1) / f.blockSize
		last := (oldSize + f.blockSize - 1) / f.blockSize
		for n := keep; n < last; n++ {
			delete(f.dirty, n)
			if f.cache != nil {
				f.cache.Remove(n)
			}
			f.dropped[n] = struct{}{}
		}

		if tail := newSize % f.blockSize; tail != 0 {
			buf, err := f.dirtyBlock(ctx, keep-1)
			if err != nil {
				return err
			}
			if uint64(len(buf)) > tail {
				f.dirty[keep-1] = buf[:tail]
			}
		}
	}

	if newSize != oldSize {
		f.hdr.Size = newSize
		f.touchModify()
	}
	return nil
}

// Flush writes dirty blocks, removes truncated blocks and writes the
// header. On error the remaining dirty state is kept for a retry.
func (f *RegularFile) Flush(ctx context.Context) error {
	if f.wiped {
		return nil
	}

	blocks := make([]uint64, 0, len(f.dirty))
	for n := range f.dirty {
		blocks = append(blocks, n)
	}
	sort.Slice(blocks, func(i, j int) bool { return blocks[i] < blocks[j] })

	for _, n := range blocks {
		data := f.dirty[n]
		if err := f.writeBlock(ctx, n, data); err != nil {
			return err
		}
		delete(f.dirty, n)
		if f.cache != nil {
			f.cache.Add(n, data)
		}
	}

	for n := range f.dropped {
		if err := f.store.Delete(ctx, f.blockKey(n)); err != nil {
			return fmt.Errorf("delete block %d of %s: %w", n, f.id, err)
		}
		delete(f.dropped, n)
	}

	return f.writeHeader(ctx)
}

// IsDirty reports whether the file has unflushed changes.
func (f *RegularFile) IsDirty() bool {
	return len(f.dirty) > 0 || len(f.dropped) > 0 || f.metaDirty
}

func (f *RegularFile) wipe() {
	for n, data := range f.dirty {
		clear(data)
		delete(f.dirty, n)
	}
	if f.cache != nil {
		for _, n := range f.cache.Keys() {
			if data, ok := f.cache.Peek(n); ok {
				clear(data)
			}
		}
		f.cache.Purge()
	}
	f.base.wipe()
}
