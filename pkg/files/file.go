package files

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/cipherfs/pkg/store"
)

// File is the contract every file object fulfills toward the file table.
//
// The table only uses ID, Type and the mutex; Flush is driven by the
// persistence adapter at finalization. Content methods live on the
// concrete types and must be called with the object locked.
type File interface {
	ID() ID
	Type() Type
	Lock()
	TryLock() bool
	Unlock()
	Flush(ctx context.Context) error
}

// Attr is the stat-style view of a file object.
type Attr struct {
	Type  Type
	Size  uint64
	Mode  uint32
	Nlink uint32
	UID   uint32
	GID   uint32
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// base holds the state shared by every file variant: identity, header,
// keys and the handle to the blob store.
type base struct {
	mu sync.Mutex

	id     ID
	store  store.Store
	params Params
	keys   *fileKeys
	cipher *blockCipher

	hdr       header
	metaDirty bool
	wiped     bool
}

func newBase(s store.Store, params Params, id ID, keys *fileKeys, hdr header) (*base, error) {
	bc, err := newBlockCipher(&keys.data, id, int(hdr.IVSize))
	if err != nil {
		return nil, err
	}
	return &base{
		id:     id,
		store:  s,
		params: params,
		keys:   keys,
		cipher: bc,
		hdr:    hdr,
	}, nil
}

// ID returns the file identifier.
func (b *base) ID() ID { return b.id }

// Type returns the stored type tag.
func (b *base) Type() Type { return Type(b.hdr.Type) }

// Lock acquires the object mutex.
func (b *base) Lock() { b.mu.Lock() }

// TryLock acquires the object mutex if it is free.
func (b *base) TryLock() bool { return b.mu.TryLock() }

// Unlock releases the object mutex.
func (b *base) Unlock() { b.mu.Unlock() }

// Stat returns the current attributes, including unflushed changes.
func (b *base) Stat() Attr {
	a := Attr{
		Type:  Type(b.hdr.Type),
		Size:  b.hdr.Size,
		Mode:  b.hdr.Mode,
		Nlink: b.hdr.Nlink,
		UID:   b.hdr.UID,
		GID:   b.hdr.GID,
	}
	if b.hdr.HasTimes {
		a.Atime = fromUnixNano(b.hdr.Atime)
		a.Mtime = fromUnixNano(b.hdr.Mtime)
		a.Ctime = fromUnixNano(b.hdr.Ctime)
	}
	return a
}

// SetMode changes the permission bits.
func (b *base) SetMode(mode uint32) error {
	if err := b.checkWritable(); err != nil {
		return err
	}
	b.hdr.Mode = mode
	b.touchChange()
	return nil
}

// SetOwner changes the owning user and group.
func (b *base) SetOwner(uid, gid uint32) error {
	if err := b.checkWritable(); err != nil {
		return err
	}
	b.hdr.UID = uid
	b.hdr.GID = gid
	b.touchChange()
	return nil
}

// SetNlink sets the hard link count.
func (b *base) SetNlink(n uint32) error {
	if err := b.checkWritable(); err != nil {
		return err
	}
	b.hdr.Nlink = n
	b.touchChange()
	return nil
}

// SetTimes sets access and modification times. It is a no-op when the
// table does not store timestamps.
func (b *base) SetTimes(atime, mtime time.Time) error {
	if err := b.checkWritable(); err != nil {
		return err
	}
	if !b.params.StoreTime {
		return nil
	}
	b.hdr.HasTimes = true
	b.hdr.Atime = toUnixNano(atime)
	b.hdr.Mtime = toUnixNano(mtime)
	b.hdr.Ctime = time.Now().UnixNano()
	b.metaDirty = true
	return nil
}

func (b *base) checkWritable() error {
	if b.wiped {
		return fmt.Errorf("%s: %w", b.id, ErrClosed)
	}
	if b.params.ReadOnly {
		return fmt.Errorf("%s: %w", b.id, ErrReadOnly)
	}
	return nil
}

// touchChange marks metadata dirty and bumps ctime.
func (b *base) touchChange() {
	b.metaDirty = true
	if b.params.StoreTime {
		b.hdr.HasTimes = true
		b.hdr.Ctime = time.Now().UnixNano()
	}
}

// touchModify marks metadata dirty and bumps mtime and ctime.
func (b *base) touchModify() {
	b.metaDirty = true
	if b.params.StoreTime {
		now := time.Now().UnixNano()
		b.hdr.HasTimes = true
		b.hdr.Mtime = now
		b.hdr.Ctime = now
	}
}

func (b *base) metaKey() string {
	return metaKey(b.id)
}

func (b *base) blockKey(n uint64) string {
	return blockKey(b.id, n)
}

// writeHeader persists the header if it changed since the last write.
func (b *base) writeHeader(ctx context.Context) error {
	if !b.metaDirty {
		return nil
	}
	blob, err := encodeHeader(&b.hdr, b.id, &b.keys.mac)
	if err != nil {
		return err
	}
	if err := b.store.Put(ctx, b.metaKey(), blob); err != nil {
		return fmt.Errorf("write header of %s: %w", b.id, err)
	}
	b.metaDirty = false
	return nil
}

// readBlock loads and decrypts block n. A missing block reads as nil.
func (b *base) readBlock(ctx context.Context, n uint64) ([]byte, error) {
	stored, err := b.store.Get(ctx, b.blockKey(n))
	if err != nil {
		if isStoreNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read block %d of %s: %w", n, b.id, err)
	}
	plaintext, err := b.cipher.open(n, stored)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.id, err)
	}
	return plaintext, nil
}

// writeBlock encrypts and stores block n.
func (b *base) writeBlock(ctx context.Context, n uint64, plaintext []byte) error {
	sealed, err := b.cipher.seal(n, plaintext)
	if err != nil {
		return err
	}
	if err := b.store.Put(ctx, b.blockKey(n), sealed); err != nil {
		return fmt.Errorf("write block %d of %s: %w", n, b.id, err)
	}
	return nil
}

// wipe zeroes key material. The object is unusable afterwards.
func (b *base) wipe() {
	if b.wiped {
		return
	}
	b.keys.wipe()
	b.cipher = nil
	b.wiped = true
}

func metaKey(id ID) string {
	return id.String() + ".m"
}

func blockKey(id ID, n uint64) string {
	return id.String() + "." + strconv.FormatUint(n, 10)
}
