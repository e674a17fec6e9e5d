package files

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/cipherfs/internal/logger"
	"github.com/marmos91/cipherfs/pkg/store"
)

// Default permission bits for new objects.
const (
	defaultFileMode    = 0o644
	defaultDirMode     = 0o755
	defaultSymlinkMode = 0o777
)

// IO is the persistence adapter between the file table and a blob store.
//
// It holds the master key for its whole lifetime and derives the per-file
// keys when an object is opened or created. Close wipes the master key.
//
// Thread Safety:
// Safe for concurrent use. File objects it returns are not; callers
// serialize access through the object's lock.
type IO struct {
	store  store.Store
	params Params

	mu     sync.RWMutex
	key    Key
	closed bool
}

// NewIO creates an adapter over s. The key is copied.
func NewIO(s store.Store, key Key, params Params) (*IO, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: store is required", ErrInvalidParams)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &IO{store: s, params: params, key: key}, nil
}

// Params returns the adapter parameters.
func (fio *IO) Params() Params {
	return fio.params
}

func isStoreNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

func (fio *IO) isClosed() bool {
	fio.mu.RLock()
	defer fio.mu.RUnlock()
	return fio.closed
}

func (fio *IO) deriveKeys(id ID) (*fileKeys, error) {
	fio.mu.RLock()
	defer fio.mu.RUnlock()
	if fio.closed {
		return nil, ErrClosed
	}
	return deriveFileKeys(&fio.key, id)
}

// Open loads the object named id and checks that it has type typ.
func (fio *IO) Open(ctx context.Context, id ID, typ Type) (File, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("open %s: unknown type %d", id, typ)
	}
	if fio.isClosed() {
		return nil, fmt.Errorf("open %s: %w", id, ErrClosed)
	}

	blob, err := fio.store.Get(ctx, metaKey(id))
	if err != nil {
		if isStoreNotFound(err) {
			return nil, fmt.Errorf("open %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("open %s: %w", id, err)
	}

	keys, err := fio.deriveKeys(id)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", id, err)
	}

	hdr, err := decodeHeader(blob, id, &keys.mac, fio.params.VerifyMAC)
	if err != nil {
		keys.wipe()
		return nil, fmt.Errorf("open %s: %w", id, err)
	}
	if hdr.Version != fio.params.Version {
		keys.wipe()
		return nil, fmt.Errorf("open %s: header version %d, expected %d: %w",
			id, hdr.Version, fio.params.Version, ErrVersionMismatch)
	}
	if Type(hdr.Type) != typ {
		keys.wipe()
		return nil, fmt.Errorf("open %s: stored %s, requested %s: %w", id, Type(hdr.Type), typ, ErrTypeMismatch)
	}

	f, err := fio.build(ctx, id, keys, *hdr, true)
	if err != nil {
		keys.wipe()
		return nil, fmt.Errorf("open %s: %w", id, err)
	}

	logger.Debug("Opened file object", logger.KeyID, id.String(), logger.KeyType, typ.String(), logger.KeySize, hdr.Size)
	return f, nil
}

// Create writes a fresh header for id and returns the new object. It
// fails with ErrExists if the header is already present.
func (fio *IO) Create(ctx context.Context, id ID, typ Type) (File, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("create %s: unknown type %d", id, typ)
	}
	if fio.isClosed() {
		return nil, fmt.Errorf("create %s: %w", id, ErrClosed)
	}
	if fio.params.ReadOnly {
		return nil, fmt.Errorf("create %s: %w", id, ErrReadOnly)
	}

	exists, err := fio.store.Exists(ctx, metaKey(id))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", id, err)
	}
	if exists {
		return nil, fmt.Errorf("create %s: %w", id, ErrExists)
	}

	keys, err := fio.deriveKeys(id)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", id, err)
	}

	hdr := header{
		Magic:     headerMagic,
		Version:   fio.params.Version,
		Type:      uint32(typ),
		BlockSize: fio.params.BlockSize,
		IVSize:    uint32(fio.params.IVSize),
		Nlink:     1,
	}
	switch typ {
	case TypeRegular:
		hdr.Mode = defaultFileMode
	case TypeDirectory:
		hdr.Mode = defaultDirMode
		hdr.Nlink = 2
	case TypeSymlink:
		hdr.Mode = defaultSymlinkMode
	}
	if fio.params.StoreTime {
		now := time.Now().UnixNano()
		hdr.HasTimes = true
		hdr.Atime, hdr.Mtime, hdr.Ctime = now, now, now
	}

	f, err := fio.build(ctx, id, keys, hdr, false)
	if err != nil {
		keys.wipe()
		return nil, fmt.Errorf("create %s: %w", id, err)
	}

	// The header is written right away so the identifier is taken even if
	// the object is never flushed.
	b := baseOf(f)
	b.metaDirty = true
	if err := b.writeHeader(ctx); err != nil {
		keys.wipe()
		return nil, fmt.Errorf("create %s: %w", id, err)
	}

	logger.Debug("Created file object", logger.KeyID, id.String(), logger.KeyType, typ.String())
	return f, nil
}

func (fio *IO) build(ctx context.Context, id ID, keys *fileKeys, hdr header, load bool) (File, error) {
	b, err := newBase(fio.store, fio.params, id, keys, hdr)
	if err != nil {
		return nil, err
	}

	switch Type(hdr.Type) {
	case TypeRegular:
		return newRegularFile(b)
	case TypeDirectory:
		d := newDirectory(b)
		if load {
			if err := d.load(ctx); err != nil {
				return nil, err
			}
		}
		return d, nil
	case TypeSymlink:
		s := newSymlink(b)
		if load {
			if err := s.load(ctx); err != nil {
				return nil, err
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown type %d", hdr.Type)
	}
}

func baseOf(f File) *base {
	switch v := f.(type) {
	case *RegularFile:
		return v.base
	case *Directory:
		return v.base
	case *Symlink:
		return v.base
	default:
		return nil
	}
}

type wiper interface {
	wipe()
}

// Finalize flushes f and wipes its key material. The object is wiped even
// when the flush fails; the flush error is returned.
func (fio *IO) Finalize(ctx context.Context, f File) error {
	flushErr := f.Flush(ctx)
	if w, ok := f.(wiper); ok {
		w.wipe()
	}
	if flushErr != nil {
		return fmt.Errorf("finalize %s: %w", f.ID(), flushErr)
	}
	return nil
}

// Close wipes the master key. Later opens and creates fail with ErrClosed.
func (fio *IO) Close() error {
	fio.mu.Lock()
	defer fio.mu.Unlock()
	if fio.closed {
		return nil
	}
	clear(fio.key[:])
	fio.closed = true
	return nil
}
