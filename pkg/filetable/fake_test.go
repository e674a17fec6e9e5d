package filetable

import (
	"context"
	"fmt"
	"sync"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/marmos91/cipherfs/pkg/files"
)

// fakeFile is a file object with no content.
type fakeFile struct {
	mu  sync.Mutex
	id  files.ID
	typ files.Type

	// onLock observes lock acquisition order.
	onLock func(files.ID)
}

func (f *fakeFile) ID() files.ID     { return f.id }
func (f *fakeFile) Type() files.Type { return f.typ }

func (f *fakeFile) Lock() {
	f.mu.Lock()
	if f.onLock != nil {
		f.onLock(f.id)
	}
}

func (f *fakeFile) TryLock() bool               { return f.mu.TryLock() }
func (f *fakeFile) Unlock()                     { f.mu.Unlock() }
func (f *fakeFile) Flush(context.Context) error { return nil }

// fakeIO stands in for the persistence adapter. The stored map is the
// backing store; finalized counts Finalize calls per identifier and order
// records them in sequence.
type fakeIO struct {
	mu        sync.Mutex
	stored    map[files.ID]files.Type
	opens     int
	finalized map[files.ID]int
	order     []files.ID
	failOn    map[files.ID]error
	closed    int
}

func newFakeIO() *fakeIO {
	return &fakeIO{
		stored:    make(map[files.ID]files.Type),
		finalized: make(map[files.ID]int),
		failOn:    make(map[files.ID]error),
	}
}

func (a *fakeIO) Open(_ context.Context, id files.ID, typ files.Type) (files.File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	stored, ok := a.stored[id]
	if !ok {
		return nil, fmt.Errorf("fake open %s: %w", id, files.ErrNotFound)
	}
	if stored != typ {
		return nil, fmt.Errorf("fake open %s: %w", id, files.ErrTypeMismatch)
	}
	a.opens++
	return &fakeFile{id: id, typ: typ}, nil
}

func (a *fakeIO) Create(_ context.Context, id files.ID, typ files.Type) (files.File, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.stored[id]; ok {
		return nil, fmt.Errorf("fake create %s: %w", id, files.ErrExists)
	}
	a.stored[id] = typ
	return &fakeFile{id: id, typ: typ}, nil
}

func (a *fakeIO) Finalize(_ context.Context, f files.File) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalized[f.ID()]++
	a.order = append(a.order, f.ID())
	return a.failOn[f.ID()]
}

func (a *fakeIO) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed++
	return nil
}

func (a *fakeIO) finalizeCount(id files.ID) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finalized[id]
}

func (a *fakeIO) totalFinalized() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.order)
}

type fakeRoot struct {
	blocks uint64
}

func (r *fakeRoot) Statfs(out *fuse.StatfsOut) error {
	out.Blocks = r.blocks
	out.Bsize = 4096
	return nil
}

func idN(n int) files.ID {
	var id files.ID
	id[0] = byte(n >> 8)
	id[1] = byte(n)
	return id
}
