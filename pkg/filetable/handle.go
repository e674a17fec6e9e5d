package filetable

import (
	"context"

	"github.com/marmos91/cipherfs/pkg/files"
)

// noCopy makes go vet's copylocks check flag copies of a Handle.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Handle owns one reference to a file object and the obligation to close
// it through the table it came from.
//
// Handles are used through pointers and must not be copied. The usual
// pattern is
//
//	h, err := table.Open(ctx, id, files.TypeRegular)
//	if err != nil {
//	    return err
//	}
//	defer h.Done()
//
// Done reports close errors to the table's ErrorSink; callers that need
// the error use Close instead. An empty handle closes as a no-op, so a
// handle can never close its object twice.
type Handle struct {
	_ noCopy

	table *FileTable
	file  files.File
}

func newHandle(t *FileTable, f files.File) *Handle {
	return &Handle{table: t, file: f}
}

// NewHandle wraps a reference obtained from OpenAs or CreateAs.
func NewHandle(t *FileTable, f files.File) *Handle {
	return newHandle(t, f)
}

// File returns the held object, or nil for an empty handle.
func (h *Handle) File() files.File {
	if h == nil {
		return nil
	}
	return h.file
}

// Valid reports whether the handle holds an object.
func (h *Handle) Valid() bool {
	return h != nil && h.file != nil
}

// ID returns the identifier of the held object.
func (h *Handle) ID() files.ID {
	if !h.Valid() {
		return files.ID{}
	}
	return h.file.ID()
}

// As returns the held object as a concrete file type.
func As[T files.File](h *Handle) (T, bool) {
	v, ok := h.File().(T)
	return v, ok
}

// Release gives up the close obligation and returns the object. The
// caller must eventually pass it to FileTable.Close.
func (h *Handle) Release() files.File {
	f := h.file
	h.file = nil
	return f
}

// Reset closes the held object, if any, and takes ownership of f, which
// must be a reference from the same table. Ownership of f transfers even
// when closing the old object fails.
func (h *Handle) Reset(ctx context.Context, f files.File) error {
	old := h.file
	h.file = f
	if old == nil {
		return nil
	}
	return h.table.Close(ctx, old)
}

// Move transfers the object to a new handle and leaves h empty.
func (h *Handle) Move() *Handle {
	moved := &Handle{table: h.table, file: h.file}
	h.file = nil
	return moved
}

// Swap exchanges the contents of two handles.
func (h *Handle) Swap(other *Handle) {
	h.table, other.table = other.table, h.table
	h.file, other.file = other.file, h.file
}

// Close closes the held object and empties the handle.
func (h *Handle) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	return h.Reset(ctx, nil)
}

// Done is Close for defer: errors go to the table's ErrorSink.
func (h *Handle) Done() {
	if !h.Valid() {
		return
	}
	id := h.file.ID()
	if err := h.Close(context.Background()); err != nil {
		h.table.sink(id, err)
	}
}
