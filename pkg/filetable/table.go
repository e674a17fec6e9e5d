// Package filetable implements the open-file registry of the encrypted
// overlay.
//
// The table maps identifiers to live file objects and guarantees at most
// one resident object per identifier. Objects are reference counted; when
// the last reference is closed the object stays cached in a bounded
// queue so a quick reopen reuses its derived key material. Overflowing
// the queue finalizes the oldest batch through the persistence adapter.
//
// Two lock domains exist. The table mutex only guards the bookkeeping
// below and is never held while waiting for an object mutex. Object
// mutexes are taken by callers through Lock and LockPair.
package filetable

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/marmos91/cipherfs/internal/logger"
	"github.com/marmos91/cipherfs/pkg/files"
	"golang.org/x/sync/errgroup"
)

// IO is the persistence adapter the table opens, creates and finalizes
// objects through. files.IO implements it.
type IO interface {
	// Open loads an existing object (files.ErrNotFound, files.ErrTypeMismatch)
	Open(ctx context.Context, id files.ID, typ files.Type) (files.File, error)

	// Create makes a new object (files.ErrExists)
	Create(ctx context.Context, id files.ID, typ files.Type) (files.File, error)

	// Finalize flushes f and releases its resources. Called exactly once
	// per object.
	Finalize(ctx context.Context, f files.File) error
}

// RootService answers filesystem-wide space queries.
type RootService interface {
	Statfs(out *fuse.StatfsOut) error
}

// ErrorSink receives errors that cannot be returned to a caller, such as
// a failing implicit close in Handle.Done.
type ErrorSink func(id files.ID, err error)

func logErrorSink(id files.ID, err error) {
	logger.Error("Implicit close failed", logger.KeyID, id.String(), logger.KeyError, err)
}

// entry is one resident object. It sits in the closed queue exactly when
// refs is zero; closed is its position there.
type entry struct {
	file   files.File
	refs   int
	closed *list.Element
}

// Stats is a snapshot of the table.
type Stats struct {
	Resident      int
	Referenced    int
	Closed        int
	Hits          uint64
	Misses        uint64
	Creates       uint64
	Evictions     uint64
	FlushFailures uint64
}

// FileTable is the registry of resident file objects.
//
// Thread Safety:
// All methods are safe for concurrent use. Adapter calls run with the
// table mutex held, so operations on the table are serialized while the
// objects themselves may be used in parallel.
type FileTable struct {
	opts    Options
	fio     IO
	root    RootService
	metrics Metrics
	sink    ErrorSink

	mu      sync.Mutex
	entries map[files.ID]*entry
	// closedQ holds the identifiers of unreferenced entries, oldest first
	closedQ *list.List
	down    bool

	hits, misses, creates, evictions, flushFailures uint64
}

// New creates a file table. root may be nil, in which case Statfs fails
// with errors.ErrUnsupported.
func New(opts Options, fio IO, root RootService) (*FileTable, error) {
	if fio == nil {
		return nil, fmt.Errorf("%w: persistence adapter is required", ErrInvalidOptions)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.FinalizeConcurrency == 0 {
		opts.FinalizeConcurrency = DefaultConcurrency
	}

	t := &FileTable{
		opts:    opts,
		fio:     fio,
		root:    root,
		metrics: opts.Metrics,
		sink:    opts.ErrorSink,
		entries: make(map[files.ID]*entry),
		closedQ: list.New(),
	}
	if t.metrics == nil {
		t.metrics = noopMetrics{}
	}
	if t.sink == nil {
		t.sink = logErrorSink
	}
	return t, nil
}

// OpenAs returns the resident object for id, loading it through the
// adapter if needed. The caller owns one reference and must Close it.
func (t *FileTable) OpenAs(ctx context.Context, id files.ID, typ files.Type) (files.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.down {
		return nil, fmt.Errorf("open %s: %w", id, ErrClosed)
	}

	if e, ok := t.entries[id]; ok {
		if got := e.file.Type(); got != typ {
			return nil, fmt.Errorf("open %s: resident %s, requested %s: %w", id, got, typ, ErrTypeMismatch)
		}
		e.refs++
		if e.closed != nil {
			t.closedQ.Remove(e.closed)
			e.closed = nil
		}
		t.hits++
		t.metrics.RecordOpen(typ, true)
		t.reportOccupancy()
		logger.Debug("Reopened resident file", logger.KeyID, id.String(), logger.KeyRefs, e.refs)
		return e.file, nil
	}

	f, err := t.fio.Open(ctx, id, typ)
	if err != nil {
		return nil, translate("open", id, err)
	}
	if err := t.insert(ctx, id, f); err != nil {
		return nil, err
	}

	t.misses++
	t.metrics.RecordOpen(typ, false)
	t.reportOccupancy()
	return f, nil
}

// CreateAs creates a new object for id. The caller owns one reference.
func (t *FileTable) CreateAs(ctx context.Context, id files.ID, typ files.Type) (files.File, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.down {
		return nil, fmt.Errorf("create %s: %w", id, ErrClosed)
	}
	if t.opts.Flags.Has(FlagReadOnly) {
		return nil, fmt.Errorf("create %s: %w", id, ErrReadOnly)
	}
	if _, ok := t.entries[id]; ok {
		return nil, fmt.Errorf("create %s: resident: %w", id, ErrAlreadyExists)
	}

	f, err := t.fio.Create(ctx, id, typ)
	if err != nil {
		return nil, translate("create", id, err)
	}
	if err := t.insert(ctx, id, f); err != nil {
		return nil, err
	}

	t.creates++
	t.metrics.RecordCreate(typ)
	t.reportOccupancy()
	logger.Debug("Created file", logger.KeyID, id.String(), logger.KeyType, typ.String())
	return f, nil
}

// insert adds a freshly constructed object with one reference. Must be
// called with t.mu held.
func (t *FileTable) insert(ctx context.Context, id files.ID, f files.File) error {
	if f == nil || f.ID() != id {
		if f != nil {
			_ = t.fio.Finalize(context.WithoutCancel(ctx), f)
		}
		return fmt.Errorf("adapter returned wrong object for %s: %w", id, ErrInternal)
	}
	t.entries[id] = &entry{file: f, refs: 1}
	return nil
}

// Close drops one reference to f. The last reference moves the object to
// the closed queue; if the queue then exceeds its capacity the oldest
// batch is finalized and any flush failures are returned.
//
// Closing an object the table does not hold, or closing it more times than
// it was opened, fails with ErrInternal.
func (t *FileTable) Close(ctx context.Context, f files.File) error {
	if f == nil {
		return fmt.Errorf("close of nil file: %w", ErrInternal)
	}
	id := f.ID()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.down {
		return fmt.Errorf("close %s: %w", id, ErrClosed)
	}

	e, ok := t.entries[id]
	switch {
	case !ok:
		return fmt.Errorf("close %s: not tracked: %w", id, ErrInternal)
	case e.file != f:
		return fmt.Errorf("close %s: object is not the resident one: %w", id, ErrInternal)
	case e.refs == 0:
		return fmt.Errorf("close %s: already closed: %w", id, ErrInternal)
	}

	e.refs--
	if e.refs > 0 {
		logger.Debug("Closed file reference", logger.KeyID, id.String(), logger.KeyRefs, e.refs)
		return nil
	}

	e.closed = t.closedQ.PushBack(id)
	var err error
	if t.closedQ.Len() > t.opts.MaxClosed {
		err = t.eject(ctx, t.opts.EjectBatch, EvictEject)
	}
	t.reportOccupancy()
	return err
}

// GC finalizes every closed-but-cached object.
func (t *FileTable) GC(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.down {
		return fmt.Errorf("gc: %w", ErrClosed)
	}

	err := t.eject(ctx, t.closedQ.Len(), EvictGC)
	t.reportOccupancy()
	return err
}

// eject removes up to n of the oldest closed entries from the table and
// finalizes them. Must be called with t.mu held.
//
// The lock stays held during finalization so a concurrent open of an
// evicted identifier reads the flushed store, not a stale one.
func (t *FileTable) eject(ctx context.Context, n int, reason EvictReason) error {
	if n <= 0 || t.closedQ.Len() == 0 {
		return nil
	}

	batch := make([]files.File, 0, min(n, t.closedQ.Len()))
	for len(batch) < n {
		front := t.closedQ.Front()
		if front == nil {
			break
		}
		id := t.closedQ.Remove(front).(files.ID)
		e := t.entries[id]
		delete(t.entries, id)
		batch = append(batch, e.file)
	}

	err := t.finalize(ctx, batch)

	failed := 0
	var flushErr *FlushError
	if errors.As(err, &flushErr) {
		failed = len(flushErr.Failures)
	}
	t.evictions += uint64(len(batch))
	t.flushFailures += uint64(failed)
	t.metrics.RecordEviction(reason, len(batch), failed)

	logger.Debug("Evicted closed files",
		logger.KeyOp, string(reason),
		logger.KeyEvicted, len(batch),
		logger.KeyFailures, failed,
		logger.KeyResident, len(t.entries),
		logger.KeyClosed, t.closedQ.Len())
	return err
}

// finalize runs the adapter's Finalize on every object, in parallel up to
// the configured concurrency. Every object is attempted; failures are
// collected into a *FlushError.
func (t *FileTable) finalize(ctx context.Context, batch []files.File) error {
	// Dirty data belongs to the object, not to the request that happened
	// to trigger its eviction.
	ctx = context.WithoutCancel(ctx)

	errs := make([]error, len(batch))
	var g errgroup.Group
	g.SetLimit(t.opts.FinalizeConcurrency)
	for i, f := range batch {
		g.Go(func() error {
			start := time.Now()
			errs[i] = t.fio.Finalize(ctx, f)
			t.metrics.RecordFinalize(time.Since(start), errs[i])
			return nil
		})
	}
	_ = g.Wait()

	var failures []FlushFailure
	for i, err := range errs {
		if err == nil {
			continue
		}
		id := batch[i].ID()
		logger.Warn("Failed to finalize file", logger.KeyID, id.String(), logger.KeyError, err)
		failures = append(failures, FlushFailure{ID: id, Err: err})
	}
	if len(failures) > 0 {
		return &FlushError{Failures: failures}
	}
	return nil
}

// Shutdown finalizes every resident object, referenced or not, and closes
// the adapter if it implements io.Closer. Later calls fail with ErrClosed.
// Calling Shutdown again is a no-op.
//
// A referenced object is finalized while Shutdown holds its mutex. One
// that a caller holds locked at that moment is left alone and reported in
// the returned *FlushError with ErrLocked; its unflushed changes are lost.
func (t *FileTable) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.down {
		return nil
	}
	t.down = true

	batch := make([]files.File, 0, len(t.entries))
	// Closed entries first, oldest first, then the leaked ones.
	for el := t.closedQ.Front(); el != nil; el = el.Next() {
		batch = append(batch, t.entries[el.Value.(files.ID)].file)
	}
	var (
		held   []files.File
		locked []FlushFailure
	)
	for id, e := range t.entries {
		if e.refs == 0 {
			continue
		}
		if !e.file.TryLock() {
			logger.Warn("File locked at shutdown, not finalized", logger.KeyID, id.String(), logger.KeyRefs, e.refs)
			locked = append(locked, FlushFailure{ID: id, Err: fmt.Errorf("shutdown %s: %w", id, ErrLocked)})
			continue
		}
		logger.Warn("File still referenced at shutdown", logger.KeyID, id.String(), logger.KeyRefs, e.refs)
		held = append(held, e.file)
		batch = append(batch, e.file)
	}
	clear(t.entries)
	t.closedQ.Init()

	err := t.finalize(ctx, batch)
	for _, f := range held {
		f.Unlock()
	}

	var flushErr *FlushError
	if !errors.As(err, &flushErr) {
		flushErr = &FlushError{}
	}
	flushErr.Failures = append(flushErr.Failures, locked...)
	failed := len(flushErr.Failures)
	err = nil
	if failed > 0 {
		err = flushErr
	}
	t.evictions += uint64(len(batch))
	t.flushFailures += uint64(failed)
	t.metrics.RecordEviction(EvictShutdown, len(batch), failed)
	t.reportOccupancy()

	if closer, ok := t.fio.(io.Closer); ok {
		if cerr := closer.Close(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("close persistence adapter: %w", cerr))
		}
	}

	logger.Info("File table shut down", logger.KeyEvicted, len(batch), logger.KeyFailures, failed)
	return err
}

// reportOccupancy must be called with t.mu held.
func (t *FileTable) reportOccupancy() {
	t.metrics.SetOccupancy(len(t.entries), t.closedQ.Len())
}

// Stats returns a snapshot of the table counters.
func (t *FileTable) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()

	closed := t.closedQ.Len()
	return Stats{
		Resident:      len(t.entries),
		Referenced:    len(t.entries) - closed,
		Closed:        closed,
		Hits:          t.hits,
		Misses:        t.misses,
		Creates:       t.creates,
		Evictions:     t.evictions,
		FlushFailures: t.flushFailures,
	}
}

// refs returns the reference count of id and whether it is resident.
func (t *FileTable) refs(id files.ID) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[id]
	if !ok {
		return 0, false
	}
	return e.refs, true
}

// IsReadOnly reports whether the table was built with FlagReadOnly.
func (t *FileTable) IsReadOnly() bool {
	return t.opts.Flags.Has(FlagReadOnly)
}

// IsAuthEnabled reports whether header authentication is verified.
func (t *FileTable) IsAuthEnabled() bool {
	return !t.opts.Flags.Has(FlagNoAuthentication)
}

// IsTimeStored reports whether timestamps are recorded.
func (t *FileTable) IsTimeStored() bool {
	return t.opts.Flags.Has(FlagStoreTime)
}

// Statfs passes the query through to the root filesystem service.
func (t *FileTable) Statfs(out *fuse.StatfsOut) error {
	if t.root == nil {
		return fmt.Errorf("statfs: %w", errors.ErrUnsupported)
	}
	return t.root.Statfs(out)
}

// Open is OpenAs wrapped in a Handle.
func (t *FileTable) Open(ctx context.Context, id files.ID, typ files.Type) (*Handle, error) {
	f, err := t.OpenAs(ctx, id, typ)
	if err != nil {
		return nil, err
	}
	return newHandle(t, f), nil
}

// Create is CreateAs wrapped in a Handle.
func (t *FileTable) Create(ctx context.Context, id files.ID, typ files.Type) (*Handle, error) {
	f, err := t.CreateAs(ctx, id, typ)
	if err != nil {
		return nil, err
	}
	return newHandle(t, f), nil
}
