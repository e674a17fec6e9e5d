package filetable

import (
	"fmt"

	"github.com/marmos91/cipherfs/internal/logger"
	"github.com/marmos91/cipherfs/pkg/files"
)

// LockGuard holds the mutex of one file object.
type LockGuard struct {
	file files.File
}

// Lock acquires the object mutex of the file held by h. The guard must be
// unlocked before h is closed.
func Lock(h *Handle) *LockGuard {
	f := h.File()
	if f == nil {
		panic("filetable: Lock of empty handle")
	}
	f.Lock()
	return &LockGuard{file: f}
}

// Unlock releases the mutex. Further calls are no-ops.
func (g *LockGuard) Unlock() {
	if g.file == nil {
		return
	}
	g.file.Unlock()
	g.file = nil
}

// DoubleLockGuard holds the mutexes of two file objects.
type DoubleLockGuard struct {
	first, second files.File
}

// LockPair acquires the mutexes of the files held by a and b in ascending
// identifier order, whatever the argument order, so two goroutines
// locking the same pair can not deadlock. Passing the same object twice
// locks it once. Two distinct objects with the same identifier panic.
//
// This is the only sanctioned way to hold two object mutexes at once.
func LockPair(a, b *Handle) *DoubleLockGuard {
	fa, fb := a.File(), b.File()
	if fa == nil || fb == nil {
		panic("filetable: LockPair of empty handle")
	}

	if fa == fb {
		fa.Lock()
		return &DoubleLockGuard{first: fa}
	}

	order := fa.ID().Compare(fb.ID())
	if order == 0 {
		// One of them is stale: at most one object per identifier is
		// resident, so the pair has no defined lock order.
		panic(fmt.Sprintf("filetable: LockPair of distinct objects with identifier %s", fa.ID()))
	}
	if order > 0 {
		fa, fb = fb, fa
	}
	fa.Lock()
	fb.Lock()
	logger.Debug("Locked file pair", logger.KeyOldID, fa.ID().String(), logger.KeyNewID, fb.ID().String())
	return &DoubleLockGuard{first: fa, second: fb}
}

// Unlock releases both mutexes in reverse acquisition order. Further
// calls are no-ops.
func (g *DoubleLockGuard) Unlock() {
	if g.second != nil {
		g.second.Unlock()
		g.second = nil
	}
	if g.first != nil {
		g.first.Unlock()
		g.first = nil
	}
}
