package filetable

import (
	"time"

	"github.com/marmos91/cipherfs/pkg/files"
)

// EvictReason says why objects were finalized.
type EvictReason string

const (
	EvictEject    EvictReason = "eject"
	EvictGC       EvictReason = "gc"
	EvictShutdown EvictReason = "shutdown"
)

// Metrics observes registry activity. Implementations must be safe for
// concurrent use and must not call back into the table.
type Metrics interface {
	// RecordOpen is called for every successful open; cached reports
	// whether the object was already resident
	RecordOpen(typ files.Type, cached bool)

	// RecordCreate is called for every successful create
	RecordCreate(typ files.Type)

	// RecordEviction is called once per batch
	RecordEviction(reason EvictReason, evicted, failed int)

	// RecordFinalize is called once per finalized object
	RecordFinalize(d time.Duration, err error)

	// SetOccupancy reports resident and closed-but-cached counts
	SetOccupancy(resident, closed int)
}

type noopMetrics struct{}

func (noopMetrics) RecordOpen(files.Type, bool)          {}
func (noopMetrics) RecordCreate(files.Type)              {}
func (noopMetrics) RecordEviction(EvictReason, int, int) {}
func (noopMetrics) RecordFinalize(time.Duration, error)  {}
func (noopMetrics) SetOccupancy(int, int)                {}
