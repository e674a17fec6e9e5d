// Package gc runs the file table's garbage collection in the background.
//
// A long-running process accumulates closed-but-cached file objects up to
// the table's capacity. The sweeper periodically finalizes them so their
// key material and cached blocks do not stay in memory indefinitely.
package gc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/cipherfs/internal/logger"
	"github.com/marmos91/cipherfs/pkg/filetable"
)

// Target is the part of the file table the sweeper drives.
type Target interface {
	GC(ctx context.Context) error
	Stats() filetable.Stats
}

// Config contains configuration for the sweeper.
type Config struct {
	// Enabled controls whether background sweeping is active
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Interval is how often to sweep (default: 1m)
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`

	// Timeout bounds a single sweep (default: 1m)
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`

	// MinClosed skips a sweep while fewer objects are closed-but-cached
	MinClosed int `mapstructure:"min_closed" yaml:"min_closed"`
}

// Result describes one sweep.
type Result struct {
	Evicted  uint64
	Failed   uint64
	Skipped  bool
	Duration time.Duration
}

// Summary returns a one-line description of the result.
func (r *Result) Summary() string {
	if r.Skipped {
		return "skipped"
	}
	return fmt.Sprintf("evicted=%d failed=%d duration=%s", r.Evicted, r.Failed, r.Duration)
}

// Sweeper calls Target.GC on an interval.
//
// Thread Safety: Safe for concurrent use.
type Sweeper struct {
	target Target
	config Config

	startOnce sync.Once
	stopOnce  sync.Once
	started   bool
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewSweeper creates a sweeper. Call Start to begin sweeping.
func NewSweeper(target Target, config Config) (*Sweeper, error) {
	if target == nil {
		return nil, fmt.Errorf("sweeper target is required")
	}
	if config.Interval < 0 || config.Timeout < 0 || config.MinClosed < 0 {
		return nil, fmt.Errorf("sweeper: interval, timeout and min_closed must be non-negative")
	}
	if config.Interval == 0 {
		config.Interval = time.Minute
	}
	if config.Timeout == 0 {
		config.Timeout = time.Minute
	}

	return &Sweeper{
		target: target,
		config: config,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start begins background sweeping. Later calls are no-ops.
func (s *Sweeper) Start() {
	if !s.config.Enabled {
		logger.Info("Background sweeping disabled")
		return
	}
	s.startOnce.Do(func() {
		s.started = true
		logger.Info("Starting sweeper", logger.KeyInterval, s.config.Interval.String())
		go s.worker()
	})
}

// Stop signals the worker and waits for an in-progress sweep to finish or
// ctx to expire. Safe to call more than once.
func (s *Sweeper) Stop(ctx context.Context) error {
	var wait bool
	s.stopOnce.Do(func() {
		close(s.stopCh)
		wait = true
	})
	if !wait {
		return nil
	}

	s.startOnce.Do(func() {})
	if !s.started {
		return nil
	}

	select {
	case <-s.doneCh:
		logger.Info("Sweeper stopped")
		return nil
	case <-ctx.Done():
		logger.Warn("Sweeper shutdown timeout")
		return ctx.Err()
	}
}

// RunOnce sweeps immediately and blocks until done.
func (s *Sweeper) RunOnce(ctx context.Context) (*Result, error) {
	before := s.target.Stats()
	if before.Closed == 0 || before.Closed < s.config.MinClosed {
		return &Result{Skipped: true}, nil
	}

	start := time.Now()
	err := s.target.GC(ctx)
	after := s.target.Stats()

	result := &Result{
		Evicted:  after.Evictions - before.Evictions,
		Failed:   after.FlushFailures - before.FlushFailures,
		Duration: time.Since(start),
	}
	if err != nil && !errors.Is(err, filetable.ErrFlushFailure) {
		return result, fmt.Errorf("sweep: %w", err)
	}
	return result, err
}

func (s *Sweeper) worker() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
			result, err := s.RunOnce(ctx)
			cancel()

			switch {
			case err != nil:
				logger.Error("Sweep failed", logger.KeyError, err, logger.KeyFailures, result.Failed)
			case !result.Skipped:
				logger.Debug("Sweep completed",
					logger.KeyEvicted, result.Evicted,
					logger.KeyDurationMs, result.Duration.Milliseconds())
			}

		case <-s.stopCh:
			return
		}
	}
}
