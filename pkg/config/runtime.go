package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/cipherfs/internal/logger"
	"github.com/marmos91/cipherfs/pkg/files"
	"github.com/marmos91/cipherfs/pkg/filetable"
	"github.com/marmos91/cipherfs/pkg/gc"
	"github.com/marmos91/cipherfs/pkg/store"
)

// Runtime is a fully wired file table with everything beneath it.
type Runtime struct {
	Store   store.Store
	IO      *files.IO
	Table   *filetable.FileTable
	Sweeper *gc.Sweeper
	Metrics *MetricsResult
}

// NewRuntime builds the store, persistence adapter, file table and sweeper
// described by cfg. The sweeper is created but not started.
//
// Initialization order:
//  1. Metrics (so the store gets instrumented)
//  2. Master key
//  3. Blob store
//  4. Persistence adapter
//  5. Root service and file table
//  6. Sweeper
func NewRuntime(ctx context.Context, cfg *Config) (*Runtime, error) {
	rt := &Runtime{}
	rt.Metrics = InitializeMetrics(cfg, func() filetable.Stats {
		if rt.Table == nil {
			return filetable.Stats{}
		}
		return rt.Table.Stats()
	})

	key, err := MasterKey(&cfg.Key)
	if err != nil {
		return nil, err
	}
	defer clear(key[:])

	rt.Store, err = CreateStore(ctx, &cfg.Store)
	if err != nil {
		return nil, err
	}

	opts := TableOptions(&cfg.FileTable)
	opts.Metrics = rt.Metrics.TableMetrics

	rt.IO, err = files.NewIO(rt.Store, key, opts.FileParams())
	if err != nil {
		_ = rt.Store.Close()
		return nil, fmt.Errorf("failed to create persistence adapter: %w", err)
	}

	root, err := CreateRootService(&cfg.Root)
	if err != nil {
		rt.closeBackends()
		return nil, err
	}

	rt.Table, err = filetable.New(opts, rt.IO, root)
	if err != nil {
		rt.closeBackends()
		return nil, err
	}

	rt.Sweeper, err = gc.NewSweeper(rt.Table, cfg.GC)
	if err != nil {
		rt.closeBackends()
		return nil, err
	}

	logger.Info("File table ready",
		"version", opts.Version,
		"read_only", rt.Table.IsReadOnly(),
		"authentication", rt.Table.IsAuthEnabled(),
		"store_time", rt.Table.IsTimeStored(),
		logger.KeyStore, cfg.Store.Type)

	return rt, nil
}

func (rt *Runtime) closeBackends() {
	if rt.IO != nil {
		_ = rt.IO.Close()
	}
	if rt.Store != nil {
		_ = rt.Store.Close()
	}
}

// Close stops the sweeper, finalizes every resident file, wipes the master
// key and closes the store. All steps run even if an earlier one fails.
func (rt *Runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.Sweeper != nil {
		if err := rt.Sweeper.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop sweeper: %w", err))
		}
	}
	if rt.Table != nil {
		if err := rt.Table.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown file table: %w", err))
		}
	}
	if rt.IO != nil {
		if err := rt.IO.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close persistence adapter: %w", err))
		}
	}
	if rt.Store != nil {
		if err := rt.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	return errors.Join(errs...)
}
