package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/marmos91/cipherfs/pkg/files"
	"github.com/marmos91/cipherfs/pkg/filetable"
	"github.com/marmos91/cipherfs/pkg/store"
	"github.com/marmos91/cipherfs/pkg/store/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newTableMetrics(reg)

	m.RecordOpen(files.TypeRegular, true)
	m.RecordOpen(files.TypeRegular, true)
	m.RecordOpen(files.TypeDirectory, false)
	m.RecordCreate(files.TypeSymlink)
	m.RecordEviction(filetable.EvictEject, 8, 0)
	m.RecordEviction(filetable.EvictGC, 3, 1)
	m.RecordFinalize(2*time.Millisecond, nil)
	m.SetOccupancy(10, 4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.opens.WithLabelValues("regular", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.opens.WithLabelValues("directory", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.creates.WithLabelValues("symlink")))
	assert.Equal(t, 8.0, testutil.ToFloat64(m.evictions.WithLabelValues("eject")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.evictions.WithLabelValues("gc")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushFailures.WithLabelValues("gc")))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.resident))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.closedCached))
	assert.Equal(t, 1, testutil.CollectAndCount(m.finalizeTime))
}

func TestTableMetrics_DrivenByTable(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newTableMetrics(reg)

	opts := filetable.DefaultOptions()
	opts.Metrics = m
	opts.MaxClosed = 1
	opts.EjectBatch = 1

	fio, err := files.NewIO(memory.NewMemoryStore(), files.Key{1}, opts.FileParams())
	require.NoError(t, err)
	table, err := filetable.New(opts, fio, nil)
	require.NoError(t, err)

	ctx := context.Background()
	for i := byte(1); i <= 3; i++ {
		h, err := table.Create(ctx, files.ID{i}, files.TypeRegular)
		require.NoError(t, err)
		require.NoError(t, h.Close(ctx))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(m.creates.WithLabelValues("regular")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.evictions.WithLabelValues("eject")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.closedCached))

	require.NoError(t, table.Shutdown(ctx))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.evictions.WithLabelValues("shutdown")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.resident))
}

func TestNewTableMetrics_Disabled(t *testing.T) {
	if IsEnabled() {
		t.Skip("global registry already initialized")
	}
	assert.Nil(t, NewTableMetrics())

	s := memory.NewMemoryStore()
	assert.Same(t, s, InstrumentStore(s, "memory"))
}

func TestInstrumentedStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newStoreMetrics(reg)
	s := instrumentStore(memory.NewMemoryStore(), "memory", m)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("12345")))
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)
	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	_, err = s.Exists(ctx, "k")
	require.NoError(t, err)
	require.NoError(t, s.Delete(ctx, "k"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("memory", "put", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("memory", "get", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("memory", "get", "not_found")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("memory", "exists", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("memory", "delete", "success")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.bytes.WithLabelValues("memory", "write")))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.bytes.WithLabelValues("memory", "read")))

	require.NoError(t, s.Close())
}

func TestServer_Endpoints(t *testing.T) {
	srv := NewServer(ServerConfig{
		Stats: func() filetable.Stats { return filetable.Stats{Resident: 7, Closed: 3} },
	})
	assert.Equal(t, 9090, srv.Port())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var stats filetable.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 7, stats.Resident)
	assert.Equal(t, 3, stats.Closed)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	if !IsEnabled() {
		rec = httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}
}

func TestServer_StatsWithoutProvider(t *testing.T) {
	srv := NewServer(ServerConfig{Port: 9191})
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, 9191, srv.Port())
}
