package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marmos91/cipherfs/pkg/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// storeMetrics records blob store operations.
type storeMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
}

func newStoreMetrics(reg prometheus.Registerer) *storeMetrics {
	return &storeMetrics{
		operations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cipherfs_store_operations_total",
				Help: "Total number of blob store operations by backend, operation and status",
			},
			[]string{"backend", "operation", "status"},
		),
		duration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "cipherfs_store_operation_duration_seconds",
				Help: "Duration of blob store operations in seconds",
				Buckets: []float64{
					0.0001, // 100µs
					0.001,  // 1ms
					0.005,  // 5ms
					0.01,   // 10ms
					0.025,  // 25ms
					0.05,   // 50ms
					0.1,    // 100ms
					0.25,   // 250ms
					0.5,    // 500ms
					1,      // 1s
				},
			},
			[]string{"backend", "operation"},
		),
		bytes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "cipherfs_store_bytes_total",
				Help: "Total bytes moved through the blob store by backend and direction",
			},
			[]string{"backend", "direction"},
		),
	}
}

// instrumentedStore decorates a store.Store with Prometheus metrics.
type instrumentedStore struct {
	store.Store
	backend string
	m       *storeMetrics
}

// InstrumentStore wraps s so every operation is counted and timed under
// the given backend label. It returns s unchanged when metrics are
// disabled.
func InstrumentStore(s store.Store, backend string) store.Store {
	if !IsEnabled() {
		return s
	}
	return instrumentStore(s, backend, storeMetricsFor(GetRegistry()))
}

var (
	sharedStoreMetrics *storeMetrics
	storeMetricsOnce   sync.Once
)

// storeMetricsFor registers the store collectors once per process.
func storeMetricsFor(reg *prometheus.Registry) *storeMetrics {
	storeMetricsOnce.Do(func() {
		sharedStoreMetrics = newStoreMetrics(reg)
	})
	return sharedStoreMetrics
}

func instrumentStore(s store.Store, backend string, m *storeMetrics) *instrumentedStore {
	return &instrumentedStore{Store: s, backend: backend, m: m}
}

func (s *instrumentedStore) observe(op string, start time.Time, err error) {
	status := "success"
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		status = "not_found"
	default:
		status = "error"
	}
	s.m.operations.WithLabelValues(s.backend, op, status).Inc()
	s.m.duration.WithLabelValues(s.backend, op).Observe(time.Since(start).Seconds())
}

func (s *instrumentedStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := s.Store.Get(ctx, key)
	s.observe("get", start, err)
	if err == nil {
		s.m.bytes.WithLabelValues(s.backend, "read").Add(float64(len(data)))
	}
	return data, err
}

func (s *instrumentedStore) Put(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	err := s.Store.Put(ctx, key, data)
	s.observe("put", start, err)
	if err == nil {
		s.m.bytes.WithLabelValues(s.backend, "write").Add(float64(len(data)))
	}
	return err
}

func (s *instrumentedStore) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := s.Store.Exists(ctx, key)
	s.observe("exists", start, err)
	return ok, err
}

func (s *instrumentedStore) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := s.Store.Delete(ctx, key)
	s.observe("delete", start, err)
	return err
}
