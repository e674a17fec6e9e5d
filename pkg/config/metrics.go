package config

import (
	"github.com/marmos91/cipherfs/pkg/filetable"
	"github.com/marmos91/cipherfs/pkg/metrics"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// TableMetrics is the file table collector (nil if disabled, which makes
	// the table use its no-op implementation)
	TableMetrics filetable.Metrics
}

// InitializeMetrics creates and initializes all metrics components based on configuration.
//
// If metrics are enabled in the configuration:
//   - Initializes the global Prometheus registry
//   - Creates the metrics HTTP server, serving stats from the given provider
//   - Creates the Prometheus-backed file table collector
//
// Call it before CreateStore so the store is instrumented.
func InitializeMetrics(cfg *Config, stats func() filetable.Stats) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port:  cfg.Metrics.Port,
		Stats: stats,
	})

	return &MetricsResult{
		Server:       server,
		TableMetrics: metrics.NewTableMetrics(),
	}
}
