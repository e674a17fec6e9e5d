package config

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/marmos91/cipherfs/pkg/filetable"
	"github.com/marmos91/cipherfs/pkg/gc"
)

// Default values not owned by another package.
const (
	DefaultMetricsPort = 9090
	DefaultGCInterval  = time.Minute
	DefaultGCTimeout   = time.Minute
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Boolean flags keep their zero value (false)
//   - Backend-specific defaults are handled by the store constructors
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyFileTableDefaults(&cfg.FileTable)
	applyStoreDefaults(&cfg.Store)
	applyGCDefaults(&cfg.GC)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

// applyFileTableDefaults sets file table defaults.
//
// MaxClosed cannot distinguish "unset" from an explicit 0, so 0 means
// default here. Disable caching with a negative value in the file, which
// is clamped to 0.
func applyFileTableDefaults(cfg *FileTableConfig) {
	if cfg.Version == 0 {
		cfg.Version = filetable.DefaultVersion
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = filetable.DefaultBlockSize
	}
	if cfg.IVSize == 0 {
		cfg.IVSize = filetable.DefaultIVSize
	}
	switch {
	case cfg.MaxClosed == 0:
		cfg.MaxClosed = filetable.DefaultMaxClosed
	case cfg.MaxClosed < 0:
		cfg.MaxClosed = 0
	}
	if cfg.EjectBatch == 0 {
		cfg.EjectBatch = filetable.DefaultEjectBatch
	}
	if cfg.BlockCache == 0 {
		cfg.BlockCache = filetable.DefaultBlockCache
	}
	if cfg.FinalizeConcurrency == 0 {
		cfg.FinalizeConcurrency = filetable.DefaultConcurrency
	}
}

// applyStoreDefaults sets blob store defaults.
func applyStoreDefaults(cfg *StoreConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}

	if cfg.Filesystem == nil {
		cfg.Filesystem = make(map[string]any)
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}

	// Apply defaults for all store types (for config file generation)
	if _, ok := cfg.Filesystem["path"]; !ok {
		cfg.Filesystem["path"] = filepath.Join("/tmp", "cipherfs-store")
	}
	if _, ok := cfg.Badger["db_path"]; !ok {
		cfg.Badger["db_path"] = filepath.Join("/tmp", "cipherfs-badger")
	}
	if _, ok := cfg.S3["key_prefix"]; !ok {
		cfg.S3["key_prefix"] = "cipherfs/"
	}
}

// applyGCDefaults sets sweeper defaults.
func applyGCDefaults(cfg *gc.Config) {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultGCInterval
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultGCTimeout
	}
}

// applyMetricsDefaults sets metrics defaults.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// GetDefaultConfig returns a Config with all default values applied.
//
// This is used by InitConfig to generate a sample configuration file. The
// key section is left empty: a master key must never be generated into a
// file by default.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Store: StoreConfig{
			Type: "filesystem",
		},
		GC: gc.Config{
			Enabled: true,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}
