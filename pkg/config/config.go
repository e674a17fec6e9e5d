package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/cipherfs/pkg/gc"
	"github.com/spf13/viper"
)

// Config represents the complete cipherfs configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (CIPHERFS_*)
//  2. Configuration file (YAML or TOML)
//  3. Default values (lowest priority)
//
// Store Configuration Pattern:
// Each blob store backend defines its own configuration type. The Store
// section carries one option map per backend and only the map matching the
// selected type is decoded.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// FileTable configures the open-file registry and the on-store format
	FileTable FileTableConfig `mapstructure:"filetable" yaml:"filetable"`

	// Key configures where the master key comes from
	Key KeyConfig `mapstructure:"key" yaml:"key"`

	// Store selects the blob store backend holding encrypted objects
	Store StoreConfig `mapstructure:"store" yaml:"store"`

	// Root names the directory whose filesystem answers statfs
	Root RootConfig `mapstructure:"root" yaml:"root"`

	// GC configures the background sweeper
	GC gc.Config `mapstructure:"gc" yaml:"gc"`

	// Metrics configures Prometheus collection and the HTTP exporter
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// FileTableConfig configures the file table and the format of new files.
type FileTableConfig struct {
	// Version is the on-store format version written and accepted
	Version uint32 `mapstructure:"version" yaml:"version" validate:"min=1,max=4"`

	// ReadOnly rejects creates and writes
	ReadOnly bool `mapstructure:"read_only" yaml:"read_only"`

	// NoAuthentication skips header MAC verification when opening files
	NoAuthentication bool `mapstructure:"no_authentication" yaml:"no_authentication"`

	// StoreTime records access, modification and change times
	StoreTime bool `mapstructure:"store_time" yaml:"store_time"`

	// BlockSize is the content block size of new files (power of two)
	BlockSize uint32 `mapstructure:"block_size" yaml:"block_size" validate:"min=512,max=1048576"`

	// IVSize is the nonce size of new files in bytes
	IVSize int `mapstructure:"iv_size" yaml:"iv_size" validate:"min=12,max=32"`

	// MaxClosed is how many closed files stay cached before eviction
	MaxClosed int `mapstructure:"max_closed" yaml:"max_closed" validate:"gte=0"`

	// EjectBatch is how many of the oldest closed files one eviction removes
	EjectBatch int `mapstructure:"eject_batch" yaml:"eject_batch" validate:"gte=1"`

	// BlockCache is the number of clean decrypted blocks cached per file
	BlockCache int `mapstructure:"block_cache" yaml:"block_cache" validate:"gte=0"`

	// FinalizeConcurrency bounds parallel finalization during eviction
	FinalizeConcurrency int `mapstructure:"finalize_concurrency" yaml:"finalize_concurrency" validate:"gte=0"`
}

// KeyConfig configures the master key. Exactly one of Hex or Passphrase
// must be set; Passphrase requires Salt.
//
// Prefer environment variables for these values:
//
//	CIPHERFS_KEY_PASSPHRASE, CIPHERFS_KEY_SALT, CIPHERFS_KEY_HEX
type KeyConfig struct {
	// Hex is the raw 32-byte master key, hex encoded
	Hex string `mapstructure:"hex" yaml:"hex,omitempty" validate:"omitempty,hexadecimal,len=64"`

	// Passphrase is stretched with scrypt into the master key
	Passphrase string `mapstructure:"passphrase" yaml:"passphrase,omitempty"`

	// Salt is the scrypt salt (at least 16 bytes)
	Salt string `mapstructure:"salt" yaml:"salt,omitempty"`
}

// StoreConfig specifies blob store configuration.
type StoreConfig struct {
	// Type specifies which blob store implementation to use
	// Valid values: memory, filesystem, badger, s3
	Type string `mapstructure:"type" yaml:"type" validate:"required,oneof=memory filesystem badger s3"`

	// Filesystem contains filesystem-specific configuration
	// Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem" yaml:"filesystem"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3"`

	// RateLimit throttles requests to the backend
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// RateLimitConfig configures blob store request throttling.
type RateLimitConfig struct {
	// Enabled turns throttling on
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// RequestsPerSecond is the sustained request rate
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second"`

	// Burst is the number of requests served at once when idle
	// Default: twice RequestsPerSecond
	Burst uint `mapstructure:"burst" yaml:"burst"`
}

// RootConfig names the directory used for statfs. Empty disables statfs.
type RootConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	// Enabled turns on collection and the HTTP exporter
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// Port is the exporter's TCP port
	Port int `mapstructure:"port" yaml:"port" validate:"min=1,max=65535"`
}

// secretKeys are bound to the environment explicitly so they can be
// supplied without appearing in the config file.
var secretKeys = []string{"key.hex", "key.passphrase", "key.salt"}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CIPHERFS_*)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if err := setupViper(v, configPath); err != nil {
		return nil, err
	}

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) error {
	// Environment variables use the CIPHERFS_ prefix and underscores
	// Example: CIPHERFS_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("CIPHERFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range secretKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/cipherfs/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	return nil
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper, configPath string) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		// An explicit path that does not exist falls back to defaults too
		if configPath != "" && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "cipherfs")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "cipherfs")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for init command).
func GetConfigDir() string {
	return getConfigDir()
}
