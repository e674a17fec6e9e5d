package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidConfig(t *testing.T) {
	cfg := GetDefaultConfig()
	require.NoError(t, Validate(cfg))
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"InvalidLogLevel", func(c *Config) { c.Logging.Level = "VERBOSE" }, "Level"},
		{"InvalidLogFormat", func(c *Config) { c.Logging.Format = "xml" }, "Format"},
		{"InvalidStoreType", func(c *Config) { c.Store.Type = "tape" }, "Type"},
		{"VersionTooLow", func(c *Config) { c.FileTable.Version = 0 }, "Version"},
		{"VersionTooHigh", func(c *Config) { c.FileTable.Version = 5 }, "Version"},
		{"BlockSizeTooSmall", func(c *Config) { c.FileTable.BlockSize = 256 }, "BlockSize"},
		{"BlockSizeNotPowerOfTwo", func(c *Config) { c.FileTable.BlockSize = 3000 }, "power of two"},
		{"IVSizeTooSmall", func(c *Config) { c.FileTable.IVSize = 8 }, "IVSize"},
		{"NegativeMaxClosed", func(c *Config) { c.FileTable.MaxClosed = -1 }, "MaxClosed"},
		{"ZeroEjectBatch", func(c *Config) { c.FileTable.EjectBatch = 0 }, "EjectBatch"},
		{"InvalidMetricsPort", func(c *Config) { c.Metrics.Port = 70000 }, "Port"},
		{"KeyHexNotHex", func(c *Config) { c.Key.Hex = strings.Repeat("z", 64) }, "Hex"},
		{"KeyHexWrongLength", func(c *Config) { c.Key.Hex = "abcd" }, "Hex"},
		{"KeyHexAndPassphrase", func(c *Config) {
			c.Key.Hex = strings.Repeat("ab", 32)
			c.Key.Passphrase = "secret"
			c.Key.Salt = "0123456789abcdef"
		}, "mutually exclusive"},
		{"PassphraseWithoutSalt", func(c *Config) { c.Key.Passphrase = "secret" }, "key.salt"},
		{"ShortSalt", func(c *Config) {
			c.Key.Passphrase = "secret"
			c.Key.Salt = "short"
		}, "key.salt"},
		{"SaltWithoutPassphrase", func(c *Config) { c.Key.Salt = "0123456789abcdef" }, "without a passphrase"},
		{"NegativeGCInterval", func(c *Config) { c.GC.Interval = -1 }, "gc"},
		{"MinClosedAboveCapacity", func(c *Config) {
			c.FileTable.MaxClosed = 10
			c.GC.MinClosed = 11
		}, "gc.min_closed"},
		{"RateLimitWithoutRate", func(c *Config) { c.Store.RateLimit.Enabled = true }, "requests_per_second"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := GetDefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_KeySources(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Key.Hex = strings.Repeat("0f", 32)
	assert.NoError(t, Validate(cfg))

	cfg = GetDefaultConfig()
	cfg.Key.Passphrase = "secret"
	cfg.Key.Salt = "0123456789abcdef"
	assert.NoError(t, Validate(cfg))
}

func TestValidate_RedactsKey(t *testing.T) {
	cfg := GetDefaultConfig()
	cfg.Key.Hex = strings.Repeat("ab", 31) + "zz"

	err := Validate(cfg)
	require.Error(t, err)
	assert.NotContains(t, err.Error(), strings.Repeat("ab", 31))
	assert.Contains(t, err.Error(), "redacted")
}

func TestValidate_LogLevelNormalization(t *testing.T) {
	for _, level := range []string{"debug", "Info", "WARN", "error"} {
		cfg := GetDefaultConfig()
		cfg.Logging.Level = level
		ApplyDefaults(cfg)

		require.NoError(t, Validate(cfg), "level %q", level)
		assert.Equal(t, strings.ToUpper(level), cfg.Logging.Level)
	}
}
