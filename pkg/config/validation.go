package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/cipherfs/pkg/files"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// A missing master key is not a validation error: commands that never open
// a file (init, statfs) run without one. MasterKey reports it instead.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Block size must be a power of two
	if bs := cfg.FileTable.BlockSize; bs&(bs-1) != 0 {
		return fmt.Errorf("filetable.block_size: %d is not a power of two", bs)
	}

	// Key sources are mutually exclusive
	key := cfg.Key
	if key.Hex != "" && key.Passphrase != "" {
		return fmt.Errorf("key: hex and passphrase are mutually exclusive")
	}
	if key.Passphrase != "" && len(key.Salt) < files.MinSaltSize {
		return fmt.Errorf("key.salt: must be at least %d bytes when a passphrase is set", files.MinSaltSize)
	}
	if key.Salt != "" && key.Passphrase == "" {
		return fmt.Errorf("key.salt: set without a passphrase")
	}

	if cfg.GC.Interval < 0 || cfg.GC.Timeout < 0 || cfg.GC.MinClosed < 0 {
		return fmt.Errorf("gc: interval, timeout and min_closed must be non-negative")
	}

	if cfg.FileTable.MaxClosed > 0 && cfg.GC.MinClosed > cfg.FileTable.MaxClosed {
		return fmt.Errorf("gc.min_closed: %d exceeds filetable.max_closed %d", cfg.GC.MinClosed, cfg.FileTable.MaxClosed)
	}

	if cfg.Store.RateLimit.Enabled && cfg.Store.RateLimit.RequestsPerSecond == 0 {
		return fmt.Errorf("store.rate_limit.requests_per_second: required when rate limiting is enabled")
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
// Values of the key section are redacted.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		e := validationErrs[0]
		value := e.Value()
		if e.StructNamespace() == "Config.Key.Hex" {
			value = "<redacted>"
		}
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), value)
	}
	return err
}
