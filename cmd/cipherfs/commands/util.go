package commands

import (
	"fmt"

	"github.com/marmos91/cipherfs/internal/logger"
	"github.com/marmos91/cipherfs/pkg/config"
)

// loadConfig loads the configuration named by --config (or the default
// location) and initializes the logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}
	logger.Debug("Configuration loaded", "source", configSource())
	return cfg, nil
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	loggerCfg := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}
	if err := logger.Init(loggerCfg); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// configSource returns a description of where the config was loaded from
func configSource() string {
	if cfgFile != "" {
		return cfgFile
	}
	if config.ConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
