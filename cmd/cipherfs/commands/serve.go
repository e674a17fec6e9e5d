package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/marmos91/cipherfs/internal/logger"
	"github.com/marmos91/cipherfs/pkg/config"
	"github.com/spf13/cobra"
)

var serveShutdownTimeout time.Duration

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the file table with its sweeper and metrics exporter",
	Long: `Open the configured store, start the background sweeper and, when
metrics are enabled, the Prometheus exporter. Runs until SIGINT or SIGTERM,
then finalizes every resident file.

Examples:
  CIPHERFS_KEY_HEX=$(openssl rand -hex 32) cipherfs serve
  CIPHERFS_METRICS_ENABLED=true cipherfs serve --config /etc/cipherfs/config.yaml`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().DurationVar(&serveShutdownTimeout, "shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := config.NewRuntime(ctx, cfg)
	if err != nil {
		return err
	}

	serverDone := make(chan error, 1)
	if srv := rt.Metrics.Server; srv != nil {
		logger.Info("Metrics enabled", "port", srv.Port())
		go func() { serverDone <- srv.Start(ctx) }()
	} else {
		logger.Info("Metrics collection disabled")
	}

	rt.Sweeper.Start()
	logger.Info("cipherfs is running. Press Ctrl+C to stop.")

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, initiating graceful shutdown")
	case err := <-serverDone:
		logger.Error("Metrics server failed", logger.KeyError, err)
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serveShutdownTimeout)
	defer cancel()

	if err := rt.Close(shutdownCtx); err != nil {
		logger.Error("Shutdown error", logger.KeyError, err)
		return err
	}
	logger.Info("cipherfs stopped")
	return nil
}
