package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	watcherapp "github.com/stacklok/registry-watcher/internal/app"
	"github.com/stacklok/registry-watcher/internal/telemetry"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the polling loop and the status API",
	Long: `Start polling the registry for the configured images.

One cycle runs immediately and then one every checkInterval minutes. The status API
exposes health, readiness, the last cycle and the persisted image timestamps.`,
	RunE: runServe,
}

const (
	defaultGracefulTimeout = 30 * time.Second // Lets running notifications finish
)

func init() {
	serveCmd.Flags().String("address", ":8080", "Address the status API listens on")

	err := viper.BindPFlag("address", serveCmd.Flags().Lookup("address"))
	if err != nil {
		slog.Error("Failed to bind address flag", "error", err)
		os.Exit(1)
	}
}

func runServe(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tel, err := telemetry.New(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	watcher, err := watcherapp.NewWatcherApp(ctx,
		watcherapp.WithConfig(cfg),
		watcherapp.WithAddress(viper.GetString("address")),
		watcherapp.WithMeterProvider(tel.MeterProvider()),
		watcherapp.WithTracerProvider(tel.TracerProvider()),
		watcherapp.WithMetricsHandler(tel.MetricsHandler()),
	)
	if err != nil {
		return fmt.Errorf("failed to build watcher: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- watcher.Start()
	}()

	// Wait for interrupt signal to gracefully shutdown the watcher
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	return watcher.Stop(defaultGracefulTimeout)
}
