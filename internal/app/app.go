// Package app assembles and runs the registry watcher: the polling scheduler,
// the notification dispatcher and the status HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/stacklok/registry-watcher/internal/config"
	"github.com/stacklok/registry-watcher/internal/cycle"
)

// WatcherApp is a fully wired watcher, created by NewWatcherApp
type WatcherApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// cancelled by Stop, ends the scheduler loop
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start runs the polling loop in the background and serves the status API.
// It returns once the server is shut down by Stop or fails to listen.
func (app *WatcherApp) Start() error {
	go func() {
		if err := app.components.Scheduler.Start(app.ctx); err != nil {
			slog.Error("Polling scheduler failed", "error", err)
		}
	}()

	slog.Info("Status API listening", "address", app.httpServer.Addr)
	err := app.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("status API stopped: %w", err)
}

// RunOnce runs one polling cycle without the scheduler and returns after its
// notifications completed or ctx is done
func (app *WatcherApp) RunOnce(ctx context.Context) (*cycle.Report, error) {
	report, err := app.components.Coordinator.RunCycle(ctx)
	if waitErr := app.components.Dispatcher.Wait(ctx); waitErr != nil {
		slog.Warn("Notifications still running", "error", waitErr)
	}
	return report, err
}

// Stop ends the polling loop, gives running notifications until timeout to
// complete and shuts the status API down within the same deadline.
func (app *WatcherApp) Stop(timeout time.Duration) error {
	slog.Info("Stopping watcher", "timeout", timeout)

	deadline, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := app.components.Scheduler.Stop(); err != nil {
		slog.Error("Failed to stop polling scheduler", "error", err)
	}
	if err := app.components.Dispatcher.Wait(deadline); err != nil {
		slog.Warn("Abandoning running notifications", "error", err)
	}
	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	if err := app.httpServer.Shutdown(deadline); err != nil {
		return fmt.Errorf("status API did not shut down in %s: %w", timeout, err)
	}

	slog.Info("Watcher stopped")
	return nil
}

// Config returns the configuration the watcher was built from
func (app *WatcherApp) Config() *config.Config {
	return app.config
}

// HTTPServer returns the status API server
func (app *WatcherApp) HTTPServer() *http.Server {
	return app.httpServer
}
