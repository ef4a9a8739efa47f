package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/afero"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/registry-watcher/internal/api"
	"github.com/stacklok/registry-watcher/internal/config"
	"github.com/stacklok/registry-watcher/internal/cycle"
	"github.com/stacklok/registry-watcher/internal/cycle/scheduler"
	"github.com/stacklok/registry-watcher/internal/detect"
	"github.com/stacklok/registry-watcher/internal/httpclient"
	"github.com/stacklok/registry-watcher/internal/notify"
	"github.com/stacklok/registry-watcher/internal/registry"
	"github.com/stacklok/registry-watcher/internal/state"
	"github.com/stacklok/registry-watcher/internal/status"
	"github.com/stacklok/registry-watcher/internal/telemetry"
)

const (
	defaultHTTPAddress    = ":8080"
	defaultRequestTimeout = 10 * time.Second
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second

	// stateLockTimeout bounds the wait for a snapshot written by another process
	stateLockTimeout = 10 * time.Second
)

// WatcherAppOptions is a function that configures the watcher app builder
type WatcherAppOptions func(*watcherAppConfig) error

// watcherAppConfig collects the options of a WatcherApp
// It supports dependency injection for testing while providing sensible defaults for production
type watcherAppConfig struct {
	config *config.Config

	// Optional component overrides (primarily for testing)
	fs               afero.Fs
	gateway          registry.Gateway
	httpClient       httpclient.Client
	transportFactory notify.TransportFactory
	fallbackWriter   io.Writer

	// HTTP server options
	address        string
	middlewares    []func(http.Handler) http.Handler
	requestTimeout time.Duration
	readTimeout    time.Duration
	writeTimeout   time.Duration
	idleTimeout    time.Duration

	// Telemetry components
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metricsHandler http.Handler
}

func baseConfig(opts ...WatcherAppOptions) (*watcherAppConfig, error) {
	cfg := &watcherAppConfig{
		address:        defaultHTTPAddress,
		requestTimeout: defaultRequestTimeout,
		readTimeout:    defaultReadTimeout,
		writeTimeout:   defaultWriteTimeout,
		idleTimeout:    defaultIdleTimeout,
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.fs == nil {
		cfg.fs = afero.NewOsFs()
	}

	return cfg, nil
}

// NewWatcherApp creates a new WatcherApp with the given options
func NewWatcherApp(
	ctx context.Context,
	opts ...WatcherAppOptions,
) (*WatcherApp, error) {
	cfg, err := baseConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build base configuration: %w", err)
	}
	if cfg.config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	components, err := buildCycleComponents(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build cycle components: %w", err)
	}

	httpServer, err := buildHTTPServer(ctx, cfg, components)
	if err != nil {
		return nil, fmt.Errorf("failed to build HTTP server: %w", err)
	}

	// Create application context
	appCtx, cancel := context.WithCancel(ctx)

	return &WatcherApp{
		config:     cfg.config,
		components: components,
		httpServer: httpServer,
		ctx:        appCtx,
		cancelFunc: cancel,
	}, nil
}

// WithConfig sets the configuration
func WithConfig(c *config.Config) WatcherAppOptions {
	return func(cfg *watcherAppConfig) error {
		cfg.config = c
		return nil
	}
}

// WithAddress sets the HTTP server address
func WithAddress(addr string) WatcherAppOptions {
	return func(cfg *watcherAppConfig) error {
		if addr == "" {
			return fmt.Errorf("address cannot be empty")
		}

		parts := strings.SplitN(addr, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		host := parts[0]
		port := parts[1]

		if port == "" {
			return fmt.Errorf("address is not a valid port: %s", addr)
		}
		if host == "localhost" {
			host = "127.0.0.1"
		}
		if host == "" {
			host = "0.0.0.0"
		}

		if _, err := netip.ParseAddrPort(host + ":" + port); err != nil {
			return fmt.Errorf("address is not a valid port: %w", err)
		}

		cfg.address = addr
		return nil
	}
}

// WithMiddlewares sets custom HTTP middlewares
func WithMiddlewares(mw ...func(http.Handler) http.Handler) WatcherAppOptions {
	return func(cfg *watcherAppConfig) error {
		cfg.middlewares = mw
		return nil
	}
}

// WithFilesystem sets the filesystem holding the state and status files
func WithFilesystem(fs afero.Fs) WatcherAppOptions {
	return func(cfg *watcherAppConfig) error {
		cfg.fs = fs
		return nil
	}
}

// WithGateway allows injecting a custom registry gateway (for testing)
func WithGateway(g registry.Gateway) WatcherAppOptions {
	return func(cfg *watcherAppConfig) error {
		cfg.gateway = g
		return nil
	}
}

// WithHTTPClient sets the client used for registry and webhook requests
func WithHTTPClient(c httpclient.Client) WatcherAppOptions {
	return func(cfg *watcherAppConfig) error {
		cfg.httpClient = c
		return nil
	}
}

// WithTransportFactory allows injecting a custom mail transport factory (for testing)
func WithTransportFactory(f notify.TransportFactory) WatcherAppOptions {
	return func(cfg *watcherAppConfig) error {
		cfg.transportFactory = f
		return nil
	}
}

// WithFallbackWriter sets where images of unknown actions are printed
func WithFallbackWriter(w io.Writer) WatcherAppOptions {
	return func(cfg *watcherAppConfig) error {
		cfg.fallbackWriter = w
		return nil
	}
}

// WithMeterProvider sets the OpenTelemetry meter provider for cycle and HTTP metrics
func WithMeterProvider(mp metric.MeterProvider) WatcherAppOptions {
	return func(cfg *watcherAppConfig) error {
		cfg.meterProvider = mp
		return nil
	}
}

// WithTracerProvider sets the OpenTelemetry tracer provider for cycle and HTTP spans
func WithTracerProvider(tp trace.TracerProvider) WatcherAppOptions {
	return func(cfg *watcherAppConfig) error {
		cfg.tracerProvider = tp
		return nil
	}
}

// WithMetricsHandler exposes handler on /metrics
func WithMetricsHandler(h http.Handler) WatcherAppOptions {
	return func(cfg *watcherAppConfig) error {
		cfg.metricsHandler = h
		return nil
	}
}

// buildCycleComponents builds the store, detector, dispatcher, coordinator and scheduler
func buildCycleComponents(
	ctx context.Context,
	b *watcherAppConfig,
) (*AppComponents, error) {
	slog.Info("Initializing cycle components")

	jobs, err := b.config.Jobs()
	if err != nil {
		return nil, fmt.Errorf("failed to build notification jobs: %w", err)
	}

	if b.httpClient == nil {
		b.httpClient = httpclient.NewDefaultClient(b.config.Registry.GetTimeout())
	}

	if b.gateway == nil {
		perSecond, burst := b.config.Registry.GetRateLimit()
		b.gateway = registry.NewHubClient(
			registry.WithHTTPClient(b.httpClient),
			registry.WithBaseURL(b.config.Registry.GetBaseURL()),
			registry.WithMaxRetries(b.config.Registry.GetMaxRetries()),
			registry.WithRateLimit(perSecond, burst),
		)
	}

	if b.transportFactory == nil {
		b.transportFactory = notify.NewSMTPTransportFactory(b.config.SMTPServers)
	}

	cycleMetrics, err := telemetry.NewCycleMetrics(b.meterProvider)
	if err != nil {
		return nil, fmt.Errorf("failed to create cycle metrics: %w", err)
	}
	if cycleMetrics != nil {
		slog.Info("Cycle metrics enabled")
	}

	stateFile := b.config.GetStateFile()
	var storeOpts []state.FileStoreOption
	if _, onDisk := b.fs.(*afero.OsFs); onDisk {
		storeOpts = append(storeOpts, state.WithFileLock(stateFile+".lock", stateLockTimeout))
	}
	store := state.NewFileStore(b.fs, stateFile, storeOpts...)

	tracker := status.NewTracker(
		status.NewFilePersistence(b.fs, filepath.Dir(stateFile)),
		b.config.GetCheckInterval(),
	)
	if err := tracker.Restore(ctx); err != nil {
		slog.Warn("Failed to restore cycle status, starting fresh", "error", err)
	}

	dispatcherOpts := []notify.Option{
		notify.WithMetrics(cycleMetrics),
		notify.WithTracerProvider(b.tracerProvider),
	}
	if b.fallbackWriter != nil {
		dispatcherOpts = append(dispatcherOpts, notify.WithFallbackWriter(b.fallbackWriter))
	}
	dispatcher := notify.NewDispatcher(
		b.httpClient,
		notify.NewTransportCache(b.transportFactory),
		dispatcherOpts...,
	)

	coordinator := cycle.New(
		jobs,
		store,
		detect.NewDetector(b.gateway),
		dispatcher,
		cycle.WithStatusTracker(tracker),
		cycle.WithMetrics(cycleMetrics),
		cycle.WithTracerProvider(b.tracerProvider),
	)

	slog.Info("Cycle components initialized successfully",
		"images", len(jobs),
		"state_file", stateFile,
		"check_interval", b.config.GetCheckInterval())

	return &AppComponents{
		Scheduler:   scheduler.New(coordinator, b.config.GetCheckInterval()),
		Coordinator: coordinator,
		Dispatcher:  dispatcher,
		Tracker:     tracker,
	}, nil
}

// buildHTTPServer builds the HTTP server with router and middleware
//
//nolint:unparam // we prefer having a similar interface
func buildHTTPServer(
	_ context.Context,
	b *watcherAppConfig,
	components *AppComponents,
) (*http.Server, error) {
	slog.Info("Initializing HTTP server")

	// Use default middlewares if not provided
	if b.middlewares == nil {
		b.middlewares = []func(http.Handler) http.Handler{
			middleware.RequestID,
			middleware.RealIP,
			middleware.Recoverer,
			middleware.Timeout(b.requestTimeout),
			api.LoggingMiddleware,
		}
	}

	// Instrumentation goes first so it also observes timeouts and recovered panics
	if b.tracerProvider != nil || b.meterProvider != nil {
		instrument, err := telemetry.HTTPMiddleware(b.tracerProvider, b.meterProvider)
		if err != nil {
			return nil, fmt.Errorf("failed to create HTTP instrumentation: %w", err)
		}
		b.middlewares = append([]func(http.Handler) http.Handler{instrument}, b.middlewares...)
		slog.Info("HTTP instrumentation enabled")
	}

	router := api.NewServer(
		components.Tracker,
		components.Coordinator,
		api.WithMiddlewares(b.middlewares...),
		api.WithMetricsHandler(b.metricsHandler),
	)

	server := &http.Server{
		Addr:         b.address,
		Handler:      router,
		ReadTimeout:  b.readTimeout,
		WriteTimeout: b.writeTimeout,
		IdleTimeout:  b.idleTimeout,
	}

	slog.Info("HTTP server configured", "address", b.address)
	return server, nil
}
