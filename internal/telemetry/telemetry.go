package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Telemetry owns the providers built from a Config.
// Disabled pipelines are backed by no-op providers, so callers never check for nil.
type Telemetry struct {
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	metricsHandler http.Handler

	// flushers of the SDK providers, in creation order
	shutdowns []func(context.Context) error
}

// New builds the providers enabled in cfg and registers them globally.
// A nil or disabled cfg yields no-op providers. Call Shutdown before exiting
// to flush buffered spans and metrics.
func New(ctx context.Context, cfg *Config) (*Telemetry, error) {
	t := &Telemetry{
		tracerProvider: tracenoop.NewTracerProvider(),
		meterProvider:  metricnoop.NewMeterProvider(),
	}

	if cfg == nil || !cfg.Enabled {
		slog.Debug("Telemetry disabled")
		return t, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid telemetry configuration: %w", err)
	}

	c, err := newCollector(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.tracingEnabled() {
		tp, err := c.tracerProvider(ctx, cfg.Tracing)
		if err != nil {
			return nil, err
		}
		t.tracerProvider = tp
		t.shutdowns = append(t.shutdowns, tp.Shutdown)

		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
		if c.insecure {
			slog.Warn("Spans are exported over plain HTTP", "endpoint", c.endpoint)
		}
		slog.Info("Tracing enabled", "endpoint", c.endpoint, "sampling", cfg.Tracing.GetSampling())
	}

	if cfg.metricsEnabled() {
		mp, handler, err := c.meterProvider(ctx, cfg.Metrics)
		if err != nil {
			_ = t.Shutdown(ctx)
			return nil, err
		}
		t.meterProvider = mp
		t.metricsHandler = handler
		t.shutdowns = append(t.shutdowns, mp.Shutdown)

		otel.SetMeterProvider(mp)
		if cfg.Metrics.GetExporter() == ExporterOTLP {
			slog.Info("Metrics enabled", "exporter", ExporterOTLP,
				"endpoint", c.endpoint, "push_interval", cfg.Metrics.GetPushInterval())
		} else {
			slog.Info("Metrics enabled", "exporter", ExporterPrometheus, "path", "/metrics")
		}
	}

	return t, nil
}

// TracerProvider returns the span provider, a no-op one when tracing is disabled
func (t *Telemetry) TracerProvider() trace.TracerProvider {
	return t.tracerProvider
}

// MeterProvider returns the instrument provider, a no-op one when metrics are disabled
func (t *Telemetry) MeterProvider() metric.MeterProvider {
	return t.meterProvider
}

// MetricsHandler returns the Prometheus scrape handler, nil for any other setup
func (t *Telemetry) MetricsHandler() http.Handler {
	return t.metricsHandler
}

// Tracer returns a named tracer
func (t *Telemetry) Tracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return t.tracerProvider.Tracer(name, opts...)
}

// Shutdown flushes the SDK providers, latest first. Later calls do nothing.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	shutdowns := t.shutdowns
	t.shutdowns = nil

	var errs []error
	for _, shutdown := range slices.Backward(shutdowns) {
		if err := shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("failed to flush telemetry: %w", err)
	}
	return nil
}
