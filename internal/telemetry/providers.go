package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/stacklok/registry-watcher/internal/versions"
)

// collector holds what the trace and metric pipelines of one Config share:
// where to export and how the watcher describes itself.
type collector struct {
	endpoint string
	insecure bool
	headers  map[string]string
	resource *resource.Resource
}

func newCollector(ctx context.Context, cfg *Config) (*collector, error) {
	name := cfg.ServiceName
	if name == "" {
		name = DefaultServiceName
	}
	version := cfg.ServiceVersion
	if version == "" {
		version = versions.GetVersionInfo().Version
	}

	// resource.New rather than resource.Default, whose schema URL may differ from semconv's
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(name),
			semconv.ServiceVersion(version),
		),
		resource.WithHost(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to describe service: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	return &collector{
		endpoint: endpoint,
		insecure: cfg.Insecure,
		headers:  cfg.Headers,
		resource: res,
	}, nil
}

// tracerProvider batches spans to the collector.
// Sampling applies to root spans, child spans follow their parent's decision.
func (c *collector) tracerProvider(ctx context.Context, tc *TracingConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(c.endpoint)}
	if c.insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if len(c.headers) > 0 {
		opts = append(opts, otlptracehttp.WithHeaders(c.headers))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP trace exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithResource(c.resource),
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(tc.GetSampling()))),
	), nil
}

// meterProvider builds the provider for the selected exporter. The handler is
// only set for Prometheus and serves the scrape endpoint.
func (c *collector) meterProvider(
	ctx context.Context,
	mc *MetricsConfig,
) (*sdkmetric.MeterProvider, http.Handler, error) {
	var (
		reader  sdkmetric.Reader
		handler http.Handler
		err     error
	)

	switch mc.GetExporter() {
	case ExporterOTLP:
		reader, err = c.pushReader(ctx, mc.GetPushInterval())
	default:
		reader, handler, err = scrapeReader()
	}
	if err != nil {
		return nil, nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(c.resource),
		sdkmetric.WithReader(reader),
	)
	return mp, handler, nil
}

func (c *collector) pushReader(ctx context.Context, interval time.Duration) (sdkmetric.Reader, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(c.endpoint)}
	if c.insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}
	if len(c.headers) > 0 {
		opts = append(opts, otlpmetrichttp.WithHeaders(c.headers))
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP metric exporter: %w", err)
	}
	return sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval)), nil
}

// scrapeReader registers the OpenTelemetry instruments next to the Go runtime
// and process collectors in a private registry.
func scrapeReader() (sdkmetric.Reader, http.Handler, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create Prometheus exporter: %w", err)
	}

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	return exporter, handler, nil
}
