package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// CycleMetricsMeterName is the name used for the polling cycle meter
	CycleMetricsMeterName = "github.com/stacklok/registry-watcher/cycle"

	// CycleTracerName is the name used for polling cycle spans
	CycleTracerName = "github.com/stacklok/registry-watcher/cycle"
)

// Outcomes of a single image check
const (
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeFirstSeen = "first_seen"
	OutcomeFailed    = "failed"
)

// CycleMetrics holds the OpenTelemetry instruments of the polling loop.
// A nil *CycleMetrics is valid and records nothing.
type CycleMetrics struct {
	cycleDuration metric.Float64Histogram
	imageChecks   metric.Int64Counter
	dispatches    metric.Int64Counter
	trackedImages metric.Int64Gauge
}

// NewCycleMetrics creates a new CycleMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewCycleMetrics(provider metric.MeterProvider) (*CycleMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(CycleMetricsMeterName)

	cycleDuration, err := meter.Float64Histogram(
		"registry_watcher_cycle_duration_seconds",
		metric.WithDescription("Duration of polling cycles in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	imageChecks, err := meter.Int64Counter(
		"registry_watcher_image_checks_total",
		metric.WithDescription("Number of image checks by outcome"),
		metric.WithUnit("{check}"),
	)
	if err != nil {
		return nil, err
	}

	dispatches, err := meter.Int64Counter(
		"registry_watcher_dispatches_total",
		metric.WithDescription("Number of notification actions executed"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, err
	}

	trackedImages, err := meter.Int64Gauge(
		"registry_watcher_tracked_images",
		metric.WithDescription("Number of images tracked by the polling loop"),
		metric.WithUnit("{image}"),
	)
	if err != nil {
		return nil, err
	}

	return &CycleMetrics{
		cycleDuration: cycleDuration,
		imageChecks:   imageChecks,
		dispatches:    dispatches,
		trackedImages: trackedImages,
	}, nil
}

// RecordCycle records the duration of a polling cycle
func (m *CycleMetrics) RecordCycle(ctx context.Context, duration time.Duration, success bool) {
	if m == nil || m.cycleDuration == nil {
		return
	}

	m.cycleDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(attribute.Bool("success", success)))
}

// RecordImageCheck counts one image check with its outcome
func (m *CycleMetrics) RecordImageCheck(ctx context.Context, outcome string) {
	if m == nil || m.imageChecks == nil {
		return
	}

	m.imageChecks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordDispatch counts one executed notification action
func (m *CycleMetrics) RecordDispatch(ctx context.Context, actionType string, success bool) {
	if m == nil || m.dispatches == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("action", actionType),
		attribute.Bool("success", success),
	}

	m.dispatches.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordTrackedImages records the number of configured images
func (m *CycleMetrics) RecordTrackedImages(ctx context.Context, count int64) {
	if m == nil || m.trackedImages == nil {
		return
	}

	m.trackedImages.Record(ctx, count)
}
