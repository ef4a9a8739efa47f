package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// collectCycleMetrics returns the metrics of the cycle scope, keyed by name
func collectCycleMetrics(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := map[string]metricdata.Metrics{}
	for _, scope := range rm.ScopeMetrics {
		if scope.Scope.Name != CycleMetricsMeterName {
			continue
		}
		for _, m := range scope.Metrics {
			found[m.Name] = m
		}
	}
	return found
}

func TestNewCycleMetrics(t *testing.T) {
	t.Parallel()

	t.Run("returns nil when provider is nil", func(t *testing.T) {
		t.Parallel()

		metrics, err := NewCycleMetrics(nil)
		require.NoError(t, err)
		assert.Nil(t, metrics)
	})

	t.Run("creates metrics with SDK provider", func(t *testing.T) {
		t.Parallel()

		mp := sdkmetric.NewMeterProvider()
		defer func() { _ = mp.Shutdown(context.Background()) }()

		metrics, err := NewCycleMetrics(mp)
		require.NoError(t, err)
		require.NotNil(t, metrics)
		assert.NotNil(t, metrics.cycleDuration)
		assert.NotNil(t, metrics.imageChecks)
		assert.NotNil(t, metrics.dispatches)
		assert.NotNil(t, metrics.trackedImages)
	})
}

func TestCycleMetrics_NilIsNoOp(t *testing.T) {
	t.Parallel()

	var metrics *CycleMetrics
	ctx := context.Background()

	// none of these may panic
	metrics.RecordCycle(ctx, time.Second, true)
	metrics.RecordImageCheck(ctx, OutcomeFailed)
	metrics.RecordDispatch(ctx, "webHook", false)
	metrics.RecordTrackedImages(ctx, 3)
}

func TestCycleMetrics_Record(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = mp.Shutdown(context.Background()) }()

	metrics, err := NewCycleMetrics(mp)
	require.NoError(t, err)

	ctx := context.Background()
	metrics.RecordCycle(ctx, 1500*time.Millisecond, true)
	metrics.RecordImageCheck(ctx, OutcomeUpdated)
	metrics.RecordImageCheck(ctx, OutcomeUpdated)
	metrics.RecordImageCheck(ctx, OutcomeFailed)
	metrics.RecordDispatch(ctx, "mailHook", true)
	metrics.RecordTrackedImages(ctx, 4)

	found := collectCycleMetrics(t, reader)

	duration, ok := found["registry_watcher_cycle_duration_seconds"]
	require.True(t, ok, "expected cycle duration histogram")
	hist, ok := duration.Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)
	assert.InDelta(t, 1.5, hist.DataPoints[0].Sum, 0.001)
	success, _ := hist.DataPoints[0].Attributes.Value(attribute.Key("success"))
	assert.True(t, success.AsBool())

	checks, ok := found["registry_watcher_image_checks_total"]
	require.True(t, ok, "expected image checks counter")
	sum, ok := checks.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	byOutcome := map[string]int64{}
	for _, dp := range sum.DataPoints {
		outcome, _ := dp.Attributes.Value(attribute.Key("outcome"))
		byOutcome[outcome.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{OutcomeUpdated: 2, OutcomeFailed: 1}, byOutcome)

	dispatches, ok := found["registry_watcher_dispatches_total"]
	require.True(t, ok, "expected dispatches counter")
	dispatchSum, ok := dispatches.Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, dispatchSum.DataPoints, 1)
	action, _ := dispatchSum.DataPoints[0].Attributes.Value(attribute.Key("action"))
	assert.Equal(t, "mailHook", action.AsString())

	tracked, ok := found["registry_watcher_tracked_images"]
	require.True(t, ok, "expected tracked images gauge")
	gauge, ok := tracked.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(4), gauge.DataPoints[0].Value)
}
