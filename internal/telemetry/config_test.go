package telemetry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracingConfig_GetSampling(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, DefaultSampling, (&TracingConfig{}).GetSampling(), 0.0001)
	assert.InDelta(t, 0.25, (&TracingConfig{Sampling: 0.25}).GetSampling(), 0.0001)
}

func TestMetricsConfig_Getters(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		config       MetricsConfig
		wantExporter MetricsExporter
		wantInterval time.Duration
	}{
		{name: "defaults", wantExporter: ExporterPrometheus, wantInterval: DefaultPushInterval},
		{
			name:         "otlp every 15s",
			config:       MetricsConfig{Exporter: ExporterOTLP, PushInterval: "15s"},
			wantExporter: ExporterOTLP,
			wantInterval: 15 * time.Second,
		},
		{
			name:         "unparsable interval",
			config:       MetricsConfig{Exporter: ExporterOTLP, PushInterval: "soon"},
			wantExporter: ExporterOTLP,
			wantInterval: DefaultPushInterval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.wantExporter, tt.config.GetExporter())
			assert.Equal(t, tt.wantInterval, tt.config.GetPushInterval())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		config  *Config
		wantErr string
	}{
		{
			name:   "nil config",
			config: nil,
		},
		{
			name: "telemetry disabled",
			config: &Config{
				Enabled: false,
				Tracing: &TracingConfig{Enabled: true, Sampling: 5},
			},
		},
		{
			name: "traces and otlp metrics",
			config: &Config{
				Enabled: true,
				Headers: map[string]string{"Authorization": "Bearer abc"},
				Tracing: &TracingConfig{Enabled: true, Sampling: 0.5},
				Metrics: &MetricsConfig{Enabled: true, Exporter: ExporterOTLP, PushInterval: "30s"},
			},
		},
		{
			name: "sampling above one",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: 1.5},
			},
			wantErr: "tracing: sampling must be between 0.0 and 1.0, got 1.5",
		},
		{
			name: "negative sampling",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: -0.1},
			},
			wantErr: "tracing: sampling must be between 0.0 and 1.0",
		},
		{
			name: "tracing disabled",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: false, Sampling: 7},
			},
		},
		{
			name: "unknown metrics exporter",
			config: &Config{
				Enabled: true,
				Metrics: &MetricsConfig{Enabled: true, Exporter: "statsd"},
			},
			wantErr: `metrics: exporter must be "prometheus" or "otlp"`,
		},
		{
			name: "push interval is not a duration",
			config: &Config{
				Enabled: true,
				Metrics: &MetricsConfig{Enabled: true, Exporter: ExporterOTLP, PushInterval: "1 minute"},
			},
			wantErr: `metrics: invalid pushInterval "1 minute"`,
		},
		{
			name: "negative push interval",
			config: &Config{
				Enabled: true,
				Metrics: &MetricsConfig{Enabled: true, Exporter: ExporterOTLP, PushInterval: "-5s"},
			},
			wantErr: "metrics: pushInterval must be positive",
		},
		{
			name: "both sections invalid",
			config: &Config{
				Enabled: true,
				Tracing: &TracingConfig{Enabled: true, Sampling: 2},
				Metrics: &MetricsConfig{Enabled: true, Exporter: "statsd"},
			},
			wantErr: "tracing: sampling must be between 0.0 and 1.0, got 2\nmetrics: exporter",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.config.Validate()
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}
