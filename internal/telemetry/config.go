// Package telemetry instruments the registry watcher with OpenTelemetry.
// Traces are pushed to an OTLP collector. Metrics are either scraped by
// Prometheus from the status API or pushed to the same collector.
package telemetry

import (
	"errors"
	"fmt"
	"time"
)

// MetricsExporter selects how metrics leave the process
type MetricsExporter string

const (
	// ExporterPrometheus serves metrics on /metrics of the status API
	ExporterPrometheus MetricsExporter = "prometheus"

	// ExporterOTLP pushes metrics to the collector every PushInterval
	ExporterOTLP MetricsExporter = "otlp"
)

const (
	// DefaultServiceName identifies the watcher in exported telemetry
	DefaultServiceName = "registry-watcher"

	// DefaultEndpoint is the OTLP/HTTP collector address
	DefaultEndpoint = "localhost:4318"

	// DefaultSampling samples every cycle
	DefaultSampling = 1.0

	// DefaultPushInterval is how often the OTLP exporter sends metrics
	DefaultPushInterval = 60 * time.Second
)

// Config is the telemetry section of the watcher configuration
type Config struct {
	Enabled bool `yaml:"enabled"`

	ServiceName string `yaml:"serviceName,omitempty"`

	// ServiceVersion defaults to the build version of the binary
	ServiceVersion string `yaml:"serviceVersion,omitempty"`

	// Endpoint is the collector "host:port", shared by traces and OTLP metrics
	Endpoint string `yaml:"endpoint,omitempty"`
	Insecure bool   `yaml:"insecure,omitempty"`

	// Headers are added to every OTLP export request, e.g. collector credentials
	Headers map[string]string `yaml:"headers,omitempty"`

	Tracing *TracingConfig `yaml:"tracing,omitempty"`
	Metrics *MetricsConfig `yaml:"metrics,omitempty"`
}

// TracingConfig controls the cycle and HTTP spans
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// Sampling is the ratio of root spans kept, 0 means DefaultSampling
	Sampling float64 `yaml:"sampling,omitempty"`
}

// MetricsConfig controls the cycle and HTTP instruments
type MetricsConfig struct {
	Enabled  bool            `yaml:"enabled"`
	Exporter MetricsExporter `yaml:"exporter,omitempty"`

	// PushInterval is a Go duration, only used by the OTLP exporter
	PushInterval string `yaml:"pushInterval,omitempty"`
}

// tracingEnabled reports whether spans are exported
func (c *Config) tracingEnabled() bool {
	return c.Tracing != nil && c.Tracing.Enabled
}

// metricsEnabled reports whether instruments are exported
func (c *Config) metricsEnabled() bool {
	return c.Metrics != nil && c.Metrics.Enabled
}

// GetSampling returns the sampling ratio
func (c *TracingConfig) GetSampling() float64 {
	if c.Sampling == 0 {
		return DefaultSampling
	}
	return c.Sampling
}

// GetExporter returns the configured exporter, Prometheus when unset
func (c *MetricsConfig) GetExporter() MetricsExporter {
	if c.Exporter == "" {
		return ExporterPrometheus
	}
	return c.Exporter
}

// GetPushInterval returns the OTLP push interval.
// Validate rejects values that do not parse, so they fall back to the default here.
func (c *MetricsConfig) GetPushInterval() time.Duration {
	if c.PushInterval == "" {
		return DefaultPushInterval
	}
	d, err := time.ParseDuration(c.PushInterval)
	if err != nil || d <= 0 {
		return DefaultPushInterval
	}
	return d
}

// Validate checks the enabled parts of the configuration.
// A nil or disabled Config is always valid.
func (c *Config) Validate() error {
	if c == nil || !c.Enabled {
		return nil
	}

	var errs []error
	if c.tracingEnabled() {
		if s := c.Tracing.Sampling; s < 0 || s > 1 {
			errs = append(errs, fmt.Errorf("tracing: sampling must be between 0.0 and 1.0, got %g", s))
		}
	}
	if c.metricsEnabled() {
		if err := c.Metrics.validate(); err != nil {
			errs = append(errs, fmt.Errorf("metrics: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (c *MetricsConfig) validate() error {
	switch c.GetExporter() {
	case ExporterPrometheus, ExporterOTLP:
	default:
		return fmt.Errorf("exporter must be %q or %q, got %q", ExporterPrometheus, ExporterOTLP, c.Exporter)
	}

	if c.PushInterval != "" {
		d, err := time.ParseDuration(c.PushInterval)
		if err != nil {
			return fmt.Errorf("invalid pushInterval %q: %w", c.PushInterval, err)
		}
		if d <= 0 {
			return fmt.Errorf("pushInterval must be positive, got %s", d)
		}
	}
	return nil
}
