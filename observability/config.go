package observability

import (
	"fmt"
	"time"
)

// Config configures the OpenTelemetry exporters.
type Config struct {
	// Enabled turns metric and trace export on. When false, Init returns
	// a no-op bundle and nothing dials out.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// ServiceName identifies this deployment in exported telemetry.
	ServiceName string `yaml:"service_name" mapstructure:"service_name"`
	// ServiceVersion is reported as the service.version resource.
	ServiceVersion string `yaml:"service_version" mapstructure:"service_version"`
	// Environment is the deployment environment (development, staging,
	// production).
	Environment string `yaml:"environment" mapstructure:"environment"`
	// Endpoint is the OTLP HTTP endpoint host:port.
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	// Insecure allows plain HTTP to the collector.
	Insecure bool `yaml:"insecure" mapstructure:"insecure"`
	// MetricInterval is the periodic metric export interval.
	MetricInterval time.Duration `yaml:"metric_interval" mapstructure:"metric_interval"`
	// TraceSampleRate is the trace sampling ratio in [0,1].
	TraceSampleRate float64 `yaml:"trace_sample_rate" mapstructure:"trace_sample_rate"`
}

// ApplyDefaults applies the exporter defaults.
func (c *Config) ApplyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "backplane"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.MetricInterval <= 0 {
		c.MetricInterval = 15 * time.Second
	}
	if c.TraceSampleRate == 0 {
		c.TraceSampleRate = 1.0
	}
}

// Validate validates observability configuration.
func (c *Config) Validate() error {
	if c.TraceSampleRate < 0 || c.TraceSampleRate > 1 {
		return fmt.Errorf("observability.trace_sample_rate must be in [0,1] (got: %g)", c.TraceSampleRate)
	}
	if c.Enabled && c.Endpoint == "" {
		return fmt.Errorf("observability.endpoint is required when enabled")
	}
	return nil
}
