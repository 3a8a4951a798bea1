package health

import (
	"fmt"
	"time"
)

// Config tunes the health monitor.
type Config struct {
	// Interval between probe cycles.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	// ProbeTimeout bounds one probe; expiry counts as a failure.
	ProbeTimeout time.Duration `yaml:"probe_timeout" mapstructure:"probe_timeout"`
	// UnhealthyThreshold is the consecutive-failure count that moves a
	// provider from Degraded to Unhealthy.
	UnhealthyThreshold int `yaml:"unhealthy_threshold" mapstructure:"unhealthy_threshold"`
}

// ApplyDefaults applies the monitor defaults: 30s interval, 5s probe
// timeout, threshold 3.
func (c *Config) ApplyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 5 * time.Second
	}
	if c.UnhealthyThreshold <= 0 {
		c.UnhealthyThreshold = 3
	}
}

// Validate validates monitor configuration.
func (c *Config) Validate() error {
	if c.ProbeTimeout >= c.Interval {
		return fmt.Errorf("health.probe_timeout (%s) must be shorter than health.interval (%s)", c.ProbeTimeout, c.Interval)
	}
	return nil
}
