package migration

import (
	"fmt"
	"time"
)

// Config tunes migration execution.
type Config struct {
	// CopyConcurrency caps how many copy units are in flight at once.
	CopyConcurrency int `yaml:"copy_concurrency" mapstructure:"copy_concurrency"`
	// UnitAttempts bounds retries for one failing copy unit.
	UnitAttempts int `yaml:"unit_attempts" mapstructure:"unit_attempts"`
	// SampleRate is the fraction of units covered by the checksum
	// comparison during verification. Record counts are always compared
	// exactly.
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
	// CancelGrace bounds how long Cancel waits for the job to terminate.
	CancelGrace time.Duration `yaml:"cancel_grace" mapstructure:"cancel_grace"`
	// PurgeOnFailure auto-purges partially copied target data on failure
	// even without a per-job rollback request. Off by default: partial
	// data is left for the operator.
	PurgeOnFailure bool `yaml:"purge_on_failure" mapstructure:"purge_on_failure"`
}

// ApplyDefaults applies the migration defaults.
func (c *Config) ApplyDefaults() {
	if c.CopyConcurrency <= 0 {
		c.CopyConcurrency = 4
	}
	if c.UnitAttempts <= 0 {
		c.UnitAttempts = 3
	}
	if c.SampleRate == 0 {
		c.SampleRate = 0.1
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = 5 * time.Second
	}
}

// Validate validates migration configuration.
func (c *Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("migration.sample_rate must be in [0,1] (got: %g)", c.SampleRate)
	}
	return nil
}
