package facade

import (
	"fmt"
	"time"
)

// Config tunes the operation surface.
type Config struct {
	// OpTimeout bounds one attempt against the provider. Retries get a
	// fresh budget each.
	OpTimeout time.Duration `yaml:"op_timeout" mapstructure:"op_timeout"`
	// RetryAttempts caps attempts for idempotent operations.
	// Non-idempotent operations always run exactly once.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	// RetryBaseBackoff is the first retry delay; it doubles per attempt.
	RetryBaseBackoff time.Duration `yaml:"retry_base_backoff" mapstructure:"retry_base_backoff"`
	// RetryMaxBackoff caps the retry delay.
	RetryMaxBackoff time.Duration `yaml:"retry_max_backoff" mapstructure:"retry_max_backoff"`
	// BreakerThreshold is the consecutive-failure count that opens a
	// provider's circuit.
	BreakerThreshold int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	// BreakerCooldown is how long an open circuit waits before allowing
	// a half-open trial call.
	BreakerCooldown time.Duration `yaml:"breaker_cooldown" mapstructure:"breaker_cooldown"`
}

// ApplyDefaults applies the facade defaults.
func (c *Config) ApplyDefaults() {
	if c.OpTimeout <= 0 {
		c.OpTimeout = 10 * time.Second
	}
	if c.RetryAttempts <= 0 {
		c.RetryAttempts = 3
	}
	if c.RetryBaseBackoff <= 0 {
		c.RetryBaseBackoff = 100 * time.Millisecond
	}
	if c.RetryMaxBackoff <= 0 {
		c.RetryMaxBackoff = 2 * time.Second
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
}

// Validate validates facade configuration.
func (c *Config) Validate() error {
	if c.RetryBaseBackoff > c.RetryMaxBackoff && c.RetryMaxBackoff > 0 {
		return fmt.Errorf("facade.retry_base_backoff (%s) exceeds retry_max_backoff (%s)", c.RetryBaseBackoff, c.RetryMaxBackoff)
	}
	return nil
}
