package config

import (
	"fmt"

	"github.com/kbukum/backplane/capability"
	"github.com/kbukum/backplane/facade"
	"github.com/kbukum/backplane/health"
	"github.com/kbukum/backplane/logger"
	"github.com/kbukum/backplane/migration"
	"github.com/kbukum/backplane/observability"
	"github.com/kbukum/backplane/validation"
)

// Config is the full orchestrator configuration. Adapters themselves
// are constructed by the embedding application from the provider Params
// and registered at startup; everything else is declarative here.
type Config struct {
	Name        string `yaml:"name" mapstructure:"name"`
	Environment string `yaml:"environment" mapstructure:"environment" validate:"omitempty,oneof=development staging production"`
	Debug       bool   `yaml:"debug" mapstructure:"debug"`

	Logging       logger.Config        `yaml:"logging" mapstructure:"logging"`
	Health        health.Config        `yaml:"health" mapstructure:"health"`
	Migration     migration.Config     `yaml:"migration" mapstructure:"migration"`
	Facade        facade.Config        `yaml:"facade" mapstructure:"facade"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`

	// Providers declares every adapter instance to register.
	Providers []ProviderConfig `yaml:"providers" mapstructure:"providers" validate:"dive"`
	// AutoFailover starts the automatic failover policy.
	AutoFailover bool `yaml:"auto_failover" mapstructure:"auto_failover"`
}

// ProviderConfig declares one provider adapter instance.
type ProviderConfig struct {
	ID         string `yaml:"id" mapstructure:"id" validate:"required"`
	Capability string `yaml:"capability" mapstructure:"capability" validate:"required,oneof=database auth storage realtime edgefunction"`
	Priority   int    `yaml:"priority" mapstructure:"priority" validate:"gte=0"`
	// Active marks this provider as the initial binding for its
	// capability. At most one provider per capability may set it; with
	// none set, the first declared provider wins.
	Active bool `yaml:"active" mapstructure:"active"`
	// Params are connection parameters passed through to the adapter
	// constructor, opaque to the core.
	Params map[string]any `yaml:"params" mapstructure:"params"`
}

// ParseCapability returns the typed capability this provider serves.
func (p ProviderConfig) ParseCapability() (capability.Capability, error) {
	return capability.Parse(p.Capability)
}

// ApplyDefaults applies defaults to every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "backplane"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Environment == "development" {
		c.Debug = true
	}
	c.Logging.ApplyDefaults()
	c.Health.ApplyDefaults()
	c.Migration.ApplyDefaults()
	c.Facade.ApplyDefaults()
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = c.Name
	}
	if c.Observability.Environment == "" {
		c.Observability.Environment = c.Environment
	}
	c.Observability.ApplyDefaults()
}

// Validate checks every section plus the cross-provider constraints:
// unique IDs per capability and at most one initial active binding.
func (c *Config) Validate() error {
	if err := validation.Struct(c); err != nil {
		return err
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	if err := c.Health.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Migration.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Facade.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := c.Observability.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	seen := make(map[string]bool)
	activeFor := make(map[string]string)
	for _, p := range c.Providers {
		key := p.Capability + "/" + p.ID
		if seen[key] {
			return fmt.Errorf("config.providers: duplicate provider %q for capability %s", p.ID, p.Capability)
		}
		seen[key] = true
		if p.Active {
			if prev, ok := activeFor[p.Capability]; ok {
				return fmt.Errorf("config.providers: both %q and %q marked active for capability %s", prev, p.ID, p.Capability)
			}
			activeFor[p.Capability] = p.ID
		}
	}
	return nil
}
