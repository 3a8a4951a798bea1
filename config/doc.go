// Package config loads and validates the orchestrator configuration.
//
// Sources are merged in precedence order: struct defaults, a
// backplane.yml file, a .env file, then BACKPLANE_-prefixed environment
// variables (BACKPLANE_HEALTH_INTERVAL overrides health.interval).
// Provider declarations name an adapter instance, its capability, and
// its connection params; the embedding application turns params into
// live adapters and registers them at startup.
package config
