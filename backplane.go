package backplane

import (
	"context"
	"fmt"
	"sync"

	"github.com/kbukum/backplane/capability"
	"github.com/kbukum/backplane/config"
	"github.com/kbukum/backplane/event"
	"github.com/kbukum/backplane/facade"
	"github.com/kbukum/backplane/health"
	"github.com/kbukum/backplane/logger"
	"github.com/kbukum/backplane/migration"
	"github.com/kbukum/backplane/observability"
	"github.com/kbukum/backplane/registry"
	"github.com/kbukum/backplane/version"
)

// Orchestrator wires the provider registry, health monitor, migration
// manager, facade, and telemetry into one lifecycle. There is no
// package-level instance; embed as many orchestrators as needed.
type Orchestrator struct {
	cfg config.Config
	log *logger.Logger

	bus      *event.Bus
	reg      *registry.Registry
	monitor  *health.Monitor
	failover *health.Failover
	manager  *migration.Manager
	fac      *facade.Facade

	providers *observability.Providers
	recorder  *observability.Recorder

	mu      sync.Mutex
	started bool
	stopped bool
}

// New builds an orchestrator from cfg and the adapter instances keyed
// by provider ID. Every declared provider needs an adapter and every
// adapter a declaration; the first declared provider of a capability
// (or the one marked active) becomes the initial binding.
func New(cfg config.Config, adapters map[string]capability.Adapter) (*Orchestrator, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := logger.New(&cfg.Logging).WithComponent("backplane")
	bus := event.NewBus()
	reg := registry.New(log)

	o := &Orchestrator{
		cfg:      cfg,
		log:      log,
		bus:      bus,
		reg:      reg,
		monitor:  health.NewMonitor(cfg.Health, reg, bus, log),
		failover: health.NewFailover(reg, bus, log),
		manager:  migration.NewManager(cfg.Migration, reg, bus, log),
		fac:      facade.New(cfg.Facade, reg, bus, log),
	}

	seen := make(map[string]bool, len(cfg.Providers))
	for _, p := range cfg.Providers {
		cap, err := p.ParseCapability()
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", p.ID, err)
		}
		adapter, ok := adapters[p.ID]
		if !ok {
			return nil, fmt.Errorf("provider %q declared but no adapter supplied", p.ID)
		}
		seen[p.ID] = true
		if _, err := reg.Register(registry.Descriptor{
			ID:         p.ID,
			Capability: cap,
			Priority:   p.Priority,
			Params:     p.Params,
		}, adapter); err != nil {
			return nil, err
		}
	}
	for id := range adapters {
		if !seen[id] {
			return nil, fmt.Errorf("adapter %q supplied but not declared in config", id)
		}
	}
	// Explicit active markers override declaration order.
	for _, p := range cfg.Providers {
		if !p.Active {
			continue
		}
		cap, _ := p.ParseCapability()
		if err := o.reg.SetActive(cap, p.ID, false); err != nil {
			return nil, fmt.Errorf("activating provider %q: %w", p.ID, err)
		}
	}
	return o, nil
}

// Start brings up telemetry, the health monitor, and (when configured)
// the automatic failover policy. Idempotent.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.started {
		return nil
	}

	providers, err := observability.Init(ctx, o.cfg.Observability, o.log)
	if err != nil {
		return fmt.Errorf("initializing telemetry: %w", err)
	}
	metrics, err := observability.NewMetrics(providers.Meter())
	if err != nil {
		_ = providers.Shutdown(ctx)
		return fmt.Errorf("creating metrics: %w", err)
	}
	o.providers = providers
	o.recorder = observability.NewRecorder(metrics, o.bus)
	o.recorder.Start()

	o.monitor.Start(ctx)
	if o.cfg.AutoFailover {
		o.failover.Start()
	}
	o.started = true

	o.log.Info("orchestrator started", logger.Fields(
		"version", version.Short(),
		"providers", len(o.cfg.Providers),
		"auto_failover", o.cfg.AutoFailover,
	))
	return nil
}

// Shutdown stops everything in reverse dependency order: migrations
// first (so no cutover lands after the monitor dies), then the monitor,
// policies, telemetry, and finally the event bus.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return nil
	}
	o.stopped = true

	o.manager.Close()
	o.monitor.Stop()
	o.failover.Stop()

	var err error
	if o.recorder != nil {
		o.recorder.Stop()
	}
	if o.providers != nil {
		err = o.providers.Shutdown(ctx)
	}
	o.bus.Close()

	o.log.Info("orchestrator stopped")
	return err
}

// Facade returns the unified operation surface.
func (o *Orchestrator) Facade() *facade.Facade { return o.fac }

// Subscribe attaches a consumer to the orchestrator's event stream.
func (o *Orchestrator) Subscribe() *event.Subscription { return o.bus.Subscribe() }

// CheckHealth forces one synchronous probe cycle over every provider.
func (o *Orchestrator) CheckHealth(ctx context.Context) { o.monitor.CheckNow(ctx) }
