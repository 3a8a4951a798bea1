package health

import (
	"context"
	"sync"
	"time"

	"github.com/kbukum/backplane/capability"
	"github.com/kbukum/backplane/event"
	"github.com/kbukum/backplane/logger"
	"github.com/kbukum/backplane/registry"
)

// Monitor periodically probes every registered provider handle and
// records health transitions on the handles it observes.
//
// The monitor never changes active bindings. On a transition to
// Unhealthy it emits a HealthEvent and leaves routing decisions to the
// caller or an opt-in Failover policy, which keeps the monitor
// side-effect-free with respect to routing.
type Monitor struct {
	cfg Config
	reg *registry.Registry
	bus *event.Bus
	log *logger.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewMonitor creates a monitor over the registry, publishing transitions
// on bus.
func NewMonitor(cfg Config, reg *registry.Registry, bus *event.Bus, log *logger.Logger) *Monitor {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &Monitor{
		cfg: cfg,
		reg: reg,
		bus: bus,
		log: log.WithComponent("health"),
	}
}

// Start launches the periodic probe loop. An initial cycle runs
// immediately so providers leave Unknown without waiting a full
// interval.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.CheckNow(loopCtx)

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				m.CheckNow(loopCtx)
			}
		}
	}()
}

// Stop terminates the probe loop and waits for in-flight probes.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// CheckNow runs one probe cycle synchronously: every handle of every
// capability is probed in parallel, and the call returns when the cycle
// completes. Exposed so tests and operators can force a deterministic
// cycle.
func (m *Monitor) CheckNow(ctx context.Context) {
	var wg sync.WaitGroup
	for _, cap := range m.reg.Capabilities() {
		for _, h := range m.reg.List(cap) {
			wg.Add(1)
			go func(cap capability.Capability, h *registry.Handle) {
				defer wg.Done()
				m.probe(ctx, cap, h)
			}(cap, h)
		}
	}
	wg.Wait()
}

// SetOverride forces the reported status of a provider, masking probe
// results until ClearOverride. Intended for operator intervention
// (draining a provider ahead of maintenance, or quarantining one that
// probes cannot see failing).
func (m *Monitor) SetOverride(cap capability.Capability, providerID string, status registry.Status) error {
	h, err := m.reg.Handle(cap, providerID)
	if err != nil {
		return err
	}
	h.SetOverride(status)
	return nil
}

// ClearOverride removes a forced status.
func (m *Monitor) ClearOverride(cap capability.Capability, providerID string) error {
	h, err := m.reg.Handle(cap, providerID)
	if err != nil {
		return err
	}
	h.ClearOverride()
	return nil
}

// probe runs one health check against one handle. Probe panics and
// timeouts count as failures and are never propagated.
func (m *Monitor) probe(ctx context.Context, cap capability.Capability, h *registry.Handle) {
	pctx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	err := safeProbe(pctx, h.Adapter())
	latency := time.Since(start)

	from, to := h.ApplyProbe(err, latency, m.cfg.UnhealthyThreshold)
	if from == to {
		return
	}

	active := false
	if activeHandle, aerr := m.reg.Active(cap); aerr == nil {
		active = activeHandle == h
	}

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}
	m.log.Info("provider health transition", logger.Fields(
		logger.FieldCapability, cap.String(),
		logger.FieldProvider, h.ID(),
		"from", from.String(),
		"to", to.String(),
		"failures", h.ConsecutiveFailures(),
		"active", active,
	))

	m.bus.Publish(event.HealthEvent{
		Meta:                event.NewMeta(cap),
		Provider:            h.ID(),
		From:                from.String(),
		To:                  to.String(),
		ConsecutiveFailures: h.ConsecutiveFailures(),
		Active:              active,
		Err:                 errMsg,
	})
}

// safeProbe shields the monitor from adapter panics and from probes
// that ignore context cancellation.
func safeProbe(ctx context.Context, adapter capability.Adapter) error {
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- &probePanicError{value: r}
			}
		}()
		done <- adapter.Probe(ctx)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

type probePanicError struct{ value any }

func (e *probePanicError) Error() string { return "probe panicked" }
