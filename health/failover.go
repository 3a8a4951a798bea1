package health

import (
	"sync"

	"github.com/kbukum/backplane/capability"
	"github.com/kbukum/backplane/event"
	"github.com/kbukum/backplane/logger"
	"github.com/kbukum/backplane/registry"
)

// Failover is the opt-in automatic failover policy. It subscribes to
// health events and, when the active provider for a capability turns
// Unhealthy, moves the binding to the best eligible standby: the
// healthiest status first, then the highest descriptor priority.
//
// Keeping the policy outside the Monitor preserves the monitor's
// routing-free contract; deployments that want manual failover simply
// never start this component.
type Failover struct {
	reg *registry.Registry
	bus *event.Bus
	log *logger.Logger

	mu   sync.Mutex
	sub  *event.Subscription
	wg   sync.WaitGroup
	done bool
}

// NewFailover creates the policy over the registry and bus.
func NewFailover(reg *registry.Registry, bus *event.Bus, log *logger.Logger) *Failover {
	if log == nil {
		log = logger.Nop()
	}
	return &Failover{reg: reg, bus: bus, log: log.WithComponent("failover")}
}

// Start begins consuming health events.
func (f *Failover) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != nil || f.done {
		return
	}
	f.sub = f.bus.Subscribe()

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for e := range f.sub.C() {
			he, ok := e.(event.HealthEvent)
			if !ok || !he.Active || he.To != registry.StatusUnhealthy.String() {
				continue
			}
			f.failover(he.Envelope().Capability, he.Provider)
		}
	}()
}

// Stop detaches from the bus and waits for the consumer to drain.
func (f *Failover) Stop() {
	f.mu.Lock()
	sub := f.sub
	f.sub = nil
	f.done = true
	f.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	f.wg.Wait()
}

// failover picks the best standby and activates it. If no standby is
// eligible the binding is left alone; the registry's non-forced
// SetActive would reject an unhealthy target anyway.
func (f *Failover) failover(cap capability.Capability, unhealthyID string) {
	active, err := f.reg.Active(cap)
	if err != nil || active.ID() != unhealthyID {
		// The binding already moved (manual override or a racing event).
		return
	}

	candidate := f.pick(cap, unhealthyID)
	if candidate == "" {
		f.log.Warn("no eligible standby for failover", logger.Fields(
			logger.FieldCapability, cap.String(),
			logger.FieldProvider, unhealthyID,
		))
		return
	}

	if err := f.reg.SetActive(cap, candidate, false); err != nil {
		f.log.WithError(err).Error("failover activation failed", logger.Fields(
			logger.FieldCapability, cap.String(),
			logger.FieldProvider, candidate,
		))
		return
	}
	f.log.Info("automatic failover", logger.Fields(
		logger.FieldCapability, cap.String(),
		"from", unhealthyID,
		"to", candidate,
	))
}

// pick returns the best standby ID, or empty when none qualifies. List
// is already sorted by priority, so the first handle at the best status
// tier wins.
func (f *Failover) pick(cap capability.Capability, excludeID string) string {
	for _, wantStatus := range []registry.Status{registry.StatusHealthy, registry.StatusDegraded} {
		for _, h := range f.reg.List(cap) {
			if h.ID() == excludeID {
				continue
			}
			if h.Status() == wantStatus {
				return h.ID()
			}
		}
	}
	return ""
}
