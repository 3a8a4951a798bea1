package registry

import (
	"sync"
	"time"

	"github.com/kbukum/backplane/capability"
)

// Descriptor identifies one provider adapter instance. Descriptors are
// created once from configuration and immutable thereafter.
type Descriptor struct {
	// ID is the unique provider identifier.
	ID string
	// Capability is the backend function this provider serves.
	Capability capability.Capability
	// Priority breaks ties when multiple providers are equally healthy;
	// higher wins.
	Priority int
	// Params are connection parameters, opaque to the core.
	Params map[string]any
}

// Status is the liveness classification of a provider handle.
type Status int

const (
	// StatusUnknown means the provider has not been probed yet.
	StatusUnknown Status = iota
	// StatusHealthy means the last probe succeeded.
	StatusHealthy
	// StatusDegraded means at least one recent probe failed.
	StatusDegraded
	// StatusUnhealthy means the consecutive-failure threshold was reached.
	StatusUnhealthy
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Handle is the runtime binding of a Descriptor to its live adapter plus
// mutable health state. Handles are owned by the Registry; the health
// fields are written only through ApplyProbe (health monitor) and
// SetOverride (testing harness), never by adapters.
type Handle struct {
	desc    Descriptor
	adapter capability.Adapter

	mu                  sync.RWMutex
	status              Status
	override            *Status
	lastChecked         time.Time
	consecutiveFailures int
	latency             time.Duration
}

// newHandle binds a descriptor to its adapter with status Unknown.
func newHandle(desc Descriptor, adapter capability.Adapter) *Handle {
	return &Handle{desc: desc, adapter: adapter, status: StatusUnknown}
}

// Descriptor returns the immutable descriptor.
func (h *Handle) Descriptor() Descriptor { return h.desc }

// ID returns the provider identifier.
func (h *Handle) ID() string { return h.desc.ID }

// Adapter returns the live adapter instance.
func (h *Handle) Adapter() capability.Adapter { return h.adapter }

// Status returns the current health status. A forced override, when set,
// masks the probed status.
func (h *Handle) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.override != nil {
		return *h.override
	}
	return h.status
}

// ConsecutiveFailures returns the current probe failure streak.
func (h *Handle) ConsecutiveFailures() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.consecutiveFailures
}

// LastChecked returns the time of the most recent probe.
func (h *Handle) LastChecked() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastChecked
}

// Latency returns the smoothed probe latency sample.
func (h *Handle) Latency() time.Duration {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.latency
}

// Eligible reports whether the handle may receive the active binding
// without a forced override: anything not Unhealthy qualifies.
func (h *Handle) Eligible() bool {
	return h.Status() != StatusUnhealthy
}

// ApplyProbe records one probe outcome and returns the resulting status
// transition. Transition rule: any success resets the failure streak and
// restores Healthy immediately; a failure moves to Degraded, and to
// Unhealthy once the streak reaches threshold. Fast recovery, slow
// condemnation.
//
// Only the health monitor calls this; the single-writer discipline on
// handle health fields is what keeps monitor, facade, and migration
// manager race-free without a heavier mechanism.
func (h *Handle) ApplyProbe(probeErr error, latency time.Duration, threshold int) (from, to Status) {
	h.mu.Lock()
	defer h.mu.Unlock()

	from = h.status
	h.lastChecked = time.Now().UTC()

	if probeErr == nil {
		h.consecutiveFailures = 0
		h.status = StatusHealthy
		// EWMA with 0.2 weight on the new sample.
		if h.latency == 0 {
			h.latency = latency
		} else {
			h.latency = time.Duration(0.8*float64(h.latency) + 0.2*float64(latency))
		}
		return from, h.status
	}

	h.consecutiveFailures++
	if threshold > 0 && h.consecutiveFailures >= threshold {
		h.status = StatusUnhealthy
	} else {
		h.status = StatusDegraded
	}
	return from, h.status
}

// SetOverride forces the reported status, masking probe results until
// ClearOverride. This is the hook the external validation harness uses;
// automated code paths never call it.
func (h *Handle) SetOverride(s Status) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.override = &s
}

// ClearOverride removes a forced status.
func (h *Handle) ClearOverride() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.override = nil
}

// HandleStatus is a point-in-time copy of a handle's state for status
// reporting.
type HandleStatus struct {
	ID                  string        `json:"id"`
	Capability          string        `json:"capability"`
	Priority            int           `json:"priority"`
	Status              string        `json:"status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
	LastChecked         time.Time     `json:"last_checked"`
	Latency             time.Duration `json:"latency"`
	Active              bool          `json:"active"`
}

// Snapshot captures the handle state. The active flag is filled in by
// the registry.
func (h *Handle) Snapshot() HandleStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	status := h.status
	if h.override != nil {
		status = *h.override
	}
	return HandleStatus{
		ID:                  h.desc.ID,
		Capability:          h.desc.Capability.String(),
		Priority:            h.desc.Priority,
		Status:              status.String(),
		ConsecutiveFailures: h.consecutiveFailures,
		LastChecked:         h.lastChecked,
		Latency:             h.latency,
	}
}
