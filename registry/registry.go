package registry

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/kbukum/backplane/capability"
	"github.com/kbukum/backplane/errors"
	"github.com/kbukum/backplane/logger"
)

// Registry holds, per capability, the set of registered provider handles
// and which one is active.
//
// All activation mutations for a capability are linearized through that
// capability's lock, so a health-triggered failover and a manual
// SetActive cannot interleave into a state with zero or two active
// handles. The facade's read path goes through an atomically swapped
// pointer and never takes the lock.
type Registry struct {
	mu   sync.RWMutex
	caps map[capability.Capability]*capabilitySet
	log  *logger.Logger
}

type capabilitySet struct {
	// mu is the per-capability logical lock serializing activation
	// changes. The migration manager holds it across the cutover
	// re-validation and swap.
	mu      sync.Mutex
	handles map[string]*Handle
	active  atomic.Pointer[Handle]
}

// New creates an empty registry.
func New(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.Nop()
	}
	return &Registry{
		caps: make(map[capability.Capability]*capabilitySet),
		log:  log.WithComponent("registry"),
	}
}

// Register binds a descriptor to its adapter and returns the handle. The
// first provider registered for a capability becomes its active binding.
// Registration errors are configuration mistakes, not taxonomy errors.
func (r *Registry) Register(desc Descriptor, adapter capability.Adapter) (*Handle, error) {
	if desc.ID == "" {
		return nil, fmt.Errorf("register: descriptor ID is required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("register %q: adapter is nil", desc.ID)
	}
	if adapter.Capability() != desc.Capability {
		return nil, fmt.Errorf("register %q: adapter serves %s, descriptor declares %s",
			desc.ID, adapter.Capability(), desc.Capability)
	}
	if !capability.Implements(adapter) {
		return nil, fmt.Errorf("register %q: adapter does not implement the %s operation interface",
			desc.ID, desc.Capability)
	}

	r.mu.Lock()
	set, ok := r.caps[desc.Capability]
	if !ok {
		set = &capabilitySet{handles: make(map[string]*Handle)}
		r.caps[desc.Capability] = set
	}
	r.mu.Unlock()

	set.mu.Lock()
	defer set.mu.Unlock()
	if _, exists := set.handles[desc.ID]; exists {
		return nil, fmt.Errorf("register %q: provider already registered for %s", desc.ID, desc.Capability)
	}
	h := newHandle(desc, adapter)
	set.handles[desc.ID] = h
	if set.active.Load() == nil {
		set.active.Store(h)
	}

	r.log.Info("provider registered", logger.Fields(
		logger.FieldCapability, desc.Capability.String(),
		logger.FieldProvider, desc.ID,
		"priority", desc.Priority,
		"active", set.active.Load() == h,
	))
	return h, nil
}

// Active returns the active handle for a capability. This is the facade
// fast path: one atomic load, no locks.
func (r *Registry) Active(cap capability.Capability) (*Handle, error) {
	set := r.set(cap)
	if set == nil {
		return nil, errors.NotFound("capability", cap.String())
	}
	h := set.active.Load()
	if h == nil {
		return nil, errors.NotFound("active provider for capability", cap.String())
	}
	return h, nil
}

// Handle returns a specific provider's handle.
func (r *Registry) Handle(cap capability.Capability, providerID string) (*Handle, error) {
	set := r.set(cap)
	if set == nil {
		return nil, errors.NotFound("capability", cap.String())
	}
	set.mu.Lock()
	defer set.mu.Unlock()
	h, ok := set.handles[providerID]
	if !ok {
		return nil, errors.NotFound("provider", providerID)
	}
	return h, nil
}

// List returns all handles for a capability, sorted by descending
// priority then ID.
func (r *Registry) List(cap capability.Capability) []*Handle {
	set := r.set(cap)
	if set == nil {
		return nil
	}
	set.mu.Lock()
	handles := make([]*Handle, 0, len(set.handles))
	for _, h := range set.handles {
		handles = append(handles, h)
	}
	set.mu.Unlock()

	sort.Slice(handles, func(i, j int) bool {
		if handles[i].desc.Priority != handles[j].desc.Priority {
			return handles[i].desc.Priority > handles[j].desc.Priority
		}
		return handles[i].desc.ID < handles[j].desc.ID
	})
	return handles
}

// Capabilities returns the capabilities that have at least one
// registered provider.
func (r *Registry) Capabilities() []capability.Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps := make([]capability.Capability, 0, len(r.caps))
	for c := range r.caps {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// SetActive moves the active binding to the named provider. Without
// force it fails with Unhealthy when the target is not eligible; force
// is reserved for the administrative override path.
func (r *Registry) SetActive(cap capability.Capability, providerID string, force bool) error {
	set := r.set(cap)
	if set == nil {
		return errors.NotFound("capability", cap.String())
	}

	set.mu.Lock()
	defer set.mu.Unlock()
	return r.activateLocked(set, cap, providerID, force)
}

// Swap atomically activates the named provider after check passes, all
// under the capability lock. The migration manager uses it for cutover:
// check re-validates target health, and no facade request ever observes
// a capability with no active handle.
func (r *Registry) Swap(cap capability.Capability, providerID string, check func(*Handle) error) error {
	set := r.set(cap)
	if set == nil {
		return errors.NotFound("capability", cap.String())
	}

	set.mu.Lock()
	defer set.mu.Unlock()

	h, ok := set.handles[providerID]
	if !ok {
		return errors.NotFound("provider", providerID)
	}
	if check != nil {
		if err := check(h); err != nil {
			return err
		}
	}
	return r.activateLocked(set, cap, providerID, false)
}

// Status returns per-handle snapshots with the active flag filled in.
func (r *Registry) Status(cap capability.Capability) ([]HandleStatus, error) {
	set := r.set(cap)
	if set == nil {
		return nil, errors.NotFound("capability", cap.String())
	}
	active := set.active.Load()

	handles := r.List(cap)
	out := make([]HandleStatus, 0, len(handles))
	for _, h := range handles {
		s := h.Snapshot()
		s.Active = h == active
		out = append(out, s)
	}
	return out, nil
}

// activateLocked performs the swap. Callers hold set.mu.
func (r *Registry) activateLocked(set *capabilitySet, cap capability.Capability, providerID string, force bool) error {
	h, ok := set.handles[providerID]
	if !ok {
		return errors.NotFound("provider", providerID)
	}
	if !force && !h.Eligible() {
		return errors.Unhealthy(providerID)
	}

	prev := set.active.Swap(h)
	prevID := ""
	if prev != nil {
		prevID = prev.ID()
	}
	r.log.Info("active binding changed", logger.Fields(
		logger.FieldCapability, cap.String(),
		logger.FieldProvider, providerID,
		"previous", prevID,
		"forced", force,
	))
	return nil
}

func (r *Registry) set(cap capability.Capability) *capabilitySet {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps[cap]
}
