package testutil

import (
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/kbukum/backplane/capability"
)

// AdapterCore implements the base Adapter contract shared by all memory
// adapters: probe scripting for health tests, and bulk
// export/import/checksum over a key-value view of the adapter's state.
//
// Concrete adapters supply the view through the snapshot/restore/purge
// hooks set at construction.
type AdapterCore struct {
	name string
	cap  capability.Capability

	snapshot func() map[string][]byte
	restore  func(unit capability.Unit) error
	purge    func()

	mu             sync.Mutex
	stickyProbeErr error
	failuresLeft   int
	scriptedErr    error
	probeDelay     time.Duration
	probes         int
}

func newCore(name string, cap capability.Capability) AdapterCore {
	return AdapterCore{name: name, cap: cap}
}

// Name implements capability.Adapter.
func (c *AdapterCore) Name() string { return c.name }

// Capability implements capability.Adapter.
func (c *AdapterCore) Capability() capability.Capability { return c.cap }

// Probe implements capability.Adapter. It honors the scripted failure
// sequence set by FailProbes/SetProbeErr and the delay set by
// SetProbeDelay.
func (c *AdapterCore) Probe(ctx context.Context) error {
	c.mu.Lock()
	c.probes++
	delay := c.probeDelay
	err := c.stickyProbeErr
	if err == nil && c.failuresLeft > 0 {
		c.failuresLeft--
		err = c.scriptedErr
	}
	c.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// Probes returns how many times Probe has been called.
func (c *AdapterCore) Probes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.probes
}

// FailProbes makes the next n probes fail with err.
func (c *AdapterCore) FailProbes(n int, err error) {
	if err == nil {
		err = fmt.Errorf("scripted probe failure")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failuresLeft = n
	c.scriptedErr = err
}

// SetProbeErr makes every probe fail with err until cleared with nil.
func (c *AdapterCore) SetProbeErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stickyProbeErr = err
}

// SetProbeDelay makes probes take at least d, for timeout tests.
func (c *AdapterCore) SetProbeDelay(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.probeDelay = d
}

// Export implements capability.Adapter over the snapshot hook.
func (c *AdapterCore) Export(ctx context.Context) (capability.UnitCursor, error) {
	items := c.snapshot()
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	units := make([]capability.Unit, 0, len(keys))
	for _, k := range keys {
		units = append(units, capability.Unit{Key: k, Payload: items[k]})
	}
	return &sliceCursor{units: units}, nil
}

// Import implements capability.Adapter over the restore hook.
func (c *AdapterCore) Import(ctx context.Context, unit capability.Unit) error {
	return c.restore(unit)
}

// Count implements capability.Adapter.
func (c *AdapterCore) Count(ctx context.Context) (int64, error) {
	return int64(len(c.snapshot())), nil
}

// Checksum implements capability.Adapter: FNV-64 digest over the sampled
// key/payload pairs in key order.
func (c *AdapterCore) Checksum(ctx context.Context, spec capability.SampleSpec) (string, error) {
	items := c.snapshot()
	keys := make([]string, 0, len(items))
	for k := range items {
		if capability.SampleIncludes(k, spec) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	h := fnv.New64a()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{0})
		h.Write(items[k])
		h.Write([]byte{0})
	}
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// Purge implements capability.Adapter over the purge hook.
func (c *AdapterCore) Purge(ctx context.Context) error {
	c.purge()
	return nil
}

type sliceCursor struct {
	units []capability.Unit
	pos   int
}

func (s *sliceCursor) Next(ctx context.Context) (capability.Unit, error) {
	if err := ctx.Err(); err != nil {
		return capability.Unit{}, err
	}
	if s.pos >= len(s.units) {
		return capability.Unit{}, io.EOF
	}
	u := s.units[s.pos]
	s.pos++
	return u, nil
}

func (s *sliceCursor) Close() error { return nil }
