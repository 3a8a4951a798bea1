package testutil

import (
	"sync"
	"time"

	"github.com/kbukum/backplane/event"
)

// Collector subscribes to a Bus and accumulates events for assertions.
type Collector struct {
	sub *event.Subscription

	mu     sync.Mutex
	events []event.Event
}

// NewCollector subscribes and starts collecting immediately.
func NewCollector(bus *event.Bus) *Collector {
	c := &Collector{sub: bus.Subscribe()}
	go func() {
		for e := range c.sub.C() {
			c.mu.Lock()
			c.events = append(c.events, e)
			c.mu.Unlock()
		}
	}()
	return c
}

// Close detaches from the bus.
func (c *Collector) Close() { c.sub.Close() }

// Events returns a copy of everything collected so far.
func (c *Collector) Events() []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.Event, len(c.events))
	copy(out, c.events)
	return out
}

// WaitFor polls until pred matches a collected event or the timeout
// elapses, returning the matching event and whether it was found.
func (c *Collector) WaitFor(timeout time.Duration, pred func(event.Event) bool) (event.Event, bool) {
	deadline := time.Now().Add(timeout)
	for {
		for _, e := range c.Events() {
			if pred(e) {
				return e, true
			}
		}
		if time.Now().After(deadline) {
			return nil, false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// MigrationStates returns the migration state names seen for a job, in
// collection order.
func (c *Collector) MigrationStates(jobID string) []string {
	var out []string
	for _, e := range c.Events() {
		if me, ok := e.(event.MigrationEvent); ok && (jobID == "" || me.JobID == jobID) {
			out = append(out, me.State)
		}
	}
	return out
}

// HealthTransitions returns the "to" status names seen for a provider,
// in collection order.
func (c *Collector) HealthTransitions(providerID string) []string {
	var out []string
	for _, e := range c.Events() {
		if he, ok := e.(event.HealthEvent); ok && he.Provider == providerID {
			out = append(out, he.To)
		}
	}
	return out
}
