package event

import (
	"sync"

	"github.com/kbukum/backplane/capability"
)

// Bus delivers events to subscribers in emission order and keeps an
// append-only per-capability log.
//
// Delivery guarantees: a subscriber registered before an event is
// published receives that event at least once, in the order events were
// published for any single capability. Slow subscribers never block
// publishers; each subscription buffers pending events internally.
type Bus struct {
	mu     sync.Mutex
	subs   []*Subscription
	log    map[capability.Capability][]Event
	closed bool
}

// NewBus creates an empty Bus.
func NewBus() *Bus {
	return &Bus{log: make(map[capability.Capability][]Event)}
}

// Subscribe registers a new subscriber. Events published after this call
// are delivered on the returned Subscription's channel.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{
		ch:   make(chan Event),
		quit: make(chan struct{}),
		bus:  b,
	}
	sub.cond = sync.NewCond(&sub.mu)

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		sub.done = true
		return sub
	}
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	go sub.pump()
	return sub
}

// Publish appends the event to the capability log and enqueues it to
// every current subscriber. Publishing under the bus lock preserves
// per-capability emission order across subscribers.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	cap := e.Envelope().Capability
	b.log[cap] = append(b.log[cap], e)
	for _, sub := range b.subs {
		sub.enqueue(e)
	}
}

// Log returns a copy of the append-only event log for a capability.
func (b *Bus) Log(cap capability.Capability) []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries := b.log[cap]
	out := make([]Event, len(entries))
	copy(out, entries)
	return out
}

// Close terminates all subscriptions. Pending events already enqueued
// are still delivered before each subscription channel closes.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, sub := range subs {
		sub.stop()
	}
}

func (b *Bus) remove(target *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub == target {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// Subscription is one subscriber's ordered event feed.
type Subscription struct {
	ch   chan Event
	quit chan struct{}
	bus  *Bus

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Event
	done    bool
	quitted bool
}

// C returns the channel events are delivered on. The channel closes when
// the subscription or the bus is closed, after pending events drain.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close detaches the subscription from the bus. Undelivered events are
// dropped; the channel returned by C closes once the pump exits.
func (s *Subscription) Close() {
	s.bus.remove(s)
	s.mu.Lock()
	s.pending = nil
	if !s.quitted {
		s.quitted = true
		close(s.quit)
	}
	s.mu.Unlock()
	s.stop()
}

func (s *Subscription) enqueue(e Event) {
	s.mu.Lock()
	if !s.done {
		s.pending = append(s.pending, e)
		s.cond.Signal()
	}
	s.mu.Unlock()
}

func (s *Subscription) stop() {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.cond.Signal()
	s.mu.Unlock()
}

// pump moves events from the pending queue to the delivery channel,
// decoupling publishers from subscriber consumption speed.
func (s *Subscription) pump() {
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.done {
			s.cond.Wait()
		}
		if len(s.pending) == 0 && s.done {
			s.mu.Unlock()
			close(s.ch)
			return
		}
		e := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		select {
		case s.ch <- e:
		case <-s.quit:
			close(s.ch)
			return
		}
	}
}
