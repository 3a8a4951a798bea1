package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/backplane/capability"
)

// MemoryRealTime is an in-memory RealTimeAdapter. Published messages fan
// out to live subscribers and a bounded retained log per channel, which
// is the durable state a migration copies.
type MemoryRealTime struct {
	AdapterCore

	retain int

	mu       sync.Mutex
	retained map[string][]capability.Message
	subs     map[string][]*memSub
}

// NewMemoryRealTime creates a realtime adapter retaining the last 100
// messages per channel.
func NewMemoryRealTime(name string) *MemoryRealTime {
	rt := &MemoryRealTime{
		AdapterCore: newCore(name, capability.RealTime),
		retain:      100,
		retained:    make(map[string][]capability.Message),
		subs:        make(map[string][]*memSub),
	}
	rt.snapshot = rt.items
	rt.restore = rt.restoreUnit
	rt.purge = rt.clear
	return rt
}

// Publish implements capability.RealTimeAdapter.
func (rt *MemoryRealTime) Publish(ctx context.Context, channel string, msg capability.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Channel = channel
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}

	rt.mu.Lock()
	log := append(rt.retained[channel], msg)
	if len(log) > rt.retain {
		log = log[len(log)-rt.retain:]
	}
	rt.retained[channel] = log
	subs := append([]*memSub(nil), rt.subs[channel]...)
	rt.mu.Unlock()

	for _, sub := range subs {
		sub.deliver(msg)
	}
	return nil
}

// Subscribe implements capability.RealTimeAdapter.
func (rt *MemoryRealTime) Subscribe(ctx context.Context, channel string) (capability.Subscription, error) {
	sub := &memSub{
		ch:      make(chan capability.Message, 64),
		channel: channel,
		rt:      rt,
	}
	rt.mu.Lock()
	rt.subs[channel] = append(rt.subs[channel], sub)
	rt.mu.Unlock()
	return sub, nil
}

func (rt *MemoryRealTime) unsubscribe(target *memSub) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	subs := rt.subs[target.channel]
	for i, sub := range subs {
		if sub == target {
			rt.subs[target.channel] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

func (rt *MemoryRealTime) items() map[string][]byte {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	out := make(map[string][]byte)
	for channel, msgs := range rt.retained {
		for _, msg := range msgs {
			payload, _ := json.Marshal(msg)
			out[channel+"/"+msg.ID] = payload
		}
	}
	return out
}

func (rt *MemoryRealTime) restoreUnit(unit capability.Unit) error {
	var msg capability.Message
	if err := json.Unmarshal(unit.Payload, &msg); err != nil {
		return fmt.Errorf("decode unit %q: %w", unit.Key, err)
	}
	channel, _, ok := strings.Cut(unit.Key, "/")
	if !ok {
		return fmt.Errorf("malformed unit key %q", unit.Key)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	// Imports may replay; keep the log deduplicated by message ID.
	for _, existing := range rt.retained[channel] {
		if existing.ID == msg.ID {
			return nil
		}
	}
	rt.retained[channel] = append(rt.retained[channel], msg)
	return nil
}

func (rt *MemoryRealTime) clear() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.retained = make(map[string][]capability.Message)
}

type memSub struct {
	ch      chan capability.Message
	channel string
	rt      *MemoryRealTime

	mu     sync.Mutex
	closed bool
}

func (s *memSub) C() <-chan capability.Message { return s.ch }

func (s *memSub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.rt.unsubscribe(s)
	close(s.ch)
	return nil
}

func (s *memSub) deliver(msg capability.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- msg:
	default:
		// Drop for slow subscribers; this is a test double, not a broker.
	}
}
