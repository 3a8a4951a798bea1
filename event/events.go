package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/backplane/capability"
)

// Meta is the immutable envelope shared by all event types.
type Meta struct {
	ID         string
	Time       time.Time
	Capability capability.Capability
}

// NewMeta stamps a fresh event envelope.
func NewMeta(cap capability.Capability) Meta {
	return Meta{
		ID:         uuid.NewString(),
		Time:       time.Now().UTC(),
		Capability: cap,
	}
}

// Event is implemented by every record published on the Bus. Events are
// immutable after emission.
type Event interface {
	Envelope() Meta
}

// HealthEvent records a provider health-state transition.
type HealthEvent struct {
	Meta
	Provider string
	// From and To are health status names (unknown, healthy, degraded,
	// unhealthy).
	From string
	To   string
	// ConsecutiveFailures is the failure streak at emission time.
	ConsecutiveFailures int
	// Active reports whether the provider held the active binding when
	// the transition happened.
	Active bool
	// Err is the probe error that drove the transition, empty on recovery.
	Err string
}

// Envelope implements Event.
func (e HealthEvent) Envelope() Meta { return e.Meta }

// MigrationEvent records a migration job state transition.
type MigrationEvent struct {
	Meta
	JobID  string
	Source string
	Target string
	// State is the job state entered (planned, copying, verifying,
	// cuttingover, completed, failed, rolledback).
	State string
	// Copied and Verified are the progress counters at emission time.
	Copied   int64
	Verified int64
	// Err describes the failure for terminal failure states.
	Err string
}

// Envelope implements Event.
func (e MigrationEvent) Envelope() Meta { return e.Meta }

// OperationEvent records the completion of one facade operation,
// successful or not.
type OperationEvent struct {
	Meta
	Provider  string
	Operation string
	Latency   time.Duration
	// Outcome is "ok" or "error".
	Outcome string
	Err     string
}

// Envelope implements Event.
func (e OperationEvent) Envelope() Meta { return e.Meta }
