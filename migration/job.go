package migration

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/backplane/capability"
)

// State is a migration job's position in its lifecycle.
type State string

const (
	// StatePlanned means the job is validated and queued to run.
	StatePlanned State = "planned"
	// StateCopying means bulk transfer from source to target is running.
	StateCopying State = "copying"
	// StateVerifying means the integrity check is running.
	StateVerifying State = "verifying"
	// StateCuttingOver means the atomic activation swap is in progress.
	StateCuttingOver State = "cuttingover"
	// StateCompleted is the successful terminal state.
	StateCompleted State = "completed"
	// StateFailed is the failure terminal state (unless rolled back).
	StateFailed State = "failed"
	// StateRolledBack means the failed job's partial target data was
	// purged.
	StateRolledBack State = "rolledback"
)

// Terminal reports whether the state ends the job.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateRolledBack:
		return true
	default:
		return false
	}
}

// Options control one migration request.
type Options struct {
	// Verify enables the count/checksum integrity check before cutover.
	Verify bool
	// RollbackOnFailure purges partially copied target data when the job
	// fails, transitioning it to RolledBack.
	RollbackOnFailure bool
}

// Job is one in-flight (or finished) cutover. All mutable fields are
// owned by the Manager; observers read through Snapshot.
type Job struct {
	id      string
	cap     capability.Capability
	source  string
	target  string
	opts    Options
	seed    int64
	created time.Time

	copied   atomic.Int64
	verified atomic.Int64

	mu     sync.Mutex
	state  State
	reason error

	cancel context.CancelFunc
	done   chan struct{}
}

func newJob(cap capability.Capability, source, target string, opts Options) *Job {
	now := time.Now().UTC()
	return &Job{
		id:      uuid.NewString(),
		cap:     cap,
		source:  source,
		target:  target,
		opts:    opts,
		seed:    now.UnixNano(),
		created: now,
		state:   StatePlanned,
		done:    make(chan struct{}),
	}
}

// ID returns the job identifier.
func (j *Job) ID() string { return j.id }

// Capability returns the capability being migrated.
func (j *Job) Capability() capability.Capability { return j.cap }

// State returns the current job state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Err returns the failure reason for terminal failure states.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.reason
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} { return j.done }

// Wait blocks until the job terminates or ctx is done.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) setState(s State) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = s
}

func (j *Job) failWith(reason error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.state = StateFailed
	j.reason = reason
}

// Snapshot is a point-in-time copy of job progress for status surfaces.
type Snapshot struct {
	ID         string    `json:"id"`
	Capability string    `json:"capability"`
	Source     string    `json:"source"`
	Target     string    `json:"target"`
	State      State     `json:"state"`
	Copied     int64     `json:"copied"`
	Verified   int64     `json:"verified"`
	Created    time.Time `json:"created"`
	Err        string    `json:"error,omitempty"`
}

// Snapshot captures the job state and counters.
func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	state := j.state
	reason := j.reason
	j.mu.Unlock()

	errMsg := ""
	if reason != nil {
		errMsg = reason.Error()
	}
	return Snapshot{
		ID:         j.id,
		Capability: j.cap.String(),
		Source:     j.source,
		Target:     j.target,
		State:      state,
		Copied:     j.copied.Load(),
		Verified:   j.verified.Load(),
		Created:    j.created,
		Err:        errMsg,
	}
}
