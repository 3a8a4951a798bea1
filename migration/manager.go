package migration

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/kbukum/backplane/capability"
	"github.com/kbukum/backplane/errors"
	"github.com/kbukum/backplane/event"
	"github.com/kbukum/backplane/logger"
	"github.com/kbukum/backplane/registry"
	"github.com/kbukum/backplane/resilience"
)

// Manager executes controlled cutovers from the active provider of a
// capability to a candidate. A capability has at most one non-terminal
// job at a time; traffic moves only in the CuttingOver phase, under the
// registry's capability lock, so a failure anywhere earlier leaves the
// active binding untouched.
type Manager struct {
	cfg Config
	reg *registry.Registry
	bus *event.Bus
	log *logger.Logger

	mu      sync.Mutex
	jobs    map[capability.Capability]*Job // non-terminal
	last    map[capability.Capability]*Job
	baseCtx context.Context
	stop    context.CancelFunc
}

// NewManager creates a migration manager over the registry and bus.
func NewManager(cfg Config, reg *registry.Registry, bus *event.Bus, log *logger.Logger) *Manager {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	baseCtx, stop := context.WithCancel(context.Background())
	return &Manager{
		cfg:     cfg,
		reg:     reg,
		bus:     bus,
		log:     log.WithComponent("migration"),
		jobs:    make(map[capability.Capability]*Job),
		last:    make(map[capability.Capability]*Job),
		baseCtx: baseCtx,
		stop:    stop,
	}
}

// Request validates and starts a migration of cap's data to the target
// provider, returning the in-flight job. The actual work runs in the
// background; observe progress through job events or Job.Wait.
func (m *Manager) Request(cap capability.Capability, targetID string, opts Options) (*Job, error) {
	source, err := m.reg.Active(cap)
	if err != nil {
		return nil, err
	}
	target, err := m.reg.Handle(cap, targetID)
	if err != nil {
		return nil, err
	}
	if source.ID() == targetID {
		return nil, errors.TargetUnavailable(targetID, "provider is already active")
	}
	if !eligibleTarget(target.Status()) {
		return nil, errors.TargetUnavailable(targetID, "status is "+target.Status().String())
	}

	m.mu.Lock()
	if existing := m.jobs[cap]; existing != nil {
		m.mu.Unlock()
		return nil, errors.MigrationInProgress(cap.String())
	}
	job := newJob(cap, source.ID(), targetID, opts)
	jobCtx, cancel := context.WithCancel(m.baseCtx)
	job.cancel = cancel
	m.jobs[cap] = job
	m.last[cap] = job
	m.mu.Unlock()

	m.log.Info("migration planned", logger.Fields(
		logger.FieldCapability, cap.String(),
		logger.FieldJobID, job.ID(),
		"source", source.ID(),
		"target", targetID,
		"verify", opts.Verify,
	))
	m.publish(job)

	go m.run(jobCtx, job, source, target)
	return job, nil
}

// Cancel requests cancellation of cap's in-flight job and waits up to
// the configured grace period for it to terminate. Cancellation is
// eventual: a Timeout return means the job is still winding down, not
// that it keeps running indefinitely.
func (m *Manager) Cancel(cap capability.Capability) error {
	m.mu.Lock()
	job := m.jobs[cap]
	m.mu.Unlock()
	if job == nil {
		return errors.NotFound("migration for capability", cap.String())
	}

	job.cancel()

	waitCtx, cancel := context.WithTimeout(context.Background(), m.cfg.CancelGrace)
	defer cancel()
	if err := job.Wait(waitCtx); err != nil {
		return errors.Timeout("migration cancellation").WithDetail("job_id", job.ID())
	}
	return nil
}

// Current returns cap's most recent job (running or terminal), if any.
func (m *Manager) Current(cap capability.Capability) (*Job, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.last[cap]
	return job, ok
}

// Close cancels every in-flight job. Used during orchestrator shutdown.
func (m *Manager) Close() {
	m.stop()
	m.mu.Lock()
	jobs := make([]*Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j)
	}
	m.mu.Unlock()

	waitCtx, cancel := context.WithTimeout(context.Background(), m.cfg.CancelGrace)
	defer cancel()
	for _, j := range jobs {
		_ = j.Wait(waitCtx)
	}
}

// run drives the job through its state machine.
func (m *Manager) run(ctx context.Context, job *Job, source, target *registry.Handle) {
	job.setState(StateCopying)
	m.publish(job)
	if err := m.copy(ctx, job, source, target); err != nil {
		m.fail(job, target, err)
		return
	}

	if job.opts.Verify {
		job.setState(StateVerifying)
		m.publish(job)
		if err := m.verify(ctx, job, source, target); err != nil {
			m.fail(job, target, err)
			return
		}
	}

	job.setState(StateCuttingOver)
	m.publish(job)
	// Final re-validation and swap happen atomically under the
	// capability lock; facade reads route to source until the swap lands
	// and to target immediately after, never to neither.
	err := m.reg.Swap(job.cap, job.target, func(h *registry.Handle) error {
		if err := ctx.Err(); err != nil {
			return errors.Normalize(job.target, err)
		}
		if !eligibleTarget(h.Status()) {
			return errors.TargetUnavailable(h.ID(), "status is "+h.Status().String())
		}
		return nil
	})
	if err != nil {
		m.fail(job, target, err)
		return
	}

	// Publish before clearing the in-flight slot: any observer that sees
	// the slot free also sees the terminal event in the bus log.
	job.setState(StateCompleted)
	m.publish(job)
	m.finish(job)
	m.log.Info("migration completed", logger.Fields(
		logger.FieldCapability, job.cap.String(),
		logger.FieldJobID, job.ID(),
		"copied", job.copied.Load(),
		"verified", job.verified.Load(),
	))
}

// copy bulk-transfers source state into the target with bounded
// concurrency and per-unit retries.
func (m *Manager) copy(ctx context.Context, job *Job, source, target *registry.Handle) error {
	cursor, err := source.Adapter().Export(ctx)
	if err != nil {
		return errors.Normalize(source.ID(), err)
	}
	defer cursor.Close()

	copyCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	bulkhead := resilience.NewBulkhead(m.cfg.CopyConcurrency)
	retryCfg := resilience.RetryConfig{
		MaxAttempts: m.cfg.UnitAttempts,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  time.Second,
	}

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	record := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for {
		unit, err := cursor.Next(copyCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			record(errors.Normalize(source.ID(), err))
			break
		}
		if err := bulkhead.Acquire(copyCtx); err != nil {
			record(errors.Normalize(source.ID(), err))
			break
		}

		wg.Add(1)
		go func(unit capability.Unit) {
			defer wg.Done()
			defer bulkhead.Release()

			err := resilience.RetryFunc(copyCtx, retryCfg, func() error {
				return target.Adapter().Import(copyCtx, unit)
			})
			if err != nil {
				record(errors.Normalize(target.ID(), err))
				return
			}
			job.copied.Add(1)
		}(unit)
	}
	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	return errors.Normalize(source.ID(), ctx.Err())
}

// verify compares exact record counts and, when a sample rate is
// configured, a sampled checksum between source and target.
func (m *Manager) verify(ctx context.Context, job *Job, source, target *registry.Handle) error {
	srcCount, err := source.Adapter().Count(ctx)
	if err != nil {
		return errors.Normalize(source.ID(), err)
	}
	tgtCount, err := target.Adapter().Count(ctx)
	if err != nil {
		return errors.Normalize(target.ID(), err)
	}
	if srcCount != tgtCount {
		return errors.VerificationFailed(fmt.Sprintf("record count mismatch: source=%d target=%d", srcCount, tgtCount))
	}
	job.verified.Store(tgtCount)

	if m.cfg.SampleRate <= 0 {
		return nil
	}
	spec := capability.SampleSpec{Rate: m.cfg.SampleRate, Seed: job.seed}
	srcSum, err := source.Adapter().Checksum(ctx, spec)
	if err != nil {
		return errors.Normalize(source.ID(), err)
	}
	tgtSum, err := target.Adapter().Checksum(ctx, spec)
	if err != nil {
		return errors.Normalize(target.ID(), err)
	}
	if srcSum != tgtSum {
		return errors.VerificationFailed(fmt.Sprintf("sampled checksum mismatch at rate %g", m.cfg.SampleRate))
	}
	return nil
}

// fail terminates the job. Activation never happened (it only occurs in
// CuttingOver's atomic swap), so there is no traffic to roll back —
// only optional cleanup of partially copied target data.
func (m *Manager) fail(job *Job, target *registry.Handle, reason error) {
	job.failWith(reason)
	m.log.WithError(reason).Error("migration failed", logger.Fields(
		logger.FieldCapability, job.cap.String(),
		logger.FieldJobID, job.ID(),
		logger.FieldState, string(StateFailed),
	))
	m.publish(job)

	if job.opts.RollbackOnFailure || m.cfg.PurgeOnFailure {
		purgeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := target.Adapter().Purge(purgeCtx); err != nil {
			m.log.WithError(err).Warn("target purge failed", logger.Fields(
				logger.FieldJobID, job.ID(),
				logger.FieldProvider, target.ID(),
			))
		} else if job.opts.RollbackOnFailure {
			job.setState(StateRolledBack)
			m.publish(job)
		}
	}

	m.finish(job)
}

// finish clears the in-flight slot and signals completion.
func (m *Manager) finish(job *Job) {
	m.mu.Lock()
	if m.jobs[job.cap] == job {
		delete(m.jobs, job.cap)
	}
	m.mu.Unlock()
	close(job.done)
}

func (m *Manager) publish(job *Job) {
	snap := job.Snapshot()
	m.bus.Publish(event.MigrationEvent{
		Meta:     event.NewMeta(job.cap),
		JobID:    snap.ID,
		Source:   snap.Source,
		Target:   snap.Target,
		State:    string(snap.State),
		Copied:   snap.Copied,
		Verified: snap.Verified,
		Err:      snap.Err,
	})
}

// eligibleTarget reports whether a status may receive migrated traffic:
// at least Degraded. Unknown providers have never been probed and are
// rejected until the monitor clears them.
func eligibleTarget(s registry.Status) bool {
	return s == registry.StatusHealthy || s == registry.StatusDegraded
}
