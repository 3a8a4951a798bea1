package migration

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/kbukum/backplane/capability"
	"github.com/kbukum/backplane/errors"
	"github.com/kbukum/backplane/event"
	"github.com/kbukum/backplane/logger"
	"github.com/kbukum/backplane/registry"
	"github.com/kbukum/backplane/testutil"
)

func newTestManager(t *testing.T) (*Manager, *registry.Registry, *event.Bus) {
	t.Helper()
	reg := registry.New(logger.Nop())
	bus := event.NewBus()
	mgr := NewManager(Config{CancelGrace: 2 * time.Second}, reg, bus, logger.Nop())
	t.Cleanup(func() {
		mgr.Close()
		bus.Close()
	})
	return mgr, reg, bus
}

func registerHealthy(t *testing.T, reg *registry.Registry, id string, priority int, adapter capability.Adapter) *registry.Handle {
	t.Helper()
	h, err := reg.Register(registry.Descriptor{
		ID:         id,
		Capability: adapter.Capability(),
		Priority:   priority,
	}, adapter)
	if err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	h.SetOverride(registry.StatusHealthy)
	return h
}

func seedRecords(t *testing.T, db *testutil.MemoryDatabase, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := db.Create(context.Background(), "users", capability.Record{
			"id":   fmt.Sprintf("u%03d", i),
			"name": fmt.Sprintf("user %d", i),
		})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func waitTerminal(t *testing.T, job *Job) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := job.Wait(ctx); err != nil {
		t.Fatalf("job %s did not terminate: %v", job.ID(), err)
	}
}

func TestMigrationLifecycle(t *testing.T) {
	mgr, reg, bus := newTestManager(t)
	collector := testutil.NewCollector(bus)
	defer collector.Close()

	source := testutil.NewMemoryDatabase("pg-primary")
	target := testutil.NewMemoryDatabase("my-standby")
	seedRecords(t, source, 25)
	registerHealthy(t, reg, "pg-primary", 10, source)
	registerHealthy(t, reg, "my-standby", 5, target)

	job, err := mgr.Request(capability.Database, "my-standby", Options{Verify: true})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	waitTerminal(t, job)

	if got := job.State(); got != StateCompleted {
		t.Fatalf("state = %s, want %s (err: %v)", got, StateCompleted, job.Err())
	}
	if target.Len() != 25 {
		t.Errorf("target has %d records, want 25", target.Len())
	}
	active, err := reg.Active(capability.Database)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.ID() != "my-standby" {
		t.Errorf("active = %s, want my-standby", active.ID())
	}

	snap := job.Snapshot()
	if snap.Copied != 25 || snap.Verified != 25 {
		t.Errorf("progress copied=%d verified=%d, want 25/25", snap.Copied, snap.Verified)
	}

	_, ok := collector.WaitFor(2*time.Second, func(e event.Event) bool {
		me, isMig := e.(event.MigrationEvent)
		return isMig && me.JobID == job.ID() && me.State == string(StateCompleted)
	})
	if !ok {
		t.Fatal("completed event never published")
	}
	want := []string{"planned", "copying", "verifying", "cuttingover", "completed"}
	got := collector.MigrationStates(job.ID())
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
}

func TestMigrationSkipVerify(t *testing.T) {
	mgr, reg, _ := newTestManager(t)

	source := testutil.NewMemoryStorage("s3")
	target := testutil.NewMemoryStorage("gcs")
	if err := source.Upload(context.Background(), capability.Object{
		Bucket: "assets", Key: "logo.png", Data: []byte("png"),
	}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	registerHealthy(t, reg, "s3", 1, source)
	registerHealthy(t, reg, "gcs", 1, target)

	job, err := mgr.Request(capability.Storage, "gcs", Options{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	waitTerminal(t, job)

	if got := job.State(); got != StateCompleted {
		t.Fatalf("state = %s, want %s (err: %v)", got, StateCompleted, job.Err())
	}
	if snap := job.Snapshot(); snap.Verified != 0 {
		t.Errorf("verified = %d, want 0 when verification is skipped", snap.Verified)
	}
}

func TestMigrationRequestValidation(t *testing.T) {
	mgr, reg, _ := newTestManager(t)

	source := testutil.NewMemoryDatabase("pg")
	registerHealthy(t, reg, "pg", 1, source)

	if _, err := mgr.Request(capability.Database, "missing", Options{}); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("unknown target: kind = %s, want %s", errors.KindOf(err), errors.KindNotFound)
	}
	if _, err := mgr.Request(capability.Database, "pg", Options{}); !errors.IsKind(err, errors.KindTargetUnavailable) {
		t.Errorf("target==active: kind = %s, want %s", errors.KindOf(err), errors.KindTargetUnavailable)
	}

	// Never-probed providers are not valid targets.
	unknown := testutil.NewMemoryDatabase("my")
	if _, err := reg.Register(registry.Descriptor{ID: "my", Capability: capability.Database}, unknown); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := mgr.Request(capability.Database, "my", Options{}); !errors.IsKind(err, errors.KindTargetUnavailable) {
		t.Errorf("unknown status target: kind = %s, want %s", errors.KindOf(err), errors.KindTargetUnavailable)
	}
	if _, err := mgr.Request(capability.Auth, "any", Options{}); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("empty capability: kind = %s, want %s", errors.KindOf(err), errors.KindNotFound)
	}
}

// gatedDatabase blocks every Import until the gate is opened, so tests
// can hold a job mid-copy.
type gatedDatabase struct {
	*testutil.MemoryDatabase
	gate chan struct{}
}

func newGatedDatabase(name string) *gatedDatabase {
	return &gatedDatabase{
		MemoryDatabase: testutil.NewMemoryDatabase(name),
		gate:           make(chan struct{}),
	}
}

func (g *gatedDatabase) Import(ctx context.Context, unit capability.Unit) error {
	select {
	case <-g.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	return g.MemoryDatabase.Import(ctx, unit)
}

func TestMigrationSingleInFlight(t *testing.T) {
	mgr, reg, _ := newTestManager(t)

	source := testutil.NewMemoryDatabase("pg")
	target := newGatedDatabase("my")
	other := testutil.NewMemoryDatabase("crdb")
	seedRecords(t, source, 5)
	registerHealthy(t, reg, "pg", 3, source)
	registerHealthy(t, reg, "my", 2, target)
	registerHealthy(t, reg, "crdb", 1, other)

	job, err := mgr.Request(capability.Database, "my", Options{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := mgr.Request(capability.Database, "crdb", Options{}); !errors.IsKind(err, errors.KindMigrationInProgress) {
		t.Errorf("second request: kind = %s, want %s", errors.KindOf(err), errors.KindMigrationInProgress)
	}

	close(target.gate)
	waitTerminal(t, job)

	// The slot frees once the first job terminates.
	job2, err := mgr.Request(capability.Database, "crdb", Options{})
	if err != nil {
		t.Fatalf("request after completion: %v", err)
	}
	waitTerminal(t, job2)
}

func TestMigrationVerificationFailureRollsBack(t *testing.T) {
	mgr, reg, _ := newTestManager(t)

	source := testutil.NewMemoryDatabase("pg")
	target := testutil.NewMemoryDatabase("my")
	seedRecords(t, source, 10)
	// Pre-existing target data the copy does not overwrite makes the
	// count comparison fail.
	if _, err := target.Create(context.Background(), "stale", capability.Record{"id": "zombie"}); err != nil {
		t.Fatalf("pre-seed target: %v", err)
	}
	registerHealthy(t, reg, "pg", 2, source)
	registerHealthy(t, reg, "my", 1, target)

	job, err := mgr.Request(capability.Database, "my", Options{Verify: true, RollbackOnFailure: true})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	waitTerminal(t, job)

	if got := job.State(); got != StateRolledBack {
		t.Fatalf("state = %s, want %s", got, StateRolledBack)
	}
	if !errors.IsKind(job.Err(), errors.KindVerificationFailed) {
		t.Errorf("err kind = %s, want %s", errors.KindOf(job.Err()), errors.KindVerificationFailed)
	}
	if target.Len() != 0 {
		t.Errorf("target has %d records after rollback, want 0", target.Len())
	}
	active, err := reg.Active(capability.Database)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.ID() != "pg" {
		t.Errorf("active = %s, want pg (binding must not move on failure)", active.ID())
	}
}

func TestMigrationVerificationFailureKeepsDataByDefault(t *testing.T) {
	mgr, reg, _ := newTestManager(t)

	source := testutil.NewMemoryDatabase("pg")
	target := testutil.NewMemoryDatabase("my")
	seedRecords(t, source, 4)
	if _, err := target.Create(context.Background(), "stale", capability.Record{"id": "zombie"}); err != nil {
		t.Fatalf("pre-seed target: %v", err)
	}
	registerHealthy(t, reg, "pg", 2, source)
	registerHealthy(t, reg, "my", 1, target)

	job, err := mgr.Request(capability.Database, "my", Options{Verify: true})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	waitTerminal(t, job)

	if got := job.State(); got != StateFailed {
		t.Fatalf("state = %s, want %s", got, StateFailed)
	}
	if target.Len() == 0 {
		t.Error("partial target data purged without a rollback request")
	}
}

func TestMigrationCutoverRechecksTargetHealth(t *testing.T) {
	mgr, reg, _ := newTestManager(t)

	source := testutil.NewMemoryDatabase("pg")
	target := newGatedDatabase("my")
	seedRecords(t, source, 3)
	registerHealthy(t, reg, "pg", 2, source)
	th := registerHealthy(t, reg, "my", 1, target)

	job, err := mgr.Request(capability.Database, "my", Options{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// Target goes down while the copy is held at the gate; the swap's
	// final check must refuse to activate it.
	th.SetOverride(registry.StatusUnhealthy)
	close(target.gate)
	waitTerminal(t, job)

	if got := job.State(); got != StateFailed {
		t.Fatalf("state = %s, want %s", got, StateFailed)
	}
	if !errors.IsKind(job.Err(), errors.KindTargetUnavailable) {
		t.Errorf("err kind = %s, want %s", errors.KindOf(job.Err()), errors.KindTargetUnavailable)
	}
	active, err := reg.Active(capability.Database)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.ID() != "pg" {
		t.Errorf("active = %s, want pg", active.ID())
	}
}

// flakyDatabase fails the first n Imports, then behaves normally.
type flakyDatabase struct {
	*testutil.MemoryDatabase

	mu        sync.Mutex
	remaining int
}

func (f *flakyDatabase) Import(ctx context.Context, unit capability.Unit) error {
	f.mu.Lock()
	fail := f.remaining > 0
	if fail {
		f.remaining--
	}
	f.mu.Unlock()
	if fail {
		return fmt.Errorf("transient write failure")
	}
	return f.MemoryDatabase.Import(ctx, unit)
}

func TestMigrationRetriesCopyUnits(t *testing.T) {
	mgr, reg, _ := newTestManager(t)

	source := testutil.NewMemoryDatabase("pg")
	target := &flakyDatabase{MemoryDatabase: testutil.NewMemoryDatabase("my"), remaining: 2}
	seedRecords(t, source, 8)
	registerHealthy(t, reg, "pg", 2, source)
	registerHealthy(t, reg, "my", 1, target)

	job, err := mgr.Request(capability.Database, "my", Options{Verify: true})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	waitTerminal(t, job)

	if got := job.State(); got != StateCompleted {
		t.Fatalf("state = %s, want %s (err: %v)", got, StateCompleted, job.Err())
	}
	if target.Len() != 8 {
		t.Errorf("target has %d records, want 8", target.Len())
	}
}

func TestMigrationCancel(t *testing.T) {
	mgr, reg, _ := newTestManager(t)

	source := testutil.NewMemoryDatabase("pg")
	target := newGatedDatabase("my")
	seedRecords(t, source, 6)
	registerHealthy(t, reg, "pg", 2, source)
	registerHealthy(t, reg, "my", 1, target)

	job, err := mgr.Request(capability.Database, "my", Options{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := mgr.Cancel(capability.Database); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	if got := job.State(); got != StateFailed {
		t.Fatalf("state = %s, want %s", got, StateFailed)
	}
	if !errors.IsKind(job.Err(), errors.KindCancelled) {
		t.Errorf("err kind = %s, want %s", errors.KindOf(job.Err()), errors.KindCancelled)
	}
	active, err := reg.Active(capability.Database)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.ID() != "pg" {
		t.Errorf("active = %s, want pg", active.ID())
	}

	if err := mgr.Cancel(capability.Database); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("cancel with nothing in flight: kind = %s, want %s", errors.KindOf(err), errors.KindNotFound)
	}
}

func TestMigrationCurrent(t *testing.T) {
	mgr, reg, _ := newTestManager(t)

	if _, ok := mgr.Current(capability.Database); ok {
		t.Fatal("current reported a job before any request")
	}

	source := testutil.NewMemoryDatabase("pg")
	target := testutil.NewMemoryDatabase("my")
	seedRecords(t, source, 2)
	registerHealthy(t, reg, "pg", 2, source)
	registerHealthy(t, reg, "my", 1, target)

	job, err := mgr.Request(capability.Database, "my", Options{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	waitTerminal(t, job)

	got, ok := mgr.Current(capability.Database)
	if !ok || got.ID() != job.ID() {
		t.Fatalf("current = %v/%v, want job %s", got, ok, job.ID())
	}
	if !got.State().Terminal() {
		t.Errorf("current job state %s not terminal", got.State())
	}
}

func TestMigrationCancelDuringCutoverReportsCancelled(t *testing.T) {
	mgr, reg, _ := newTestManager(t)

	source := testutil.NewMemoryDatabase("pg")
	target := newGatedDatabase("my")
	seedRecords(t, source, 1)
	registerHealthy(t, reg, "pg", 2, source)
	registerHealthy(t, reg, "my", 1, target)

	job, err := mgr.Request(capability.Database, "my", Options{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// Park a rival swap inside the capability lock so the job's own
	// cutover cannot run until we let go.
	entered := make(chan struct{})
	hold := make(chan struct{})
	go func() {
		_ = reg.Swap(capability.Database, "pg", func(h *registry.Handle) error {
			close(entered)
			<-hold
			return fmt.Errorf("holding the lock")
		})
	}()
	<-entered

	close(target.gate)
	deadline := time.Now().Add(2 * time.Second)
	for job.State() != StateCuttingOver {
		if time.Now().After(deadline) {
			t.Fatalf("job never reached cutover; state = %s", job.State())
		}
		time.Sleep(2 * time.Millisecond)
	}

	// Cancelled while waiting on the capability lock: the cutover check
	// must observe it and surface the taxonomy kind, not a raw context
	// error.
	job.cancel()
	close(hold)
	waitTerminal(t, job)

	if got := job.State(); got != StateFailed {
		t.Fatalf("state = %s, want %s", got, StateFailed)
	}
	if !errors.IsKind(job.Err(), errors.KindCancelled) {
		t.Errorf("err = %v (kind %s), want kind %s", job.Err(), errors.KindOf(job.Err()), errors.KindCancelled)
	}
	active, err := reg.Active(capability.Database)
	if err != nil || active.ID() != "pg" {
		t.Errorf("active = %v, %v; want pg", active, err)
	}
}

func TestMigrationTerminalEventLoggedBeforeWaitReturns(t *testing.T) {
	mgr, reg, bus := newTestManager(t)

	source := testutil.NewMemoryDatabase("pg")
	target := testutil.NewMemoryDatabase("my")
	seedRecords(t, source, 3)
	registerHealthy(t, reg, "pg", 2, source)
	registerHealthy(t, reg, "my", 1, target)

	job, err := mgr.Request(capability.Database, "my", Options{})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	waitTerminal(t, job)

	// Wait returning means the in-flight slot is free; by then the
	// terminal event must already sit in the bus log, so an observer
	// that sees the slot open can also see why.
	found := false
	for _, e := range bus.Log(capability.Database) {
		if me, ok := e.(event.MigrationEvent); ok && me.JobID == job.ID() && me.State == string(StateCompleted) {
			found = true
		}
	}
	if !found {
		t.Fatal("completed event not in the bus log when Wait returned")
	}

	job2, err := mgr.Request(capability.Database, "pg", Options{})
	if err != nil {
		t.Fatalf("follow-up request: %v", err)
	}
	waitTerminal(t, job2)
}
