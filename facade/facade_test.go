package facade

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/backplane/capability"
	"github.com/kbukum/backplane/errors"
	"github.com/kbukum/backplane/event"
	"github.com/kbukum/backplane/logger"
	"github.com/kbukum/backplane/migration"
	"github.com/kbukum/backplane/registry"
	"github.com/kbukum/backplane/testutil"
)

func newFixture(t *testing.T, cfg Config) (*Facade, *registry.Registry, *testutil.Collector) {
	t.Helper()
	reg := registry.New(logger.Nop())
	bus := event.NewBus()
	collector := testutil.NewCollector(bus)
	f := New(cfg, reg, bus, logger.Nop())
	t.Cleanup(func() {
		collector.Close()
		bus.Close()
	})
	return f, reg, collector
}

func registerHealthy(t *testing.T, reg *registry.Registry, adapter capability.Adapter, priority int) *registry.Handle {
	t.Helper()
	h, err := reg.Register(registry.Descriptor{
		ID:         adapter.Name(),
		Capability: adapter.Capability(),
		Priority:   priority,
	}, adapter)
	if err != nil {
		t.Fatalf("register %s: %v", adapter.Name(), err)
	}
	h.SetOverride(registry.StatusHealthy)
	return h
}

func TestDatabaseRoundTrip(t *testing.T) {
	f, reg, collector := newFixture(t, Config{})
	registerHealthy(t, reg, testutil.NewMemoryDatabase("pg"), 1)
	ctx := context.Background()
	db := f.Database()

	id, err := db.Create(ctx, "users", capability.Record{"name": "ada"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, err := db.Read(ctx, "users", id)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if rec["name"] != "ada" {
		t.Errorf("read name = %v, want ada", rec["name"])
	}

	if err := db.Update(ctx, "users", id, capability.Record{"name": "grace"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	recs, err := db.Query(ctx, "users", capability.Query{Filter: map[string]any{"name": "grace"}})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("query returned %d records, want 1", len(recs))
	}
	if err := db.Delete(ctx, "users", id); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := db.Read(ctx, "users", id); err == nil {
		t.Error("read of deleted record succeeded")
	}

	_, ok := collector.WaitFor(time.Second, func(e event.Event) bool {
		oe, isOp := e.(event.OperationEvent)
		return isOp && oe.Operation == "database.create" && oe.Provider == "pg" && oe.Outcome == "ok"
	})
	if !ok {
		t.Fatal("operation event for create never published")
	}
}

// flakyReads fails the first n Read calls with a transient error.
type flakyReads struct {
	*testutil.MemoryDatabase
	remaining atomic.Int32
	calls     atomic.Int32
}

func (f *flakyReads) Read(ctx context.Context, collection, id string) (capability.Record, error) {
	f.calls.Add(1)
	if f.remaining.Add(-1) >= 0 {
		return nil, fmt.Errorf("transient read failure")
	}
	return f.MemoryDatabase.Read(ctx, collection, id)
}

func TestIdempotentOperationsRetry(t *testing.T) {
	f, reg, _ := newFixture(t, Config{RetryBaseBackoff: time.Millisecond, RetryMaxBackoff: 5 * time.Millisecond})
	adapter := &flakyReads{MemoryDatabase: testutil.NewMemoryDatabase("pg")}
	adapter.remaining.Store(2)
	registerHealthy(t, reg, adapter, 1)
	ctx := context.Background()

	id, err := f.Database().Create(ctx, "users", capability.Record{"name": "ada"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	rec, err := f.Database().Read(ctx, "users", id)
	if err != nil {
		t.Fatalf("read after retries: %v", err)
	}
	if rec["name"] != "ada" {
		t.Errorf("read name = %v, want ada", rec["name"])
	}
	if got := adapter.calls.Load(); got != 3 {
		t.Errorf("read attempts = %d, want 3", got)
	}
}

// countingCreates fails every Create and counts the calls.
type countingCreates struct {
	*testutil.MemoryDatabase
	calls atomic.Int32
}

func (c *countingCreates) Create(ctx context.Context, collection string, record capability.Record) (string, error) {
	c.calls.Add(1)
	return "", fmt.Errorf("write rejected")
}

func TestNonIdempotentOperationsRunOnce(t *testing.T) {
	f, reg, _ := newFixture(t, Config{RetryBaseBackoff: time.Millisecond})
	adapter := &countingCreates{MemoryDatabase: testutil.NewMemoryDatabase("pg")}
	registerHealthy(t, reg, adapter, 1)

	_, err := f.Database().Create(context.Background(), "users", capability.Record{})
	if !errors.IsKind(err, errors.KindAdapter) {
		t.Fatalf("kind = %s, want %s", errors.KindOf(err), errors.KindAdapter)
	}
	if got := adapter.calls.Load(); got != 1 {
		t.Errorf("create attempts = %d, want exactly 1", got)
	}
}

func TestCircuitBreakerOpens(t *testing.T) {
	f, reg, _ := newFixture(t, Config{
		RetryAttempts:    1,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Minute,
	})
	adapter := testutil.NewMemoryDatabase("pg")
	adapter.SetOpErr(fmt.Errorf("backend down"))
	registerHealthy(t, reg, adapter, 1)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := f.Database().Read(ctx, "users", "x"); !errors.IsKind(err, errors.KindAdapter) {
			t.Fatalf("call %d: kind = %s, want %s", i, errors.KindOf(err), errors.KindAdapter)
		}
	}
	// Threshold reached: the circuit short-circuits without touching the
	// adapter.
	_, err := f.Database().Read(ctx, "users", "x")
	if !errors.IsKind(err, errors.KindCircuitOpen) {
		t.Fatalf("kind = %s, want %s", errors.KindOf(err), errors.KindCircuitOpen)
	}
}

func TestBreakersAreIndependentPerProvider(t *testing.T) {
	f, reg, _ := newFixture(t, Config{
		RetryAttempts:    1,
		BreakerThreshold: 1,
		BreakerCooldown:  time.Minute,
	})
	broken := testutil.NewMemoryDatabase("pg")
	broken.SetOpErr(fmt.Errorf("backend down"))
	registerHealthy(t, reg, broken, 2)
	registerHealthy(t, reg, testutil.NewMemoryDatabase("my"), 1)
	ctx := context.Background()

	_, _ = f.Database().Read(ctx, "users", "x") // opens pg's breaker
	if _, err := f.Database().Read(ctx, "users", "x"); !errors.IsKind(err, errors.KindCircuitOpen) {
		t.Fatalf("kind = %s, want %s", errors.KindOf(err), errors.KindCircuitOpen)
	}

	// A cutover to the good provider uses a fresh breaker.
	if err := reg.SetActive(capability.Database, "my", false); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if _, err := f.Database().Read(ctx, "users", "x"); errors.IsKind(err, errors.KindCircuitOpen) {
		t.Fatal("breaker state leaked across providers")
	}
}

// slowReads blocks Read until the context expires.
type slowReads struct {
	*testutil.MemoryDatabase
}

func (s *slowReads) Read(ctx context.Context, collection, id string) (capability.Record, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestPerAttemptTimeout(t *testing.T) {
	f, reg, _ := newFixture(t, Config{
		OpTimeout:        20 * time.Millisecond,
		RetryAttempts:    1,
		RetryBaseBackoff: time.Millisecond,
	})
	registerHealthy(t, reg, &slowReads{MemoryDatabase: testutil.NewMemoryDatabase("pg")}, 1)

	start := time.Now()
	_, err := f.Database().Read(context.Background(), "users", "x")
	if !errors.IsKind(err, errors.KindTimeout) {
		t.Fatalf("kind = %s, want %s", errors.KindOf(err), errors.KindTimeout)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("call took %v, the per-attempt timeout did not bound it", elapsed)
	}
}

func TestNoActiveProvider(t *testing.T) {
	f, _, _ := newFixture(t, Config{})
	_, err := f.Database().Read(context.Background(), "users", "x")
	if !errors.IsKind(err, errors.KindNotFound) {
		t.Fatalf("kind = %s, want %s", errors.KindOf(err), errors.KindNotFound)
	}
}

// handOff always fails reads and moves the binding to its successor on
// the first failure, exercising per-attempt re-resolution.
type handOff struct {
	*testutil.MemoryDatabase
	reg  *registry.Registry
	next string
	once sync.Once
}

func (h *handOff) Read(ctx context.Context, collection, id string) (capability.Record, error) {
	h.once.Do(func() {
		_ = h.reg.SetActive(capability.Database, h.next, false)
	})
	return nil, fmt.Errorf("draining")
}

func TestRetryFollowsCutover(t *testing.T) {
	f, reg, _ := newFixture(t, Config{RetryBaseBackoff: time.Millisecond, RetryMaxBackoff: 5 * time.Millisecond})
	old := &handOff{MemoryDatabase: testutil.NewMemoryDatabase("old"), reg: reg, next: "new"}
	replacement := testutil.NewMemoryDatabase("new")
	registerHealthy(t, reg, old, 2)
	registerHealthy(t, reg, replacement, 1)
	ctx := context.Background()

	if _, err := replacement.Create(ctx, "users", capability.Record{"id": "u1", "name": "ada"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec, err := f.Database().Read(ctx, "users", "u1")
	if err != nil {
		t.Fatalf("read: %v (retry did not follow the cutover)", err)
	}
	if rec["name"] != "ada" {
		t.Errorf("name = %v, want ada", rec["name"])
	}
}

func TestNoDowntimeDuringMigration(t *testing.T) {
	reg := registry.New(logger.Nop())
	bus := event.NewBus()
	defer bus.Close()
	f := New(Config{RetryBaseBackoff: time.Millisecond}, reg, bus, logger.Nop())
	mgr := migration.NewManager(migration.Config{}, reg, bus, logger.Nop())
	defer mgr.Close()

	source := testutil.NewMemoryDatabase("pg")
	target := testutil.NewMemoryDatabase("my")
	registerHealthy(t, reg, source, 2)
	registerHealthy(t, reg, target, 1)
	ctx := context.Background()

	ids := make([]string, 50)
	for i := range ids {
		id, err := f.Database().Create(ctx, "users", capability.Record{"name": fmt.Sprintf("u%d", i)})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}
		ids[i] = id
	}

	stop := make(chan struct{})
	var failures atomic.Int32
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; ; i++ {
				select {
				case <-stop:
					return
				default:
				}
				if _, err := f.Database().Read(ctx, "users", ids[i%len(ids)]); err != nil {
					failures.Add(1)
				}
			}
		}()
	}

	job, err := mgr.Request(capability.Database, "my", migration.Options{Verify: true})
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	waitCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := job.Wait(waitCtx); err != nil {
		t.Fatalf("migration did not finish: %v", err)
	}
	close(stop)
	wg.Wait()

	if got := job.State(); got != migration.StateCompleted {
		t.Fatalf("migration state = %s, want completed (err: %v)", got, job.Err())
	}
	if n := failures.Load(); n != 0 {
		t.Fatalf("%d reads failed during cutover, want 0", n)
	}
	active, err := reg.Active(capability.Database)
	if err != nil {
		t.Fatalf("active: %v", err)
	}
	if active.ID() != "my" {
		t.Errorf("active = %s, want my", active.ID())
	}
}

func TestAuthSurface(t *testing.T) {
	f, reg, _ := newFixture(t, Config{})
	registerHealthy(t, reg, testutil.NewMemoryAuth("keycloak", []byte("secret")), 1)
	ctx := context.Background()
	auth := f.Auth()

	sess, err := auth.SignUp(ctx, capability.Credentials{Email: "ada@example.com", Password: "hunter2"})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	id, err := auth.Verify(ctx, sess.Token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if id.Email != "ada@example.com" {
		t.Errorf("email = %s, want ada@example.com", id.Email)
	}
	if err := auth.SignOut(ctx, sess.Token); err != nil {
		t.Fatalf("signout: %v", err)
	}
	if _, err := auth.Verify(ctx, sess.Token); err == nil {
		t.Error("revoked token verified")
	}
	if _, err := auth.SignIn(ctx, capability.Credentials{Email: "ada@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("signin: %v", err)
	}
}

func TestStorageAndRealTimeSurfaces(t *testing.T) {
	f, reg, _ := newFixture(t, Config{})
	registerHealthy(t, reg, testutil.NewMemoryStorage("s3"), 1)
	registerHealthy(t, reg, testutil.NewMemoryRealTime("ably"), 1)
	ctx := context.Background()

	st := f.Storage()
	if err := st.Upload(ctx, capability.Object{Bucket: "b", Key: "k", Data: []byte("v")}); err != nil {
		t.Fatalf("upload: %v", err)
	}
	obj, err := st.Download(ctx, "b", "k")
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(obj.Data) != "v" {
		t.Errorf("data = %q, want v", obj.Data)
	}
	infos, err := st.List(ctx, "b", "")
	if err != nil || len(infos) != 1 {
		t.Fatalf("list = %v, %v; want one object", infos, err)
	}
	if err := st.Remove(ctx, "b", "k"); err != nil {
		t.Fatalf("remove: %v", err)
	}

	rt := f.RealTime()
	sub, err := rt.Subscribe(ctx, "updates")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := rt.Publish(ctx, "updates", capability.Message{Data: []byte("hello")}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case msg := <-sub.C():
		if string(msg.Data) != "hello" {
			t.Errorf("message = %q, want hello", msg.Data)
		}
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}
	if err := rt.Unsubscribe(sub); err != nil {
		t.Errorf("unsubscribe: %v", err)
	}
}

func TestEdgeFunctionSurface(t *testing.T) {
	f, reg, _ := newFixture(t, Config{})
	edge := testutil.NewMemoryEdge("workers")
	edge.Deploy("echo", []byte("export default echo"), func(payload []byte) ([]byte, error) {
		return payload, nil
	})
	registerHealthy(t, reg, edge, 1)

	out, err := f.EdgeFunction().Invoke(context.Background(), "echo", []byte("ping"))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if string(out) != "ping" {
		t.Errorf("out = %q, want ping", out)
	}
}

// abandoningReads cancels the caller's context mid-call while abandon
// is set, simulating a client that gives up on in-flight requests.
type abandoningReads struct {
	*testutil.MemoryDatabase
	abandon atomic.Bool
	cancel  context.CancelFunc
}

func (a *abandoningReads) Read(ctx context.Context, collection, id string) (capability.Record, error) {
	if a.abandon.Load() {
		a.cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return a.MemoryDatabase.Read(ctx, collection, id)
}

func TestCallerCancellationDoesNotTripBreaker(t *testing.T) {
	f, reg, _ := newFixture(t, Config{
		RetryAttempts:    1,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Minute,
	})
	adapter := &abandoningReads{MemoryDatabase: testutil.NewMemoryDatabase("pg")}
	registerHealthy(t, reg, adapter, 1)
	if _, err := adapter.MemoryDatabase.Create(context.Background(), "users", capability.Record{"id": "u1"}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	adapter.abandon.Store(true)
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		adapter.cancel = cancel
		_, err := f.Database().Read(ctx, "users", "u1")
		if !errors.IsKind(err, errors.KindCancelled) {
			t.Fatalf("call %d: kind = %s, want %s", i, errors.KindOf(err), errors.KindCancelled)
		}
		cancel()
	}

	// Well past the threshold, yet the provider never failed: the
	// circuit must still admit calls.
	adapter.abandon.Store(false)
	if _, err := f.Database().Read(context.Background(), "users", "u1"); err != nil {
		t.Fatalf("read after abandoned calls: %v", err)
	}
}
