package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kbukum/backplane/event"
)

// Metrics holds the instrument bundle for the orchestration core.
type Metrics struct {
	operationTotal     metric.Int64Counter
	operationDuration  metric.Float64Histogram
	healthTransitions  metric.Int64Counter
	migrationJobs      metric.Int64Counter
	migrationUnitsDone metric.Int64Counter
}

// NewMetrics creates the instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	operationTotal, err := meter.Int64Counter("backplane.operation.total",
		metric.WithDescription("Facade operations by capability, provider, operation, and outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating operation.total counter: %w", err)
	}
	operationDuration, err := meter.Float64Histogram("backplane.operation.duration",
		metric.WithDescription("Facade operation duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating operation.duration histogram: %w", err)
	}
	healthTransitions, err := meter.Int64Counter("backplane.health.transitions",
		metric.WithDescription("Provider health-state transitions"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating health.transitions counter: %w", err)
	}
	migrationJobs, err := meter.Int64Counter("backplane.migration.jobs",
		metric.WithDescription("Migration job state entries"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating migration.jobs counter: %w", err)
	}
	migrationUnitsDone, err := meter.Int64Counter("backplane.migration.units_copied",
		metric.WithDescription("Transfer units copied by completed or failed jobs"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating migration.units_copied counter: %w", err)
	}

	return &Metrics{
		operationTotal:     operationTotal,
		operationDuration:  operationDuration,
		healthTransitions:  healthTransitions,
		migrationJobs:      migrationJobs,
		migrationUnitsDone: migrationUnitsDone,
	}, nil
}

// RecordOperation records one facade operation.
func (m *Metrics) RecordOperation(ctx context.Context, capability, provider, operation, outcome string, duration time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("provider", provider),
		attribute.String("operation", operation),
		attribute.String("outcome", outcome),
	)
	m.operationTotal.Add(ctx, 1, attrs)
	m.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("operation", operation),
	))
}

// RecordHealthTransition records one provider status change.
func (m *Metrics) RecordHealthTransition(ctx context.Context, capability, provider, from, to string) {
	m.healthTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("provider", provider),
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordMigrationState records a migration job entering a state.
func (m *Metrics) RecordMigrationState(ctx context.Context, capability, state string, copied int64) {
	m.migrationJobs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("capability", capability),
		attribute.String("state", state),
	))
	if copied > 0 {
		m.migrationUnitsDone.Add(ctx, copied, metric.WithAttributes(
			attribute.String("capability", capability),
			attribute.String("state", state),
		))
	}
}

// Recorder consumes the event bus and feeds the Metrics bundle, keeping
// the core packages free of any telemetry dependency.
type Recorder struct {
	metrics *Metrics
	bus     *event.Bus

	mu  sync.Mutex
	sub *event.Subscription
	wg  sync.WaitGroup
}

// NewRecorder creates a recorder over bus.
func NewRecorder(metrics *Metrics, bus *event.Bus) *Recorder {
	return &Recorder{metrics: metrics, bus: bus}
}

// Start begins consuming events.
func (r *Recorder) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sub != nil {
		return
	}
	r.sub = r.bus.Subscribe()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ctx := context.Background()
		for e := range r.sub.C() {
			switch ev := e.(type) {
			case event.OperationEvent:
				r.metrics.RecordOperation(ctx, ev.Envelope().Capability.String(),
					ev.Provider, ev.Operation, ev.Outcome, ev.Latency)
			case event.HealthEvent:
				r.metrics.RecordHealthTransition(ctx, ev.Envelope().Capability.String(),
					ev.Provider, ev.From, ev.To)
			case event.MigrationEvent:
				r.metrics.RecordMigrationState(ctx, ev.Envelope().Capability.String(),
					ev.State, ev.Copied)
			}
		}
	}()
}

// Stop detaches from the bus and drains the consumer.
func (r *Recorder) Stop() {
	r.mu.Lock()
	sub := r.sub
	r.sub = nil
	r.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
	r.wg.Wait()
}
