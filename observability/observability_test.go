package observability

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/kbukum/backplane/capability"
	"github.com/kbukum/backplane/event"
	"github.com/kbukum/backplane/logger"
)

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.ServiceName != "backplane" {
		t.Errorf("service name = %s, want backplane", cfg.ServiceName)
	}
	if cfg.Endpoint != "localhost:4318" {
		t.Errorf("endpoint = %s, want localhost:4318", cfg.Endpoint)
	}
	if cfg.MetricInterval != 15*time.Second {
		t.Errorf("metric interval = %s, want 15s", cfg.MetricInterval)
	}
	if cfg.TraceSampleRate != 1.0 {
		t.Errorf("sample rate = %g, want 1.0", cfg.TraceSampleRate)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{TraceSampleRate: 1.5}
	if err := cfg.Validate(); err == nil {
		t.Error("sample rate > 1 accepted")
	}
	cfg = Config{Enabled: true, TraceSampleRate: 0.5}
	if err := cfg.Validate(); err == nil {
		t.Error("enabled without endpoint accepted")
	}
}

func TestInitDisabled(t *testing.T) {
	providers, err := Init(context.Background(), Config{}, logger.Nop())
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if providers.Meter() == nil {
		t.Fatal("disabled bundle returned nil meter")
	}
	if err := providers.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

func TestNewMetrics(t *testing.T) {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	ctx := context.Background()
	m.RecordOperation(ctx, "database", "pg", "database.read", "ok", 5*time.Millisecond)
	m.RecordHealthTransition(ctx, "database", "pg", "healthy", "degraded")
	m.RecordMigrationState(ctx, "database", "completed", 42)
}

func TestRecorderConsumesEvents(t *testing.T) {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	bus := event.NewBus()
	defer bus.Close()

	rec := NewRecorder(m, bus)
	rec.Start()
	rec.Start() // idempotent

	bus.Publish(event.OperationEvent{
		Meta:      event.NewMeta(capability.Database),
		Provider:  "pg",
		Operation: "database.read",
		Latency:   time.Millisecond,
		Outcome:   "ok",
	})
	bus.Publish(event.HealthEvent{
		Meta:     event.NewMeta(capability.Database),
		Provider: "pg",
		From:     "unknown",
		To:       "healthy",
	})
	bus.Publish(event.MigrationEvent{
		Meta:   event.NewMeta(capability.Database),
		JobID:  "j1",
		State:  "completed",
		Copied: 3,
	})

	rec.Stop()
}
