package facade

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"github.com/kbukum/backplane/capability"
	"github.com/kbukum/backplane/errors"
	"github.com/kbukum/backplane/event"
	"github.com/kbukum/backplane/logger"
	"github.com/kbukum/backplane/registry"
	"github.com/kbukum/backplane/resilience"
)

// Facade is the unified operation surface over whichever provider is
// currently active per capability. Callers never see provider identity
// in the API; a cutover between two calls, or between two retry
// attempts of the same call, is invisible except through events.
//
// Each call resolves the active handle fresh per attempt, so a retry
// that started against the old provider lands on the new one after a
// cutover. Every call runs through the target handle's circuit breaker
// and, for idempotent operations only, a bounded backoff retry.
type Facade struct {
	cfg Config
	reg *registry.Registry
	bus *event.Bus
	log *logger.Logger

	mu       sync.Mutex
	breakers map[string]*resilience.Breaker
}

// New creates the facade over the registry, publishing operation events
// on bus.
func New(cfg Config, reg *registry.Registry, bus *event.Bus, log *logger.Logger) *Facade {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	return &Facade{
		cfg:      cfg,
		reg:      reg,
		bus:      bus,
		log:      log.WithComponent("facade"),
		breakers: make(map[string]*resilience.Breaker),
	}
}

// Database returns the database operation surface.
func (f *Facade) Database() *Database { return &Database{f: f} }

// Auth returns the auth operation surface.
func (f *Facade) Auth() *Auth { return &Auth{f: f} }

// Storage returns the object storage operation surface.
func (f *Facade) Storage() *Storage { return &Storage{f: f} }

// RealTime returns the real-time messaging operation surface.
func (f *Facade) RealTime() *RealTime { return &RealTime{f: f} }

// EdgeFunction returns the edge function operation surface.
func (f *Facade) EdgeFunction() *EdgeFunction { return &EdgeFunction{f: f} }

// do runs one logical operation: resolve the active handle, guard the
// attempt with the handle's breaker and the per-attempt timeout, retry
// per policy, and publish the OperationEvent for the final outcome.
func (f *Facade) do(ctx context.Context, cap capability.Capability, op string, idempotent bool, fn func(ctx context.Context, adapter capability.Adapter) error) error {
	start := time.Now()
	lastProvider := ""

	attempt := func() error {
		h, err := f.reg.Active(cap)
		if err != nil {
			return err
		}
		lastProvider = h.ID()

		br := f.breaker(cap, h.ID())
		err = br.Execute(func() error {
			actx, cancel := context.WithTimeout(ctx, f.cfg.OpTimeout)
			defer cancel()
			return fn(actx, h.Adapter())
		})
		if stderrors.Is(err, resilience.ErrCircuitOpen) {
			return errors.CircuitOpen(h.ID())
		}
		return errors.Normalize(h.ID(), err)
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts: f.cfg.RetryAttempts,
		BaseBackoff: f.cfg.RetryBaseBackoff,
		MaxBackoff:  f.cfg.RetryMaxBackoff,
		Jitter:      0.1,
		RetryIf:     errors.IsRetryable,
		OnRetry: func(n int, err error, backoff time.Duration) {
			f.log.WithError(err).Debug("retrying operation", logger.Fields(
				logger.FieldCapability, cap.String(),
				logger.FieldOperation, op,
				logger.FieldAttempt, n,
				"backoff", backoff.String(),
			))
		},
	}
	if !idempotent {
		retryCfg.MaxAttempts = 1
	}

	err := resilience.RetryFunc(ctx, retryCfg, attempt)
	err = errors.Normalize(lastProvider, err)
	f.publish(cap, lastProvider, op, time.Since(start), err)
	return err
}

// breaker returns (creating on first use) the circuit breaker guarding
// one provider handle.
func (f *Facade) breaker(cap capability.Capability, providerID string) *resilience.Breaker {
	key := cap.String() + "/" + providerID
	f.mu.Lock()
	defer f.mu.Unlock()
	br, ok := f.breakers[key]
	if !ok {
		cfg := resilience.DefaultBreakerConfig(key)
		cfg.FailureThreshold = f.cfg.BreakerThreshold
		cfg.Cooldown = f.cfg.BreakerCooldown
		// A caller abandoning its own request is not a provider failure.
		cfg.IgnoreErr = func(err error) bool {
			return stderrors.Is(err, context.Canceled)
		}
		cfg.OnStateChange = func(name string, from, to resilience.State) {
			f.log.Warn("circuit breaker state change", logger.Fields(
				logger.FieldProvider, name,
				"from", from.String(),
				"to", to.String(),
			))
		}
		br = resilience.NewBreaker(cfg)
		f.breakers[key] = br
	}
	return br
}

func (f *Facade) publish(cap capability.Capability, provider, op string, latency time.Duration, err error) {
	outcome := "ok"
	errMsg := ""
	if err != nil {
		outcome = "error"
		errMsg = err.Error()
	}
	f.bus.Publish(event.OperationEvent{
		Meta:      event.NewMeta(cap),
		Provider:  provider,
		Operation: op,
		Latency:   latency,
		Outcome:   outcome,
		Err:       errMsg,
	})
}
