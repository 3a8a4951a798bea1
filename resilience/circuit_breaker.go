package resilience

import (
	"errors"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed allows requests to pass through.
	StateClosed State = iota
	// StateOpen short-circuits all requests.
	StateOpen
	// StateHalfOpen allows a single trial request to test recovery.
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is short-circuited. The facade
// maps it to the CircuitOpen error kind with the provider attached.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// Name identifies the guarded provider for logging.
	Name string
	// FailureThreshold is the number of consecutive failures before the
	// circuit opens.
	FailureThreshold int
	// Cooldown is how long the circuit stays open before half-opening.
	Cooldown time.Duration
	// HalfOpenMaxCalls is the number of trial calls allowed in half-open
	// state.
	HalfOpenMaxCalls int
	// OnStateChange is called when the state changes.
	OnStateChange func(name string, from, to State)
	// IgnoreErr reports errors that count neither as failures nor as
	// successes, such as caller-side cancellations that say nothing
	// about the guarded target's health.
	IgnoreErr func(error) bool
}

// DefaultBreakerConfig returns the facade defaults: open after 5
// consecutive failures, cool down 30s, one half-open trial.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// Breaker is a per-provider circuit breaker. It tracks consecutive
// failures observed at the call site, independently of (but informed by
// the same failures as) the health monitor.
type Breaker struct {
	config BreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	openedAt      time.Time
	halfOpenCalls int
}

// NewBreaker creates a circuit breaker in the closed state.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = 1
	}
	return &Breaker{config: config, state: StateClosed}
}

// Execute runs fn through the breaker. Returns ErrCircuitOpen without
// calling fn if the circuit is open or the half-open trial slot is taken.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}
	err := fn()
	b.record(err)
	return err
}

// State returns the current state, accounting for cooldown expiry.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentLocked()
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset returns the breaker to the closed state with counters cleared.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionLocked(StateClosed)
	b.failures = 0
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.currentLocked() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if b.halfOpenCalls < b.config.HalfOpenMaxCalls {
			b.halfOpenCalls++
			return true
		}
		return false
	default:
		return false
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil && b.config.IgnoreErr != nil && b.config.IgnoreErr(err) {
		// Release the half-open trial slot so the next call can probe.
		if b.state == StateHalfOpen && b.halfOpenCalls > 0 {
			b.halfOpenCalls--
		}
		return
	}

	if err == nil {
		switch b.currentLocked() {
		case StateClosed:
			b.failures = 0
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.config.HalfOpenMaxCalls {
				b.transitionLocked(StateClosed)
			}
		}
		return
	}

	b.failures++
	switch b.currentLocked() {
	case StateClosed:
		if b.failures >= b.config.FailureThreshold {
			b.openedAt = time.Now()
			b.transitionLocked(StateOpen)
		}
	case StateHalfOpen:
		// Trial failed, back to open for another cooldown.
		b.openedAt = time.Now()
		b.transitionLocked(StateOpen)
	}
}

// currentLocked resolves cooldown expiry into a half-open transition.
func (b *Breaker) currentLocked() State {
	if b.state == StateOpen && time.Since(b.openedAt) >= b.config.Cooldown {
		b.transitionLocked(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) transitionLocked(to State) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to

	switch to {
	case StateClosed:
		b.failures = 0
		b.successes = 0
		b.halfOpenCalls = 0
	case StateHalfOpen, StateOpen:
		b.successes = 0
		b.halfOpenCalls = 0
	}

	if b.config.OnStateChange != nil {
		b.config.OnStateChange(b.config.Name, from, to)
	}
}
