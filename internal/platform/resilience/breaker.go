package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/riskcore/riskcore/internal/platform/apperr"
)

// BreakerState is the state of a single dependency's circuit.
type BreakerState string

const (
	StateClosed   BreakerState = "closed"
	StateOpen     BreakerState = "open"
	StateHalfOpen BreakerState = "half-open"
)

// CircuitBreakerConfig holds circuit breaker settings shared by all
// dependencies tracked by one breaker.
type CircuitBreakerConfig struct {
	FailureThreshold int
	OpenTimeout      time.Duration
}

// DefaultCircuitBreakerConfig returns the default breaker settings.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

type circuit struct {
	state               BreakerState
	consecutiveFailures int
	lastFailure         time.Time
}

// CircuitBreaker tracks one circuit per dependency name. Circuits are created
// lazily in the closed state on first use.
//
// Transitions: closed -> open after FailureThreshold consecutive failures;
// open -> half-open once OpenTimeout has elapsed since the last failure;
// half-open -> closed on the next success, half-open -> open on the next
// failure. While open, calls fail fast without invoking the operation.
type CircuitBreaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	cfg      CircuitBreakerConfig
	now      func() time.Time
}

// NewCircuitBreaker creates a CircuitBreaker with the given configuration.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &CircuitBreaker{
		circuits: make(map[string]*circuit),
		cfg:      cfg,
		now:      time.Now,
	}
}

// Execute runs fn guarded by the circuit for dependency. When the circuit is
// open it returns a ServiceUnavailableError without invoking fn. Permanent
// domain errors count as successful round trips for circuit health.
func (cb *CircuitBreaker) Execute(ctx context.Context, dependency string, fn func(context.Context) error) error {
	if err := cb.beforeCall(dependency); err != nil {
		return err
	}
	err := fn(ctx)
	cb.afterCall(dependency, err == nil || apperr.IsPermanent(err))
	return err
}

func (cb *CircuitBreaker) beforeCall(dependency string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuit(dependency)
	if c.state == StateOpen {
		if cb.now().Sub(c.lastFailure) < cb.cfg.OpenTimeout {
			return &apperr.ServiceUnavailableError{
				Dependency: dependency,
				Reason:     "circuit open",
			}
		}
		c.state = StateHalfOpen
	}
	return nil
}

func (cb *CircuitBreaker) afterCall(dependency string, success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.circuit(dependency)
	if success {
		c.state = StateClosed
		c.consecutiveFailures = 0
		return
	}

	c.consecutiveFailures++
	c.lastFailure = cb.now()
	if c.state == StateHalfOpen || c.consecutiveFailures >= cb.cfg.FailureThreshold {
		c.state = StateOpen
	}
}

func (cb *CircuitBreaker) circuit(dependency string) *circuit {
	c, ok := cb.circuits[dependency]
	if !ok {
		c = &circuit{state: StateClosed}
		cb.circuits[dependency] = c
	}
	return c
}

// State returns the current state of the circuit for dependency.
func (cb *CircuitBreaker) State(dependency string) BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	c, ok := cb.circuits[dependency]
	if !ok {
		return StateClosed
	}
	if c.state == StateOpen && cb.now().Sub(c.lastFailure) >= cb.cfg.OpenTimeout {
		return StateHalfOpen
	}
	return c.state
}
