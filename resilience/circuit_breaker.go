package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/a2aforge/meshbus/core"
)

// CircuitState is the state of a CircuitBreaker.
type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
	StateHalfOpen
)

func (s CircuitState) String() string {
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

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int           // consecutive failures before opening
	SleepWindow      time.Duration // time in open before trying half-open
	HalfOpenRequests int           // trial requests allowed in half-open
	Logger           core.Logger
}

// DefaultCircuitBreakerConfig returns sane defaults for guarding an
// agent's tool dispatch.
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: 5,
		SleepWindow:      30 * time.Second,
		HalfOpenRequests: 1,
		Logger:           &core.NoOpLogger{},
	}
}

// CircuitBreaker is a small closed/open/half-open guard suitable for
// wrapping a single agent's tool dispatch. It trips after consecutive
// failures and probes recovery after SleepWindow.
type CircuitBreaker struct {
	config *CircuitBreakerConfig

	mu             sync.Mutex
	state          CircuitState
	consecutiveErr int
	openedAt       time.Time
	halfOpenInUse  int
}

// NewCircuitBreaker creates a CircuitBreaker. A nil config uses
// DefaultCircuitBreakerConfig("circuit").
func NewCircuitBreaker(config *CircuitBreakerConfig) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig("circuit")
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if config.HalfOpenRequests <= 0 {
		config.HalfOpenRequests = 1
	}
	return &CircuitBreaker{config: config, state: StateClosed}
}

// CanExecute reports whether a call is currently allowed, transitioning
// open -> half-open once SleepWindow has elapsed.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(cb.openedAt) > cb.config.SleepWindow {
			cb.transition(StateHalfOpen)
			cb.halfOpenInUse = 0
		} else {
			return false
		}
		fallthrough
	case StateHalfOpen:
		if cb.halfOpenInUse >= cb.config.HalfOpenRequests {
			return false
		}
		cb.halfOpenInUse++
		return true
	}
	return false
}

// RecordSuccess marks the last permitted call as successful.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveErr = 0
	if cb.state == StateHalfOpen {
		cb.transition(StateClosed)
	}
}

// RecordFailure marks the last permitted call as failed.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen {
		cb.transition(StateOpen)
		return
	}
	cb.consecutiveErr++
	if cb.consecutiveErr >= cb.config.FailureThreshold {
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to
	if to == StateOpen {
		cb.openedAt = time.Now()
	}
	cb.config.Logger.Info("circuit breaker state changed", map[string]interface{}{
		"name": cb.config.Name,
		"from": from.String(),
		"to":   to.String(),
	})
}

// State returns the current state's string name.
func (cb *CircuitBreaker) State() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state.String()
}

// Execute runs fn if CanExecute permits it, recording the outcome.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if !cb.CanExecute() {
		return fmt.Errorf("circuit breaker %q is open", cb.config.Name)
	}
	err := fn()
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}
