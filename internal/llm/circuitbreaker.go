package llm

import (
	"errors"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned while the breaker rejects calls after repeated
// provider failures.
var ErrCircuitOpen = errors.New("llm: circuit breaker is open")

// CircuitBreakerConfig tunes the breaker around provider HTTP calls.
type CircuitBreakerConfig struct {
	// MaxFailures is the consecutive-failure count that trips the circuit.
	MaxFailures uint32

	// OpenTimeout is how long the circuit stays open before allowing
	// half-open probes.
	OpenTimeout time.Duration

	// HalfOpenProbes is how many successful probes close the circuit again.
	HalfOpenProbes uint32
}

// CircuitBreaker shields the provider from request storms while it is
// failing: after MaxFailures consecutive failures all calls are rejected
// with ErrCircuitOpen until a probe succeeds.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a breaker with defaults: trip after 3
// consecutive failures, stay open 30s, close after 2 successful probes.
func NewCircuitBreaker() *CircuitBreaker {
	return NewCircuitBreakerWithConfig(CircuitBreakerConfig{
		MaxFailures:    3,
		OpenTimeout:    30 * time.Second,
		HalfOpenProbes: 2,
	})
}

// NewCircuitBreakerWithConfig creates a breaker with explicit settings.
func NewCircuitBreakerWithConfig(cfg CircuitBreakerConfig) *CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        "llm-provider",
		MaxRequests: cfg.HalfOpenProbes,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("LLM: circuit breaker %s -> %s", from, to)
		},
	}
	return &CircuitBreaker{breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. An open circuit returns
// ErrCircuitOpen without invoking fn.
func (cb *CircuitBreaker) Execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := cb.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return result, err
}

// State reports the breaker state as "closed", "open", or "half-open".
func (cb *CircuitBreaker) State() string {
	switch cb.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	}
	return "unknown"
}
