// Package circuitbreaker wraps gobreaker with typed results and a
// default policy shared across outbound dependencies.
package circuitbreaker

import (
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/venuelabs/crossarb/internal/apperror"
)

// Config controls when the breaker trips and how it recovers.
type Config struct {
	Name          string
	MaxRequests   uint32        // probes allowed while half-open
	Interval      time.Duration // counter reset period while closed
	Timeout       time.Duration // open duration before half-open
	FailureRatio  float64
	MinRequests   uint32 // requests before the ratio is considered
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultConfig returns the house policy: trip at 60% failures over at
// least 5 requests, stay open for 30s, allow 3 half-open probes.
func DefaultConfig(name string) Config {
	return Config{
		Name:         name,
		MaxRequests:  3,
		Interval:     60 * time.Second,
		Timeout:      30 * time.Second,
		FailureRatio: 0.6,
		MinRequests:  5,
	}
}

// CircuitBreaker guards calls returning T.
type CircuitBreaker[T any] struct {
	cb *gobreaker.CircuitBreaker[T]
}

// New creates a breaker from cfg.
func New[T any](cfg Config) *CircuitBreaker[T] {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.FailureRatio
		},
		OnStateChange: cfg.OnStateChange,
	}
	return &CircuitBreaker[T]{cb: gobreaker.NewCircuitBreaker[T](settings)}
}

// Execute runs fn through the breaker. While the breaker is open the
// call is rejected immediately with CodeCircuitOpen.
func (c *CircuitBreaker[T]) Execute(fn func() (T, error)) (T, error) {
	result, err := c.cb.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		var zero T
		return zero, apperror.New(apperror.CodeCircuitOpen,
			apperror.WithCause(err),
			apperror.WithContext(c.cb.Name()))
	}
	return result, err
}

// State reports the underlying breaker state.
func (c *CircuitBreaker[T]) State() gobreaker.State {
	return c.cb.State()
}
