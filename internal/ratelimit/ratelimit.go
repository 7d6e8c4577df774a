// Package ratelimit wraps golang.org/x/time/rate for venue API
// budgets, which are quoted in requests per second.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter paces calls against one venue budget.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond with a burst of the
// same size, matching how venue budgets are enforced per window.
func New(requestsPerSecond int) *Limiter {
	burst := requestsPerSecond
	if burst < 1 {
		burst = 1
	}
	return NewWithBurst(float64(requestsPerSecond), burst)
}

// NewWithBurst creates a limiter with an explicit burst.
func NewWithBurst(requestsPerSecond float64, burst int) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst)}
}

// Wait blocks until a token is available or the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a call may happen now without waiting.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Tokens returns the currently available tokens.
func (l *Limiter) Tokens() float64 {
	return l.limiter.Tokens()
}
