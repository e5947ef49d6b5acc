package resilience

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter throttles outbound calls to a remote model. It is a thin layer
// over x/time/rate so call sites stay decoupled from that package.
type Limiter struct {
	l *rate.Limiter
}

// NewLimiter allows ratePerSec calls per second with the given burst.
// ratePerSec <= 0 disables limiting.
func NewLimiter(ratePerSec float64, burst int) *Limiter {
	if ratePerSec <= 0 {
		return &Limiter{l: rate.NewLimiter(rate.Inf, 1)}
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{l: rate.NewLimiter(rate.Limit(ratePerSec), burst)}
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.l.Wait(ctx)
}

// Allow reports whether a call may proceed right now.
func (l *Limiter) Allow() bool {
	return l.l.Allow()
}

// Do waits for a token and then runs f.
func (l *Limiter) Do(ctx context.Context, f func(context.Context) error) error {
	if err := l.l.Wait(ctx); err != nil {
		return err
	}
	return f(ctx)
}
