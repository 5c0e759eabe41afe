package annotate

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter is the token bucket shared by every worker of a run. Pass the same
// instance to each Client; a nil *Limiter never blocks.
type Limiter struct {
	rl *rate.Limiter
}

func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	lim := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		lim = rate.Inf
	}
	return &Limiter{rl: rate.NewLimiter(lim, burst)}
}

// Wait blocks until a request may be issued or ctx ends.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.rl == nil {
		return ctx.Err()
	}
	return l.rl.Wait(ctx)
}
