package annotate

import (
	"context"
	"math"
	"time"
)

type RetryConfig struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		BaseDelay:     2 * time.Second,
		MaxDelay:      60 * time.Second,
		BackoffFactor: 2,
		JitterFactor:  0.25,
	}
}

func (c RetryConfig) normalized() RetryConfig {
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	if c.JitterFactor < 0 {
		c.JitterFactor = 0
	}
	// jitter is additive in [0, JitterFactor) so the factor must outgrow it for
	// consecutive delays to keep increasing
	if c.BackoffFactor <= 1+c.JitterFactor {
		c.BackoffFactor = 1 + c.JitterFactor + 0.5
	}
	return c
}

// delay returns the wait before retry number attempt (0-based). rnd is in [0,1).
// The result is never shorter than retryAfter and always longer than prev.
func (c RetryConfig) delay(attempt int, prev, retryAfter time.Duration, rnd float64) time.Duration {
	d := float64(c.BaseDelay) * math.Pow(c.BackoffFactor, float64(attempt))
	if d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	d *= 1 + rnd*c.JitterFactor
	out := time.Duration(d)
	if out < retryAfter {
		out = retryAfter
	}
	if out <= prev {
		out = prev + c.BaseDelay/4 + time.Millisecond
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
