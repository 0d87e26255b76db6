package pipeline

import (
	"context"
	"math/rand/v2"
	"time"
)

// Backoff computes retry delays: min(Base * 2^(c-1), Max) scaled by a
// jitter factor.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait after the c-th consecutive failure. c below 1 is
// treated as 1.
func (b Backoff) Delay(c int, jitter float64) time.Duration {
	if c < 1 {
		c = 1
	}
	d := b.Base
	for i := 1; i < c && d < b.Max; i++ {
		d *= 2
	}
	if d > b.Max {
		d = b.Max
	}
	return time.Duration(float64(d) * jitter)
}

// Jitter returns a factor drawn uniformly from [0.5, 1.5).
func Jitter() float64 {
	return 0.5 + rand.Float64()
}

// sleepCtx waits for d or until ctx ends.
func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
