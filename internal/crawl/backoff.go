package crawl

import (
	"context"
	"math/rand"
	"time"
)

// BackoffPolicy controls retry pacing for page fetches. The delay for attempt
// n is BaseDelay*2^n plus a random jitter below MaxJitter.
type BackoffPolicy struct {
	BaseDelay  time.Duration
	MaxJitter  time.Duration
	MaxRetries int
}

// DefaultBackoff retries a page three times, waiting 0.5s, 1s, 2s plus
// jitter between attempts.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		BaseDelay:  500 * time.Millisecond,
		MaxJitter:  100 * time.Millisecond,
		MaxRetries: 3,
	}
}

// Delay returns the wait before retry attempt n (0-based).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 16 {
		attempt = 16 // avoid shifting into overflow on absurd attempt counts
	}

	d := p.BaseDelay << uint(attempt)
	if p.MaxJitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.MaxJitter)))
	}
	return d
}

// sleepCtx waits for d or until the context is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
