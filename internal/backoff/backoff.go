// Package backoff holds the exponential retry pacing shared by the price
// stream reconnect loop and the guess resolver.
package backoff

import (
	"context"
	"math/rand"
	"time"
)

// Next doubles current, capped at max.
func Next(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max {
		return max
	}
	return next
}

// Sleep waits base plus up to half of base in jitter, or until ctx is done.
func Sleep(ctx context.Context, base time.Duration) error {
	if base <= 0 {
		return nil
	}
	jitter := time.Duration(0)
	if half := int64(base / 2); half > 0 {
		jitter = time.Duration(rand.Int63n(half))
	}
	timer := time.NewTimer(base + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
