package common

import (
	"context"
	"math/rand/v2"
	"time"
)

// RandomDuration returns a uniformly distributed duration in [min, max]
func RandomDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int64N(int64(max-min)+1))
}

// Sleep waits for d or until ctx is cancelled, returning ctx.Err() in the latter case
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// SleepFunc is the sleep signature injected into components that pause between requests
type SleepFunc func(ctx context.Context, d time.Duration) error

// DurationFunc draws a duration from a range; injected so tests run without real delays
type DurationFunc func(min, max time.Duration) time.Duration
