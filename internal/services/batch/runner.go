// Package batch runs per-item work under a concurrency gate with failure isolation.
package batch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"golang.org/x/sync/semaphore"
)

// Runner bounds how many items of one stage are in flight at a time
type Runner struct {
	name        string
	concurrency int64
	logger      arbor.ILogger
}

// NewRunner creates a runner for the named stage; concurrency below 1 is treated as 1
func NewRunner(name string, concurrency int, logger arbor.ILogger) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Runner{
		name:        name,
		concurrency: int64(concurrency),
		logger:      logger,
	}
}

// Map runs fn for every key and returns an entry for each of them.
// A key whose fn returns an error or panics maps to fallback; siblings are unaffected.
// When ctx is cancelled, keys not yet started also map to fallback.
func (r *Runner) Map(ctx context.Context, keys []string, fallback string, fn func(ctx context.Context, index int, key string) (string, error)) map[string]string {
	results := make(map[string]string, len(keys))
	var mu sync.Mutex

	set := func(key, value string) {
		mu.Lock()
		results[key] = value
		mu.Unlock()
	}

	values := Collect(ctx, r, len(keys), fallback, func(ctx context.Context, index int) (string, error) {
		value, err := fn(ctx, index, keys[index])
		if err != nil {
			return fallback, err
		}
		set(keys[index], value)
		return value, nil
	})

	// Failed or skipped keys
	mu.Lock()
	defer mu.Unlock()
	for i, key := range keys {
		if _, ok := results[key]; !ok {
			results[key] = values[i]
		}
	}

	return results
}

// Collect runs fn for indexes [0, n) and returns the results in index order.
// Failed, panicking and unstarted items yield fallback.
func Collect[T any](ctx context.Context, r *Runner, n int, fallback T, fn func(ctx context.Context, index int) (T, error)) []T {
	results := make([]T, n)
	for i := range results {
		results[i] = fallback
	}
	if n == 0 {
		return results
	}

	start := time.Now()
	sem := semaphore.NewWeighted(r.concurrency)
	var wg sync.WaitGroup
	var failed, skipped int64

	for i := 0; i < n; i++ {
		if err := sem.Acquire(ctx, 1); err != nil {
			skipped = int64(n - i)
			r.logger.Warn().
				Str("batch", r.name).
				Int("skipped", n-i).
				Err(err).
				Msg("Batch cancelled before all items started")
			break
		}

		wg.Add(1)
		go func(index int) {
			defer wg.Done()
			defer sem.Release(1)

			var value T
			err := common.SafeCall(ctx, r.logger, fmt.Sprintf("%s[%d]", r.name, index), func(ctx context.Context) error {
				var err error
				value, err = fn(ctx, index)
				return err
			})
			if err != nil {
				atomic.AddInt64(&failed, 1)
				r.logger.Debug().
					Str("batch", r.name).
					Int("index", index).
					Err(err).
					Msg("Batch item failed, using fallback")
				return
			}
			results[index] = value
		}(i)
	}

	wg.Wait()

	r.logger.Debug().
		Str("batch", r.name).
		Int("items", n).
		Int64("failed", atomic.LoadInt64(&failed)).
		Int64("skipped", skipped).
		Dur("elapsed", time.Since(start)).
		Msg("Batch complete")

	return results
}
