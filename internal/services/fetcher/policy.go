package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
)

// ErrRejected is returned for a terminal, non-retryable response status
var ErrRejected = errors.New("request rejected")

// Category classifies a single fetch attempt
type Category string

const (
	CategorySuccess     Category = "success"
	CategoryTransport   Category = "transport"    // timeout, connection error, 5xx
	CategoryRateLimited Category = "rate_limited" // soft block status such as 429/503/403/521
	CategoryChallenge   Category = "challenge"    // bot-detection page served instead of content
	CategoryRejected    Category = "rejected"     // any other status, never retried
)

// State is the position of a fetch in the retry state machine
type State string

const (
	StateAttempting State = "attempting"
	StateBackoff    State = "backoff"
	StateSuccess    State = "success"
	StateExhausted  State = "exhausted"
)

// Attempt performs one request and reports what came back
type Attempt func(ctx context.Context, attempt int) (statusCode int, body string, err error)

// RetryPolicy retries a fetch with backoff keyed by failure category.
// Sleep and Draw are replaceable so tests run without real delays.
type RetryPolicy struct {
	MaxAttempts       int
	TransportBackoff  common.BackoffRange // multiplied by the attempt number
	RateLimitBackoff  common.BackoffRange
	ChallengeBackoff  common.BackoffRange
	SoftBlockStatuses []int
	ChallengeMarkers  []string // matched case-insensitively against the body

	Sleep common.SleepFunc
	Draw  common.DurationFunc

	// OnTransition observes state changes; nil is allowed
	OnTransition func(url string, attempt int, state State, category Category)
}

// NewRetryPolicy creates a retry policy from fetcher configuration
func NewRetryPolicy(config common.FetcherConfig) *RetryPolicy {
	markers := make([]string, 0, len(config.ChallengeMarkers))
	for _, m := range config.ChallengeMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}

	return &RetryPolicy{
		MaxAttempts:       config.MaxAttempts,
		TransportBackoff:  config.TransportBackoff,
		RateLimitBackoff:  config.RateLimitBackoff,
		ChallengeBackoff:  config.ChallengeBackoff,
		SoftBlockStatuses: append([]int(nil), config.SoftBlockStatuses...),
		ChallengeMarkers:  markers,
		Sleep:             common.Sleep,
		Draw:              common.RandomDuration,
	}
}

// WithChallengeMarkers returns a copy of the policy that also treats markers as challenge phrases
func (p *RetryPolicy) WithChallengeMarkers(markers ...string) *RetryPolicy {
	clone := *p
	clone.ChallengeMarkers = append([]string(nil), p.ChallengeMarkers...)
	for _, m := range markers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			clone.ChallengeMarkers = append(clone.ChallengeMarkers, m)
		}
	}
	return &clone
}

// WithMaxAttempts returns a copy of the policy with a different attempt budget
func (p *RetryPolicy) WithMaxAttempts(n int) *RetryPolicy {
	clone := *p
	if n > 0 {
		clone.MaxAttempts = n
	}
	return &clone
}

// Classify maps the outcome of one attempt to a category.
// Challenge markers are checked before the status so a 403 challenge page gets the long backoff.
func (p *RetryPolicy) Classify(statusCode int, body string, err error) Category {
	if err != nil {
		return CategoryTransport
	}
	if p.isChallenge(body) {
		return CategoryChallenge
	}
	for _, code := range p.SoftBlockStatuses {
		if statusCode == code {
			return CategoryRateLimited
		}
	}
	switch {
	case statusCode == http.StatusOK:
		return CategorySuccess
	case statusCode >= 500:
		return CategoryTransport
	default:
		return CategoryRejected
	}
}

func (p *RetryPolicy) isChallenge(body string) bool {
	if body == "" || len(p.ChallengeMarkers) == 0 {
		return false
	}
	lower := strings.ToLower(body)
	for _, marker := range p.ChallengeMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// Backoff returns the sleep before the next attempt after a failure of category.
// attempt is 1-based and only scales transport failures.
func (p *RetryPolicy) Backoff(category Category, attempt int) time.Duration {
	draw := p.Draw
	if draw == nil {
		draw = common.RandomDuration
	}

	switch category {
	case CategoryTransport:
		if attempt < 1 {
			attempt = 1
		}
		return draw(p.TransportBackoff.Min, p.TransportBackoff.Max) * time.Duration(attempt)
	case CategoryRateLimited:
		return draw(p.RateLimitBackoff.Min, p.RateLimitBackoff.Max)
	case CategoryChallenge:
		return draw(p.ChallengeBackoff.Min, p.ChallengeBackoff.Max)
	default:
		return 0
	}
}

// Execute runs attempt until it succeeds, is rejected, or the attempt budget is spent.
// It sleeps only between attempts, never after the last one.
func (p *RetryPolicy) Execute(ctx context.Context, logger arbor.ILogger, url string, attempt Attempt) (*interfaces.Page, error) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = common.Sleep
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastCategory Category
	var lastErr error
	lastStatus := 0

	for n := 1; n <= maxAttempts; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p.transition(url, n, StateAttempting, "")

		statusCode, body, err := attempt(ctx, n)
		category := p.Classify(statusCode, body, err)
		lastCategory, lastErr, lastStatus = category, err, statusCode

		switch category {
		case CategorySuccess:
			p.transition(url, n, StateSuccess, category)
			return &interfaces.Page{URL: url, StatusCode: statusCode, Body: body, Attempts: n}, nil

		case CategoryRejected:
			logger.Debug().
				Str("url", url).
				Int("attempt", n).
				Int("status_code", statusCode).
				Msg("Non-retryable status, failing immediately")
			return nil, fmt.Errorf("%s: status %d: %w", url, statusCode, ErrRejected)
		}

		// A cancelled context is not worth retrying
		if err != nil && ctx.Err() != nil {
			return nil, ctx.Err()
		}

		if n == maxAttempts {
			break
		}

		backoff := p.Backoff(category, n)
		p.transition(url, n, StateBackoff, category)
		logger.Debug().
			Str("url", url).
			Int("attempt", n).
			Int("status_code", statusCode).
			Str("category", string(category)).
			Err(err).
			Dur("backoff", backoff).
			Msg("Retrying after backoff")

		if err := sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}

	p.transition(url, maxAttempts, StateExhausted, lastCategory)
	logger.Warn().
		Str("url", url).
		Int("max_attempts", maxAttempts).
		Int("status_code", lastStatus).
		Str("category", string(lastCategory)).
		Err(lastErr).
		Msg("All retry attempts exhausted")

	if lastErr != nil {
		return nil, fmt.Errorf("%s: %s after %d attempts: %w: %w", url, lastCategory, maxAttempts, interfaces.ErrFetchExhausted, lastErr)
	}
	return nil, fmt.Errorf("%s: %s after %d attempts (status %d): %w", url, lastCategory, maxAttempts, lastStatus, interfaces.ErrFetchExhausted)
}

func (p *RetryPolicy) transition(url string, attempt int, state State, category Category) {
	if p.OnTransition != nil {
		p.OnTransition(url, attempt, state, category)
	}
}
