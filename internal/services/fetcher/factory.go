package fetcher

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
)

// Options selects the fetch path and per-stage policy adjustments
type Options struct {
	UseBrowser       bool
	MaxAttempts      int      // 0 keeps the configured budget
	ChallengeMarkers []string // added to the configured markers
}

// New creates the fetcher for one pipeline stage. When Chrome cannot be started
// the stage falls back to plain HTTP rather than failing outright.
func New(config common.FetcherConfig, opts Options, logger arbor.ILogger) interfaces.Fetcher {
	policy := NewRetryPolicy(config).
		WithMaxAttempts(opts.MaxAttempts).
		WithChallengeMarkers(opts.ChallengeMarkers...)

	if opts.UseBrowser {
		browser, err := NewBrowserFetcher(config, logger)
		if err == nil {
			return browser.SetPolicy(policy)
		}
		logger.Warn().
			Err(err).
			Msg("Browser unavailable, falling back to HTTP fetcher")
	}

	return NewHTTPFetcher(config, logger, WithPolicy(policy))
}
