package interfaces

import (
	"context"
	"errors"
)

// ErrFetchExhausted is returned when every attempt of a fetch failed.
// Callers treat it as "no data" and never propagate it out of a batch.
var ErrFetchExhausted = errors.New("fetch attempts exhausted")

// Page is the content returned by a successful fetch
type Page struct {
	URL        string `json:"url"` // final URL after redirects
	StatusCode int    `json:"status_code"`
	Body       string `json:"-"`
	Attempts   int    `json:"attempts"`
}

// Fetcher retrieves a URL applying the retry/backoff policy of its stage.
// Implementations hold one transport or browser session and must be closed
// when the owning pipeline stage exits.
type Fetcher interface {
	// Fetch returns the page body of a successful (HTTP 200, non-challenge) response
	Fetch(ctx context.Context, url string) (*Page, error)

	// Close releases the transport or browser session
	Close() error
}
