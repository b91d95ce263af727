package fetcher

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/httpclient"
	"github.com/ternarybob/schoolreach/internal/interfaces"
	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"
)

// HTTPFetcher fetches pages with a plain HTTP client and the retry policy
type HTTPFetcher struct {
	client      *http.Client
	policy      *RetryPolicy
	profile     RequestProfile
	limiter     *rate.Limiter
	maxBodySize int64
	logger      arbor.ILogger
}

// HTTPOption configures an HTTPFetcher
type HTTPOption func(*HTTPFetcher)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(f *HTTPFetcher) {
		f.client = client
	}
}

// WithPolicy replaces the retry policy
func WithPolicy(policy *RetryPolicy) HTTPOption {
	return func(f *HTTPFetcher) {
		f.policy = policy
	}
}

// WithMinInterval spaces consecutive requests at least interval apart
func WithMinInterval(interval time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		if interval > 0 {
			f.limiter = rate.NewLimiter(rate.Every(interval), 1)
		} else {
			f.limiter = nil
		}
	}
}

// NewHTTPFetcher creates a fetcher for config.
// A non-positive MinInterval disables request pacing.
func NewHTTPFetcher(config common.FetcherConfig, logger arbor.ILogger, opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client:      httpclient.NewSessionClient(config.RequestTimeout),
		policy:      NewRetryPolicy(config),
		profile:     RequestProfile{UserAgents: config.UserAgents, AcceptLanguage: config.AcceptLanguage},
		maxBodySize: config.MaxBodySize,
		logger:      logger,
	}
	if config.MinInterval > 0 {
		f.limiter = rate.NewLimiter(rate.Every(config.MinInterval), 1)
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Fetch implements interfaces.Fetcher. The returned page carries the URL
// the client ended on after following redirects.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*interfaces.Page, error) {
	finalURL := url
	page, err := f.policy.Execute(ctx, f.logger, url, func(ctx context.Context, attempt int) (int, string, error) {
		statusCode, body, location, err := f.do(ctx, url)
		if location != "" {
			finalURL = location
		}
		return statusCode, body, err
	})
	if err != nil {
		return nil, err
	}
	page.URL = finalURL
	return page, nil
}

func (f *HTTPFetcher) do(ctx context.Context, url string) (statusCode int, body string, location string, err error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return 0, "", "", fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, "", "", fmt.Errorf("failed to create request: %w", err)
	}
	f.profile.Apply(req)

	resp, err := f.client.Do(req)
	if err != nil {
		return 0, "", "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.Request != nil && resp.Request.URL != nil {
		location = resp.Request.URL.String()
	}

	var reader io.Reader = resp.Body
	if f.maxBodySize > 0 {
		reader = io.LimitReader(reader, f.maxBodySize)
	}

	raw, err := io.ReadAll(reader)
	if err != nil {
		return resp.StatusCode, "", location, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(raw) == 0 {
		return resp.StatusCode, "", location, nil
	}

	return resp.StatusCode, decodeBody(raw, resp.Header.Get("Content-Type")), location, nil
}

// decodeBody converts raw to UTF-8 using the Content-Type header or the document's meta charset
func decodeBody(raw []byte, contentType string) string {
	decoded, err := charset.NewReader(bytes.NewReader(raw), contentType)
	if err != nil {
		return string(raw)
	}
	body, err := io.ReadAll(decoded)
	if err != nil {
		return string(raw)
	}
	return string(body)
}

// Close releases idle connections
func (f *HTTPFetcher) Close() error {
	f.client.CloseIdleConnections()
	return nil
}
