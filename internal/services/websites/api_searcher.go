package websites

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/httpclient"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

// ErrMissingAPICredentials is returned when the API backend lacks a key or engine id
var ErrMissingAPICredentials = errors.New("search api_key and cse_id are required for api mode")

// apiPageLimit is the most results the Custom Search API returns per request
const apiPageLimit = 10

// APIError represents a non-200 answer from the search API
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("search API error: %s (status %d)", e.Message, e.StatusCode)
}

// APISearcher queries the Google Custom Search JSON API
type APISearcher struct {
	endpoint   string
	apiKey     string
	cseID      string
	maxResults int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// APIOption configures the APISearcher
type APIOption func(*APISearcher)

// WithAPIHTTPClient sets a custom HTTP client
func WithAPIHTTPClient(httpClient *http.Client) APIOption {
	return func(s *APISearcher) {
		s.httpClient = httpClient
	}
}

// WithAPIRateLimit sets how many requests per second may be issued
func WithAPIRateLimit(requestsPerSecond float64) APIOption {
	return func(s *APISearcher) {
		s.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
}

// NewAPISearcher creates an API-backed searcher. Missing credentials fail construction.
func NewAPISearcher(config common.SearchConfig, logger arbor.ILogger, opts ...APIOption) (*APISearcher, error) {
	if config.APIKey == "" || config.CSEID == "" {
		return nil, ErrMissingAPICredentials
	}

	s := &APISearcher{
		endpoint:   config.APIEndpoint,
		apiKey:     config.APIKey,
		cseID:      config.CSEID,
		maxResults: min(config.MaxResults, apiPageLimit),
		httpClient: httpclient.NewDefaultHTTPClient(30 * time.Second),
		limiter:    rate.NewLimiter(rate.Every(500*time.Millisecond), 1),
		logger:     logger,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Search implements interfaces.WebsiteSearcher
func (s *APISearcher) Search(ctx context.Context, query string) ([]string, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	params := url.Values{}
	params.Set("key", s.apiKey)
	params.Set("cx", s.cseID)
	params.Set("q", query)
	params.Set("num", strconv.Itoa(s.maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		message := gjson.GetBytes(body, "error.message").String()
		if message == "" {
			message = http.StatusText(resp.StatusCode)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			s.logger.Error().Msg("Search API quota exceeded (free tier allows 100 queries per day)")
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: message}
	}

	var urls []string
	for _, link := range gjson.GetBytes(body, "items.#.link").Array() {
		if u := link.String(); u != "" {
			urls = append(urls, u)
		}
	}

	return urls, nil
}
