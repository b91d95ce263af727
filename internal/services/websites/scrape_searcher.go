package websites

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
)

// ScrapeSearcher reads result links from the engine's public HTML result page
type ScrapeSearcher struct {
	fetcher   interfaces.Fetcher
	engineURL string
	parser    ResultParser
	logger    arbor.ILogger
}

// NewScrapeSearcher creates a searcher that fetches result pages through fetcher.
// fetcher should carry the search challenge markers so block pages are retried.
func NewScrapeSearcher(config common.SearchConfig, fetcher interfaces.Fetcher, logger arbor.ILogger) (*ScrapeSearcher, error) {
	if !strings.Contains(config.EngineURL, "{query}") {
		return nil, fmt.Errorf("search engine_url must contain {query}: %q", config.EngineURL)
	}
	return &ScrapeSearcher{
		fetcher:   fetcher,
		engineURL: config.EngineURL,
		parser: ResultParser{
			RedirectMarkers: config.RedirectMarkers,
			CacheMarkers:    config.CacheMarkers,
			EngineDomains:   config.EngineDomains,
			MaxResults:      config.MaxResults,
		},
		logger: logger,
	}, nil
}

// Search implements interfaces.WebsiteSearcher
func (s *ScrapeSearcher) Search(ctx context.Context, query string) ([]string, error) {
	searchURL := strings.Replace(s.engineURL, "{query}", url.QueryEscape(query), 1)

	page, err := s.fetcher.Fetch(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse result page: %w", err)
	}

	urls := s.parser.Parse(doc)
	s.logger.Debug().
		Str("query", query).
		Int("results", len(urls)).
		Int("attempts", page.Attempts).
		Msg("Search results parsed")

	return urls, nil
}
