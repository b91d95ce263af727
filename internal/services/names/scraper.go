package names

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
	"github.com/ternarybob/schoolreach/internal/services/batch"
)

// Scraper harvests school names from a paginated listing site
type Scraper struct {
	fetcher         interfaces.Fetcher
	filter          *Filter
	strategies      []Strategy
	paginationClass string
	runner          *batch.Runner
	pageDelay       common.BackoffRange
	sleep           common.SleepFunc
	draw            common.DurationFunc
	logger          arbor.ILogger
}

// NewScraper creates a name scraper that fetches listing pages through fetcher
func NewScraper(config common.ListingConfig, fetcher interfaces.Fetcher, logger arbor.ILogger) *Scraper {
	return &Scraper{
		fetcher:         fetcher,
		filter:          NewFilter(config.MinNameLength, config.MaxNameLength, config.UINoise),
		strategies:      DefaultStrategies(config.ItemKeywords, config.DetailPaths, config.CardKeywords),
		paginationClass: config.PaginationClass,
		runner:          batch.NewRunner("listing-pages", config.PageConcurrency, logger),
		pageDelay:       common.BackoffRange{Min: config.PageDelayMin, Max: config.PageDelayMax},
		sleep:           common.Sleep,
		draw:            common.RandomDuration,
		logger:          logger,
	}
}

// ScrapeAll fetches every listing page and returns unique names in first-seen order.
// Failed pages contribute nothing; only cancellation is reported as an error.
func (s *Scraper) ScrapeAll(ctx context.Context, baseURL string) ([]string, error) {
	baseDoc, err := s.fetchDocument(ctx, baseURL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn().
			Str("url", baseURL).
			Err(err).
			Msg("Failed to fetch listing base page, assuming a single page")
	}

	totalPages := TotalPages(baseDoc, s.paginationClass)
	s.logger.Info().
		Str("url", baseURL).
		Int("total_pages", totalPages).
		Msg("Scraping school listing")

	pages := batch.Collect(ctx, s.runner, totalPages, []string(nil), func(ctx context.Context, index int) ([]string, error) {
		pageNum := index + 1
		if pageNum == 1 && baseDoc != nil {
			return s.extractPage(pageNum, baseDoc), nil
		}

		if err := s.sleep(ctx, s.draw(s.pageDelay.Min, s.pageDelay.Max)); err != nil {
			return nil, err
		}

		doc, err := s.fetchDocument(ctx, common.PageURL(baseURL, pageNum))
		if err != nil {
			s.logger.Warn().
				Int("page", pageNum).
				Err(err).
				Msg("Failed to fetch listing page")
			return nil, err
		}
		return s.extractPage(pageNum, doc), nil
	})

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var all []string
	for _, names := range pages {
		all = append(all, names...)
	}
	unique := dedupe(all)

	s.logger.Info().
		Int("pages", totalPages).
		Int("names", len(unique)).
		Msg("School listing scraped")

	return unique, nil
}

// ExtractNames applies the strategy cascade to one listing page.
// The first strategy producing an accepted name wins.
func (s *Scraper) ExtractNames(doc *goquery.Document) []string {
	for _, strategy := range s.strategies {
		var accepted []string
		for _, candidate := range strategy(doc) {
			if s.filter.Accept(candidate) {
				accepted = append(accepted, candidate)
			}
		}
		if len(accepted) > 0 {
			return dedupe(accepted)
		}
	}
	return nil
}

func (s *Scraper) extractPage(pageNum int, doc *goquery.Document) []string {
	names := s.ExtractNames(doc)
	event := s.logger.Info().Int("page", pageNum).Int("schools", len(names))
	if len(names) > 0 {
		event = event.Strs("sample", names[:min(3, len(names))])
	}
	event.Msg("Listing page scraped")
	return names
}

func (s *Scraper) fetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	page, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", url, err)
	}
	return doc, nil
}

// dedupe removes repeats keeping the first occurrence
func dedupe(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
