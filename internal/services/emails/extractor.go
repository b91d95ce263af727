package emails

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
	"github.com/ternarybob/schoolreach/internal/models"
	"github.com/ternarybob/schoolreach/internal/services/batch"
)

// Extractor finds a contact address on a school website and its contact pages
type Extractor struct {
	fetcher         interfaces.Fetcher
	strategies      []Strategy
	contactKeywords []string
	maxContactPages int
	runner          *batch.Runner
	cooldown        time.Duration
	sleep           common.SleepFunc
	logger          arbor.ILogger
}

// NewExtractor creates an email extractor that fetches pages through fetcher
func NewExtractor(config common.EmailsConfig, fetcher interfaces.Fetcher, logger arbor.ILogger) *Extractor {
	matcher := NewMatcher(config.PlaceholderDomains)
	return &Extractor{
		fetcher:         fetcher,
		strategies:      DefaultStrategies(matcher, config.SectionKeywords),
		contactKeywords: config.ContactKeywords,
		maxContactPages: config.MaxContactPages,
		runner:          batch.NewRunner("email-extraction", config.Concurrency, logger),
		cooldown:        config.Cooldown,
		sleep:           common.Sleep,
		logger:          logger,
	}
}

// ExtractEmail returns the first address found on website or one of its contact pages.
// An empty result with a nil error means the site was read but had no address.
func (e *Extractor) ExtractEmail(ctx context.Context, website string) (string, error) {
	website = NormalizeWebsite(website)
	if website == "" {
		return "", nil
	}

	doc, pageURL, err := e.fetchDocument(ctx, website)
	if err != nil {
		return "", err
	}

	if email := ExtractFromDocument(doc, e.strategies); email != "" {
		e.logger.Info().Str("url", website).Str("email", email).Msg("Found email on main page")
		return email, nil
	}

	for _, contactURL := range FindContactLinks(doc, pageURL, e.contactKeywords, e.maxContactPages) {
		contactDoc, _, err := e.fetchDocument(ctx, contactURL)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			e.logger.Debug().Str("url", contactURL).Err(err).Msg("Contact page unavailable")
			continue
		}
		if email := ExtractFromDocument(contactDoc, e.strategies); email != "" {
			e.logger.Info().Str("url", contactURL).Str("email", email).Msg("Found email on contact page")
			return email, nil
		}
	}

	e.logger.Warn().Str("url", website).Msg("No email found")
	return "", nil
}

// ExtractEmailsBatch implements interfaces.EmailExtractor.
// Every name gets an entry; missing websites and failures map to models.EmailNotFound.
func (e *Extractor) ExtractEmailsBatch(ctx context.Context, websites map[string]string) map[string]string {
	names := make([]string, 0, len(websites))
	for name := range websites {
		names = append(names, name)
	}

	results := e.runner.Map(ctx, names, models.EmailNotFound, func(ctx context.Context, index int, name string) (string, error) {
		website := strings.TrimSpace(websites[name])
		if website == "" {
			return models.EmailNotFound, nil
		}

		email, err := e.ExtractEmail(ctx, website)

		// Cool down before releasing the slot
		_ = e.sleep(ctx, e.cooldown)

		if err != nil {
			e.logger.Debug().Str("school", name).Str("url", website).Err(err).Msg("Website unreachable")
			return models.EmailNotFound, err
		}
		if email == "" {
			return models.EmailNotFound, nil
		}
		return email, nil
	})

	found := 0
	for _, email := range results {
		if email != models.EmailNotFound {
			found++
		}
	}
	e.logger.Info().
		Int("websites", len(websites)).
		Int("emails_found", found).
		Msg("Email extraction complete")

	return results
}

func (e *Extractor) fetchDocument(ctx context.Context, url string) (*goquery.Document, string, error) {
	page, err := e.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, "", err
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Body))
	if err != nil {
		return nil, "", fmt.Errorf("failed to parse %s: %w", url, err)
	}
	pageURL := page.URL
	if pageURL == "" {
		pageURL = url
	}
	return doc, pageURL, nil
}
