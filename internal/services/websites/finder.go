package websites

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
	"github.com/ternarybob/schoolreach/internal/services/batch"
)

// Finder resolves school names to their most trusted website
type Finder struct {
	searcher        interfaces.WebsiteSearcher
	querySuffix     string
	officialDomains []string
	runner          *batch.Runner
	concurrency     int
	stagger         time.Duration
	delay           common.BackoffRange
	sleep           common.SleepFunc
	draw            common.DurationFunc
	logger          arbor.ILogger
}

// NewFinder creates a website finder on top of searcher
func NewFinder(config common.SearchConfig, searcher interfaces.WebsiteSearcher, logger arbor.ILogger) *Finder {
	return &Finder{
		searcher:        searcher,
		querySuffix:     config.QuerySuffix,
		officialDomains: config.OfficialDomains,
		runner:          batch.NewRunner("website-search", config.Concurrency, logger),
		concurrency:     config.Concurrency,
		stagger:         config.Stagger,
		delay:           common.BackoffRange{Min: config.DelayMin, Max: config.DelayMax},
		sleep:           common.Sleep,
		draw:            common.RandomDuration,
		logger:          logger,
	}
}

// Query builds the search phrase for a school name
func (f *Finder) Query(name string) string {
	if f.querySuffix == "" {
		return fmt.Sprintf("%q", name)
	}
	return fmt.Sprintf("%q %s", name, f.querySuffix)
}

// FindWebsite searches for one school and returns the best URL, or "" when nothing was found
func (f *Finder) FindWebsite(ctx context.Context, name string) (string, error) {
	urls, err := f.searcher.Search(ctx, f.Query(name))
	if err != nil {
		return "", err
	}

	best := SelectBest(urls, f.officialDomains)
	switch {
	case best == "":
		f.logger.Warn().Str("school", name).Msg("No website found")
	case IsOfficial(best, f.officialDomains):
		f.logger.Info().Str("school", name).Str("url", best).Msg("Found official website")
	default:
		f.logger.Info().Str("school", name).Str("url", best).Msg("Found website")
	}

	return best, nil
}

// FindWebsitesBatch implements interfaces.WebsiteFinder.
// Every name gets an entry; failed lookups map to "".
func (f *Finder) FindWebsitesBatch(ctx context.Context, names []string) map[string]string {
	results := f.runner.Map(ctx, names, "", func(ctx context.Context, index int, name string) (string, error) {
		// Spread the first wave so the gate does not release a burst
		if index < f.concurrency {
			if err := f.sleep(ctx, time.Duration(index)*f.stagger); err != nil {
				return "", err
			}
		}
		if err := f.sleep(ctx, f.draw(f.delay.Min, f.delay.Max)); err != nil {
			return "", err
		}

		website, err := f.FindWebsite(ctx, name)
		if err != nil {
			f.logger.Warn().Str("school", name).Err(err).Msg("Website search failed")
			return "", err
		}

		// Hold the slot a little longer; the result is already known so cancellation is ignored
		_ = f.sleep(ctx, f.draw(f.delay.Min, f.delay.Max))
		return website, nil
	})

	found := 0
	for _, website := range results {
		if website != "" {
			found++
		}
	}
	f.logger.Info().
		Int("schools", len(names)).
		Int("websites_found", found).
		Msg("Website search complete")

	return results
}
