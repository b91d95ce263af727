package websites

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
)

const (
	ModeScrape = "scrape"
	ModeAPI    = "api"
)

// NewSearcher builds the search backend selected by config.Mode.
// fetcher is only used in scrape mode and may be nil in api mode.
func NewSearcher(config common.SearchConfig, fetcher interfaces.Fetcher, logger arbor.ILogger) (interfaces.WebsiteSearcher, error) {
	switch config.Mode {
	case ModeAPI:
		searcher, err := NewAPISearcher(config, logger)
		if err != nil {
			return nil, err
		}
		return searcher, nil
	case ModeScrape, "":
		if fetcher == nil {
			return nil, fmt.Errorf("scrape search mode requires a fetcher")
		}
		searcher, err := NewScrapeSearcher(config, fetcher, logger)
		if err != nil {
			return nil, err
		}
		return searcher, nil
	default:
		return nil, fmt.Errorf("unknown search mode %q", config.Mode)
	}
}
