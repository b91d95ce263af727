package interfaces

import "context"

// NameScraper harvests school names from a paginated listing site
type NameScraper interface {
	ScrapeAll(ctx context.Context, baseURL string) ([]string, error)
}

// WebsiteSearcher returns candidate result URLs for a search query, best first
type WebsiteSearcher interface {
	Search(ctx context.Context, query string) ([]string, error)
}

// WebsiteFinder resolves school names to their most trusted website.
// Names without a result map to the empty string.
type WebsiteFinder interface {
	FindWebsitesBatch(ctx context.Context, names []string) map[string]string
}

// EmailExtractor resolves websites to a contact address or models.EmailNotFound
type EmailExtractor interface {
	ExtractEmailsBatch(ctx context.Context, websites map[string]string) map[string]string
}
