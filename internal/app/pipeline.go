package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
	"github.com/ternarybob/schoolreach/internal/models"
	"github.com/ternarybob/schoolreach/internal/services/fetcher"
	"github.com/ternarybob/schoolreach/internal/services/websites"
)

// RunStats reports what one pipeline run did
type RunStats struct {
	RunID         string
	NamesScraped  int
	NewNames      int
	WebsitesFound int
	EmailsFound   int
	RecordsSaved  int
	EmailsSent    int
	SendSkipped   bool
	Duration      time.Duration
}

// Run executes one incremental pipeline run: scrape, skip known names, find
// websites, extract emails, merge into the store and optionally send.
func (a *App) Run(ctx context.Context) (*RunStats, error) {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	start := time.Now()
	stats := &RunStats{RunID: common.NewRunID()}
	logger := a.Logger.WithCorrelationId(stats.RunID)

	logger.Info().Str("run_id", stats.RunID).Msg("Pipeline run started")

	err := a.harvest(ctx, logger, stats)
	if err == nil {
		a.send(ctx, logger, stats)
	}

	stats.Duration = time.Since(start)
	if err != nil {
		logger.Error().Err(err).Dur("duration", stats.Duration).Msg("Pipeline run failed")
		return stats, err
	}

	logger.Info().
		Int("names_scraped", stats.NamesScraped).
		Int("new_names", stats.NewNames).
		Int("websites_found", stats.WebsitesFound).
		Int("emails_found", stats.EmailsFound).
		Int("records_saved", stats.RecordsSaved).
		Int("emails_sent", stats.EmailsSent).
		Bool("send_skipped", stats.SendSkipped).
		Dur("duration", stats.Duration).
		Msg("Pipeline run completed")

	return stats, nil
}

func (a *App) harvest(ctx context.Context, logger arbor.ILogger, stats *RunStats) error {
	existing, err := a.Store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load record store: %w", err)
	}
	stats.RecordsSaved = len(existing)

	scraped, err := a.scrapeNames(ctx, logger)
	if err != nil {
		return fmt.Errorf("name scraping failed: %w", err)
	}
	stats.NamesScraped = len(scraped)

	newNames := unknownNames(existing, scraped)
	stats.NewNames = len(newNames)
	logger.Info().
		Int("scraped", len(scraped)).
		Int("known", len(existing)).
		Int("new", len(newNames)).
		Msg("Found new schools to process")

	if len(newNames) == 0 {
		logger.Info().Msg("No new schools to process")
		return nil
	}

	websiteMap, err := a.findWebsites(ctx, logger, newNames)
	if err != nil {
		return fmt.Errorf("website discovery failed: %w", err)
	}
	for _, website := range websiteMap {
		if website != "" {
			stats.WebsitesFound++
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	emailMap := a.extractEmails(ctx, logger, websiteMap)
	if err := ctx.Err(); err != nil {
		return err
	}

	incoming := make([]models.Record, 0, len(newNames))
	for _, name := range newNames {
		record := models.NewRecord(name, websiteMap[name], emailMap[name])
		if record.HasEmail() {
			stats.EmailsFound++
		}
		incoming = append(incoming, record)
	}

	merged, err := a.Store.UpsertMerge(ctx, existing, incoming)
	if err != nil {
		return fmt.Errorf("failed to merge records: %w", err)
	}
	stats.RecordsSaved = len(merged)

	recordStats := models.ComputeRecordStats(merged)
	logger.Info().
		Int("total", recordStats.Total).
		Int("with_email", recordStats.WithEmail).
		Int("with_website", recordStats.WithWebsite).
		Int("contacted", recordStats.Contacted).
		Msg("Record store updated")

	return nil
}

func (a *App) scrapeNames(ctx context.Context, logger arbor.ILogger) ([]string, error) {
	f := a.stages.NewFetcher(fetcher.Options{UseBrowser: a.Config.Listing.UseBrowser})
	defer closeFetcher(logger, "names", f)

	return a.stages.NewScraper(f).ScrapeAll(ctx, a.Config.Listing.BaseURL)
}

func (a *App) findWebsites(ctx context.Context, logger arbor.ILogger, names []string) (map[string]string, error) {
	var f interfaces.Fetcher
	if a.Config.Search.Mode != websites.ModeAPI {
		f = a.stages.NewFetcher(fetcher.Options{
			UseBrowser:       a.Config.Search.UseBrowser,
			ChallengeMarkers: a.Config.Search.ChallengeMarkers,
		})
		defer closeFetcher(logger, "websites", f)
	}

	finder, err := a.stages.NewFinder(f)
	if err != nil {
		return nil, err
	}
	return finder.FindWebsitesBatch(ctx, names), nil
}

func (a *App) extractEmails(ctx context.Context, logger arbor.ILogger, websiteMap map[string]string) map[string]string {
	f := a.stages.NewFetcher(fetcher.Options{
		UseBrowser:  a.Config.Emails.UseBrowser,
		MaxAttempts: a.Config.Emails.MaxAttempts,
	})
	defer closeFetcher(logger, "emails", f)

	return a.stages.NewExtractor(f).ExtractEmailsBatch(ctx, websiteMap)
}

// send is optional: configuration problems skip it without failing the run
func (a *App) send(ctx context.Context, logger arbor.ILogger, stats *RunStats) {
	if !a.Config.Mail.Enabled {
		logger.Info().Msg("Email sending skipped (enable with -send or SEND_EMAILS=true)")
		stats.SendSkipped = true
		return
	}

	sender, err := a.stages.NewSender(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Cannot send emails, skipping send stage")
		stats.SendSkipped = true
		return
	}

	sent, err := sender.SendPending(ctx, a.Store)
	stats.EmailsSent = sent
	if err != nil {
		logger.Error().Err(err).Int("sent", sent).Msg("Send stage stopped early")
	}
}

func closeFetcher(logger arbor.ILogger, stage string, f interfaces.Fetcher) {
	if err := f.Close(); err != nil {
		logger.Warn().Err(err).Str("stage", stage).Msg("Failed to close fetcher")
	}
}

// unknownNames keeps scraped names missing from the store, in scrape order
func unknownNames(existing []models.Record, scraped []string) []string {
	known := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		known[r.Name] = struct{}{}
	}

	var out []string
	for _, name := range scraped {
		if _, ok := known[name]; ok {
			continue
		}
		known[name] = struct{}{}
		out = append(out, name)
	}
	return out
}
