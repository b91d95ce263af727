package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
	"github.com/ternarybob/schoolreach/internal/interfaces"
	"github.com/ternarybob/schoolreach/internal/services/emails"
	"github.com/ternarybob/schoolreach/internal/services/fetcher"
	"github.com/ternarybob/schoolreach/internal/services/mailer"
	"github.com/ternarybob/schoolreach/internal/services/names"
	"github.com/ternarybob/schoolreach/internal/services/websites"
	"github.com/ternarybob/schoolreach/internal/storage/csvstore"
)

// Stages builds the per-stage components. Each stage gets its own fetcher so
// its browser or transport can be released as soon as the stage ends.
type Stages struct {
	NewFetcher   func(opts fetcher.Options) interfaces.Fetcher
	NewScraper   func(f interfaces.Fetcher) interfaces.NameScraper
	NewFinder    func(f interfaces.Fetcher) (interfaces.WebsiteFinder, error)
	NewExtractor func(f interfaces.Fetcher) interfaces.EmailExtractor
	NewSender    func(ctx context.Context) (interfaces.OutreachSender, error)
}

// App holds all application components and dependencies
type App struct {
	Config *common.Config
	Logger arbor.ILogger
	Store  *csvstore.Store
	Filter *names.Filter

	stages Stages

	// runMu serialises pipeline runs started by the scheduler and the CLI
	runMu sync.Mutex
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	store, err := csvstore.NewStore(cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize record store: %w", err)
	}

	app := &App{
		Config: cfg,
		Logger: logger,
		Store:  store,
		Filter: names.NewFilter(cfg.Listing.MinNameLength, cfg.Listing.MaxNameLength, cfg.Listing.UINoise),
	}
	app.stages = app.defaultStages()

	logger.Info().
		Str("store", store.Path()).
		Str("listing", cfg.Listing.BaseURL).
		Str("search_mode", cfg.Search.Mode).
		Bool("send", cfg.Mail.Enabled).
		Msg("Application initialization complete")

	return app, nil
}

func (a *App) defaultStages() Stages {
	cfg := a.Config
	return Stages{
		NewFetcher: func(opts fetcher.Options) interfaces.Fetcher {
			return fetcher.New(cfg.Fetcher, opts, a.Logger)
		},
		NewScraper: func(f interfaces.Fetcher) interfaces.NameScraper {
			return names.NewScraper(cfg.Listing, f, a.Logger)
		},
		NewFinder: func(f interfaces.Fetcher) (interfaces.WebsiteFinder, error) {
			searcher, err := websites.NewSearcher(cfg.Search, f, a.Logger)
			if err != nil {
				return nil, err
			}
			return websites.NewFinder(cfg.Search, searcher, a.Logger), nil
		},
		NewExtractor: func(f interfaces.Fetcher) interfaces.EmailExtractor {
			return emails.NewExtractor(cfg.Emails, f, a.Logger)
		},
		NewSender: func(ctx context.Context) (interfaces.OutreachSender, error) {
			var transport interfaces.MailTransport
			if !cfg.Mail.DryRun {
				smtpTransport, err := mailer.NewSMTPTransport(ctx, cfg.Mail, a.Logger)
				if err != nil {
					return nil, err
				}
				transport = smtpTransport
			}
			return mailer.NewSender(cfg.Mail, transport, a.Logger)
		},
	}
}

// Reorganize cleans and sorts the record store without running the pipeline
func (a *App) Reorganize(ctx context.Context) error {
	a.runMu.Lock()
	defer a.runMu.Unlock()

	stats, removed, err := a.Store.Reorganize(ctx, a.Filter)
	if err != nil {
		return fmt.Errorf("failed to reorganize record store: %w", err)
	}

	a.Logger.Info().
		Int("removed", removed).
		Int("total", stats.Total).
		Int("with_email", stats.WithEmail).
		Int("with_website", stats.WithWebsite).
		Int("contacted", stats.Contacted).
		Int("ready_to_contact", stats.ReadyToContact).
		Msg("Reorganization complete")
	return nil
}

// Close waits for an in-flight run to finish
func (a *App) Close() error {
	a.runMu.Lock()
	defer a.runMu.Unlock()
	a.Logger.Info().Msg("Application closed")
	return nil
}
