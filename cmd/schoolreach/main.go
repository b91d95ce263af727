package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ternarybob/schoolreach/internal/app"
	"github.com/ternarybob/schoolreach/internal/common"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	configFiles configPaths // Multiple -config flags supported
	sendEmails  = flag.Bool("send", false, "Send outreach emails after the pipeline (overrides config)")
	reorganize  = flag.Bool("reorganize", false, "Clean and sort the record store, then exit")
	schedule    = flag.String("schedule", "", "Cron expression (5 fields) to repeat the pipeline, e.g. \"0 3 * * *\"")
	limit       = flag.Int("limit", 0, "Send to at most N schools, preferring school domains")
	dryRun      = flag.Bool("dry-run", false, "Compose emails without sending them")
	storeCSV    = flag.String("csv", "", "Record store path (overrides config)")
	showVersion = flag.Bool("version", false, "Print version information")
)

func init() {
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func main() {
	common.InstallCrashHandler("")
	defer common.RecoverWithCrashFile()

	flag.Parse()
	common.LoadVersionFromFile()

	if *showVersion {
		fmt.Printf("SchoolReach version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	if len(configFiles) == 0 {
		if _, err := os.Stat("schoolreach.toml"); err == nil {
			configFiles = append(configFiles, "schoolreach.toml")
		} else if _, err := os.Stat("deployments/local/schoolreach.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/schoolreach.toml")
		}
	}

	// Startup order: config (defaults -> files -> env) -> flags -> validate -> logger -> banner
	config, err := common.LoadFromFiles(configFiles...)
	if err != nil {
		common.GetLogger().Fatal().Strs("paths", configFiles).Err(err).Msg("Failed to load configuration files")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, common.FlagOverrides{
		Send:     *sendEmails,
		DryRun:   *dryRun,
		Limit:    *limit,
		Schedule: *schedule,
		StoreCSV: *storeCSV,
	})

	// Production hosts have no display for a headed browser
	if config.IsProduction() {
		config.Fetcher.Browser.Headless = true
	}

	logger := common.InitLogger(config)

	if err := config.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("Invalid configuration")
		os.Exit(1)
	}

	common.PrintBanner(config, logger)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("store", config.Store.Path).
		Str("search_mode", config.Search.Mode).
		Bool("send", config.Mail.Enabled).
		Bool("dry_run", config.Mail.DryRun).
		Int("limit", config.Mail.Limit).
		Str("schedule", config.Schedule).
		Msg("Resolved configuration (sanitized)")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *reorganize {
		if err := application.Reorganize(ctx); err != nil {
			logger.Error().Err(err).Msg("Reorganize failed")
			os.Exit(1)
		}
		return
	}

	if config.Schedule == "" {
		if _, err := application.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Pipeline failed")
			os.Exit(1)
		}
		return
	}

	scheduler := app.NewScheduler(application, logger)
	if err := scheduler.Start(ctx, config.Schedule); err != nil {
		logger.Fatal().Err(err).Msg("Failed to start scheduler")
		os.Exit(1)
	}
	scheduler.RunNow()

	logger.Info().Msg("Scheduler running - Press Ctrl+C to stop")
	<-ctx.Done()

	logger.Info().Msg("Interrupt signal received, waiting for the current run to stop")
	scheduler.Stop()
}
