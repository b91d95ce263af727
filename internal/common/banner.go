package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and logs the effective run settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	banner.Print("SchoolReach", GetVersion())

	logger.Info().
		Str("version", GetFullVersion()).
		Str("environment", config.Environment).
		Str("listing", config.Listing.BaseURL).
		Str("search_mode", config.Search.Mode).
		Str("store", config.Store.Path).
		Bool("mail_enabled", config.Mail.Enabled).
		Bool("dry_run", config.Mail.DryRun).
		Str("schedule", config.Schedule).
		Msg("SchoolReach starting")
}
