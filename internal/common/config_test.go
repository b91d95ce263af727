package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig_IsValid(t *testing.T) {
	config := NewDefaultConfig()

	require.NoError(t, config.Validate())
	assert.Equal(t, 3, config.Fetcher.MaxAttempts)
	assert.Equal(t, 2, config.Listing.PageConcurrency)
	assert.Equal(t, 2, config.Search.Concurrency)
	assert.Equal(t, 5, config.Emails.Concurrency)
	assert.Equal(t, 30*time.Second, config.Fetcher.RequestTimeout)
	assert.Equal(t, 60*time.Second, config.Fetcher.Browser.NavigationTimeout)
	assert.False(t, config.Mail.Enabled)
}

func TestLoadFromFiles_TOMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schoolreach.toml")
	content := `
environment = "production"

[listing]
base_url = "https://listing.example.org/okullar"
page_concurrency = 3

[search]
mode = "api"
official_domains = [".k12.tr"]

[store]
path = "out/schools.csv"

[mail]
port = 465
delay_min = 1000000000 # nanoseconds
delay_max = 2000000000
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.True(t, config.IsProduction())
	assert.Equal(t, "https://listing.example.org/okullar", config.Listing.BaseURL)
	assert.Equal(t, 3, config.Listing.PageConcurrency)
	assert.Equal(t, "api", config.Search.Mode)
	assert.Equal(t, []string{".k12.tr"}, config.Search.OfficialDomains)
	assert.Equal(t, "out/schools.csv", config.Store.Path)
	assert.Equal(t, 465, config.Mail.Port)
	assert.Equal(t, time.Second, config.Mail.DelayMin)
	// Untouched values keep their defaults
	assert.Equal(t, 5, config.Emails.Concurrency)
}

func TestLoadFromFiles_LaterFilesWin(t *testing.T) {
	dir := t.TempDir()
	base := filepath.Join(dir, "base.toml")
	override := filepath.Join(dir, "override.yaml")
	require.NoError(t, os.WriteFile(base, []byte("[store]\npath = \"base.csv\"\n"), 0644))
	require.NoError(t, os.WriteFile(override, []byte("store:\n  path: override.csv\n"), 0644))

	config, err := LoadFromFiles(base, override)
	require.NoError(t, err)
	assert.Equal(t, "override.csv", config.Store.Path)
}

func TestLoadFromFiles_MissingFile(t *testing.T) {
	_, err := LoadFromFiles(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadFromFiles_BodyFile(t *testing.T) {
	dir := t.TempDir()
	bodyPath := filepath.Join(dir, "body.md")
	configPath := filepath.Join(dir, "schoolreach.toml")
	require.NoError(t, os.WriteFile(bodyPath, []byte("Hello {{.Name}}"), 0644))
	require.NoError(t, os.WriteFile(configPath, []byte("[mail]\nbody_file = \""+filepath.ToSlash(bodyPath)+"\"\n"), 0644))

	config, err := LoadFromFiles(configPath)
	require.NoError(t, err)
	assert.Equal(t, "Hello {{.Name}}", config.Mail.Body)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("SCHOOLREACH_STORE_PATH", "env.csv")
	t.Setenv("OUTLOOK_USER", "sender@example.org")
	t.Setenv("OUTLOOK_PASS", "secret")
	t.Setenv("SEND_EMAILS", "true")
	t.Setenv("GOOGLE_API_KEY", "key")
	t.Setenv("SCHOOLREACH_SEARCH_CSE_ID", "cx")
	t.Setenv("SCHOOLREACH_LOG_OUTPUT", "stdout, file ,")
	t.Setenv("SCHOOLREACH_FETCHER_MAX_ATTEMPTS", "not-a-number")

	config, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, "env.csv", config.Store.Path)
	assert.Equal(t, "sender@example.org", config.Mail.Username)
	assert.Equal(t, "secret", config.Mail.Password)
	assert.True(t, config.Mail.Enabled)
	assert.Equal(t, "key", config.Search.APIKey)
	assert.Equal(t, "cx", config.Search.CSEID)
	assert.Equal(t, []string{"stdout", "file"}, config.Logging.Output)
	// Unparseable values are ignored
	assert.Equal(t, 3, config.Fetcher.MaxAttempts)
}

func TestApplyFlagOverrides(t *testing.T) {
	config := NewDefaultConfig()
	ApplyFlagOverrides(config, FlagOverrides{Send: true, DryRun: true, Limit: 5, Schedule: "0 9 * * 1", StoreCSV: "flag.csv"})

	assert.True(t, config.Mail.Enabled)
	assert.True(t, config.Mail.DryRun)
	assert.Equal(t, 5, config.Mail.Limit)
	assert.Equal(t, "0 9 * * 1", config.Schedule)
	assert.Equal(t, "flag.csv", config.Store.Path)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "unknown search mode", mutate: func(c *Config) { c.Search.Mode = "bing" }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Emails.Concurrency = 0 }, wantErr: true},
		{name: "inverted delay range", mutate: func(c *Config) { c.Mail.DelayMax = c.Mail.DelayMin - time.Second }, wantErr: true},
		{name: "missing store path", mutate: func(c *Config) { c.Store.Path = "" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, wantErr: true},
		{name: "valid schedule", mutate: func(c *Config) { c.Schedule = "0 3 * * *" }},
		{name: "invalid schedule", mutate: func(c *Config) { c.Schedule = "not cron" }, wantErr: true},
		{name: "too frequent schedule", mutate: func(c *Config) { c.Schedule = "*/5 * * * *" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := NewDefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
