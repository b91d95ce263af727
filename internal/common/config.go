package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment" yaml:"environment"` // "development" or "production"
	Listing     ListingConfig `toml:"listing" yaml:"listing"`
	Fetcher     FetcherConfig `toml:"fetcher" yaml:"fetcher"`
	Search      SearchConfig  `toml:"search" yaml:"search"`
	Emails      EmailsConfig  `toml:"emails" yaml:"emails"`
	Store       StoreConfig   `toml:"store" yaml:"store"`
	Mail        MailConfig    `toml:"mail" yaml:"mail"`
	Logging     LoggingConfig `toml:"logging" yaml:"logging"`
	Schedule    string        `toml:"schedule" yaml:"schedule"` // Cron expression for repeated runs (empty = run once)
}

// ListingConfig controls the school-name scraper
type ListingConfig struct {
	BaseURL         string        `toml:"base_url" yaml:"base_url" validate:"required,url"`
	UseBrowser      bool          `toml:"use_browser" yaml:"use_browser"` // Fetch listing pages through chromedp
	PageConcurrency int           `toml:"page_concurrency" yaml:"page_concurrency" validate:"min=1,max=10"`
	PageDelayMin    time.Duration `toml:"page_delay_min" yaml:"page_delay_min"` // Randomized delay before each page fetch
	PageDelayMax    time.Duration `toml:"page_delay_max" yaml:"page_delay_max" validate:"gtefield=PageDelayMin"`
	MinNameLength   int           `toml:"min_name_length" yaml:"min_name_length" validate:"min=1"`
	MaxNameLength   int           `toml:"max_name_length" yaml:"max_name_length" validate:"gtfield=MinNameLength"`
	UINoise         []string      `toml:"ui_noise" yaml:"ui_noise"`                 // Denylisted UI/navigation substrings
	ItemKeywords    []string      `toml:"item_keywords" yaml:"item_keywords"`       // li class keywords
	DetailPaths     []string      `toml:"detail_paths" yaml:"detail_paths"`         // School detail href fragments
	CardKeywords    []string      `toml:"card_keywords" yaml:"card_keywords"`       // Container class keywords
	PaginationClass string        `toml:"pagination_class" yaml:"pagination_class"` // Class of the pagination container
}

// FetcherConfig contains the shared request profile and retry policy
type FetcherConfig struct {
	UserAgents        []string      `toml:"user_agents" yaml:"user_agents" validate:"min=1"`
	AcceptLanguage    string        `toml:"accept_language" yaml:"accept_language"`
	RequestTimeout    time.Duration `toml:"request_timeout" yaml:"request_timeout" validate:"gt=0"`
	MaxBodySize       int64         `toml:"max_body_size" yaml:"max_body_size" validate:"gt=0"`
	MinInterval       time.Duration `toml:"min_interval" yaml:"min_interval"` // Minimum spacing between requests of one fetcher
	MaxAttempts       int           `toml:"max_attempts" yaml:"max_attempts" validate:"min=1,max=10"`
	TransportBackoff  BackoffRange  `toml:"transport_backoff" yaml:"transport_backoff"`   // Scaled by attempt number
	RateLimitBackoff  BackoffRange  `toml:"rate_limit_backoff" yaml:"rate_limit_backoff"` // Fixed range
	ChallengeBackoff  BackoffRange  `toml:"challenge_backoff" yaml:"challenge_backoff"`   // Fixed range
	SoftBlockStatuses []int         `toml:"soft_block_statuses" yaml:"soft_block_statuses"`
	ChallengeMarkers  []string      `toml:"challenge_markers" yaml:"challenge_markers"`
	Browser           BrowserConfig `toml:"browser" yaml:"browser"`
}

// BackoffRange is a uniform random sleep interval
type BackoffRange struct {
	Min time.Duration `toml:"min" yaml:"min"`
	Max time.Duration `toml:"max" yaml:"max"`
}

// BrowserConfig configures the chromedp fetch path
type BrowserConfig struct {
	Headless           bool          `toml:"headless" yaml:"headless"`
	NoSandbox          bool          `toml:"no_sandbox" yaml:"no_sandbox"`
	ExecPath           string        `toml:"exec_path" yaml:"exec_path"` // Chrome binary; empty = auto-detect
	Locale             string        `toml:"locale" yaml:"locale"`
	Timezone           string        `toml:"timezone" yaml:"timezone"`
	ViewportWidth      int64         `toml:"viewport_width" yaml:"viewport_width"`
	ViewportHeight     int64         `toml:"viewport_height" yaml:"viewport_height"`
	NavigationTimeout  time.Duration `toml:"navigation_timeout" yaml:"navigation_timeout"`
	NetworkIdleTimeout time.Duration `toml:"network_idle_timeout" yaml:"network_idle_timeout"`
	SettleMin          time.Duration `toml:"settle_min" yaml:"settle_min"` // Jitter after load for deferred scripts
	SettleMax          time.Duration `toml:"settle_max" yaml:"settle_max"`
}

// SearchConfig controls website discovery
type SearchConfig struct {
	Mode             string        `toml:"mode" yaml:"mode" validate:"oneof=scrape api"` // "scrape" (result page) or "api" (Custom Search JSON API)
	UseBrowser       bool          `toml:"use_browser" yaml:"use_browser"`
	QuerySuffix      string        `toml:"query_suffix" yaml:"query_suffix"`     // Phrase meaning "official website"
	EngineURL        string        `toml:"engine_url" yaml:"engine_url"`         // Result page URL, {query} is replaced
	EngineDomains    []string      `toml:"engine_domains" yaml:"engine_domains"` // Hosts treated as the engine itself
	RedirectMarkers  []string      `toml:"redirect_markers" yaml:"redirect_markers"`
	CacheMarkers     []string      `toml:"cache_markers" yaml:"cache_markers"`
	ChallengeMarkers []string      `toml:"challenge_markers" yaml:"challenge_markers"` // Added to the fetcher markers
	MaxResults       int           `toml:"max_results" yaml:"max_results" validate:"min=1,max=50"`
	OfficialDomains  []string      `toml:"official_domains" yaml:"official_domains"`
	Concurrency      int           `toml:"concurrency" yaml:"concurrency" validate:"min=1,max=10"`
	Stagger          time.Duration `toml:"stagger" yaml:"stagger"` // Start offset per item index
	DelayMin         time.Duration `toml:"delay_min" yaml:"delay_min"`
	DelayMax         time.Duration `toml:"delay_max" yaml:"delay_max" validate:"gtefield=DelayMin"`
	APIKey           string        `toml:"api_key" yaml:"api_key"`
	CSEID            string        `toml:"cse_id" yaml:"cse_id"`
	APIEndpoint      string        `toml:"api_endpoint" yaml:"api_endpoint"`
}

// EmailsConfig controls email extraction
type EmailsConfig struct {
	UseBrowser         bool          `toml:"use_browser" yaml:"use_browser"`
	Concurrency        int           `toml:"concurrency" yaml:"concurrency" validate:"min=1,max=20"`
	Cooldown           time.Duration `toml:"cooldown" yaml:"cooldown"` // Pause after each completed lookup
	MaxAttempts        int           `toml:"max_attempts" yaml:"max_attempts" validate:"min=1,max=10"`
	MaxContactPages    int           `toml:"max_contact_pages" yaml:"max_contact_pages" validate:"min=0"` // 0 reads the main page only
	SectionKeywords    []string      `toml:"section_keywords" yaml:"section_keywords"`                    // Text that marks a contact section
	ContactKeywords    []string      `toml:"contact_keywords" yaml:"contact_keywords"`                    // Link text/href marking a contact page
	PlaceholderDomains []string      `toml:"placeholder_domains" yaml:"placeholder_domains"`              // Discarded address fragments
}

// StoreConfig locates the CSV record store
type StoreConfig struct {
	Path string `toml:"path" yaml:"path" validate:"required"`
}

// MailConfig configures the outreach mail sender
type MailConfig struct {
	Enabled           bool            `toml:"enabled" yaml:"enabled"`
	Host              string          `toml:"host" yaml:"host"`
	Port              int             `toml:"port" yaml:"port" validate:"min=1,max=65535"`
	Username          string          `toml:"username" yaml:"username"`
	Password          string          `toml:"password" yaml:"password"`
	From              string          `toml:"from" yaml:"from"`
	FromName          string          `toml:"from_name" yaml:"from_name"`
	Auth              string          `toml:"auth" yaml:"auth" validate:"oneof=password oauth2"`
	OAuth             MailOAuthConfig `toml:"oauth" yaml:"oauth"`
	Subject           string          `toml:"subject" yaml:"subject"`
	Body              string          `toml:"body" yaml:"body"`           // Markdown template, {{.Name}} available
	BodyFile          string          `toml:"body_file" yaml:"body_file"` // Overrides Body when set
	DelayMin          time.Duration   `toml:"delay_min" yaml:"delay_min"`
	DelayMax          time.Duration   `toml:"delay_max" yaml:"delay_max" validate:"gtefield=DelayMin"`
	Limit             int             `toml:"limit" yaml:"limit" validate:"min=0"` // 0 = no limit
	DryRun            bool            `toml:"dry_run" yaml:"dry_run"`
	PreferredDomains  []string        `toml:"preferred_domains" yaml:"preferred_domains"`
	PreferredKeywords []string        `toml:"preferred_keywords" yaml:"preferred_keywords"`
}

// MailOAuthConfig holds XOAUTH2 settings for SMTP servers with basic auth disabled
type MailOAuthConfig struct {
	ClientID     string   `toml:"client_id" yaml:"client_id"`
	ClientSecret string   `toml:"client_secret" yaml:"client_secret"`
	TokenURL     string   `toml:"token_url" yaml:"token_url"`
	RefreshToken string   `toml:"refresh_token" yaml:"refresh_token"`
	Scopes       []string `toml:"scopes" yaml:"scopes"`
}

type LoggingConfig struct {
	Level  string   `toml:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Output []string `toml:"output" yaml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Listing: ListingConfig{
			BaseURL:         "https://okul.com.tr/ortaokul/istanbul?f-f=4",
			UseBrowser:      true, // The listing site sits behind a bot-detection challenge
			PageConcurrency: 2,
			PageDelayMin:    2 * time.Second,
			PageDelayMax:    4 * time.Second,
			MinNameLength:   5,
			MaxNameLength:   100,
			UINoise: []string{
				"istanbul ortaokulları", "istanbul ortaokullar",
				"aradığınız", "görüntüleyin", "görüntüle", "detaylarını", "detay",
				"tüm detaylar", "giriş yap", "devamını", "devam", "daha fazla",
				"view", "details", "more", "continue",
				"okul listesi", "school list", "sayfa", "page",
			},
			ItemKeywords:    []string{"school", "okul", "item", "card"},
			DetailPaths:     []string{"/okul/", "/school/", "/ortaokul/", "/orta-okul/"},
			CardKeywords:    []string{"card", "item", "school", "okul", "list"},
			PaginationClass: "pagination",
		},
		Fetcher: FetcherConfig{
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
			},
			AcceptLanguage:    "tr-TR,tr;q=0.9,en-US;q=0.8,en;q=0.7",
			RequestTimeout:    30 * time.Second,
			MaxBodySize:       10 * 1024 * 1024, // 10MB
			MaxAttempts:       3,
			TransportBackoff:  BackoffRange{Min: 2 * time.Second, Max: 5 * time.Second},
			RateLimitBackoff:  BackoffRange{Min: 30 * time.Second, Max: 60 * time.Second},
			ChallengeBackoff:  BackoffRange{Min: 60 * time.Second, Max: 120 * time.Second},
			SoftBlockStatuses: []int{403, 429, 503, 521},
			// Interstitial pages only. Ordinary pages embed reCAPTCHA widgets on their forms.
			ChallengeMarkers: []string{
				"challenge-platform", "cf-browser-verification", "just a moment", "checking your browser",
			},
			Browser: BrowserConfig{
				Headless:           true,
				NoSandbox:          true,
				Locale:             "tr-TR",
				Timezone:           "Europe/Istanbul",
				ViewportWidth:      1920,
				ViewportHeight:     1080,
				NavigationTimeout:  60 * time.Second,
				NetworkIdleTimeout: 15 * time.Second,
				SettleMin:          2 * time.Second,
				SettleMax:          4 * time.Second,
			},
		},
		Search: SearchConfig{
			Mode:             "scrape",
			QuerySuffix:      "resmi web sitesi",
			EngineURL:        "https://www.google.com/search?q={query}&hl=tr&num=15",
			EngineDomains:    []string{"google.", "googleusercontent.", "gstatic.", "youtube.com"},
			RedirectMarkers:  []string{"/url?q=", "/url?url="},
			CacheMarkers:     []string{"webcache.googleusercontent", "cache:"},
			ChallengeMarkers: []string{"unusual traffic", "/sorry/", "our systems have detected", "captcha"},
			MaxResults:       10,
			OfficialDomains:  []string{".k12.tr", ".edu.tr", ".gov.tr", "bel.tr", "meb.gov.tr"},
			Concurrency:      2,
			Stagger:          2 * time.Second,
			DelayMin:         4 * time.Second,
			DelayMax:         9 * time.Second,
			APIEndpoint:      "https://www.googleapis.com/customsearch/v1",
		},
		Emails: EmailsConfig{
			Concurrency:        5,
			Cooldown:           500 * time.Millisecond,
			MaxAttempts:        2,
			MaxContactPages:    3,
			SectionKeywords:    []string{"iletişim", "iletisim", "contact"},
			ContactKeywords:    []string{"iletişim", "iletisim", "contact", "bize-ulasin", "bize-ulaşın", "bize ulaşın"},
			PlaceholderDomains: []string{"example.com", "test.com", "domain.com", "email.com"},
		},
		Store: StoreConfig{
			Path: "schools.csv",
		},
		Mail: MailConfig{
			Enabled:           false, // Sending must be switched on explicitly
			Host:              "smtp.office365.com",
			Port:              587,
			Auth:              "password",
			OAuth:             MailOAuthConfig{Scopes: []string{"https://outlook.office365.com/SMTP.Send", "offline_access"}},
			Subject:           "Öğrenciler için modern KRLE/Din Kültürü öğrenme aracı – Relingo",
			Body:              DefaultMailBody,
			DelayMin:          15 * time.Second,
			DelayMax:          45 * time.Second,
			PreferredDomains:  []string{".k12.tr", ".edu.tr"},
			PreferredKeywords: []string{"ortaokul", "koleji", "okul"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// DefaultMailBody is the outreach template used when none is configured
const DefaultMailBody = `Merhaba,

Dinler, kültürler ve etik değerler üzerine etkileşimli öğrenme sunan **Relingo** adlı yapay zekâ destekli bir uygulama geliştirdim.

{{.Name}} olarak uygulamanın ilk deneme sürecine katılmanızı çok isteriz. 2 hafta ücretsiz deneyip kısa bir geri bildirim verebilirseniz bizim için çok değerli olur.

İnceleme bağlantısı: https://relingo-qs8k.vercel.app/

Saygılarımla`

// LoadFromFiles loads configuration with priority: defaults -> file1 -> file2 -> ... -> env.
// Later files override earlier files. TOML is the default format, .yaml/.yml files are parsed as YAML.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			err = yaml.Unmarshal(data, config)
		default:
			err = toml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if config.Mail.BodyFile != "" {
		body, err := os.ReadFile(config.Mail.BodyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read mail body file %s: %w", config.Mail.BodyFile, err)
		}
		config.Mail.Body = string(body)
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("SCHOOLREACH_ENV"); env != "" {
		config.Environment = env
	}

	// Listing
	if baseURL := os.Getenv("SCHOOLREACH_LISTING_BASE_URL"); baseURL != "" {
		config.Listing.BaseURL = baseURL
	}
	if useBrowser := os.Getenv("SCHOOLREACH_LISTING_USE_BROWSER"); useBrowser != "" {
		if b, err := strconv.ParseBool(useBrowser); err == nil {
			config.Listing.UseBrowser = b
		}
	}

	// Fetcher
	if timeout := os.Getenv("SCHOOLREACH_FETCHER_REQUEST_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			config.Fetcher.RequestTimeout = d
		}
	}
	if attempts := os.Getenv("SCHOOLREACH_FETCHER_MAX_ATTEMPTS"); attempts != "" {
		if n, err := strconv.Atoi(attempts); err == nil {
			config.Fetcher.MaxAttempts = n
		}
	}
	if execPath := os.Getenv("SCHOOLREACH_CHROME_PATH"); execPath != "" {
		config.Fetcher.Browser.ExecPath = execPath
	}

	// Search (GOOGLE_* names kept for existing .env files)
	if mode := os.Getenv("SCHOOLREACH_SEARCH_MODE"); mode != "" {
		config.Search.Mode = mode
	}
	if apiKey := os.Getenv("SCHOOLREACH_SEARCH_API_KEY"); apiKey != "" {
		config.Search.APIKey = apiKey
	} else if apiKey := os.Getenv("GOOGLE_API_KEY"); apiKey != "" {
		config.Search.APIKey = apiKey
	}
	if cseID := os.Getenv("SCHOOLREACH_SEARCH_CSE_ID"); cseID != "" {
		config.Search.CSEID = cseID
	} else if cseID := os.Getenv("GOOGLE_CSE_ID"); cseID != "" {
		config.Search.CSEID = cseID
	}

	// Store
	if path := os.Getenv("SCHOOLREACH_STORE_PATH"); path != "" {
		config.Store.Path = path
	}

	// Mail (OUTLOOK_* and SEND_EMAILS kept for existing .env files)
	if enabled := firstEnv("SCHOOLREACH_MAIL_ENABLED", "SEND_EMAILS"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Mail.Enabled = b
		}
	}
	if host := os.Getenv("SCHOOLREACH_MAIL_HOST"); host != "" {
		config.Mail.Host = host
	}
	if port := os.Getenv("SCHOOLREACH_MAIL_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Mail.Port = p
		}
	}
	if user := firstEnv("SCHOOLREACH_MAIL_USERNAME", "OUTLOOK_USER"); user != "" {
		config.Mail.Username = user
	}
	if pass := firstEnv("SCHOOLREACH_MAIL_PASSWORD", "OUTLOOK_PASS"); pass != "" {
		config.Mail.Password = pass
	}
	if from := os.Getenv("SCHOOLREACH_MAIL_FROM"); from != "" {
		config.Mail.From = from
	}
	if auth := os.Getenv("SCHOOLREACH_MAIL_AUTH"); auth != "" {
		config.Mail.Auth = auth
	}
	if clientID := os.Getenv("SCHOOLREACH_MAIL_OAUTH_CLIENT_ID"); clientID != "" {
		config.Mail.OAuth.ClientID = clientID
	}
	if secret := os.Getenv("SCHOOLREACH_MAIL_OAUTH_CLIENT_SECRET"); secret != "" {
		config.Mail.OAuth.ClientSecret = secret
	}
	if refresh := os.Getenv("SCHOOLREACH_MAIL_OAUTH_REFRESH_TOKEN"); refresh != "" {
		config.Mail.OAuth.RefreshToken = refresh
	}

	// Logging
	if level := os.Getenv("SCHOOLREACH_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("SCHOOLREACH_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	if schedule := os.Getenv("SCHOOLREACH_SCHEDULE"); schedule != "" {
		config.Schedule = schedule
	}
}

func firstEnv(names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// FlagOverrides carries command-line values that take precedence over every other source
type FlagOverrides struct {
	Send     bool
	DryRun   bool
	Limit    int
	Schedule string
	StoreCSV string
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, flags FlagOverrides) {
	if flags.Send {
		config.Mail.Enabled = true
	}
	if flags.DryRun {
		config.Mail.DryRun = true
	}
	if flags.Limit > 0 {
		config.Mail.Limit = flags.Limit
	}
	if flags.Schedule != "" {
		config.Schedule = flags.Schedule
	}
	if flags.StoreCSV != "" {
		config.Store.Path = flags.StoreCSV
	}
}

// Validate checks struct constraints and the cron schedule
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Schedule != "" {
		if err := ValidateSchedule(c.Schedule); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSchedule validates a standard five-field cron expression
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	// A full harvest takes tens of minutes, so anything tighter than hourly would overlap constantly
	minuteField := strings.Fields(schedule)[0]
	if minuteField == "*" || strings.HasPrefix(minuteField, "*/") {
		return fmt.Errorf("schedule must run at most once per hour, got minute field %q", minuteField)
	}

	return nil
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
