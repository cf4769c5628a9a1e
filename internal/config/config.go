// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type AdminConfig struct {
	Port   int    `yaml:"port"` // 0 disables the ops server
	APIKey string `yaml:"api_key"`
}

type SheetsConfig struct {
	SpreadsheetID     string `yaml:"spreadsheet_id"`
	Worksheet         string `yaml:"worksheet"`
	CredentialsFile   string `yaml:"credentials_file"`
	AutoAppendColumns bool   `yaml:"auto_append_columns"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL          string        `yaml:"url"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	TTL          time.Duration `yaml:"ttl"`
	ClaimLockTTL time.Duration `yaml:"claim_lock_ttl"`
}

type AIConfig struct {
	Provider        string            `yaml:"provider"` // openai|gemini|ollama|noop
	DefaultModel    string            `yaml:"default_model"`
	OpenAIKey       string            `yaml:"openai_key"`
	OpenAIBaseURL   string            `yaml:"openai_base_url"`
	GeminiKey       string            `yaml:"gemini_key"`
	GeminiURL       string            `yaml:"gemini_url"`
	OllamaURL       string            `yaml:"ollama_url"`
	ModelProviders  map[string]string `yaml:"model_providers"` // model -> provider
	MaxOutputTokens int               `yaml:"max_output_tokens"`
	MaxPromptTokens int               `yaml:"max_prompt_tokens"`
	Timeout         time.Duration     `yaml:"timeout"`
}

type WorkflowConfig struct {
	Interval         time.Duration `yaml:"interval"`
	BatchSize        int           `yaml:"batch_size"`
	MaxItemsPerRun   int           `yaml:"max_items_per_run"`
	TweetCount       int           `yaml:"tweet_count"`
	PostsPerItem     int           `yaml:"posts_per_item"` // 0 publishes every tweet
	EngageCount      int           `yaml:"engage_count"`
	DailyLikeCap     int           `yaml:"daily_like_cap"` // per account, 0 is unlimited
	RetryAttempts    int           `yaml:"retry_attempts"`
	RetryBaseDelay   time.Duration `yaml:"retry_base_delay"`
	RetryJitter      time.Duration `yaml:"retry_jitter"`
	FallbackHashtags []string      `yaml:"fallback_hashtags"`
}

type FollowupConfig struct {
	MaxPerItem    int           `yaml:"max_per_item"`
	Spacing       time.Duration `yaml:"spacing"`
	DispatchLimit int           `yaml:"dispatch_limit"`
}

type BrowserConfig struct {
	Headless          bool          `yaml:"headless"`
	SessionDir        string        `yaml:"session_dir"`
	ExecPath          string        `yaml:"exec_path"`
	UserAgent         string        `yaml:"user_agent"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	SelectorTimeout   time.Duration `yaml:"selector_timeout"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
}

type TwitterAccount struct {
	Name        string   `yaml:"name"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	SearchTerms []string `yaml:"search_terms"`
}

type TwitterConfig struct {
	Accounts []TwitterAccount `yaml:"accounts"`
}

type BlueskyConfig struct {
	Host        string   `yaml:"host"`
	Identifier  string   `yaml:"identifier"`
	Password    string   `yaml:"password"`
	SearchTerms []string `yaml:"search_terms"`
}

type LinkedInConfig struct {
	AccessToken  string `yaml:"access_token"`
	RefreshToken string `yaml:"refresh_token"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AuthorURN    string `yaml:"author_urn"`
	APIBaseURL   string `yaml:"api_base_url"`
	TokenURL     string `yaml:"token_url"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Admin    AdminConfig    `yaml:"admin"`
	Sheets   SheetsConfig   `yaml:"sheets"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Followup FollowupConfig `yaml:"followup"`
	Browser  BrowserConfig  `yaml:"browser"`
	Twitter  TwitterConfig  `yaml:"twitter"`
	Bluesky  BlueskyConfig  `yaml:"bluesky"`
	LinkedIn LinkedInConfig `yaml:"linkedin"`
	Telegram TelegramConfig `yaml:"telegram"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the optional YAML file at path, applies environment
// overrides and defaults, then validates. An empty path skips the file.
func LoadConfig(path string, dev bool) (*Config, error) {
	return load(path, dev, os.LookupEnv)
}

func load(path string, dev bool, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Config{Browser: BrowserConfig{Headless: true}}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg, lookup); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)

	// Minimal validation
	if cfg.Sheets.SpreadsheetID == "" {
		return nil, errors.New("sheets.spreadsheet_id (GOOGLE_SHEET_ID) is required")
	}
	switch cfg.AI.Provider {
	case "openai":
		if cfg.AI.OpenAIKey == "" {
			return nil, errors.New("ai.openai_key (OPENAI_API_KEY) is required for the openai provider")
		}
	case "gemini":
		if cfg.AI.GeminiKey == "" {
			return nil, errors.New("ai.gemini_key (GEMINI_API_KEY) is required for the gemini provider")
		}
	case "ollama", "noop":
	default:
		return nil, fmt.Errorf("ai.provider %q is not supported", cfg.AI.Provider)
	}
	for i, a := range cfg.Twitter.Accounts {
		if a.Username == "" || a.Password == "" {
			return nil, fmt.Errorf("twitter.accounts[%d]: username and password are required", i)
		}
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.Channel == "" {
		return nil, errors.New("telegram.channel (TELEGRAM_CHANNEL) is required when a bot token is set")
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FORMAT", &cfg.Log.Format)
	integer("ADMIN_PORT", &cfg.Admin.Port)
	str("ADMIN_API_KEY", &cfg.Admin.APIKey)

	str("GOOGLE_SHEET_ID", &cfg.Sheets.SpreadsheetID)
	str("GOOGLE_SHEET_NAME", &cfg.Sheets.Worksheet)
	str("GOOGLE_SHEETS_CREDENTIALS", &cfg.Sheets.CredentialsFile)

	str("DATABASE_URL", &cfg.Database.URL)
	str("REDIS_URL", &cfg.Redis.URL)
	str("REDIS_PASSWORD", &cfg.Redis.Password)

	str("LLM_PROVIDER", &cfg.AI.Provider)
	str("LLM_MODEL", &cfg.AI.DefaultModel)
	str("OPENAI_API_KEY", &cfg.AI.OpenAIKey)
	str("OPENAI_BASE_URL", &cfg.AI.OpenAIBaseURL)
	str("GEMINI_API_KEY", &cfg.AI.GeminiKey)
	str("OLLAMA_API_URL", &cfg.AI.OllamaURL)

	var minutes int
	integer("WORKFLOW_INTERVAL_MINUTES", &minutes)
	if minutes > 0 {
		cfg.Workflow.Interval = time.Duration(minutes) * time.Minute
	}
	integer("BATCH_SIZE", &cfg.Workflow.BatchSize)
	integer("ENGAGE_COUNT", &cfg.Workflow.EngageCount)
	integer("DAILY_LIKE_CAP", &cfg.Workflow.DailyLikeCap)

	if v, ok := lookup("HEADLESS"); ok && strings.TrimSpace(v) != "" {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("HEADLESS: %w", err))
		} else {
			cfg.Browser.Headless = b
		}
	}
	str("SESSION_DIR", &cfg.Browser.SessionDir)

	primary := TwitterAccount{Name: "primary"}
	str("TWITTER_USERNAME", &primary.Username)
	str("TWITTER_PASSWORD", &primary.Password)
	primary.SearchTerms = splitList(lookup, "SEARCH_TERMS")
	secondary := TwitterAccount{Name: "secondary"}
	str("TWITTER_USERNAME_2", &secondary.Username)
	str("TWITTER_PASSWORD_2", &secondary.Password)
	secondary.SearchTerms = splitList(lookup, "SEARCH_TERMS_2")
	if primary.Username != "" || secondary.Username != "" {
		accounts := []TwitterAccount{}
		for _, a := range []TwitterAccount{primary, secondary} {
			if a.Username != "" || a.Password != "" {
				accounts = append(accounts, a)
			}
		}
		cfg.Twitter.Accounts = accounts
	}

	str("BLUESKY_API_KEY", &cfg.Bluesky.Identifier)
	str("BLUESKY_API_PASSWORD", &cfg.Bluesky.Password)
	if terms := splitList(lookup, "SEARCH_TERMS"); len(terms) > 0 && len(cfg.Bluesky.SearchTerms) == 0 {
		cfg.Bluesky.SearchTerms = terms
	}

	str("LINKEDIN_ACCESS_TOKEN", &cfg.LinkedIn.AccessToken)
	str("LINKEDIN_REFRESH_TOKEN", &cfg.LinkedIn.RefreshToken)
	str("LINKEDIN_CLIENT_ID", &cfg.LinkedIn.ClientID)
	str("LINKEDIN_CLIENT_SECRET", &cfg.LinkedIn.ClientSecret)
	str("LINKEDIN_AUTHOR_URN", &cfg.LinkedIn.AuthorURN)

	str("TELEGRAM_BOT_TOKEN", &cfg.Telegram.BotToken)
	str("TELEGRAM_CHANNEL", &cfg.Telegram.Channel)

	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Sheets.Worksheet == "" {
		cfg.Sheets.Worksheet = "Sheet1"
	}
	if cfg.Sheets.CredentialsFile == "" {
		cfg.Sheets.CredentialsFile = "credentials.json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 4
	}
	cfg.Redis.TTL = normalizeTTL(cfg.Redis.TTL, 30*24*time.Hour)
	cfg.Redis.ClaimLockTTL = normalizeTTL(cfg.Redis.ClaimLockTTL, 2*time.Minute)

	if cfg.AI.Provider == "" {
		switch {
		case cfg.AI.OpenAIKey != "":
			cfg.AI.Provider = "openai"
		case cfg.AI.GeminiKey != "":
			cfg.AI.Provider = "gemini"
		default:
			cfg.AI.Provider = "ollama"
		}
	}
	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	if cfg.AI.DefaultModel == "" {
		switch cfg.AI.Provider {
		case "gemini":
			cfg.AI.DefaultModel = "gemini-2.0-flash"
		case "ollama":
			cfg.AI.DefaultModel = "llama3"
		default:
			cfg.AI.DefaultModel = "gpt-4o-mini"
		}
	}
	if cfg.AI.OllamaURL == "" {
		cfg.AI.OllamaURL = "http://localhost:11434"
	}
	if cfg.AI.MaxOutputTokens <= 0 {
		cfg.AI.MaxOutputTokens = 1024
	}
	if cfg.AI.MaxPromptTokens <= 0 {
		cfg.AI.MaxPromptTokens = 3000
	}
	if cfg.AI.Timeout <= 0 {
		cfg.AI.Timeout = 120 * time.Second
	}

	w := &cfg.Workflow
	if w.Interval <= 0 {
		w.Interval = 60 * time.Minute
	}
	if w.BatchSize <= 0 {
		w.BatchSize = 5
	}
	if w.MaxItemsPerRun <= 0 {
		w.MaxItemsPerRun = 1
	}
	if w.TweetCount <= 0 {
		w.TweetCount = 6
	}
	if w.EngageCount <= 0 {
		w.EngageCount = 7
	}
	if w.RetryAttempts <= 0 {
		w.RetryAttempts = 3
	}
	if w.RetryBaseDelay <= 0 {
		w.RetryBaseDelay = time.Second
	}
	if w.RetryJitter <= 0 {
		w.RetryJitter = time.Second
	}
	if len(w.FallbackHashtags) == 0 {
		w.FallbackHashtags = []string{"blockchain", "crypto"}
	}

	if cfg.Followup.MaxPerItem < 0 {
		cfg.Followup.MaxPerItem = 0
	} else if cfg.Followup.MaxPerItem == 0 {
		cfg.Followup.MaxPerItem = 2
	}
	if cfg.Followup.Spacing <= 0 {
		cfg.Followup.Spacing = 2 * time.Hour
	}
	if cfg.Followup.DispatchLimit <= 0 {
		cfg.Followup.DispatchLimit = 10
	}

	b := &cfg.Browser
	if b.SessionDir == "" {
		b.SessionDir = "./browser_sessions"
	}
	if b.NavigationTimeout <= 0 {
		b.NavigationTimeout = 60 * time.Second
	}
	if b.SelectorTimeout <= 0 {
		b.SelectorTimeout = 30 * time.Second
	}
	if b.SettleDelay <= 0 {
		b.SettleDelay = 2 * time.Second
	}
	for i := range cfg.Twitter.Accounts {
		if cfg.Twitter.Accounts[i].Name == "" {
			cfg.Twitter.Accounts[i].Name = fmt.Sprintf("account%d", i+1)
		}
	}

	if cfg.Bluesky.Host == "" {
		cfg.Bluesky.Host = "https://bsky.social"
	}
	if cfg.LinkedIn.APIBaseURL == "" {
		cfg.LinkedIn.APIBaseURL = "https://api.linkedin.com"
	}
	if cfg.LinkedIn.TokenURL == "" {
		cfg.LinkedIn.TokenURL = "https://www.linkedin.com/oauth/v2/accessToken"
	}
}

func splitList(lookup func(string) (string, bool), key string) []string {
	v, ok := lookup(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func normalizeTTL(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}

// TwitterEnabled reports whether at least one Twitter account is configured.
func (c *Config) TwitterEnabled() bool { return len(c.Twitter.Accounts) > 0 }

func (c *Config) BlueskyEnabled() bool {
	return c.Bluesky.Identifier != "" && c.Bluesky.Password != ""
}

func (c *Config) LinkedInEnabled() bool {
	return c.LinkedIn.AccessToken != "" && c.LinkedIn.AuthorURN != ""
}

func (c *Config) TelegramEnabled() bool { return c.Telegram.BotToken != "" }
