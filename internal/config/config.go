// Package config loads credentials and tuning from the environment and the
// list of watched sources from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Error is a fatal configuration problem; the process exits on it.
type Error struct {
	Key string
	Err error
}

func (e *Error) Error() string {
	if e.Key == "" {
		return "config: " + e.Err.Error()
	}
	return fmt.Sprintf("config %s: %v", e.Key, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var errRequired = errors.New("is required")

type Config struct {
	// Telegram settings
	BotToken       string
	ChatID         string
	ParseMode      string // HTML | Markdown | "" for plain text
	TelegramAPIURL string
	SendMinDelay   time.Duration
	NotifyRetries  int
	StartupMessage bool

	// Sources
	SourcesFile  string
	PollInterval time.Duration
	Sources      []Source

	// Fetch settings
	FetchTimeout   time.Duration
	UserAgent      string
	ConditionalGet bool

	// State settings
	StoreDriver  string // file | sqlite
	StateDir     string
	SQLitePath   string
	MaxSentItems int

	// App settings
	Debug              bool
	LogFormat          string // text | json
	AlertAfterFailures int
	MonitoringEnabled  bool
	MonitoringPort     string
}

const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)

// LoadEnvFile reads KEY=VALUE pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return &Error{Key: "env file", Err: err}
	}
	return nil
}

// Load reads the environment, then the sources file, and validates the result.
// sourcesFile overrides SOURCES_FILE when non-empty.
func Load(sourcesFile string) (*Config, error) {
	cfg := &Config{
		// Default values
		ParseMode:          "HTML",
		TelegramAPIURL:     "https://api.telegram.org",
		SendMinDelay:       time.Second,
		NotifyRetries:      2,
		SourcesFile:        "configs/sources.yaml",
		PollInterval:       5 * time.Minute,
		FetchTimeout:       30 * time.Second,
		ConditionalGet:     true,
		StoreDriver:        DriverFile,
		StateDir:           "state",
		MaxSentItems:       1000,
		LogFormat:          "text",
		AlertAfterFailures: 3,
		MonitoringPort:     "8080",
	}

	cfg.BotToken = firstEnv("BOT_TOKEN", "TELEGRAM_BOT_TOKEN")
	cfg.ChatID = firstEnv("CHAT_ID", "TELEGRAM_CHANNEL_ID")

	if v, ok := os.LookupEnv("PARSE_MODE"); ok {
		cfg.ParseMode = normalizeParseMode(v)
	}
	cfg.TelegramAPIURL = strings.TrimRight(getEnvOrDefault("TELEGRAM_API_URL", cfg.TelegramAPIURL), "/")
	cfg.SendMinDelay = getEnvDurationOrDefault("SEND_MIN_DELAY", cfg.SendMinDelay)
	cfg.NotifyRetries = getEnvIntOrDefault("NOTIFY_RETRIES", cfg.NotifyRetries)
	cfg.StartupMessage = getEnvBool("STARTUP_MESSAGE", false)

	cfg.SourcesFile = getEnvOrDefault("SOURCES_FILE", cfg.SourcesFile)
	if sourcesFile != "" {
		cfg.SourcesFile = sourcesFile
	}
	cfg.PollInterval = getEnvDurationOrDefault("POLL_INTERVAL", cfg.PollInterval)

	cfg.FetchTimeout = getEnvDurationOrDefault("FETCH_TIMEOUT", cfg.FetchTimeout)
	cfg.UserAgent = os.Getenv("USER_AGENT")
	cfg.ConditionalGet = getEnvBool("CONDITIONAL_GET", cfg.ConditionalGet)

	cfg.StoreDriver = strings.ToLower(getEnvOrDefault("STORE_DRIVER", cfg.StoreDriver))
	cfg.StateDir = getEnvOrDefault("STATE_DIR", cfg.StateDir)
	cfg.SQLitePath = getEnvOrDefault("SQLITE_PATH", cfg.StateDir+"/sitewatch.db")
	cfg.MaxSentItems = getEnvIntOrDefault("MAX_SENT_ITEMS", cfg.MaxSentItems)

	cfg.Debug = getEnvBool("DEBUG", false)
	cfg.LogFormat = strings.ToLower(getEnvOrDefault("LOG_FORMAT", cfg.LogFormat))
	cfg.AlertAfterFailures = getEnvIntOrDefault("ALERT_AFTER_FAILURES", cfg.AlertAfterFailures)
	cfg.MonitoringEnabled = getEnvBool("ENABLE_HTTP_MONITORING", false)
	cfg.MonitoringPort = getEnvOrDefault("MONITORING_PORT", cfg.MonitoringPort)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	sources, err := LoadSources(cfg.SourcesFile)
	if err != nil {
		return cfg, err
	}
	for _, s := range sources {
		if s.Limit > cfg.MaxSentItems {
			return cfg, &Error{Key: s.Name + ".limit", Err: fmt.Errorf("%d exceeds MAX_SENT_ITEMS (%d)", s.Limit, cfg.MaxSentItems)}
		}
	}
	cfg.Sources = sources
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.BotToken == "" {
		return &Error{Key: "BOT_TOKEN", Err: errRequired}
	}
	if c.ChatID == "" {
		return &Error{Key: "CHAT_ID", Err: errRequired}
	}
	if c.StoreDriver != DriverFile && c.StoreDriver != DriverSQLite {
		return &Error{Key: "STORE_DRIVER", Err: fmt.Errorf("must be %q or %q, got %q", DriverFile, DriverSQLite, c.StoreDriver)}
	}
	if c.MaxSentItems <= 0 {
		return &Error{Key: "MAX_SENT_ITEMS", Err: errors.New("must be positive")}
	}
	if c.PollInterval <= 0 {
		return &Error{Key: "POLL_INTERVAL", Err: errors.New("must be positive")}
	}
	if c.NotifyRetries < 1 {
		c.NotifyRetries = 1
	}
	if c.SendMinDelay < 0 {
		c.SendMinDelay = 0
	}
	return nil
}

func normalizeParseMode(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "html":
		return "HTML"
	case "markdown":
		return "Markdown"
	case "markdownv2":
		return "MarkdownV2"
	default:
		return ""
	}
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return v
		}
	}
	return ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
