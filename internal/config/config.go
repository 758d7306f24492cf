// Package config loads the plotos YAML configuration and applies environment
// variable overrides.
package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for plotos.
type Config struct {
	Storage Storage       `yaml:"storage"`
	Server  Server        `yaml:"server"`
	Feed    Feed          `yaml:"feed"`
	Yahoo   Yahoo         `yaml:"yahoo"`
	Refresh RefreshConfig `yaml:"refresh"`
	Logging Logging       `yaml:"logging"`
}

// Storage holds paths for data persistence.
type Storage struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// Server holds network listener configuration for the HTTP API.
type Server struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Feed configures the remote ticker list.
type Feed struct {
	URL       string `yaml:"url"`
	Delimiter string `yaml:"delimiter"`
}

// Yahoo holds the upstream endpoints and request parameters. All endpoints
// are overridable so tests can point at local servers.
type Yahoo struct {
	CookieURL  string   `yaml:"cookie_url"`
	CrumbURL   string   `yaml:"crumb_url"`
	QuoteURL   string   `yaml:"quote_url"`
	SummaryURL string   `yaml:"summary_url"`
	ChartURL   string   `yaml:"chart_url"`
	UserAgent  string   `yaml:"user_agent"`
	Fields     []string `yaml:"fields"`
	Modules    []string `yaml:"modules"`
}

// Duration wraps time.Duration so YAML values like "2s" parse directly.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// RefreshConfig controls the fetch retry policy and batch behaviour.
type RefreshConfig struct {
	MaxAttempts     int      `yaml:"max_attempts"`
	Backoff         string   `yaml:"backoff"` // "constant" or "exponential"
	BackoffBase     Duration `yaml:"backoff_base"`
	SkipCached      bool     `yaml:"skip_cached"`
	StorePartial    bool     `yaml:"store_partial"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Default returns the built-in configuration, used when no config file is
// present and as the base for file and env overrides.
func Default() *Config {
	return &Config{
		Storage: Storage{
			SQLitePath: "plotos.db",
		},
		Server: Server{
			Host: "127.0.0.1",
			Port: 8590,
		},
		Feed: Feed{
			URL:       "https://raw.githubusercontent.com/splocs/meu-repositorio/main/acoes.csv",
			Delimiter: ";",
		},
		Yahoo: Yahoo{
			CookieURL:  "https://fc.yahoo.com",
			CrumbURL:   "https://query2.finance.yahoo.com/v1/test/getcrumb",
			QuoteURL:   "https://query2.finance.yahoo.com/v7/finance/quote",
			SummaryURL: "https://query2.finance.yahoo.com/v10/finance/quoteSummary",
			ChartURL:   "https://query2.finance.yahoo.com/v8/finance/chart",
			UserAgent:  "Mozilla/5.0 (X11; Linux x86_64; rv:109.0) Gecko/20100101 Firefox/117.0",
			Fields: []string{
				"summaryProfile", "summaryDetail", "price", "defaultKeyStatistics",
				"financialData", "calendarEvents", "earnings",
			},
			Modules: []string{
				"recommendationTrend", "balanceSheetHistory",
			},
		},
		Refresh: RefreshConfig{
			MaxAttempts: 5,
			Backoff:     "exponential",
			BackoffBase: Duration(time.Second),
		},
		Logging: Logging{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the YAML configuration file at the given path, merges it over
// the defaults, and then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("PLOTOS_FEED_URL"); v != "" {
		cfg.Feed.URL = v
	}
	if v := os.Getenv("PLOTOS_USER_AGENT"); v != "" {
		cfg.Yahoo.UserAgent = v
	}
	if v := os.Getenv("PLOTOS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
