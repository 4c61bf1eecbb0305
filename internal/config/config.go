// Package config provides configuration types and defaults for harbormast.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"harbormast/internal/log"
)

// Config holds all configuration options for harbormast.
type Config struct {
	Registry RegistryConfig `mapstructure:"registry"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	UI       UIConfig       `mapstructure:"ui"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
}

// RegistryConfig holds the connection settings for the Harbor instance.
type RegistryConfig struct {
	// URL is the base URL of the Harbor instance, e.g. "https://harbor.example.com".
	URL string `mapstructure:"url"`

	Username string `mapstructure:"username"`

	// Password is a Harbor password or robot-account secret. Prefer the
	// HARBORMAST_REGISTRY_PASSWORD environment variable over storing it here.
	Password string `mapstructure:"password"`

	// Insecure skips TLS certificate verification.
	Insecure bool `mapstructure:"insecure"`
}

// CacheConfig holds cache sizing and expiry settings.
type CacheConfig struct {
	// TTL is how long a fetched collection is served without a refresh.
	TTL time.Duration `mapstructure:"ttl"`

	// MaxEntries bounds the number of cached collections; the least
	// recently viewed one is evicted when the bound is hit.
	MaxEntries int `mapstructure:"max_entries"`

	// DetailTTL is the expiry for single-item lookups.
	DetailTTL time.Duration `mapstructure:"detail_ttl"`
}

// FetchConfig holds network fetch policy.
type FetchConfig struct {
	// PageSize is the number of items requested per page.
	PageSize int `mapstructure:"page_size"`

	// RateLimitBackoff is the delay before the single retry of a
	// rate-limited request.
	RateLimitBackoff time.Duration `mapstructure:"rate_limit_backoff"`
}

// UIConfig holds user interface configuration options.
type UIConfig struct {
	ShowStatusBar bool `mapstructure:"show_status_bar"`
	ShowCounts    bool `mapstructure:"show_counts"`
}

// TracingConfig holds trace export configuration for network calls.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `mapstructure:"enabled"`

	// Exporter selects the trace export backend.
	// Options: "none", "file", "stdout", "otlp"
	// Default: "file"
	Exporter string `mapstructure:"exporter"`

	// FilePath is the output file for the "file" exporter.
	// Default: ~/.config/harbormast/traces/traces.jsonl
	FilePath string `mapstructure:"file_path"`

	// OTLPEndpoint is the collector endpoint for the "otlp" exporter.
	// Default: "localhost:4317"
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// SampleRate controls trace sampling (0.0 to 1.0).
	// Default: 1.0
	SampleRate float64 `mapstructure:"sample_rate"`
}

// DefaultTracesFilePath returns the default path for trace file export.
// Returns ~/.config/harbormast/traces/traces.jsonl or empty string if
// the home dir is unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "harbormast", "traces", "traces.jsonl")
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Cache: CacheConfig{
			TTL:        time.Minute,
			MaxEntries: 128,
			DetailTTL:  5 * time.Minute,
		},
		Fetch: FetchConfig{
			PageSize:         20,
			RateLimitBackoff: 500 * time.Millisecond,
		},
		UI: UIConfig{
			ShowStatusBar: true,
			ShowCounts:    true,
		},
		Tracing: TracingConfig{
			Enabled:      false,
			Exporter:     "file",
			FilePath:     "", // Derived from config dir at runtime
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
	}
}

// Validate checks the whole configuration for errors.
func (c Config) Validate() error {
	if err := ValidateRegistry(c.Registry); err != nil {
		return err
	}
	if err := ValidateCache(c.Cache); err != nil {
		return err
	}
	if err := ValidateFetch(c.Fetch); err != nil {
		return err
	}
	return ValidateTracing(c.Tracing)
}

// ValidateRegistry checks registry connection settings for errors.
func ValidateRegistry(r RegistryConfig) error {
	if r.URL == "" {
		return fmt.Errorf("registry.url is required (run 'harbormast login' first)")
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return fmt.Errorf("registry.url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("registry.url must use http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("registry.url is missing a host: %q", r.URL)
	}
	return nil
}

// ValidateCache checks cache settings for errors.
// Zero values are valid and fall back to defaults.
func ValidateCache(c CacheConfig) error {
	if c.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %v", c.TTL)
	}
	if c.MaxEntries < 0 {
		return fmt.Errorf("cache.max_entries must not be negative, got %d", c.MaxEntries)
	}
	if c.DetailTTL < 0 {
		return fmt.Errorf("cache.detail_ttl must not be negative, got %v", c.DetailTTL)
	}
	return nil
}

// ValidateFetch checks fetch settings for errors.
// Zero values are valid and fall back to defaults.
func ValidateFetch(f FetchConfig) error {
	if f.PageSize < 0 || f.PageSize > 100 {
		return fmt.Errorf("fetch.page_size must be between 0 and 100, got %d", f.PageSize)
	}
	if f.RateLimitBackoff < 0 {
		return fmt.Errorf("fetch.rate_limit_backoff must not be negative, got %v", f.RateLimitBackoff)
	}
	return nil
}

// ValidateTracing checks tracing configuration for errors.
// Returns nil if the configuration is valid (empty values use defaults).
func ValidateTracing(tracing TracingConfig) error {
	if tracing.SampleRate < 0.0 || tracing.SampleRate > 1.0 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0, got %v", tracing.SampleRate)
	}

	if tracing.Exporter != "" {
		switch tracing.Exporter {
		case "none", "file", "stdout", "otlp":
			// Valid
		default:
			return fmt.Errorf("tracing.exporter must be \"none\", \"file\", \"stdout\", or \"otlp\", got %q", tracing.Exporter)
		}
	}

	// Only validate path requirements when tracing is enabled
	if tracing.Enabled {
		if tracing.Exporter == "file" && tracing.FilePath == "" {
			return fmt.Errorf("tracing.file_path is required when exporter is \"file\"")
		}
		if tracing.Exporter == "otlp" && tracing.OTLPEndpoint == "" {
			return fmt.Errorf("tracing.otlp_endpoint is required when exporter is \"otlp\"")
		}
	}

	return nil
}

// DefaultConfigTemplate returns the default config as a YAML string with comments.
func DefaultConfigTemplate() string {
	return `# Harbormast Configuration

# Harbor connection (or run 'harbormast login' to fill this in)
registry:
  url: https://harbor.example.com
  username: admin
  # Prefer HARBORMAST_REGISTRY_PASSWORD over storing a secret here
  # password: ""
  # insecure: true   # Skip TLS certificate verification

# Cache settings
cache:
  ttl: 60s            # How long a fetched listing is served without a refresh
  max_entries: 128    # Listings kept in memory; least recently viewed evicted
  detail_ttl: 5m      # Expiry for single-item lookups

# Network fetch settings
fetch:
  page_size: 20              # Items requested per page (max 100)
  rate_limit_backoff: 500ms  # Delay before the single retry after a 429

# UI settings
ui:
  show_status_bar: true   # Show status bar at bottom
  show_counts: true       # Show item counts next to listings

# Trace export for registry calls
# tracing:
#   enabled: false                 # Enable/disable tracing (default: false)
#   exporter: file                 # Export backend: none, file, stdout, otlp (default: file)
#   file_path: ~/.config/harbormast/traces/traces.jsonl  # Output file for file exporter
#   otlp_endpoint: localhost:4317  # OTLP collector endpoint (for otlp exporter)
#   sample_rate: 1.0               # Trace sampling rate 0.0-1.0 (default: 1.0)
`
}

// WriteDefaultConfig creates a config file at the given path with default
// settings and comments. Creates the parent directory if it doesn't exist.
func WriteDefaultConfig(configPath string) error {
	log.Debug(log.CatConfig, "writing default config", "path", configPath)

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		log.ErrorErr(log.CatConfig, "failed to create config directory", err, "dir", dir)
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(configPath, []byte(DefaultConfigTemplate()), 0o600); err != nil {
		log.ErrorErr(log.CatConfig, "failed to write config file", err, "path", configPath)
		return fmt.Errorf("writing config file: %w", err)
	}

	log.Info(log.CatConfig, "created default config", "path", configPath)
	return nil
}
