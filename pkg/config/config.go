package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tracking configuration for one enrichment job
type Config struct {
	// JobID is the enrichment job to track (required)
	JobID string `yaml:"jobId"`

	// Enabled gates tracking entirely; a disabled tracker never opens
	// a transport
	Enabled bool `yaml:"enabled"`

	// APIBaseURL is the base URL of the snapshot query endpoint
	APIBaseURL string `yaml:"apiBaseUrl"`

	// StreamURL is the websocket endpoint for the push channel.
	// Derived from APIBaseURL when empty.
	StreamURL string `yaml:"streamUrl"`

	// BearerToken authenticates both transports when set. Resolution of
	// short-lived credentials belongs to the caller-supplied provider.
	BearerToken string `yaml:"bearerToken"`

	// PollFallbackAfter is the number of consecutive push failures that
	// triggers the one-way switch to poll mode
	PollFallbackAfter int `yaml:"pollFallbackAfter"`

	// PollInterval is the cadence of snapshot fetches in poll mode
	PollInterval time.Duration `yaml:"pollInterval"`

	// PushBackoffBase is the initial reconnect delay for the push channel
	PushBackoffBase time.Duration `yaml:"pushBackoffBase"`

	// PushBackoffCap bounds the reconnect delay
	PushBackoffCap time.Duration `yaml:"pushBackoffCap"`

	// LedgerCapacity bounds the per-component update ledger
	LedgerCapacity int `yaml:"ledgerCapacity"`

	// DataDir holds the checkpoint database. Empty disables checkpoints.
	DataDir string `yaml:"dataDir"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Enabled:           true,
		PollFallbackAfter: 3,
		PollInterval:      3 * time.Second,
		PushBackoffBase:   time.Second,
		PushBackoffCap:    30 * time.Second,
		LedgerCapacity:    50,
	}
}

// Load reads a YAML config file and applies defaults for unset fields
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.PollFallbackAfter <= 0 {
		c.PollFallbackAfter = d.PollFallbackAfter
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PushBackoffBase <= 0 {
		c.PushBackoffBase = d.PushBackoffBase
	}
	if c.PushBackoffCap <= 0 {
		c.PushBackoffCap = d.PushBackoffCap
	}
	if c.LedgerCapacity <= 0 {
		c.LedgerCapacity = d.LedgerCapacity
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.JobID == "" {
		return fmt.Errorf("jobId is required")
	}
	if c.APIBaseURL == "" {
		return fmt.Errorf("apiBaseUrl is required")
	}
	if _, err := url.Parse(c.APIBaseURL); err != nil {
		return fmt.Errorf("invalid apiBaseUrl: %w", err)
	}
	if c.StreamURL != "" {
		u, err := url.Parse(c.StreamURL)
		if err != nil {
			return fmt.Errorf("invalid streamUrl: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return fmt.Errorf("streamUrl must use ws or wss scheme, got %q", u.Scheme)
		}
	}
	if c.PushBackoffCap < c.PushBackoffBase {
		return fmt.Errorf("pushBackoffCap must be >= pushBackoffBase")
	}
	return nil
}

// ResolveStreamURL returns the push channel endpoint, deriving it from the
// API base URL when not configured explicitly
func (c *Config) ResolveStreamURL() (string, error) {
	if c.StreamURL != "" {
		return c.StreamURL, nil
	}

	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return "", fmt.Errorf("invalid apiBaseUrl: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/v1/jobs/stream"
	return u.String(), nil
}
