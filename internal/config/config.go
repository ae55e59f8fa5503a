package config

import (
	"encoding/json"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

var (
	ErrNoConfig       = errors.New("config file not found")
	ErrInvalidJSON    = errors.New("invalid config JSON")
	ErrInvalidMode    = errors.New("transport must be \"buffered\", \"sse\", \"raw-get\", or \"raw-post\"")
	ErrInvalidBaseURL = errors.New("base_url must be an absolute http(s) URL")
	ErrInvalidDelay   = errors.New("refresh_delay and request_timeout must be positive durations")
)

const (
	DefaultBaseURL        = "http://localhost:8000"
	DefaultTransport      = "raw-post"
	DefaultRefreshDelay   = 5 * time.Second
	DefaultRequestTimeout = 30 * time.Second
)

// Config holds the chatc client configuration.
type Config struct {
	BaseURL        string `json:"base_url"`
	Transport      string `json:"transport"`       // "buffered", "sse", "raw-get" or "raw-post"
	Model          string `json:"model,omitempty"` // Optional model override sent with buffered asks
	RefreshDelay   string `json:"refresh_delay"`   // Delay before the one-shot title refresh, e.g. "5s"
	RequestTimeout string `json:"request_timeout"` // Timeout for chat list, metadata and history requests; replies are unbounded

	refreshDelay   time.Duration
	requestTimeout time.Duration
}

// Path returns the default config location, ~/.config/chatc/config.json.
func Path() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "chatc", "config.json"), nil
}

// Load reads the config from the default location. A missing file is not an
// error: defaults plus environment overrides are returned.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	cfg, err := LoadFrom(path)
	if errors.Is(err, ErrNoConfig) {
		return Default()
	}
	return cfg, err
}

// Default returns the built-in configuration with environment overrides.
func Default() (*Config, error) {
	cfg := &Config{}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads the config from a specific path.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoConfig
		}
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, ErrInvalidJSON
	}

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// finish applies environment overrides and defaults, then validates.
func (c *Config) finish() error {
	if v := os.Getenv("CHATC_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("CHATC_TRANSPORT"); v != "" {
		c.Transport = v
	}

	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Transport == "" {
		c.Transport = DefaultTransport
	}

	switch c.Transport {
	case "buffered", "sse", "raw-get", "raw-post":
		// valid
	default:
		return ErrInvalidMode
	}

	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}

	c.refreshDelay, err = parseDuration(c.RefreshDelay, DefaultRefreshDelay)
	if err != nil {
		return err
	}
	c.requestTimeout, err = parseDuration(c.RequestTimeout, DefaultRequestTimeout)
	if err != nil {
		return err
	}
	return nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, ErrInvalidDelay
	}
	return d, nil
}

// RefreshDelayDuration returns the parsed refresh delay.
func (c *Config) RefreshDelayDuration() time.Duration {
	if c.refreshDelay == 0 {
		return DefaultRefreshDelay
	}
	return c.refreshDelay
}

// RequestTimeoutDuration returns the parsed timeout for chat list, metadata
// and history requests.
func (c *Config) RequestTimeoutDuration() time.Duration {
	if c.requestTimeout == 0 {
		return DefaultRequestTimeout
	}
	return c.requestTimeout
}
