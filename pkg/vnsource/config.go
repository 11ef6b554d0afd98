// Package vnsource wraps the public Vietnam-market data providers: VCI for
// candles, VNDIRECT finfo for the symbol universe, and the Vietstock event
// calendar for corporate actions.
package vnsource

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultVCIBaseURL       = "https://trading.vietcap.com.vn/api"
	defaultVNDirectBaseURL  = "https://finfo-api.vndirect.com.vn"
	defaultVietstockBaseURL = "https://finance.vietstock.vn"
	defaultFiBaseURL        = "https://api.simplize.vn/api"
	defaultTimeout          = 15 * time.Second
	defaultMaxAttempts      = 4
)

// Env overrides, applied after the YAML is parsed.
const (
	envRelayBaseURL = "RELAY_BASE_URL"
	envBearerToken  = "SOURCE_BEARER_TOKEN"
)

// Config holds provider endpoints and the shared fetch policy.
type Config struct {
	VCIBaseURL       string `yaml:"vci_base_url"`
	VNDirectBaseURL  string `yaml:"vndirect_base_url"`
	VietstockBaseURL string `yaml:"vietstock_base_url"`
	FiBaseURL        string `yaml:"fi_base_url"`
	// RelayBaseURL points at the local RSS-cache/relay; the upstream blocks
	// non-browser agents, so feeds are read through it.
	RelayBaseURL string `yaml:"relay_base_url"`
	BearerToken  string `yaml:"bearer_token"`

	TimeoutRaw  string        `yaml:"timeout"`
	Timeout     time.Duration `yaml:"-"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// LoadConfig reads a YAML config file, then applies env overrides and
// defaults.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("vnsource: open config %s: %w", path, err)
	}
	defer f.Close()
	return ParseConfig(f)
}

// ParseConfig decodes a config document from r.
func ParseConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("vnsource: parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with no file backing it.
func Default() *Config {
	cfg := &Config{}
	cfg.applyEnv()
	_ = cfg.normalize()
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv(envRelayBaseURL); v != "" {
		c.RelayBaseURL = v
	}
	if v := os.Getenv(envBearerToken); v != "" {
		c.BearerToken = v
	}
}

func (c *Config) normalize() error {
	if c.VCIBaseURL == "" {
		c.VCIBaseURL = defaultVCIBaseURL
	}
	if c.VNDirectBaseURL == "" {
		c.VNDirectBaseURL = defaultVNDirectBaseURL
	}
	if c.VietstockBaseURL == "" {
		c.VietstockBaseURL = defaultVietstockBaseURL
	}
	if c.FiBaseURL == "" {
		c.FiBaseURL = defaultFiBaseURL
	}
	c.VCIBaseURL = strings.TrimRight(c.VCIBaseURL, "/")
	c.VNDirectBaseURL = strings.TrimRight(c.VNDirectBaseURL, "/")
	c.VietstockBaseURL = strings.TrimRight(c.VietstockBaseURL, "/")
	c.FiBaseURL = strings.TrimRight(c.FiBaseURL, "/")
	c.RelayBaseURL = strings.TrimRight(c.RelayBaseURL, "/")

	c.Timeout = defaultTimeout
	if c.TimeoutRaw != "" {
		d, err := time.ParseDuration(c.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("vnsource: bad timeout %q: %w", c.TimeoutRaw, err)
		}
		c.Timeout = d
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	return nil
}
