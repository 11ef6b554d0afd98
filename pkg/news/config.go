// Package news implements discovery and fetching of VN market news: RSS and
// category-listing discovery through a local relay, polite article fetching,
// text extraction, and a local sqlite archive cache.
package news

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultRate         = 3.0 // requests per second
	defaultFetchLimit   = 200
	defaultRSSLimit     = 500
	defaultBudgetPages  = 200
	defaultNoNewStop    = 3
	defaultFetchTimeout = 45 * time.Second
	// Bodies shorter than this word count suggest a blocked or teaser page;
	// the fetcher retries once through the headless path.
	MinWordCount = 80
)

// Config tunes the news workers.
type Config struct {
	Rate        float64       `yaml:"rate"`
	FetchLimit  int           `yaml:"fetch_limit"`
	RSSLimit    int           `yaml:"rss_limit"`
	BudgetPages int           `yaml:"budget_pages"`
	NoNewStop   int           `yaml:"no_new_stop"`
	ArchivePath string        `yaml:"archive_path"`
	HeadlessCmd string        `yaml:"headless_cmd"`
	TimeoutRaw  string        `yaml:"timeout"`
	Timeout     time.Duration `yaml:"-"`
}

// LoadConfig reads a YAML config, filling defaults.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("news: open config %s: %w", path, err)
	}
	defer f.Close()
	return ParseConfig(f)
}

// ParseConfig decodes a config document from r.
func ParseConfig(r io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("news: parse config: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the zero-file config.
func Default() *Config {
	cfg := &Config{}
	_ = cfg.normalize()
	return cfg
}

func (c *Config) normalize() error {
	if c.Rate <= 0 {
		c.Rate = defaultRate
	}
	if c.FetchLimit <= 0 {
		c.FetchLimit = defaultFetchLimit
	}
	if c.RSSLimit <= 0 {
		c.RSSLimit = defaultRSSLimit
	}
	if c.BudgetPages <= 0 {
		c.BudgetPages = defaultBudgetPages
	}
	if c.NoNewStop <= 0 {
		c.NoNewStop = defaultNoNewStop
	}
	c.Timeout = defaultFetchTimeout
	if c.TimeoutRaw != "" {
		d, err := time.ParseDuration(c.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("news: bad timeout %q: %w", c.TimeoutRaw, err)
		}
		c.Timeout = d
	}
	return nil
}

// SleepBetweenRequests converts the rate budget into a pause.
func (c *Config) SleepBetweenRequests() time.Duration {
	rate := c.Rate
	if rate < 0.1 {
		rate = 0.1
	}
	return time.Duration(float64(time.Second) / rate)
}
