// Package config loads the YAML configuration shared by the server and the
// CLI tools. A missing file yields the defaults; environment variables
// override a handful of deployment knobs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"gemscout/scrape"
)

// Config is the top-level configuration document.
type Config struct {
	// DataDir holds the database, cache, checkpoint, and vault files.
	DataDir string `yaml:"data_dir"`

	// PDFFile is the exchange vacancy list to extract.
	PDFFile string `yaml:"pdf_file"`

	// StudentCollege filters vacancies by eligible college.
	StudentCollege string `yaml:"student_college"`

	// TargetCountries restricts discovery to these countries.
	TargetCountries []string `yaml:"target_countries"`

	// TargetModules is the student's module list to map.
	TargetModules []string `yaml:"target_modules"`

	// MinMappableModules is the ranking floor.
	MinMappableModules int `yaml:"min_mappable_modules"`

	// ApprovedYears is the recency window for portal approvals.
	ApprovedYears []string `yaml:"approved_years"`

	Server    Server    `yaml:"server"`
	Portal    Portal    `yaml:"portal"`
	Browser   Browser   `yaml:"browser"`
	RateLimit RateLimit `yaml:"rate_limiting"`
	Cache     Cache     `yaml:"cache"`
}

// Server configures the HTTP listener.
type Server struct {
	Addr string `yaml:"addr"`
}

// Portal configures the scrape target.
type Portal struct {
	SSOEntryURL     string `yaml:"sso_entry_url"`
	SearchURL       string `yaml:"search_url"`
	MaxRetries      int    `yaml:"max_retries"`
	CheckpointEvery int    `yaml:"checkpoint_every"`
}

// Browser configures Chrome.
type Browser struct {
	Headless bool `yaml:"headless"`
}

// RateLimit bounds the politeness delay between portal round trips.
type RateLimit struct {
	DelayMinSeconds float64 `yaml:"delay_min"`
	DelayMaxSeconds float64 `yaml:"delay_max"`
}

// Cache configures result caching.
type Cache struct {
	TTLHours int `yaml:"ttl_hours"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	c := &Config{}
	c.defaults()
	return c
}

func (c *Config) defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.MinMappableModules <= 0 {
		c.MinMappableModules = 2
	}
	if len(c.ApprovedYears) == 0 {
		c.ApprovedYears = []string{"2024", "2025"}
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8180"
	}
	if c.Portal.MaxRetries <= 0 {
		c.Portal.MaxRetries = 3
	}
	if c.Portal.CheckpointEvery <= 0 {
		c.Portal.CheckpointEvery = 5
	}
	if c.RateLimit.DelayMinSeconds <= 0 {
		c.RateLimit.DelayMinSeconds = 3
	}
	if c.RateLimit.DelayMaxSeconds < c.RateLimit.DelayMinSeconds {
		c.RateLimit.DelayMaxSeconds = c.RateLimit.DelayMinSeconds + 2
	}
	if c.Cache.TTLHours <= 0 {
		c.Cache.TTLHours = 24
	}
}

// Load reads the config file at path, applies defaults, environment
// overrides, and validation. A missing file is not an error; the defaults
// stand in.
func Load(path string) (*Config, error) {
	c := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	c.defaults()
	c.applyEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Environment overrides, deployment knobs only.
func (c *Config) applyEnv() {
	if v := os.Getenv("GEMSCOUT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("GEMSCOUT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("GEMSCOUT_HEADLESS"); v != "" {
		c.Browser.Headless = v == "1" || v == "true"
	}
}

// Validate rejects configurations that cannot work at all.
func (c *Config) Validate() error {
	if c.RateLimit.DelayMaxSeconds < c.RateLimit.DelayMinSeconds {
		return errors.New("config: rate_limiting.delay_max below delay_min")
	}
	for _, y := range c.ApprovedYears {
		if len(y) != 4 {
			return fmt.Errorf("config: approved year %q is not a 4-digit year", y)
		}
	}
	return nil
}

// DatabasePath is the SQLite file under DataDir.
func (c *Config) DatabasePath() string { return filepath.Join(c.DataDir, "exchange.db") }

// CacheDir is the JSON result cache directory.
func (c *Config) CacheDir() string { return filepath.Join(c.DataDir, "cache") }

// CheckpointPath is the incremental crawl checkpoint file.
func (c *Config) CheckpointPath() string { return filepath.Join(c.DataDir, "checkpoint.json") }

// VaultDir holds the encrypted credentials.
func (c *Config) VaultDir() string { return filepath.Join(c.DataDir, "vault") }

// CacheTTL is the result cache freshness window.
func (c *Config) CacheTTL() time.Duration { return time.Duration(c.Cache.TTLHours) * time.Hour }

// ScrapeConfig builds the scrape-layer configuration.
func (c *Config) ScrapeConfig(logger *slog.Logger) scrape.Config {
	return scrape.Config{
		SSOEntryURL:     c.Portal.SSOEntryURL,
		SearchURL:       c.Portal.SearchURL,
		ApprovedYears:   c.ApprovedYears,
		DelayMin:        time.Duration(c.RateLimit.DelayMinSeconds * float64(time.Second)),
		DelayMax:        time.Duration(c.RateLimit.DelayMaxSeconds * float64(time.Second)),
		MaxRetries:      c.Portal.MaxRetries,
		CheckpointEvery: c.Portal.CheckpointEvery,
		Headless:        c.Browser.Headless,
		Logger:          logger,
	}
}
