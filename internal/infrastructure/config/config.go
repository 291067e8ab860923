package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for GridPulse Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Influx  InfluxConfig  `yaml:"influx"`
	Metrics MetricsConfig `yaml:"metrics"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServiceConfig contains service-level identification.
type ServiceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// InfluxConfig contains time-series store connection and write-path settings.
type InfluxConfig struct {
	URL      string `yaml:"url"`
	Org      string `yaml:"org"`
	Token    string `yaml:"token"`
	Bucket   string `yaml:"bucket"`
	ReadOnly bool   `yaml:"read_only"`

	// PoolSize is the number of workers dedicated to flush tasks.
	PoolSize int `yaml:"pool_size"`

	// QueueCapacity limits how many flush batches may wait for a free
	// pool worker before backpressure sets in.
	QueueCapacity int `yaml:"queue_capacity"`

	// FlushInterval is the merge-worker cycle period in seconds.
	FlushInterval int `yaml:"flush_interval"`

	// QueryLanguage selects the query dialect ("flux").
	QueryLanguage string `yaml:"query_language"`

	// QueryLimit caps channels x time-buckets per historic query.
	QueryLimit int `yaml:"query_limit"`

	// Destinations declares the additional write-destination parameter
	// sets beyond the default bucket/org. Writing to an undeclared
	// destination is a caller error.
	Destinations []DestinationConfig `yaml:"destinations"`
}

// DestinationConfig declares one write-destination parameter set.
type DestinationConfig struct {
	Bucket      string `yaml:"bucket"`
	Org         string `yaml:"org"`
	Precision   string `yaml:"precision"`
	Consistency string `yaml:"consistency"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// CacheConfig contains historic-query result cache settings.
type CacheConfig struct {
	Enabled bool `yaml:"enabled"`
	Size    int  `yaml:"size"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: GRIDPULSE_SECTION_KEY
// For example: GRIDPULSE_INFLUX_URL, GRIDPULSE_INFLUX_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:       "gridpulse-001",
			Name:     "GridPulse",
			Timezone: "UTC",
		},
		Influx: InfluxConfig{
			URL:           "http://localhost:8086",
			Org:           "gridpulse",
			Bucket:        "timedata",
			PoolSize:      10,
			QueueCapacity: 50,
			FlushInterval: 10,
			QueryLanguage: "flux",
			QueryLimit:    250000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Listen:  "127.0.0.1:9190",
		},
		Cache: CacheConfig{
			Enabled: true,
			Size:    256,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: GRIDPULSE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Influx
	if v := os.Getenv("GRIDPULSE_INFLUX_URL"); v != "" {
		cfg.Influx.URL = v
	}
	if v := os.Getenv("GRIDPULSE_INFLUX_ORG"); v != "" {
		cfg.Influx.Org = v
	}
	if v := os.Getenv("GRIDPULSE_INFLUX_TOKEN"); v != "" {
		cfg.Influx.Token = v
	}
	if v := os.Getenv("GRIDPULSE_INFLUX_BUCKET"); v != "" {
		cfg.Influx.Bucket = v
	}

	// Metrics
	if v := os.Getenv("GRIDPULSE_METRICS_LISTEN"); v != "" {
		cfg.Metrics.Listen = v
	}

	// Logging
	if v := os.Getenv("GRIDPULSE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	if c.Influx.URL == "" {
		errs = append(errs, "influx.url is required")
	}
	if c.Influx.Org == "" {
		errs = append(errs, "influx.org is required")
	}
	if c.Influx.Bucket == "" {
		errs = append(errs, "influx.bucket is required")
	}
	if c.Influx.PoolSize < 1 {
		errs = append(errs, "influx.pool_size must be at least 1")
	}
	if c.Influx.QueueCapacity < 1 {
		errs = append(errs, "influx.queue_capacity must be at least 1")
	}
	if c.Influx.FlushInterval < 1 {
		errs = append(errs, "influx.flush_interval must be at least 1 second")
	}
	if c.Influx.QueryLimit < 1 {
		errs = append(errs, "influx.query_limit must be positive")
	}

	switch strings.ToLower(c.Influx.QueryLanguage) {
	case "flux":
	default:
		errs = append(errs, fmt.Sprintf("influx.query_language %q is not supported (supported: flux)", c.Influx.QueryLanguage))
	}

	for i, dest := range c.Influx.Destinations {
		if dest.Bucket == "" {
			errs = append(errs, fmt.Sprintf("influx.destinations[%d].bucket is required", i))
		}
		switch dest.Precision {
		case "", "ns", "us", "ms", "s":
		default:
			errs = append(errs, fmt.Sprintf("influx.destinations[%d].precision %q is invalid (ns, us, ms, s)", i, dest.Precision))
		}
	}

	if c.Cache.Enabled && c.Cache.Size < 1 {
		errs = append(errs, "cache.size must be at least 1 when cache is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetFlushInterval returns the merge-worker flush interval as a Duration.
func (c *Config) GetFlushInterval() time.Duration {
	return time.Duration(c.Influx.FlushInterval) * time.Second
}
