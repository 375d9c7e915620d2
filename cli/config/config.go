package config

import (
	"fmt"
	"os"
	"time"
)

// DefaultDBPath is used when neither flag, env, nor config names a store file.
const DefaultDBPath = "lookervault.db"

// Config represents a lookervault.yaml configuration file.
// All values are optional and act as defaults for CLI flags.
// Precedence is CLI flag > environment > config file > built-in default.
type Config struct {
	Looker     LookerConfig     `yaml:"looker"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Parallel   ParallelConfig   `yaml:"parallel"`
	Storage    StorageConfig    `yaml:"storage"`
	Restore    RestoreConfig    `yaml:"restore"`
	Snapshot   SnapshotConfig   `yaml:"snapshot"`
	Adapter    AdapterConfig    `yaml:"adapter"`
}

// LookerConfig holds Looker API connection defaults.
type LookerConfig struct {
	BaseURL      string   `yaml:"base_url"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	VerifySSL    *bool    `yaml:"verify_ssl,omitempty"`
	Timeout      Duration `yaml:"timeout,omitempty"`
}

// ExtractionConfig holds extraction defaults.
type ExtractionConfig struct {
	DBPath        string   `yaml:"db_path"`
	BatchSize     int      `yaml:"batch_size"`
	DefaultFields []string `yaml:"default_fields"`
	AutoResume    *bool    `yaml:"auto_resume,omitempty"`
}

// ParallelConfig holds worker pool and rate limit defaults shared by
// extraction and restoration.
type ParallelConfig struct {
	Workers              int   `yaml:"workers"`
	QueueSize            int   `yaml:"queue_size"`
	RateLimitPerMinute   int   `yaml:"rate_limit_per_minute"`
	RateLimitPerSecond   int   `yaml:"rate_limit_per_second"`
	AdaptiveRateLimiting *bool `yaml:"adaptive_rate_limiting,omitempty"`
}

// StorageConfig holds local store housekeeping defaults.
type StorageConfig struct {
	RetentionDays int   `yaml:"retention_days"`
	MaxBlobSizeMB int64 `yaml:"max_blob_size_mb"`
}

// RestoreConfig holds restoration defaults.
type RestoreConfig struct {
	Workers            int           `yaml:"workers"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
	RateLimitPerSecond int           `yaml:"rate_limit_per_second"`
	CheckpointInterval int           `yaml:"checkpoint_interval"`
	MaxRetries         int           `yaml:"max_retries"`
	Filters            FiltersConfig `yaml:"filters"`
}

// FiltersConfig narrows the set of content types a restore touches.
// OnlyTypes wins when both are set.
type FiltersConfig struct {
	ExcludeTypes []string `yaml:"exclude_types,omitempty"`
	OnlyTypes    []string `yaml:"only_types,omitempty"`
}

// SnapshotConfig holds object storage defaults for snapshot subcommands.
type SnapshotConfig struct {
	Bucket       string   `yaml:"bucket"`
	Prefix       string   `yaml:"prefix"`
	Region       string   `yaml:"region"`
	Endpoint     string   `yaml:"endpoint"`
	UsePathStyle bool     `yaml:"use_path_style"`
	Compress     bool     `yaml:"compress"`
	Retention    Duration `yaml:"retention,omitempty"`
}

// AdapterConfig holds session notification defaults.
type AdapterConfig struct {
	Type    string            `yaml:"type"` // redis or webhook
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ApplyEnv overlays recognized environment variables onto the config.
// Environment values take precedence over the config file; CLI flags
// are applied on top of the result by the command layer.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("LOOKER_BASE_URL"); v != "" {
		c.Looker.BaseURL = v
	}
	if v := os.Getenv("LOOKER_CLIENT_ID"); v != "" {
		c.Looker.ClientID = v
	}
	if v := os.Getenv("LOOKER_CLIENT_SECRET"); v != "" {
		c.Looker.ClientSecret = v
	}
	if v := os.Getenv("LOOKER_TIMEOUT"); v != "" {
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("LOOKER_TIMEOUT: invalid duration %q: %w", v, err)
		}
		c.Looker.Timeout = Duration{parsed}
	}
	if v := os.Getenv("LOOKERVAULT_DB_PATH"); v != "" {
		c.Extraction.DBPath = v
	}
	return nil
}

// DBPath resolves the store file path, falling back to the built-in default.
func (c *Config) DBPath() string {
	if c.Extraction.DBPath != "" {
		return c.Extraction.DBPath
	}
	return DefaultDBPath
}
