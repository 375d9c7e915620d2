package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file lookup used when --config is not given.
const DefaultPath = "lookervault.yaml"

// Load reads a YAML config file, expands environment variables, and
// unmarshals into a Config struct.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("cannot read config file %q: %w", path, err)
	}

	expanded := ExpandEnv(string(data))

	// Strict decoding: misspelled keys are configuration errors, not
	// silently ignored defaults.
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML in %s: %w", path, err)
	}

	return &cfg, nil
}

// Resolve loads configuration with the standard precedence: explicit path,
// then LOOKERVAULT_CONFIG, then lookervault.yaml in the working directory.
// A missing implicit file yields an empty config; a missing explicit one is
// an error. Environment overlays are applied afterwards.
func Resolve(explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		path = os.Getenv("LOOKERVAULT_CONFIG")
	}

	cfg := &Config{}
	switch {
	case path != "":
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	default:
		// Implicit lookup: absent is fine, unreadable is not.
		if _, err := os.Stat(DefaultPath); err == nil {
			loaded, err := Load(DefaultPath)
			if err != nil {
				return nil, err
			}
			cfg = loaded
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}
