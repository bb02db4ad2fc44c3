package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a single YAML config file, expanding ${VAR}/$VAR references
// against the process environment before parsing (teacher pattern from
// internal/config/loader.go, minus $include resolution — this module has
// no multi-file config to merge, noted in SPEC_FULL.md §2).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads path if it is non-empty and exists, otherwise returns
// a zero-value Config so a caller can still resolve providers from
// environment variables and built-in defaults alone (§4.10).
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return &Config{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}
	return Load(path)
}
