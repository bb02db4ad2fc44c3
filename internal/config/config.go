// Package config implements C10: resolving provider credentials and
// endpoints from in-process overrides, a pluggable secret fetcher,
// environment variables, and built-in defaults, in that order (§4.10).
package config

import (
	"fmt"
	"os"
	"time"
)

// Config is the top-level configuration document for an agentrt process.
// It is loaded from a single YAML file via Load (see loader.go).
type Config struct {
	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
	Sessions        SessionsConfig            `yaml:"sessions"`
	Container       ContainerConfig           `yaml:"container"`
}

// ProviderConfig is the set of overridable knobs for one provider entry
// (§4.10, §6 env var table). Any field left empty falls through to the
// secret fetcher, then the environment, then the built-in default.
type ProviderConfig struct {
	APIKey        string `yaml:"api_key"`
	BaseURL       string `yaml:"base_url"`
	Organization  string `yaml:"organization"`
	AzureEndpoint string `yaml:"azure_endpoint"`
	APIVersion    string `yaml:"api_version"`
	DefaultModel  string `yaml:"default_model"`
}

// SessionsConfig configures the Session Manager (C8).
type SessionsConfig struct {
	IdleTimeout time.Duration `yaml:"idle_timeout"`
}

// ContainerConfig selects and configures the Container Provider (C9).
type ContainerConfig struct {
	// Kind is "managed" or "local". Defaults to "local".
	Kind           string        `yaml:"kind"`
	Runtime        string        `yaml:"runtime"`
	Network        string        `yaml:"network"`
	Image          string        `yaml:"image"`
	WorkerBinary   string        `yaml:"worker_binary"`
	BasePort       int           `yaml:"base_port"`
	HealthDeadline time.Duration `yaml:"health_deadline"`
}

// SecretFetcher is a pluggable lookup for externally-managed secrets
// (vaults, secret managers), consulted between in-process overrides and
// environment variables in the resolution order (§4.10).
type SecretFetcher interface {
	Fetch(provider, key string) (string, bool)
}

// envVarTable is the external contract from §6: for every (provider, key)
// pair the engine recognizes, the environment variable name it maps to.
var envVarTable = map[string]map[string]string{
	"anthropic": {
		"api_key":  "ANTHROPIC_API_KEY",
		"base_url": "ANTHROPIC_BASE_URL",
	},
	"openai": {
		"api_key":      "OPENAI_API_KEY",
		"organization": "OPENAI_ORG_ID",
	},
	"azure": {
		"api_key":        "AZURE_OPENAI_API_KEY",
		"azure_endpoint": "AZURE_OPENAI_ENDPOINT",
		"api_version":    "AZURE_OPENAI_API_VERSION",
	},
}

// defaults holds the built-in fallback values named in §6 (only api_version
// has one; every other key has no default and resolves to "").
var defaults = map[string]map[string]string{
	"azure": {
		"api_version": "2024-02-01",
	},
}

// requiredKeys enumerates, per provider, the keys that must all resolve
// non-empty for IsConfigured to report true (§4.10).
var requiredKeys = map[string][]string{
	"anthropic": {"api_key"},
	"openai":    {"api_key"},
	"azure":     {"api_key", "azure_endpoint"},
}

// Resolver resolves provider credentials/endpoints per the §4.10 order:
// in-process overrides → secret fetcher → environment variable → default.
type Resolver struct {
	cfg     *Config
	secrets SecretFetcher
}

// NewResolver builds a Resolver over a loaded Config and an optional
// SecretFetcher (nil disables that step).
func NewResolver(cfg *Config, secrets SecretFetcher) *Resolver {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Resolver{cfg: cfg, secrets: secrets}
}

// Resolve returns the value for (provider, key), following the resolution
// order in §4.10. An unrecognized provider/key pair always resolves to "".
func (r *Resolver) Resolve(provider, key string) string {
	if override := r.override(provider, key); override != "" {
		return override
	}
	if r.secrets != nil {
		if v, ok := r.secrets.Fetch(provider, key); ok && v != "" {
			return v
		}
	}
	if envName, ok := envVarTable[provider][key]; ok {
		if v := os.Getenv(envName); v != "" {
			return v
		}
	}
	return defaults[provider][key]
}

func (r *Resolver) override(provider, key string) string {
	pc, ok := r.cfg.Providers[provider]
	if !ok {
		return ""
	}
	switch key {
	case "api_key":
		return pc.APIKey
	case "base_url":
		return pc.BaseURL
	case "organization":
		return pc.Organization
	case "azure_endpoint":
		return pc.AzureEndpoint
	case "api_version":
		return pc.APIVersion
	case "default_model":
		return pc.DefaultModel
	default:
		return ""
	}
}

// IsConfigured reports whether every required key for provider resolves to
// a non-empty value (§4.10).
func (r *Resolver) IsConfigured(provider string) bool {
	keys, ok := requiredKeys[provider]
	if !ok {
		return false
	}
	for _, key := range keys {
		if r.Resolve(provider, key) == "" {
			return false
		}
	}
	return true
}

// ProviderMap resolves every known key for provider into the
// map[string]any shape the provider Factory functions expect
// (internal/agent/providers.Factory), e.g. for feeding providers.Registry.Get.
func (r *Resolver) ProviderMap(provider string) map[string]any {
	out := map[string]any{}
	for _, key := range []string{"api_key", "base_url", "organization", "azure_endpoint", "api_version", "default_model"} {
		if v := r.Resolve(provider, key); v != "" {
			out[key] = v
		}
	}
	return out
}

// RequireConfigured returns an error naming the missing keys when provider
// is not fully configured, or nil when it is.
func (r *Resolver) RequireConfigured(provider string) error {
	keys, ok := requiredKeys[provider]
	if !ok {
		return fmt.Errorf("config: unknown provider %q", provider)
	}
	var missing []string
	for _, key := range keys {
		if r.Resolve(provider, key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: provider %q missing required keys: %v", provider, missing)
	}
	return nil
}
