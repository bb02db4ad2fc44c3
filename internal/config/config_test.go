package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecrets struct{ values map[string]string }

func (f fakeSecrets) Fetch(provider, key string) (string, bool) {
	v, ok := f.values[provider+":"+key]
	return v, ok
}

func TestResolverOrderOverridesBeatSecretsBeatEnvBeatDefault(t *testing.T) {
	t.Setenv("AZURE_OPENAI_API_VERSION", "2023-01-01")

	r := NewResolver(&Config{}, nil)
	assert.Equal(t, "2023-01-01", r.Resolve("azure", "api_version"), "env beats built-in default")

	r = NewResolver(&Config{}, fakeSecrets{values: map[string]string{"azure:api_version": "2024-06-01"}})
	assert.Equal(t, "2024-06-01", r.Resolve("azure", "api_version"), "secret fetcher beats env")

	cfg := &Config{Providers: map[string]ProviderConfig{"azure": {APIVersion: "2025-01-01"}}}
	r = NewResolver(cfg, fakeSecrets{values: map[string]string{"azure:api_version": "2024-06-01"}})
	assert.Equal(t, "2025-01-01", r.Resolve("azure", "api_version"), "in-process override beats secret fetcher")
}

func TestResolverFallsBackToBuiltInDefault(t *testing.T) {
	r := NewResolver(&Config{}, nil)
	assert.Equal(t, "2024-02-01", r.Resolve("azure", "api_version"))
	assert.Empty(t, r.Resolve("anthropic", "api_key"))
}

func TestIsConfigured(t *testing.T) {
	r := NewResolver(&Config{}, nil)
	assert.False(t, r.IsConfigured("anthropic"))

	t.Setenv("ANTHROPIC_API_KEY", "sk-test")
	assert.True(t, r.IsConfigured("anthropic"))

	assert.False(t, r.IsConfigured("azure"), "azure also needs azure_endpoint")
	t.Setenv("AZURE_OPENAI_API_KEY", "key")
	t.Setenv("AZURE_OPENAI_ENDPOINT", "https://example.openai.azure.com")
	assert.True(t, r.IsConfigured("azure"))
}

func TestRequireConfiguredNamesMissingKeys(t *testing.T) {
	r := NewResolver(&Config{}, nil)
	err := r.RequireConfigured("azure")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.Contains(t, err.Error(), "azure_endpoint")

	err = r.RequireConfigured("unknown-provider")
	require.Error(t, err)
}

func TestProviderMapOnlyIncludesResolvedKeys(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	r := NewResolver(&Config{}, nil)
	m := r.ProviderMap("openai")
	assert.Equal(t, "sk-test", m["api_key"])
	_, hasBaseURL := m["base_url"]
	assert.False(t, hasBaseURL)
}

func TestLoadExpandsEnvAndParsesYAML(t *testing.T) {
	t.Setenv("TEST_AGENTRT_KEY", "sk-from-env")
	dir := t.TempDir()
	path := filepath.Join(dir, "agentrt.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
default_provider: anthropic
providers:
  anthropic:
    api_key: ${TEST_AGENTRT_KEY}
sessions:
  idle_timeout: 45m
container:
  kind: local
  base_port: 3100
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.DefaultProvider)
	assert.Equal(t, "sk-from-env", cfg.Providers["anthropic"].APIKey)
	assert.Equal(t, "local", cfg.Container.Kind)
	assert.Equal(t, 3100, cfg.Container.BasePort)
}

func TestLoadOrDefaultHandlesMissingPath(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)

	cfg, err = LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, &Config{}, cfg)
}
