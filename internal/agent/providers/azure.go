package providers

import (
	"errors"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// AzureConfig configures the Azure OpenAI Service variant of the OpenAI
// dialect (C5 "Azure variant"): same wire format as direct OpenAI, differing
// only in endpoint resolution and using a deployment name in place of a
// model name.
type AzureConfig struct {
	// Endpoint is the Azure OpenAI resource endpoint, e.g.
	// https://{resource-name}.openai.azure.com.
	Endpoint string
	APIKey   string
	// APIVersion defaults to 2024-02-15-preview.
	APIVersion string
	// Deployment is the deployment name used as the model identifier.
	Deployment string
	MaxRetries int
	RetryDelay time.Duration
}

// NewAzureProvider builds an OpenAIProvider configured against Azure OpenAI
// Service. It reuses the OpenAI dialect's message/tool translation and
// streaming resynthesis verbatim (§4.5) — only the client's base
// configuration and the error-taxonomy provider label differ.
func NewAzureProvider(cfg AzureConfig) (*OpenAIProvider, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("azure: endpoint is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("azure: API key is required")
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "2024-02-15-preview"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	clientConfig := openai.DefaultAzureConfig(cfg.APIKey, strings.TrimRight(cfg.Endpoint, "/"))
	clientConfig.APIVersion = cfg.APIVersion

	return newDialectProvider("azure", openai.NewClientWithConfig(clientConfig), OpenAIConfig{
		MaxRetries:   cfg.MaxRetries,
		RetryDelay:   cfg.RetryDelay,
		DefaultModel: cfg.Deployment,
	}), nil
}

// AzureFactory adapts NewAzureProvider to the Registry's Factory signature,
// reading the resolved config map produced by internal/config. The
// deployment name is taken from "deployment", or from "default_model" when
// that key is absent, and doubles as AgentOptions.Model when a turn doesn't
// override it.
func AzureFactory(config map[string]any) (Provider, error) {
	deployment := stringField(config, "deployment")
	if deployment == "" {
		deployment = stringField(config, "default_model")
	}
	return NewAzureProvider(AzureConfig{
		Endpoint:   stringField(config, "azure_endpoint"),
		APIKey:     stringField(config, "api_key"),
		APIVersion: stringField(config, "api_version"),
		Deployment: deployment,
	})
}
