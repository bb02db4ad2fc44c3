// Package providers implements the Provider contract (C3) against the two
// wire dialects the runtime supports: Anthropic-style typed-block streaming
// and OpenAI-style flat content with parallel tool_calls arrays (the Azure
// variant reuses the OpenAI dialect verbatim, differing only in endpoint
// resolution).
package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"

	"github.com/nexusrun/agentrt/pkg/models"
)

// Features describes the capabilities a Provider implementation supports
// (§4.3).
type Features struct {
	Streaming             bool
	ToolCalling            bool
	Vision                 bool
	Thinking               bool
	JSONMode               bool
	MaxContextLength       int
	SupportsSystemMessage  bool
}

// Provider is the abstract capability every dialect implementation exposes.
// Implementations must be safe for concurrent use — the registry cache
// shares one instance across sessions (§5 "Shared resources").
type Provider interface {
	Name() string
	Features() Features

	// Complete performs a non-streaming call and returns the assembled
	// Assistant message.
	Complete(ctx context.Context, messages []models.Message, opts models.AgentOptions) (models.Message, models.Usage, error)

	// Stream performs a streaming call. It sends StreamEvents followed by
	// exactly one final models.Message (the assembled Assistant message) and
	// then closes the channel. It never sends a ResultMessage — the engine
	// is the sole authority on ResultMessage emission (§9 OQ1).
	Stream(ctx context.Context, messages []models.Message, opts models.AgentOptions) (<-chan StreamItem, error)

	// FormatMessages and FormatTools expose the provider-specific wire shape,
	// primarily so the Anthropic dialect's round-trip property (§8.7) can be
	// exercised directly in tests.
	FormatMessages(messages []models.Message) (any, error)
	FormatTools(tools []models.ToolDefinition) (any, error)
}

// StreamItem is one element of a Provider.Stream sequence: either a
// StreamEvent or, as the final item, the assembled Assistant message plus
// its usage.
type StreamItem struct {
	Event   *models.StreamEvent
	Final   *models.Message
	Usage   models.Usage
	Err     error
}

// Registry caches Provider instances by (name, hash(config)) as required by
// §4.3. Construction is delegated to a Factory registered per provider name.
type Registry struct {
	mu        sync.Mutex
	factories map[string]Factory
	instances map[string]Provider
}

// Factory constructs a Provider from a raw config map (already resolved by
// internal/config).
type Factory func(config map[string]any) (Provider, error)

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		instances: make(map[string]Provider),
	}
}

// RegisterFactory associates a provider name with its constructor.
func (r *Registry) RegisterFactory(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a cached Provider instance for (name, config), constructing
// and caching one on first use.
func (r *Registry) Get(name string, config map[string]any) (Provider, error) {
	key := name + ":" + hashConfig(config)

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.instances[key]; ok {
		return p, nil
	}
	factory, ok := r.factories[name]
	if !ok {
		return nil, &UnknownProviderError{Name: name}
	}
	p, err := factory(config)
	if err != nil {
		return nil, err
	}
	r.instances[key] = p
	return p, nil
}

// UnknownProviderError is returned when Get names a provider with no
// registered factory.
type UnknownProviderError struct{ Name string }

func (e *UnknownProviderError) Error() string {
	return "provider not registered: " + e.Name
}

// hashConfig produces a stable digest of a config map so two equal configs
// always hash identically regardless of map iteration order.
func hashConfig(config map[string]any) string {
	keys := make([]string, 0, len(config))
	for k := range config {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, config[k])
	}
	b, _ := json.Marshal(ordered)
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
