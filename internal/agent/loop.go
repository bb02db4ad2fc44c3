// Package agent implements the tool registry and the bounded agentic loop
// that drives a Provider through a conversation (C7).
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nexusrun/agentrt/internal/agent/providers"
	"github.com/nexusrun/agentrt/internal/hooks"
	"github.com/nexusrun/agentrt/pkg/models"
)

// Client is the agent loop's public surface (§4.7): connect, send, receive,
// query, set_provider, set_model, clear_history, disconnect. One Client
// drives one conversation; within a session, tool execution and streaming
// reads are strictly serialized (§5), so the mutex here only guards against
// a caller calling Send/SetProvider/etc. from more than one goroutine.
type Client struct {
	mu sync.Mutex

	providerRegistry *providers.Registry
	registry         *ToolRegistry
	logger           *slog.Logger

	provider  providers.Provider
	opts      models.AgentOptions
	sessionID string
	history   []models.Message

	active <-chan models.AnyMessage
}

// NewClient builds a Client bound to a provider registry and a tool
// registry. Neither is copied; both may be shared across Clients the way
// the provider cache and a process-wide tool registry would be (§5).
func NewClient(providerRegistry *providers.Registry, registry *ToolRegistry, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = NewToolRegistry()
	}
	return &Client{
		providerRegistry: providerRegistry,
		registry:         registry,
		logger:           logger,
	}
}

// Connect binds a Provider instance for opts.Provider/opts.ProviderConfig,
// seeds the history with a System message from opts.SystemPrompt, and fires
// SessionStart hooks — a hook's additionalContext is appended as a further
// System message (§4.7 "Connect").
func (c *Client) Connect(ctx context.Context, opts models.AgentOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	opts = opts.WithDefaults()
	provider, err := c.providerRegistry.Get(opts.Provider, opts.ProviderConfig)
	if err != nil {
		return err
	}

	c.provider = provider
	c.opts = opts
	c.sessionID = opts.SessionID
	c.history = nil

	if opts.SystemPrompt != "" {
		c.history = append(c.history, models.NewSystem(opts.SystemPrompt))
	}

	pipeline := hooks.New(opts.Hooks, c.logger)
	out := pipeline.Run(ctx, models.HookSessionStart, "", models.HookInput{
		Context: models.HookContext{SessionID: c.sessionID},
	})
	if out.HookSpecificOutput.AdditionalContext != "" {
		c.history = append(c.history, models.NewSystem(out.HookSpecificOutput.AdditionalContext))
	}
	return nil
}

// SetProvider rebinds the Client to a different provider/config, preserving
// history.
func (c *Client) SetProvider(name string, config map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	provider, err := c.providerRegistry.Get(name, config)
	if err != nil {
		return err
	}
	c.provider = provider
	c.opts.Provider = name
	c.opts.ProviderConfig = config
	return nil
}

// SetModel changes the model used by subsequent turns.
func (c *Client) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.Model = model
}

// ClearHistory drops all conversation history (including any seeded System
// messages).
func (c *Client) ClearHistory() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = nil
}

// Disconnect releases the bound provider. Idempotent (§5 "Disconnect is
// idempotent").
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.provider = nil
	c.active = nil
	return nil
}

// Send appends message to the history and starts the turn loop in the
// background, recording the resulting event sequence as the active
// response generator for a subsequent Receive.
func (c *Client) Send(ctx context.Context, message models.Message) error {
	c.mu.Lock()
	if c.provider == nil {
		c.mu.Unlock()
		return fmt.Errorf("agent: Send called before Connect")
	}
	c.history = append(c.history, message)
	opts := c.opts
	history := append([]models.Message(nil), c.history...)
	c.mu.Unlock()

	out := make(chan models.AnyMessage)
	c.active = out
	go c.run(ctx, opts, history, out)
	return nil
}

// Receive returns the active response generator started by the most recent
// Send. It is an error to call Receive with no turn in flight.
func (c *Client) Receive() (<-chan models.AnyMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == nil {
		return nil, fmt.Errorf("agent: Receive called with no active turn")
	}
	return c.active, nil
}

// Query is Send + Receive sugar for the common one-shot case.
func (c *Client) Query(ctx context.Context, text string) (<-chan models.AnyMessage, error) {
	if err := c.Send(ctx, models.NewUserText(text)); err != nil {
		return nil, err
	}
	return c.Receive()
}

// ReceiveAll drains the active response generator into a slice, returning
// the first error encountered (if any). Useful for tests and non-streaming
// callers that want the whole turn at once rather than iterating a channel
// (SPEC_FULL.md §4, grounded in client.py's receive_all()).
func (c *Client) ReceiveAll(ctx context.Context) ([]models.AnyMessage, error) {
	ch, err := c.Receive()
	if err != nil {
		return nil, err
	}
	var out []models.AnyMessage
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return out, nil
			}
			if msg.Err != nil {
				return out, msg.Err
			}
			out = append(out, msg)
		case <-ctx.Done():
			return out, ctx.Err()
		}
	}
}

// run drives the bounded agentic loop for one Send call (§4.7 "Loop body").
// It owns out exclusively and closes it on every exit path.
func (c *Client) run(ctx context.Context, opts models.AgentOptions, history []models.Message, out chan<- models.AnyMessage) {
	defer close(out)

	pipeline := hooks.New(opts.Hooks, c.logger)
	turn := 0

	for turn < opts.MaxTurns {
		turn++

		assistantMsg, usage, err := c.runOneCompletion(ctx, opts, history, out)
		if err != nil {
			out <- models.AnyMessage{Err: err}
			return
		}

		out <- models.AnyMessage{Message: ptrMessage(assistantMsg)}

		toolUses := assistantMsg.ToolUseBlocks()
		if len(toolUses) == 0 {
			out <- models.AnyMessage{Result: &models.ResultMessage{
				NumTurns:     turn,
				SessionID:    c.sessionID,
				Usage:        &usage,
				FinishReason: assistantMsg.FinishReason,
			}}
			c.commitHistory(history, assistantMsg)
			return
		}

		history = append(history, assistantMsg)
		c.mu.Lock()
		c.history = history
		c.mu.Unlock()

		stopped, stopReason := c.executeTools(ctx, pipeline, toolUses, out)
		history = append([]models.Message(nil), c.history...)

		if stopped {
			out <- models.AnyMessage{Result: &models.ResultMessage{
				NumTurns:     turn,
				SessionID:    c.sessionID,
				Usage:        &usage,
				FinishReason: assistantMsg.FinishReason,
				StopReason:   stopReason,
			}}
			return
		}
	}

	out <- models.AnyMessage{Result: &models.ResultMessage{
		NumTurns:  turn,
		SessionID: c.sessionID,
		IsError:   false,
	}}
}

// runOneCompletion performs one provider call (streaming or not per
// opts.Stream), forwarding every event except the provider's own terminal
// message — the engine is the sole authority on ResultMessage emission (§9
// OQ1) — and returns the assembled Assistant message.
func (c *Client) runOneCompletion(ctx context.Context, opts models.AgentOptions, history []models.Message, out chan<- models.AnyMessage) (models.Message, models.Usage, error) {
	if !opts.Stream {
		msg, usage, err := c.provider.Complete(ctx, history, opts)
		return msg, usage, err
	}

	items, err := c.provider.Stream(ctx, history, opts)
	if err != nil {
		return models.Message{}, models.Usage{}, err
	}

	var final models.Message
	var usage models.Usage
	for item := range items {
		if item.Err != nil {
			return models.Message{}, models.Usage{}, item.Err
		}
		if item.Event != nil {
			out <- models.AnyMessage{Event: item.Event}
		}
		if item.Final != nil {
			final = *item.Final
			usage = item.Usage
		}
	}
	return final, usage, nil
}

// commitHistory persists the final turn's state back onto the Client once a
// run completes without further tool calls.
func (c *Client) commitHistory(history []models.Message, assistantMsg models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(append([]models.Message(nil), history...), assistantMsg)
}
