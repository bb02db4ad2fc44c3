package agent

import (
	"context"
	"testing"

	"github.com/nexusrun/agentrt/internal/agent/providers"
	"github.com/nexusrun/agentrt/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedProvider drives the agent loop through a fixed sequence of
// Complete() responses, one per call, so the end-to-end scenarios in §8 can
// be exercised deterministically without a real dialect implementation.
type scriptedProvider struct {
	responses []scriptedTurn
	calls     int
}

type scriptedTurn struct {
	msg   models.Message
	usage models.Usage
	err   error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Features() providers.Features { return providers.Features{Streaming: true, ToolCalling: true} }

func (p *scriptedProvider) Complete(ctx context.Context, messages []models.Message, opts models.AgentOptions) (models.Message, models.Usage, error) {
	if p.calls >= len(p.responses) {
		return models.Message{}, models.Usage{}, nil
	}
	turn := p.responses[p.calls]
	p.calls++
	return turn.msg, turn.usage, turn.err
}

func (p *scriptedProvider) Stream(ctx context.Context, messages []models.Message, opts models.AgentOptions) (<-chan providers.StreamItem, error) {
	turn := p.responses[p.calls]
	p.calls++
	ch := make(chan providers.StreamItem, 1)
	if turn.err != nil {
		ch <- providers.StreamItem{Err: turn.err}
	} else {
		msg := turn.msg
		ch <- providers.StreamItem{Final: &msg, Usage: turn.usage}
	}
	close(ch)
	return ch, nil
}

func (p *scriptedProvider) FormatMessages(messages []models.Message) (any, error) { return messages, nil }
func (p *scriptedProvider) FormatTools(tools []models.ToolDefinition) (any, error) { return tools, nil }

func newScriptedClient(t *testing.T, turns ...scriptedTurn) (*Client, *scriptedProvider, *ToolRegistry) {
	t.Helper()
	p := &scriptedProvider{responses: turns}
	registry := providers.NewRegistry()
	registry.RegisterFactory("scripted", func(config map[string]any) (providers.Provider, error) {
		return p, nil
	})
	toolRegistry := NewToolRegistry()
	client := NewClient(registry, toolRegistry, nil)
	return client, p, toolRegistry
}

func drain(t *testing.T, ch <-chan models.AnyMessage) []models.AnyMessage {
	t.Helper()
	var out []models.AnyMessage
	for msg := range ch {
		out = append(out, msg)
	}
	return out
}

// S1: plain text, one turn.
func TestLoopPlainTextOneTurn(t *testing.T) {
	client, _, _ := newScriptedClient(t, scriptedTurn{
		msg:   models.NewAssistant("scripted-model", models.FinishStop, models.NewText("hello there")),
		usage: models.Usage{PromptTokens: 3, CompletionTokens: 2},
	})

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx, models.AgentOptions{Provider: "scripted"}))

	ch, err := client.Query(ctx, "hi")
	require.NoError(t, err)

	msgs := drain(t, ch)
	require.Len(t, msgs, 2)
	require.NotNil(t, msgs[0].Message)
	assert.Equal(t, "hello there", msgs[0].Message.Text())
	require.NotNil(t, msgs[1].Result)
	assert.Equal(t, 1, msgs[1].Result.NumTurns)
	assert.False(t, msgs[1].Result.IsError)
}

// S2: single tool call — the second completion resolves with plain text.
func TestLoopSingleToolCall(t *testing.T) {
	client, _, toolRegistry := newScriptedClient(t,
		scriptedTurn{msg: models.NewAssistant("scripted-model", models.FinishToolUse,
			models.NewToolUse("call_1", "add", map[string]any{"a": float64(1), "b": float64(2)}))},
		scriptedTurn{msg: models.NewAssistant("scripted-model", models.FinishStop, models.NewText("the sum is 3"))},
	)
	var gotInput map[string]any
	toolRegistry.Register(models.ToolDefinition{
		Name: "add",
		Handler: func(ctx models.CallContext, input map[string]any) (any, error) {
			gotInput = input
			return "3", nil
		},
	})

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx, models.AgentOptions{Provider: "scripted"}))
	ch, err := client.Query(ctx, "what is 1+2?")
	require.NoError(t, err)

	msgs := drain(t, ch)
	require.NotEmpty(t, msgs)
	last := msgs[len(msgs)-1]
	require.NotNil(t, last.Result)
	assert.Equal(t, 2, last.Result.NumTurns)
	assert.Equal(t, float64(1), gotInput["a"])

	var sawToolMessage bool
	for _, m := range msgs {
		if m.Message != nil && m.Message.Role == models.RoleTool && m.Message.Content == "3" {
			sawToolMessage = true
		}
	}
	assert.True(t, sawToolMessage, "expected the tool's stringified result to appear as a Tool message")
}

// S3: permission denial — CanUseTool rejects the call, the turn continues
// with a denial recorded instead of invoking the handler.
func TestLoopPermissionDenial(t *testing.T) {
	client, _, toolRegistry := newScriptedClient(t,
		scriptedTurn{msg: models.NewAssistant("scripted-model", models.FinishToolUse,
			models.NewToolUse("call_1", "delete_file", map[string]any{"path": "/etc/passwd"}))},
		scriptedTurn{msg: models.NewAssistant("scripted-model", models.FinishStop, models.NewText("I can't do that"))},
	)
	var handlerCalled bool
	toolRegistry.Register(models.ToolDefinition{
		Name: "delete_file",
		Handler: func(ctx models.CallContext, input map[string]any) (any, error) {
			handlerCalled = true
			return "deleted", nil
		},
	})

	ctx := context.Background()
	opts := models.AgentOptions{
		Provider: "scripted",
		CanUseTool: func(toolName string, input map[string]any, hctx models.HookContext) (models.PermissionDecision, error) {
			return models.PermissionDecision{Allow: false, Reason: "destructive path rejected"}, nil
		},
	}
	require.NoError(t, client.Connect(ctx, opts))
	ch, err := client.Query(ctx, "delete /etc/passwd")
	require.NoError(t, err)

	msgs := drain(t, ch)
	require.False(t, handlerCalled, "denied tool must never reach the handler")

	var sawDenial bool
	for _, m := range msgs {
		if m.Message != nil && m.Message.Role == models.RoleTool {
			assert.Contains(t, m.Message.Content, "Permission denied")
			sawDenial = true
		}
	}
	assert.True(t, sawDenial)

	last := msgs[len(msgs)-1]
	require.NotNil(t, last.Result)
	assert.Equal(t, 2, last.Result.NumTurns)
}

// S4: a PreToolUse hook rewrites the input the handler receives; the
// original model-requested input stays untouched in the assistant message.
func TestLoopHookModifiesInput(t *testing.T) {
	client, _, toolRegistry := newScriptedClient(t,
		scriptedTurn{msg: models.NewAssistant("scripted-model", models.FinishToolUse,
			models.NewToolUse("call_1", "write", map[string]any{"path": "/etc/passwd", "content": "hi"}))},
		scriptedTurn{msg: models.NewAssistant("scripted-model", models.FinishStop, models.NewText("done"))},
	)
	var gotInput map[string]any
	toolRegistry.Register(models.ToolDefinition{
		Name: "write",
		Handler: func(ctx models.CallContext, input map[string]any) (any, error) {
			gotInput = input
			return "ok", nil
		},
	})

	ctx := context.Background()
	opts := models.AgentOptions{
		Provider: "scripted",
		Hooks: map[models.HookEventType][]models.HookMatcher{
			models.HookPreToolUse: {{
				Matcher: "write",
				Hooks: []models.HookCallback{
					func(in models.HookInput) (models.HookOutput, error) {
						return models.HookOutput{
							ModifiedInput: map[string]any{"path": "/safe/x.txt", "content": "hi"},
						}, nil
					},
				},
			}},
		},
	}
	require.NoError(t, client.Connect(ctx, opts))
	ch, err := client.Query(ctx, "write to /etc/passwd")
	require.NoError(t, err)

	msgs := drain(t, ch)
	require.NotNil(t, gotInput)
	assert.Equal(t, "/safe/x.txt", gotInput["path"], "handler must see the hook's modified_input")

	var sawOriginalAssistantInput bool
	for _, m := range msgs {
		if m.Message != nil && m.Message.Role == models.RoleAssistant {
			for _, use := range m.Message.ToolUseBlocks() {
				if use.ToolUseInput["path"] == "/etc/passwd" {
					sawOriginalAssistantInput = true
				}
			}
		}
	}
	assert.True(t, sawOriginalAssistantInput, "the original model-requested input must survive in the assistant message")
}

// S5: max_turns exhausted — every completion keeps requesting a tool call,
// so the loop must stop after MaxTurns without a hook or model ever
// settling on plain text.
func TestLoopMaxTurnsExhausted(t *testing.T) {
	turn := scriptedTurn{msg: models.NewAssistant("scripted-model", models.FinishToolUse,
		models.NewToolUse("call_1", "noop", map[string]any{}))}
	client, _, toolRegistry := newScriptedClient(t, turn, turn, turn)
	toolRegistry.Register(models.ToolDefinition{
		Name: "noop",
		Handler: func(ctx models.CallContext, input map[string]any) (any, error) {
			return "ok", nil
		},
	})

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx, models.AgentOptions{Provider: "scripted", MaxTurns: 3}))
	ch, err := client.Query(ctx, "loop forever")
	require.NoError(t, err)

	msgs := drain(t, ch)
	last := msgs[len(msgs)-1]
	require.NotNil(t, last.Result)
	assert.Equal(t, 3, last.Result.NumTurns)
	assert.False(t, last.Result.IsError)
}

func TestReceiveAllDrainsWholeTurn(t *testing.T) {
	client, _, _ := newScriptedClient(t, scriptedTurn{
		msg: models.NewAssistant("scripted-model", models.FinishStop, models.NewText("hi back")),
	})

	ctx := context.Background()
	require.NoError(t, client.Connect(ctx, models.AgentOptions{Provider: "scripted"}))
	_, err := client.Query(ctx, "hi")
	require.NoError(t, err)

	all, err := client.ReceiveAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "hi back", all[0].Message.Text())
	assert.Equal(t, 1, all[1].Result.NumTurns)
}
