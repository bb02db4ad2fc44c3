package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/cenkalti/backoff/v5"
	"github.com/nexusrun/agentrt/pkg/models"
)

// AnthropicProvider implements the Provider contract (C3) against
// Anthropic's typed-block, block-start/delta/stop streaming dialect (C4).
type AnthropicProvider struct {
	client       anthropic.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewAnthropicProvider builds a provider bound to an API key, applying
// sensible defaults for every other field.
func NewAnthropicProvider(config AnthropicConfig) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(config.APIKey)}
	if strings.TrimSpace(config.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}, nil
}

// AnthropicFactory adapts NewAnthropicProvider to the Registry's Factory
// signature, reading the resolved config map produced by internal/config.
func AnthropicFactory(config map[string]any) (Provider, error) {
	cfg := AnthropicConfig{
		APIKey:       stringField(config, "api_key"),
		BaseURL:      stringField(config, "base_url"),
		DefaultModel: stringField(config, "default_model"),
	}
	return NewAnthropicProvider(cfg)
}

func stringField(m map[string]any, key string) string {
	v, _ := m[key].(string)
	return v
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Features() Features {
	return Features{
		Streaming:            true,
		ToolCalling:          true,
		Vision:               true,
		Thinking:             true,
		JSONMode:             false,
		MaxContextLength:     200000,
		SupportsSystemMessage: true,
	}
}

func (p *AnthropicProvider) model(opts models.AgentOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return p.defaultModel
}

func (p *AnthropicProvider) maxTokens(opts models.AgentOptions) int64 {
	if opts.MaxTokens > 0 {
		return int64(opts.MaxTokens)
	}
	return 4096
}

// FormatMessages translates the canonical message list into Anthropic
// MessageParams, pulling System messages out into a separate return value
// the way the dialect requires (§4.4: "System messages become a top-level
// system parameter, not part of the message list").
func (p *AnthropicProvider) FormatMessages(messages []models.Message) (any, error) {
	system, params, err := p.formatMessages(messages)
	if err != nil {
		return nil, err
	}
	return anthropicFormatted{System: system, Messages: params}, nil
}

type anthropicFormatted struct {
	System   string
	Messages []anthropic.MessageParam
}

func (p *AnthropicProvider) formatMessages(messages []models.Message) (string, []anthropic.MessageParam, error) {
	var system strings.Builder
	var result []anthropic.MessageParam

	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			if system.Len() > 0 {
				system.WriteString("\n\n")
			}
			system.WriteString(msg.TextContent)

		case models.RoleUser:
			var content []anthropic.ContentBlockParamUnion
			if msg.TextContent != "" {
				content = append(content, anthropic.NewTextBlock(msg.TextContent))
			}
			for _, b := range msg.Blocks {
				if b.Type == models.ContentText {
					content = append(content, anthropic.NewTextBlock(b.Text))
				}
			}
			result = append(result, anthropic.NewUserMessage(content...))

		case models.RoleTool:
			// A Tool message from the engine is re-encoded as a User message
			// whose content is a single tool_result block carrying the
			// original tool_use_id (§4.4).
			block := anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false)
			result = append(result, anthropic.NewUserMessage(block))

		case models.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			for _, b := range msg.Blocks {
				switch b.Type {
				case models.ContentText:
					content = append(content, anthropic.NewTextBlock(b.Text))
				case models.ContentToolUse:
					content = append(content, anthropic.NewToolUseBlock(b.ToolUseID, b.ToolUseInput, b.ToolUseName))
				case models.ContentThinking:
					content = append(content, anthropic.NewThinkingBlock(b.ThinkingSignature, b.Thinking))
				}
			}
			result = append(result, anthropic.NewAssistantMessage(content...))
		}
	}

	return system.String(), result, nil
}

// FormatTools translates ToolDefinitions into Anthropic tool params.
func (p *AnthropicProvider) FormatTools(tools []models.ToolDefinition) (any, error) {
	out, err := p.formatTools(tools)
	return out, err
}

func (p *AnthropicProvider) formatTools(tools []models.ToolDefinition) ([]anthropic.ToolUnionParam, error) {
	var result []anthropic.ToolUnionParam
	for _, tool := range tools {
		schemaBytes, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("anthropic: invalid schema for %s: %w", tool.Name, err)
		}
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(schemaBytes, &schema); err != nil {
			return nil, fmt.Errorf("anthropic: invalid schema for %s: %w", tool.Name, err)
		}
		toolParam := anthropic.ToolUnionParamOfTool(schema, tool.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("anthropic: invalid schema for %s", tool.Name)
		}
		toolParam.OfTool.Description = anthropic.String(tool.Description)
		result = append(result, toolParam)
	}
	return result, nil
}

// toolChoiceParam maps the canonical ToolChoice onto Anthropic's shape
// (§4.4): auto→{type:auto}, required→{type:any}, none→{type:none},
// specific→{type:tool, name}.
func toolChoiceParam(choice models.ToolChoice) anthropic.ToolChoiceUnionParam {
	switch choice.Mode {
	case "required":
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case "none":
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case "name":
		return anthropic.ToolChoiceUnionParam{OfTool: &anthropic.ToolChoiceToolParam{Name: choice.Name}}
	default:
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
}

func (p *AnthropicProvider) buildParams(messages []models.Message, opts models.AgentOptions) (anthropic.MessageNewParams, error) {
	system, msgs, err := p.formatMessages(messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model(opts)),
		Messages:  msgs,
		MaxTokens: p.maxTokens(opts),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: system}}
	}
	if len(opts.Tools) > 0 {
		tools, err := p.formatTools(opts.Tools)
		if err != nil {
			return anthropic.MessageNewParams{}, err
		}
		params.Tools = tools
		params.ToolChoice = toolChoiceParam(opts.ToolChoice)
	}
	if opts.EnableThinking {
		budget := int64(opts.MaxThinkingTokens)
		if budget < 1024 {
			budget = 10000
		}
		params.Thinking = anthropic.ThinkingConfigParamOfEnabled(budget)
	}
	return params, nil
}

// Complete performs a single non-streaming call by draining Stream.
func (p *AnthropicProvider) Complete(ctx context.Context, messages []models.Message, opts models.AgentOptions) (models.Message, models.Usage, error) {
	items, err := p.Stream(ctx, messages, opts)
	if err != nil {
		return models.Message{}, models.Usage{}, err
	}
	var final models.Message
	var usage models.Usage
	for item := range items {
		if item.Err != nil {
			return models.Message{}, models.Usage{}, item.Err
		}
		if item.Final != nil {
			final = *item.Final
			usage = item.Usage
		}
	}
	return final, usage, nil
}

// Stream performs a streaming call, translating Anthropic's block-oriented
// SSE events into the canonical StreamEvent grammar via a small per-call
// state machine (§4.4).
func (p *AnthropicProvider) Stream(ctx context.Context, messages []models.Message, opts models.AgentOptions) (<-chan StreamItem, error) {
	params, err := p.buildParams(messages, opts)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamItem)
	go func() {
		defer close(out)
		model := p.model(opts)

		attempt := 0
		backoffPolicy := backoff.NewExponentialBackOff()
		backoffPolicy.InitialInterval = p.retryDelay
		for {
			stream := p.client.Messages.NewStreaming(ctx, params)
			settled, err := p.processStream(stream, out, model)
			if err == nil {
				return
			}
			// Once any block has settled into out, retrying would duplicate
			// content the caller already saw — only a clean pre-content
			// failure (connection drop, retryable provider error) is retried.
			if settled || attempt >= p.maxRetries || !p.isRetryableError(err) {
				out <- StreamItem{Err: err}
				return
			}
			delay := backoffPolicy.NextBackOff()
			if delay == backoff.Stop {
				out <- StreamItem{Err: err}
				return
			}
			select {
			case <-ctx.Done():
				out <- StreamItem{Err: ctx.Err()}
				return
			case <-time.After(delay):
			}
			attempt++
		}
	}()
	return out, nil
}

// anthropicStreamState tracks the block currently being assembled as events
// arrive, per the state table in §4.4.
type anthropicStreamState struct {
	blocks       []models.Content
	textBuf      strings.Builder
	jsonBuf      strings.Builder
	thinkingBuf  strings.Builder
	toolID       string
	toolName     string
	signature    string
	currentIndex int
	inBlock      string // "", "text", "tool", "thinking"
}

// processStream drains one stream into out, translating SSE events into the
// canonical StreamEvent grammar. It returns settled=true once at least one
// content block has been emitted — from that point on a failure must not be
// retried by recreating the stream, since the caller has already seen
// partial content it cannot un-see.
func (p *AnthropicProvider) processStream(stream *ssestream.Stream[anthropic.MessageStreamEventUnion], out chan<- StreamItem, model string) (settled bool, retErr error) {
	state := &anthropicStreamState{}
	var usage models.Usage
	var finishReason models.FinishReason

	for stream.Next() {
		event := stream.Current()

		switch event.Type {
		case "message_start":
			ms := event.AsMessageStart()
			usage.PromptTokens = int(ms.Message.Usage.InputTokens)

		case "content_block_start":
			cbs := event.AsContentBlockStart()
			state.currentIndex = int(cbs.Index)
			switch cbs.ContentBlock.Type {
			case "text":
				state.inBlock = "text"
				state.textBuf.Reset()
				out <- StreamItem{Event: &models.StreamEvent{
					EventType: models.EventContentBlockStart,
					Index:     state.currentIndex,
					Delta:     map[string]any{"type": "text"},
				}}
			case "tool_use":
				tu := cbs.ContentBlock.AsToolUse()
				state.inBlock = "tool"
				state.toolID = tu.ID
				state.toolName = tu.Name
				state.jsonBuf.Reset()
				out <- StreamItem{Event: &models.StreamEvent{
					EventType: models.EventContentBlockStart,
					Index:     state.currentIndex,
					Delta:     map[string]any{"type": "tool_use", "id": tu.ID, "name": tu.Name},
				}}
			case "thinking":
				state.inBlock = "thinking"
				state.thinkingBuf.Reset()
				out <- StreamItem{Event: &models.StreamEvent{
					EventType: models.EventContentBlockStart,
					Index:     state.currentIndex,
					Delta:     map[string]any{"type": "thinking"},
				}}
			}

		case "content_block_delta":
			cbd := event.AsContentBlockDelta()
			switch cbd.Delta.Type {
			case "text_delta":
				state.textBuf.WriteString(cbd.Delta.Text)
				out <- StreamItem{Event: &models.StreamEvent{
					EventType: models.EventContentBlockDelta,
					Index:     state.currentIndex,
					Delta:     map[string]any{"type": string(models.DeltaText), "text": cbd.Delta.Text},
				}}
			case "input_json_delta":
				state.jsonBuf.WriteString(cbd.Delta.PartialJSON)
				out <- StreamItem{Event: &models.StreamEvent{
					EventType: models.EventContentBlockDelta,
					Index:     state.currentIndex,
					Delta:     map[string]any{"type": string(models.DeltaInputJSON), "partial_json": cbd.Delta.PartialJSON},
				}}
			case "thinking_delta":
				state.thinkingBuf.WriteString(cbd.Delta.Thinking)
				out <- StreamItem{Event: &models.StreamEvent{
					EventType: models.EventContentBlockDelta,
					Index:     state.currentIndex,
					Delta:     map[string]any{"type": string(models.DeltaThinking), "thinking": cbd.Delta.Thinking},
				}}
			case "signature_delta":
				state.signature += cbd.Delta.Signature
				out <- StreamItem{Event: &models.StreamEvent{
					EventType: models.EventContentBlockDelta,
					Index:     state.currentIndex,
					Delta:     map[string]any{"type": string(models.DeltaSignature), "signature": cbd.Delta.Signature},
				}}
			}

		case "content_block_stop":
			switch state.inBlock {
			case "text":
				state.blocks = append(state.blocks, models.NewText(state.textBuf.String()))
			case "tool":
				input := parseToolInput(state.jsonBuf.String())
				state.blocks = append(state.blocks, models.NewToolUse(state.toolID, state.toolName, input))
			case "thinking":
				state.blocks = append(state.blocks, models.NewThinking(state.thinkingBuf.String(), state.signature))
				state.signature = ""
			}
			state.inBlock = ""
			settled = true
			out <- StreamItem{Event: &models.StreamEvent{
				EventType: models.EventContentBlockStop,
				Index:     state.currentIndex,
			}}

		case "message_delta":
			md := event.AsMessageDelta()
			if md.Usage.OutputTokens > 0 {
				usage.CompletionTokens = int(md.Usage.OutputTokens)
			}
			finishReason = mapStopReason(string(md.Delta.StopReason))

		case "message_stop":
			usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			final := models.NewAssistant(model, finishReason, state.blocks...)
			out <- StreamItem{Final: &final, Usage: usage}
			return true, nil
		}
	}

	if err := stream.Err(); err != nil {
		return settled, p.wrapError(err)
	}
	return settled, nil
}

// parseToolInput decodes the accumulated input_json_delta buffer. A
// malformed buffer (incomplete or non-JSON) is truncated to an empty object
// rather than aborting the turn (§4.4, §9 OQ2).
func parseToolInput(raw string) map[string]any {
	var input map[string]any
	if raw == "" {
		return map[string]any{}
	}
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return map[string]any{}
	}
	if input == nil {
		return map[string]any{}
	}
	return input
}

// mapStopReason translates Anthropic's stop_reason into the canonical
// FinishReason vocabulary (§4.4).
func mapStopReason(reason string) models.FinishReason {
	switch reason {
	case "end_turn":
		return models.FinishStop
	case "max_tokens":
		return models.FinishLength
	case "tool_use":
		return models.FinishToolUse
	case "stop_sequence":
		return models.FinishStop
	default:
		return models.FinishStop
	}
}

func (p *AnthropicProvider) isRetryableError(err error) bool {
	if pe, ok := models.AsProviderError(err); ok {
		return pe.IsRetryable()
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate_limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded", "connection reset", "connection refused"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (p *AnthropicProvider) wrapError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return models.NewAuthenticationError("anthropic", apiErr.Error())
		case apiErr.StatusCode == 429:
			return models.NewRateLimitedError("anthropic", 0)
		case apiErr.StatusCode == 404:
			return models.NewModelNotFoundError("anthropic", "")
		default:
			return models.NewProviderStatusError("anthropic", apiErr.StatusCode, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewTimeoutError("anthropic", err)
	}
	return models.NewConnectionError("anthropic", err)
}
