package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/nexusrun/agentrt/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

// OpenAIProvider implements the Provider contract (C3) against OpenAI's flat
// content plus parallel tool_calls array dialect (C5). The Azure variant
// (C5 "Azure variant") is this same dialect under a different client
// configuration and error label, built via newDialectProvider rather than a
// parallel implementation.
type OpenAIProvider struct {
	name         string
	client       *openai.Client
	maxRetries   int
	retryDelay   time.Duration
	defaultModel string
}

// OpenAIConfig configures an OpenAIProvider.
type OpenAIConfig struct {
	APIKey       string
	BaseURL      string
	MaxRetries   int
	RetryDelay   time.Duration
	DefaultModel string
}

// NewOpenAIProvider builds a provider bound to an API key, applying sensible
// defaults for every other field.
func NewOpenAIProvider(config OpenAIConfig) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, errors.New("openai: API key is required")
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = 3
	}
	if config.RetryDelay <= 0 {
		config.RetryDelay = time.Second
	}
	if config.DefaultModel == "" {
		config.DefaultModel = "gpt-4o"
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if strings.TrimSpace(config.BaseURL) != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return newDialectProvider("openai", openai.NewClientWithConfig(clientConfig), config), nil
}

// newDialectProvider builds an OpenAIProvider under a given error/name label
// from an already-configured client. Shared by both the direct OpenAI
// factory and the Azure factory.
func newDialectProvider(name string, client *openai.Client, config OpenAIConfig) *OpenAIProvider {
	return &OpenAIProvider{
		name:         name,
		client:       client,
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,
		defaultModel: config.DefaultModel,
	}
}

// OpenAIFactory adapts NewOpenAIProvider to the Registry's Factory signature.
func OpenAIFactory(config map[string]any) (Provider, error) {
	cfg := OpenAIConfig{
		APIKey:       stringField(config, "api_key"),
		BaseURL:      stringField(config, "base_url"),
		DefaultModel: stringField(config, "default_model"),
	}
	return NewOpenAIProvider(cfg)
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Features() Features {
	return Features{
		Streaming:             true,
		ToolCalling:            true,
		Vision:                 true,
		Thinking:               false,
		JSONMode:               true,
		MaxContextLength:       128000,
		SupportsSystemMessage:  true,
	}
}

func (p *OpenAIProvider) model(opts models.AgentOptions) string {
	if opts.Model != "" {
		return opts.Model
	}
	return p.defaultModel
}

// FormatMessages translates the canonical message list into OpenAI chat
// messages (§4.5: System stays a regular message with role "system", unlike
// the Anthropic dialect).
func (p *OpenAIProvider) FormatMessages(messages []models.Message) (any, error) {
	return p.formatMessages(messages), nil
}

func (p *OpenAIProvider) formatMessages(messages []models.Message) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleSystem:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleSystem,
				Content: msg.TextContent,
			})

		case models.RoleUser:
			content := msg.TextContent
			if content == "" {
				content = msg.Text()
			}
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: content,
			})

		case models.RoleTool:
			// A Tool message maps directly onto OpenAI's dedicated tool role,
			// unlike the Anthropic dialect's user-message encoding (§4.5).
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Content,
				ToolCallID: msg.ToolCallID,
			})

		case models.RoleAssistant:
			oaiMsg := openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: msg.Text()}
			for _, b := range msg.Blocks {
				if b.Type != models.ContentToolUse {
					continue
				}
				args, _ := json.Marshal(b.ToolUseInput)
				oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
					ID:   b.ToolUseID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      b.ToolUseName,
						Arguments: string(args),
					},
				})
			}
			result = append(result, oaiMsg)
		}
	}
	return result
}

// FormatTools translates ToolDefinitions into OpenAI function-tool params.
func (p *OpenAIProvider) FormatTools(tools []models.ToolDefinition) (any, error) {
	result := make([]openai.Tool, len(tools))
	for i, tool := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  tool.InputSchema,
			},
		}
	}
	return result, nil
}

// toolChoiceParamOpenAI maps the canonical ToolChoice onto go-openai's accepted
// shapes: a bare string for auto/none/required, a struct pinning a named
// function (§4.5).
func toolChoiceParamOpenAI(choice models.ToolChoice) any {
	switch choice.Mode {
	case "required":
		return "required"
	case "none":
		return "none"
	case "name":
		return openai.ToolChoice{Type: openai.ToolTypeFunction, Function: openai.ToolFunction{Name: choice.Name}}
	default:
		return "auto"
	}
}

func (p *OpenAIProvider) buildRequest(messages []models.Message, opts models.AgentOptions) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    p.model(opts),
		Messages: p.formatMessages(messages),
		Stream:   true,
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = float32(opts.Temperature)
	}
	if len(opts.Tools) > 0 {
		tools, _ := p.FormatTools(opts.Tools)
		req.Tools = tools.([]openai.Tool)
		req.ToolChoice = toolChoiceParamOpenAI(opts.ToolChoice)
	}
	return req
}

// Complete performs a single non-streaming call by draining Stream.
func (p *OpenAIProvider) Complete(ctx context.Context, messages []models.Message, opts models.AgentOptions) (models.Message, models.Usage, error) {
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

// Stream performs a streaming call, resynthesizing OpenAI's flat delta
// chunks plus parallel tool_calls array into the canonical
// content_block_start/delta/stop grammar (§4.5, §9 "Streaming state across
// two dialects").
func (p *OpenAIProvider) Stream(ctx context.Context, messages []models.Message, opts models.AgentOptions) (<-chan StreamItem, error) {
	req := p.buildRequest(messages, opts)
	model := p.model(opts)

	out := make(chan StreamItem)
	go func() {
		defer close(out)

		attempt := 0
		backoffPolicy := backoff.NewExponentialBackOff()
		backoffPolicy.InitialInterval = p.retryDelay
		for {
			stream, err := p.client.CreateChatCompletionStream(ctx, req)
			if err == nil {
				settled, streamErr := p.processStream(ctx, stream, out, model)
				if streamErr == nil {
					return
				}
				if settled || attempt >= p.maxRetries || !p.isRetryableError(streamErr) {
					out <- StreamItem{Err: streamErr}
					return
				}
				err = streamErr
			} else if !p.isRetryableError(p.wrapError(err, model)) || attempt >= p.maxRetries {
				out <- StreamItem{Err: p.wrapError(err, model)}
				return
			}

			delay := backoffPolicy.NextBackOff()
			if delay == backoff.Stop {
				out <- StreamItem{Err: p.wrapError(err, model)}
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

// openAIToolCallState tracks one in-progress tool call, keyed by OpenAI's own
// delta index, plus the canonical block index it was assigned on first sight.
type openAIToolCallState struct {
	canonicalIndex int
	id             string
	name           string
	started        bool
	args           strings.Builder
}

// processStream drains one stream into out, emitting content_block_start the
// first time text or a given tool-call index is seen, content_block_delta
// per chunk, and content_block_stop for every open block once the stream
// reaches EOF.
func (p *OpenAIProvider) processStream(ctx context.Context, stream *openai.ChatCompletionStream, out chan<- StreamItem, model string) (settled bool, retErr error) {
	defer stream.Close()

	textStarted := false
	var textBuf strings.Builder
	toolStates := make(map[int]*openAIToolCallState)
	toolOrder := []int{}
	nextIndex := 0
	var finishReason models.FinishReason
	var usage models.Usage

	for {
		select {
		case <-ctx.Done():
			return settled, ctx.Err()
		default:
		}

		resp, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				break
			}
			return settled, p.wrapError(err, model)
		}

		if resp.Usage != nil {
			usage = models.Usage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			}
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		delta := choice.Delta

		if delta.Content != "" {
			if !textStarted {
				textStarted = true
				nextIndex++
				out <- StreamItem{Event: &models.StreamEvent{
					EventType: models.EventContentBlockStart,
					Index:     0,
					Delta:     map[string]any{"type": "text"},
				}}
			}
			textBuf.WriteString(delta.Content)
			out <- StreamItem{Event: &models.StreamEvent{
				EventType: models.EventContentBlockDelta,
				Index:     0,
				Delta:     map[string]any{"type": string(models.DeltaText), "text": delta.Content},
			}}
			settled = true
		}

		for _, tc := range delta.ToolCalls {
			rawIndex := 0
			if tc.Index != nil {
				rawIndex = *tc.Index
			}
			state, ok := toolStates[rawIndex]
			if !ok {
				state = &openAIToolCallState{canonicalIndex: nextIndex}
				nextIndex++
				toolStates[rawIndex] = state
				toolOrder = append(toolOrder, rawIndex)
			}
			if tc.ID != "" {
				state.id = tc.ID
			}
			if tc.Function.Name != "" {
				state.name = tc.Function.Name
			}
			if !state.started && (state.id != "" || state.name != "") {
				out <- StreamItem{Event: &models.StreamEvent{
					EventType: models.EventContentBlockStart,
					Index:     state.canonicalIndex,
					Delta:     map[string]any{"type": "tool_use", "id": state.id, "name": state.name},
				}}
				state.started = true
			}
			if tc.Function.Arguments != "" {
				state.args.WriteString(tc.Function.Arguments)
				out <- StreamItem{Event: &models.StreamEvent{
					EventType: models.EventContentBlockDelta,
					Index:     state.canonicalIndex,
					Delta:     map[string]any{"type": string(models.DeltaInputJSON), "partial_json": tc.Function.Arguments},
				}}
			}
			settled = true
		}

		if choice.FinishReason != "" {
			finishReason = mapOpenAIFinishReason(choice.FinishReason)
			// Do not break here: OpenAI's usage-accounting stream sends one
			// further chunk with an empty choices array and the usage
			// totals after the finish_reason chunk: only EOF ends the loop.
		}
	}

	if textStarted {
		out <- StreamItem{Event: &models.StreamEvent{EventType: models.EventContentBlockStop, Index: 0}}
	}
	for _, rawIndex := range toolOrder {
		out <- StreamItem{Event: &models.StreamEvent{EventType: models.EventContentBlockStop, Index: toolStates[rawIndex].canonicalIndex}}
	}

	var blocks []models.Content
	if textStarted {
		blocks = append(blocks, models.NewText(textBuf.String()))
	}
	for _, rawIndex := range toolOrder {
		state := toolStates[rawIndex]
		blocks = append(blocks, models.NewToolUse(state.id, state.name, parseToolInput(state.args.String())))
	}
	if finishReason == "" {
		finishReason = models.FinishStop
	}

	final := models.NewAssistant(model, finishReason, blocks...)
	out <- StreamItem{Final: &final, Usage: usage}
	return settled, nil
}

// mapOpenAIFinishReason translates OpenAI's finish_reason into the canonical
// FinishReason vocabulary (§4.5).
func mapOpenAIFinishReason(reason openai.FinishReason) models.FinishReason {
	switch reason {
	case openai.FinishReasonStop:
		return models.FinishStop
	case openai.FinishReasonLength:
		return models.FinishLength
	case openai.FinishReasonToolCalls, openai.FinishReasonFunctionCall:
		return models.FinishToolUse
	case openai.FinishReasonContentFilter:
		return models.FinishContentFilter
	default:
		return models.FinishStop
	}
}

func (p *OpenAIProvider) isRetryableError(err error) bool {
	if pe, ok := models.AsProviderError(err); ok {
		return pe.IsRetryable()
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"rate limit", "429", "500", "502", "503", "504", "timeout", "deadline exceeded", "connection reset", "connection refused"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (p *OpenAIProvider) wrapError(err error, model string) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return models.NewAuthenticationError(p.name, apiErr.Message)
		case apiErr.HTTPStatusCode == 429:
			return models.NewRateLimitedError(p.name, 0)
		case apiErr.HTTPStatusCode == 404:
			return models.NewModelNotFoundError(p.name, model)
		default:
			return models.NewProviderStatusError(p.name, apiErr.HTTPStatusCode, err)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return models.NewTimeoutError(p.name, err)
	}
	return models.NewConnectionError(p.name, err)
}
