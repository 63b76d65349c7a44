// Anthropic Provider implementation using official anthropic-sdk-go.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for Anthropic Messages API
// - Streaming via official SDK

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider implements the Provider interface for Anthropic Claude.
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates a new Anthropic provider. An empty baseURL
// uses the SDK default.
func NewAnthropicProvider(apiKey, model, baseURL string, maxTokens uint32, temperature float32) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &AnthropicProvider{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   int64(maxTokens),
		temperature: float64(temperature),
	}
}

// Name returns the provider name.
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

// Model returns the current model.
func (p *AnthropicProvider) Model() string {
	return p.model
}

func (p *AnthropicProvider) params(messages []ChatMessage) anthropic.MessageNewParams {
	converted, system := toAnthropicMessages(messages)
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Messages:    converted,
		Temperature: anthropic.Float(p.temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

// Chat sends a chat completion request.
func (p *AnthropicProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

// ChatWithFormat sends a chat completion request. The Messages API has no
// JSON mode; callers rely on prompt instructions instead.
func (p *AnthropicProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, _ *ResponseFormat) (LLMResponse, error) {
	return p.send(ctx, p.params(messages))
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *AnthropicProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	params := p.params(messages)
	params.Tools = toAnthropicTools(tools)
	return p.send(ctx, params)
}

func (p *AnthropicProvider) send(ctx context.Context, params anthropic.MessageNewParams) (LLMResponse, error) {
	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("anthropic chat completion failed: %w", err)
	}

	var content strings.Builder
	var toolCalls []ToolCall
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			input, _ := json.Marshal(variant.Input)
			toolCalls = append(toolCalls, ToolCall{ID: variant.ID, Name: variant.Name, Arguments: input})
		}
	}

	var usage *TokenUsage
	if message.Usage.InputTokens > 0 || message.Usage.OutputTokens > 0 {
		usage = &TokenUsage{
			PromptTokens:     uint32(message.Usage.InputTokens),
			CompletionTokens: uint32(message.Usage.OutputTokens),
			TotalTokens:      uint32(message.Usage.InputTokens + message.Usage.OutputTokens),
		}
	}
	return LLMResponse{Content: content.String(), ToolCalls: toolCalls, Usage: usage}, nil
}

// StreamChat streams a chat completion.
func (p *AnthropicProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.params(messages))

	var usage *TokenUsage
	for stream.Next() {
		switch event := stream.Current().AsAny().(type) {
		case anthropic.MessageStartEvent:
			if event.Message.Usage.InputTokens > 0 {
				usage = &TokenUsage{PromptTokens: uint32(event.Message.Usage.InputTokens)}
			}
		case anthropic.ContentBlockDeltaEvent:
			delta, ok := event.Delta.AsAny().(anthropic.TextDelta)
			if !ok || delta.Text == "" {
				continue
			}
			select {
			case chunks <- delta.Text:
			case <-ctx.Done():
				return usage, ctx.Err()
			}
		case anthropic.MessageDeltaEvent:
			if event.Usage.OutputTokens > 0 {
				if usage == nil {
					usage = &TokenUsage{}
				}
				usage.CompletionTokens = uint32(event.Usage.OutputTokens)
				usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
			}
		}
	}
	if err := stream.Err(); err != nil {
		return usage, fmt.Errorf("anthropic stream error: %w", err)
	}
	return usage, nil
}

// toAnthropicMessages converts messages and lifts the system prompt out.
// Multiple system messages are joined.
func toAnthropicMessages(messages []ChatMessage) ([]anthropic.MessageParam, string) {
	var out []anthropic.MessageParam
	var system []string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
				continue
			}
			param := anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant}
			if msg.Content != "" {
				param.Content = append(param.Content, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				var input map[string]interface{}
				_ = json.Unmarshal(tc.Arguments, &input)
				param.Content = append(param.Content, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{ID: tc.ID, Name: tc.Name, Input: input},
				})
			}
			out = append(out, param)
		case RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		}
	}
	return out, strings.Join(system, "\n\n")
}

func toAnthropicTools(tools []ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		properties, _ := t.Parameters["properties"].(map[string]interface{})
		required, _ := t.Parameters["required"].([]string)
		result[i] = anthropic.ToolUnionParam{OfTool: &anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		}}
	}
	return result
}

var _ Provider = (*AnthropicProvider)(nil)
