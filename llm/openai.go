// OpenAI-compatible provider using the go-openai library.
//
// Information Hiding:
// - API endpoint and authentication
// - Request/response format for the Chat Completions API
// - Streaming via go-openai library
//
// DeepSeek and self-hosted gateways speak the same protocol and differ only
// in base URL, so they share this implementation.

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

const deepseekBaseURL = "https://api.deepseek.com/v1"

// OpenAIProvider implements Provider for any Chat Completions endpoint.
type OpenAIProvider struct {
	name        string
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAIProvider creates a provider for api.openai.com, or for baseURL
// when it is not empty.
func NewOpenAIProvider(apiKey, model, baseURL string, maxTokens uint32, temperature float32) *OpenAIProvider {
	return newCompatProvider("openai", apiKey, model, baseURL, maxTokens, temperature)
}

// NewDeepSeekProvider creates a provider for the DeepSeek API.
func NewDeepSeekProvider(apiKey, model, baseURL string, maxTokens uint32, temperature float32) *OpenAIProvider {
	if baseURL == "" {
		baseURL = deepseekBaseURL
	}
	return newCompatProvider("deepseek", apiKey, model, baseURL, maxTokens, temperature)
}

func newCompatProvider(name, apiKey, model, baseURL string, maxTokens uint32, temperature float32) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIProvider{
		name:        name,
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Model returns the current model.
func (p *OpenAIProvider) Model() string {
	return p.model
}

func (p *OpenAIProvider) request(messages []ChatMessage) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:               p.model,
		Messages:            toOpenAIMessages(messages),
		MaxCompletionTokens: p.maxTokens,
		Temperature:         p.temperature,
	}
}

// Chat sends a chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

// ChatWithFormat sends a chat completion request with optional response format.
func (p *OpenAIProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	req := p.request(messages)
	if format != nil {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatType(format.Type),
		}
	}
	return p.complete(ctx, req)
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *OpenAIProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	req := p.request(messages)
	req.Tools = toOpenAITools(tools)
	return p.complete(ctx, req)
}

func (p *OpenAIProvider) complete(ctx context.Context, req openai.ChatCompletionRequest) (LLMResponse, error) {
	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("%s chat completion failed: %w", p.name, err)
	}

	var out LLMResponse
	if len(resp.Choices) > 0 {
		msg := resp.Choices[0].Message
		out.Content = msg.Content
		for _, tc := range msg.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: []byte(tc.Function.Arguments),
			})
		}
	}
	out.Usage = openAIUsage(resp.Usage)
	return out, nil
}

// StreamChat streams a chat completion.
func (p *OpenAIProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	req := p.request(messages)
	req.Stream = true
	req.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("%s stream creation failed: %w", p.name, err)
	}
	defer stream.Close()

	var usage *TokenUsage
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return usage, nil
		}
		if err != nil {
			return usage, fmt.Errorf("%s stream recv failed: %w", p.name, err)
		}

		// Usage arrives on the final chunk.
		if response.Usage != nil {
			usage = openAIUsage(*response.Usage)
		}

		if len(response.Choices) == 0 || response.Choices[0].Delta.Content == "" {
			continue
		}
		select {
		case chunks <- response.Choices[0].Delta.Content:
		case <-ctx.Done():
			return usage, ctx.Err()
		}
	}
}

func openAIUsage(u openai.Usage) *TokenUsage {
	return &TokenUsage{
		PromptTokens:     uint32(u.PromptTokens),
		CompletionTokens: uint32(u.CompletionTokens),
		TotalTokens:      uint32(u.TotalTokens),
	}
}

func toOpenAIMessages(messages []ChatMessage) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		m := openai.ChatCompletionMessage{
			Role:       msg.Role,
			Content:    msg.Content,
			ToolCallID: msg.ToolCallID,
		}
		if msg.Role == RoleTool {
			m.Name = msg.Name
		}
		for _, tc := range msg.ToolCalls {
			m.ToolCalls = append(m.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			})
		}
		result[i] = m
	}
	return result
}

func toOpenAITools(tools []ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, len(tools))
	for i, t := range tools {
		result[i] = openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return result
}

var _ Provider = (*OpenAIProvider)(nil)
