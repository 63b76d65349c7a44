// LangChain provider: any llms.Model from tmc/langchaingo.
//
// Information Hiding:
// - Role and part mapping to llms.MessageContent
// - Streaming via llms.WithStreamingFunc
// - Usage extraction from GenerationInfo
//
// Used for local Ollama servers, which need no API key.

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
)

const defaultOllamaURL = "http://localhost:11434"

// LangChainProvider implements Provider on top of an llms.Model.
type LangChainProvider struct {
	name        string
	llm         llms.Model
	model       string
	maxTokens   int
	temperature float64
}

// NewLangChainProvider wraps an existing llms.Model.
func NewLangChainProvider(name string, llm llms.Model, model string, maxTokens uint32, temperature float32) *LangChainProvider {
	return &LangChainProvider{
		name:        name,
		llm:         llm,
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: float64(temperature),
	}
}

// NewOllamaProvider connects to an Ollama server. An empty serverURL uses
// the local default.
func NewOllamaProvider(model, serverURL string, maxTokens uint32, temperature float32) (*LangChainProvider, error) {
	if serverURL == "" {
		serverURL = defaultOllamaURL
	}
	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("create ollama client: %w", err)
	}
	return NewLangChainProvider("ollama", llm, model, maxTokens, temperature), nil
}

// Name returns the provider name.
func (p *LangChainProvider) Name() string {
	return p.name
}

// Model returns the current model.
func (p *LangChainProvider) Model() string {
	return p.model
}

func (p *LangChainProvider) options(extra ...llms.CallOption) []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(p.temperature)}
	if p.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.maxTokens))
	}
	return append(opts, extra...)
}

// Chat sends a chat completion request.
func (p *LangChainProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

// ChatWithFormat sends a chat completion request with optional JSON mode.
func (p *LangChainProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	var extra []llms.CallOption
	if format != nil && format.Type == ResponseFormatJSONObject {
		extra = append(extra, llms.WithJSONMode())
	}
	return p.generate(ctx, messages, p.options(extra...))
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *LangChainProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	return p.generate(ctx, messages, p.options(llms.WithTools(toLangChainTools(tools))))
}

func (p *LangChainProvider) generate(ctx context.Context, messages []ChatMessage, opts []llms.CallOption) (LLMResponse, error) {
	resp, err := p.llm.GenerateContent(ctx, toLangChainMessages(messages), opts...)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("%s generate failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return LLMResponse{}, errors.New(p.name + ": empty response")
	}

	choice := resp.Choices[0]
	out := LLMResponse{Content: choice.Content, Usage: langChainUsage(choice.GenerationInfo)}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        tc.ID,
			Name:      tc.FunctionCall.Name,
			Arguments: json.RawMessage(tc.FunctionCall.Arguments),
		})
	}
	return out, nil
}

// StreamChat streams a chat completion.
func (p *LangChainProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	stream := llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		select {
		case chunks <- string(chunk):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	resp, err := p.llm.GenerateContent(ctx, toLangChainMessages(messages), p.options(stream)...)
	if err != nil {
		return nil, fmt.Errorf("%s stream failed: %w", p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}
	return langChainUsage(resp.Choices[0].GenerationInfo), nil
}

func toLangChainMessages(messages []ChatMessage) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, msg.Content))
		case RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, msg.Content))
		case RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if msg.Content != "" || len(msg.ToolCalls) == 0 {
				mc.Parts = append(mc.Parts, llms.TextPart(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Arguments),
					},
				})
			}
			out = append(out, mc)
		case RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: msg.ToolCallID,
					Name:       msg.Name,
					Content:    msg.Content,
				}},
			})
		}
	}
	return out
}

func toLangChainTools(tools []ToolDefinition) []llms.Tool {
	out := make([]llms.Tool, len(tools))
	for i, t := range tools {
		out[i] = llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		}
	}
	return out
}

// langChainUsage reads the token counts most backends put in GenerationInfo.
func langChainUsage(info map[string]any) *TokenUsage {
	if info == nil {
		return nil
	}
	prompt, okP := asUint32(info["PromptTokens"])
	completion, okC := asUint32(info["CompletionTokens"])
	if !okP && !okC {
		return nil
	}
	total, ok := asUint32(info["TotalTokens"])
	if !ok {
		total = prompt + completion
	}
	return &TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: total}
}

func asUint32(v any) (uint32, bool) {
	switch n := v.(type) {
	case int:
		return uint32(n), true
	case int32:
		return uint32(n), true
	case int64:
		return uint32(n), true
	case float64:
		return uint32(n), true
	}
	return 0, false
}

var _ Provider = (*LangChainProvider)(nil)
