// Google Gemini Provider implementation using official google.golang.org/genai SDK.
//
// Information Hiding:
// - API authentication and client creation
// - Request/response format for Gemini API
// - System instruction handling via config
// - Streaming via official SDK iterator

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider implements the Provider interface for Google Gemini.
type GeminiProvider struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
	initErr     error // reported on first use so the constructor cannot fail
}

// NewGeminiProvider creates a new Gemini provider.
func NewGeminiProvider(apiKey, model string, maxTokens uint32, temperature float32) *GeminiProvider {
	p := &GeminiProvider{
		model:       model,
		maxTokens:   int32(maxTokens),
		temperature: temperature,
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		p.initErr = fmt.Errorf("failed to initialize Gemini client: %w", err)
		return p
	}
	p.client = client
	return p
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Model returns the current model.
func (p *GeminiProvider) Model() string {
	return p.model
}

func (p *GeminiProvider) ready() error {
	if p.initErr != nil {
		return p.initErr
	}
	if p.client == nil {
		return errors.New("gemini client not initialized")
	}
	return nil
}

func (p *GeminiProvider) config(system string) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(p.temperature),
		MaxOutputTokens: p.maxTokens,
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return config
}

// Chat sends a chat completion request.
func (p *GeminiProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	return p.ChatWithFormat(ctx, messages, nil)
}

// ChatWithFormat sends a chat completion request. JSON object format maps
// to the application/json response MIME type.
func (p *GeminiProvider) ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error) {
	if err := p.ready(); err != nil {
		return LLMResponse{}, err
	}
	contents, system := toGeminiContents(messages)
	config := p.config(system)
	if format != nil && format.Type == ResponseFormatJSONObject {
		config.ResponseMIMEType = "application/json"
	}
	return p.generate(ctx, contents, config)
}

// ChatWithTools sends a chat completion request with tool definitions.
func (p *GeminiProvider) ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error) {
	if err := p.ready(); err != nil {
		return LLMResponse{}, err
	}
	contents, system := toGeminiContents(messages)
	config := p.config(system)
	config.Tools = toGeminiTools(tools)
	return p.generate(ctx, contents, config)
}

func (p *GeminiProvider) generate(ctx context.Context, contents []*genai.Content, config *genai.GenerateContentConfig) (LLMResponse, error) {
	response, err := p.client.Models.GenerateContent(ctx, p.model, contents, config)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("gemini chat completion failed: %w", err)
	}

	var out LLMResponse
	if len(response.Candidates) > 0 && response.Candidates[0].Content != nil {
		var text strings.Builder
		for _, part := range response.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
			if part.FunctionCall != nil {
				args, _ := json.Marshal(part.FunctionCall.Args)
				out.ToolCalls = append(out.ToolCalls, ToolCall{
					ID:        part.FunctionCall.Name, // Gemini has no call ids
					Name:      part.FunctionCall.Name,
					Arguments: args,
				})
			}
		}
		out.Content = text.String()
	}
	if out.Content == "" && len(out.ToolCalls) == 0 {
		return LLMResponse{}, errors.New("empty response from Gemini")
	}
	out.Usage = geminiUsage(response.UsageMetadata)
	return out, nil
}

// StreamChat streams a chat completion.
func (p *GeminiProvider) StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	contents, system := toGeminiContents(messages)

	var usage *TokenUsage
	for response, err := range p.client.Models.GenerateContentStream(ctx, p.model, contents, p.config(system)) {
		if err != nil {
			return usage, fmt.Errorf("gemini stream error: %w", err)
		}
		if u := geminiUsage(response.UsageMetadata); u != nil {
			usage = u
		}
		text := response.Text()
		if text == "" {
			continue
		}
		select {
		case chunks <- text:
		case <-ctx.Done():
			return usage, ctx.Err()
		}
	}
	return usage, nil
}

func geminiUsage(meta *genai.GenerateContentResponseUsageMetadata) *TokenUsage {
	if meta == nil {
		return nil
	}
	return &TokenUsage{
		PromptTokens:     uint32(meta.PromptTokenCount),
		CompletionTokens: uint32(meta.CandidatesTokenCount),
		TotalTokens:      uint32(meta.TotalTokenCount),
	}
}

// toGeminiContents converts messages and lifts the system prompt out.
func toGeminiContents(messages []ChatMessage) ([]*genai.Content, string) {
	var contents []*genai.Content
	var system []string

	for _, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			system = append(system, msg.Content)
		case RoleUser:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		case RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
				continue
			}
			content := &genai.Content{Role: genai.RoleModel}
			if msg.Content != "" {
				content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(tc.Arguments, &args)
				content.Parts = append(content.Parts, &genai.Part{
					FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
				})
			}
			contents = append(contents, content)
		case RoleTool:
			name := msg.Name
			if name == "" {
				name = msg.ToolCallID
			}
			contents = append(contents, &genai.Content{
				Role: genai.RoleUser,
				Parts: []*genai.Part{{
					FunctionResponse: &genai.FunctionResponse{
						Name:     name,
						Response: map[string]any{"result": msg.Content},
					},
				}},
			})
		}
	}
	return contents, strings.Join(system, "\n\n")
}

func toGeminiTools(tools []ToolDefinition) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	declarations := make([]*genai.FunctionDeclaration, len(tools))
	for i, t := range tools {
		declarations[i] = &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  toGeminiSchema(t.Parameters),
		}
	}
	return []*genai.Tool{{FunctionDeclarations: declarations}}
}

// toGeminiSchema converts a JSON schema map. Gemini requires "items" on
// arrays, so string items are assumed when none are given.
func toGeminiSchema(prop map[string]interface{}) *genai.Schema {
	schema := &genai.Schema{Type: genai.TypeObject}
	if t, ok := prop["type"].(string); ok {
		schema.Type = geminiType(t)
	}
	if d, ok := prop["description"].(string); ok {
		schema.Description = d
	}
	switch req := prop["required"].(type) {
	case []string:
		schema.Required = req
	case []interface{}:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}

	switch schema.Type {
	case genai.TypeArray:
		if items, ok := prop["items"].(map[string]interface{}); ok {
			schema.Items = toGeminiSchema(items)
		} else {
			schema.Items = &genai.Schema{Type: genai.TypeString}
		}
	case genai.TypeObject:
		if props, ok := prop["properties"].(map[string]interface{}); ok {
			schema.Properties = make(map[string]*genai.Schema, len(props))
			for name, p := range props {
				if pm, ok := p.(map[string]interface{}); ok {
					schema.Properties[name] = toGeminiSchema(pm)
				}
			}
		}
	}
	return schema
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer", "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

var _ Provider = (*GeminiProvider)(nil)
