// Package llm adapts chat-completion providers to the advisor chain.
//
// Each provider implementation hides:
// - API client initialization and authentication
// - Request/response format conversion
// - Provider-specific streaming

package llm

import (
	"context"
)

// Provider is one chat-completion backend. The Invoker is its only caller.
type Provider interface {
	Name() string
	Model() string

	Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error)

	// ChatWithFormat is Chat with an output constraint; nil means free text.
	ChatWithFormat(ctx context.Context, messages []ChatMessage, format *ResponseFormat) (LLMResponse, error)

	// ChatWithTools offers tools; the reply may carry ToolCalls instead of content.
	ChatWithTools(ctx context.Context, messages []ChatMessage, tools []ToolDefinition) (LLMResponse, error)

	// StreamChat sends content chunks until the completion ends or ctx is
	// cancelled. It does not close chunks.
	StreamChat(ctx context.Context, messages []ChatMessage, chunks chan<- string) (*TokenUsage, error)
}
