// Package llm provides the chat wire types shared by providers.
package llm

import (
	"encoding/json"

	"github.com/richinex/counsel/model"
)

// Chat roles as sent to providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatMessage is one prompt entry in provider-neutral form.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`   // assistant turns that request tools
	ToolCallID string     `json:"tool_call_id,omitempty"` // tool results
	Name       string     `json:"name,omitempty"`         // tool name on tool results
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolDefinition advertises one tool; Parameters is a JSON Schema object.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// ToolResultMessage creates the reply to one tool call.
func ToolResultMessage(call ToolCall, content string) ChatMessage {
	return ChatMessage{Role: RoleTool, Content: content, ToolCallID: call.ID, Name: call.Name}
}

// FromHistory converts stored conversation messages to chat messages.
// Stored tool messages carry no call id, so they are replayed as
// assistant-visible context rather than as tool results.
func FromHistory(h model.History) []ChatMessage {
	out := make([]ChatMessage, 0, len(h))
	for _, m := range h {
		switch m.Role {
		case model.RoleSystem:
			out = append(out, SystemMessage(m.Text))
		case model.RoleUser:
			out = append(out, UserMessage(m.Text))
		case model.RoleAssistant:
			out = append(out, AssistantMessage(m.Text))
		case model.RoleTool:
			out = append(out, AssistantMessage("["+m.Metadata[model.MetaToolName]+"] "+m.Text))
		}
	}
	return out
}

// LLMResponse is one completed provider reply.
type LLMResponse struct {
	Content   string
	ToolCalls []ToolCall
	Usage     *TokenUsage
}

// TokenUsage reports token counts when the provider returns them.
type TokenUsage struct {
	PromptTokens     uint32
	CompletionTokens uint32
	TotalTokens      uint32
}

// ResponseFormatType names a provider output mode.
type ResponseFormatType string

// ResponseFormatJSONObject asks for a single JSON object.
const ResponseFormatJSONObject ResponseFormatType = "json_object"

// ResponseFormat constrains the reply shape. A nil format means free text.
type ResponseFormat struct {
	Type ResponseFormatType `json:"type"`
}

// JSONFormat requests a JSON object reply, used by structured reports.
func JSONFormat() *ResponseFormat {
	return &ResponseFormat{Type: ResponseFormatJSONObject}
}
