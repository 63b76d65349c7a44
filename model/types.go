// Package model provides domain types shared across packages.
package model

import "maps"

// Role identifies the author of a message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// MetaToolName is the metadata key naming the tool that produced a tool message.
const MetaToolName = "tool_name"

// ConversationID scopes one message history. It carries no structure.
type ConversationID string

// Message is one entry of a conversation. Treat values as immutable:
// constructors copy the metadata they are given.
type Message struct {
	Role     Role
	Text     string
	Metadata map[string]string
}

// History is the ordered message sequence of one conversation.
type History []Message

// SystemMessage creates a system message.
func SystemMessage(text string) Message {
	return Message{Role: RoleSystem, Text: text}
}

// UserMessage creates a user message.
func UserMessage(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// AssistantMessage creates an assistant message with optional metadata.
func AssistantMessage(text string, metadata map[string]string) Message {
	return Message{Role: RoleAssistant, Text: text, Metadata: maps.Clone(metadata)}
}

// ToolMessage creates a tool result message for the named tool.
func ToolMessage(toolName, text string) Message {
	return Message{
		Role:     RoleTool,
		Text:     text,
		Metadata: map[string]string{MetaToolName: toolName},
	}
}

// Clone returns a deep copy of m.
func (m Message) Clone() Message {
	m.Metadata = maps.Clone(m.Metadata)
	return m
}

// Clone returns a deep copy of h. A nil history clones to an empty one.
func (h History) Clone() History {
	out := make(History, len(h))
	for i, m := range h {
		out[i] = m.Clone()
	}
	return out
}

// Last returns the last n messages. n <= 0 or n >= len(h) returns everything.
// The result is always a copy.
func (h History) Last(n int) History {
	if n <= 0 || n >= len(h) {
		return h.Clone()
	}
	return h[len(h)-n:].Clone()
}
