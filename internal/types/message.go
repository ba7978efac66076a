// Package types contains shared types used across multiple packages.
// This keeps the llm, executor and orchestrator packages free of cycles.
package types

import (
	"encoding/json"
	"time"
)

// Message directions relative to the butler.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Conversation roles. tool_use and tool_result carry the tool-call
// exchange between the reasoning backend and the command executor.
const (
	RoleUser       = "user"
	RoleAssistant  = "assistant"
	RoleToolUse    = "tool_use"
	RoleToolResult = "tool_result"
)

// Message is a single message in a conversation. Created on receipt or
// send, never mutated afterwards.
type Message struct {
	ID          string          `json:"id"`
	Identity    string          `json:"identity"`  // normalized sender handle
	Direction   string          `json:"direction"` // "in" or "out"
	Role        string          `json:"role"`
	Body        string          `json:"body"`
	Timestamp   time.Time       `json:"timestamp"`
	ProviderRef string          `json:"providerRef,omitempty"` // provider message id (dedupe key)
	ToolUseID   string          `json:"toolUseId,omitempty"`   // for tool_use and tool_result
	ToolName    string          `json:"toolName,omitempty"`    // for tool_use
	ToolInput   json.RawMessage `json:"toolInput,omitempty"`   // for tool_use
}

// IsToolExchange reports whether the message is part of a tool-call
// exchange rather than user-visible conversation.
func (m *Message) IsToolExchange() bool {
	return m.Role == RoleToolUse || m.Role == RoleToolResult
}
