// Package llm provides unified LLM provider interfaces and implementations.
package llm

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mentxia/mordomo/internal/types"
)

// ErrUnavailable wraps transport and auth failures from a backend. The
// orchestrator degrades to a fixed apology reply when it sees this.
var ErrUnavailable = errors.New("reasoning backend unavailable")

// Provider is the unified interface for all LLM backends.
// Implementations: AnthropicProvider, OpenAIProvider, OllamaProvider.
type Provider interface {
	Name() string  // Provider instance name (e.g., "anthropic", "deepseek")
	Type() string  // Provider type (e.g., "anthropic", "openai", "ollama")
	Model() string // Current model name

	// Complete runs one non-streaming completion over the given
	// exchange. The returned response carries either final text, tool
	// calls to execute, or both.
	Complete(ctx context.Context, systemPrompt string, messages []types.Message, tools []types.ToolDefinition) (*Response, error)
}

// Response is the normalized backend response.
type Response struct {
	Text       string
	ToolCalls  []ToolUse
	StopReason string // "end_turn", "tool_use", etc.
}

// ToolUse is one tool invocation requested by the backend.
type ToolUse struct {
	ID    string
	Name  string
	Input json.RawMessage
}

// HasToolCalls returns true if the backend requested tool execution.
func (r *Response) HasToolCalls() bool {
	return len(r.ToolCalls) > 0
}
