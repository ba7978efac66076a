package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mentxia/mordomo/internal/config"
	. "github.com/mentxia/mordomo/internal/logging"
	"github.com/mentxia/mordomo/internal/types"
)

// OllamaProvider implements Provider against a local Ollama instance
// using the native /api/chat endpoint.
type OllamaProvider struct {
	name   string
	url    string
	model  string
	client *http.Client
}

type ollamaChatRequest struct {
	Model    string              `json:"model"`
	Messages []ollamaChatMessage `json:"messages"`
	Stream   bool                `json:"stream"`
	Tools    []ollamaTool        `json:"tools,omitempty"`
}

type ollamaChatMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

type ollamaToolCall struct {
	Function ollamaFunctionCall `json:"function"`
}

type ollamaFunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type ollamaChatResponse struct {
	Message ollamaChatMessage `json:"message"`
	Done    bool              `json:"done"`
}

func NewOllamaProvider(name string, cfg config.LLMProviderConfig) (*OllamaProvider, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("ollama provider %q: url not configured", name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("ollama provider %q: model not configured", name)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	L_debug("ollama provider created", "name", name, "url", cfg.URL, "model", cfg.Model)
	return &OllamaProvider{
		name:   name,
		url:    strings.TrimRight(cfg.URL, "/"),
		model:  cfg.Model,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (p *OllamaProvider) Name() string  { return p.name }
func (p *OllamaProvider) Type() string  { return "ollama" }
func (p *OllamaProvider) Model() string { return p.model }

func (p *OllamaProvider) Complete(ctx context.Context, systemPrompt string, messages []types.Message, tools []types.ToolDefinition) (*Response, error) {
	reqBody := ollamaChatRequest{
		Model:    p.model,
		Messages: p.buildMessages(systemPrompt, messages),
		Stream:   false,
	}
	for _, def := range tools {
		reqBody.Tools = append(reqBody.Tools, ollamaTool{
			Type: "function",
			Function: ollamaToolFunction{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema,
			},
		})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	startTime := time.Now()
	L_info("llm: request started", "provider", p.name, "model", p.model, "messages", len(messages))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("ollama: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		L_error("llm: request failed", "provider", p.name, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		L_error("llm: request failed", "provider", p.name, "status", resp.StatusCode, "body", string(body))
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var chatResp ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrUnavailable, err)
	}

	response := &Response{Text: chatResp.Message.Content, StopReason: "end_turn"}
	for _, tc := range chatResp.Message.ToolCalls {
		input, _ := json.Marshal(tc.Function.Arguments)
		// Ollama does not assign call ids; synthesize one for pairing.
		response.ToolCalls = append(response.ToolCalls, ToolUse{
			ID:    "ollama-" + uuid.NewString()[:8],
			Name:  tc.Function.Name,
			Input: input,
		})
	}
	if response.HasToolCalls() {
		response.StopReason = "tool_use"
	}

	L_info("llm: request completed", "provider", p.name,
		"duration", time.Since(startTime).Round(time.Millisecond),
		"stopReason", response.StopReason, "toolCalls", len(response.ToolCalls))
	return response, nil
}

func (p *OllamaProvider) buildMessages(systemPrompt string, messages []types.Message) []ollamaChatMessage {
	var result []ollamaChatMessage
	if systemPrompt != "" {
		result = append(result, ollamaChatMessage{Role: "system", Content: systemPrompt})
	}

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleUser:
			result = append(result, ollamaChatMessage{Role: "user", Content: msg.Body})
		case types.RoleAssistant:
			result = append(result, ollamaChatMessage{Role: "assistant", Content: msg.Body})
		case types.RoleToolUse:
			var args map[string]any
			json.Unmarshal(msg.ToolInput, &args)
			result = append(result, ollamaChatMessage{
				Role: "assistant",
				ToolCalls: []ollamaToolCall{{
					Function: ollamaFunctionCall{Name: msg.ToolName, Arguments: args},
				}},
			})
		case types.RoleToolResult:
			result = append(result, ollamaChatMessage{Role: "tool", Content: msg.Body})
		}
	}
	return result
}
