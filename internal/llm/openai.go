package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mentxia/mordomo/internal/config"
	. "github.com/mentxia/mordomo/internal/logging"
	"github.com/mentxia/mordomo/internal/types"
)

// OpenAIProvider implements Provider over the chat completions API.
// With a custom BaseURL it covers every OpenAI-compatible endpoint
// (DeepSeek, Groq, local gateways).
type OpenAIProvider struct {
	name      string
	client    *openai.Client
	model     string
	maxTokens int
}

func NewOpenAIProvider(name string, cfg config.LLMProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai provider %q: api key not configured", name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("openai provider %q: model not configured", name)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	L_debug("openai provider created", "name", name, "model", cfg.Model, "baseURL", clientConfig.BaseURL)
	return &OpenAIProvider{
		name:      name,
		client:    client,
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

func (p *OpenAIProvider) Name() string  { return p.name }
func (p *OpenAIProvider) Type() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt string, messages []types.Message, tools []types.ToolDefinition) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages:  p.buildMessages(systemPrompt, messages),
	}
	if len(tools) > 0 {
		req.Tools = convertOpenAITools(tools)
	}

	startTime := time.Now()
	L_info("llm: request started", "provider", p.name, "model", p.model, "messages", len(messages))

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		L_error("llm: request failed", "provider", p.name, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrUnavailable)
	}

	choice := resp.Choices[0]
	response := &Response{
		Text:       choice.Message.Content,
		StopReason: string(choice.FinishReason),
	}
	for _, tc := range choice.Message.ToolCalls {
		response.ToolCalls = append(response.ToolCalls, ToolUse{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: json.RawMessage(tc.Function.Arguments),
		})
	}

	L_info("llm: request completed", "provider", p.name,
		"duration", time.Since(startTime).Round(time.Millisecond),
		"stopReason", response.StopReason, "toolCalls", len(response.ToolCalls))
	return response, nil
}

// buildMessages converts the exchange into chat completion messages.
// Tool use entries are folded into the preceding assistant message so
// every "tool" role message follows the assistant turn that issued it.
func (p *OpenAIProvider) buildMessages(systemPrompt string, messages []types.Message) []openai.ChatCompletionMessage {
	var result []openai.ChatCompletionMessage
	toolUseSeen := make(map[string]bool)
	if systemPrompt != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: systemPrompt,
		})
	}

	for _, msg := range messages {
		switch msg.Role {
		case types.RoleUser:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Body,
			})
		case types.RoleAssistant:
			result = append(result, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: msg.Body,
			})
		case types.RoleToolUse:
			toolUseSeen[msg.ToolUseID] = true
			call := openai.ToolCall{
				ID:   msg.ToolUseID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      msg.ToolName,
					Arguments: string(msg.ToolInput),
				},
			}
			if n := len(result); n > 0 && result[n-1].Role == openai.ChatMessageRoleAssistant && len(result[n-1].ToolCalls) > 0 {
				result[n-1].ToolCalls = append(result[n-1].ToolCalls, call)
			} else {
				result = append(result, openai.ChatCompletionMessage{
					Role:      openai.ChatMessageRoleAssistant,
					ToolCalls: []openai.ToolCall{call},
				})
			}
		case types.RoleToolResult:
			// The window may have evicted the matching tool call; an
			// orphaned result must go over as plain text.
			if !toolUseSeen[msg.ToolUseID] {
				result = append(result, openai.ChatCompletionMessage{
					Role:    openai.ChatMessageRoleUser,
					Content: fmt.Sprintf("[Resultado de %s]\n%s", msg.ToolName, msg.Body),
				})
				continue
			}
			result = append(result, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    msg.Body,
				ToolCallID: msg.ToolUseID,
			})
		}
	}
	return result
}

func convertOpenAITools(defs []types.ToolDefinition) []openai.Tool {
	result := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.InputSchema,
			},
		})
	}
	return result
}
