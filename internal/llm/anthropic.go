package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mentxia/mordomo/internal/config"
	. "github.com/mentxia/mordomo/internal/logging"
	"github.com/mentxia/mordomo/internal/types"
)

// AnthropicProvider implements Provider for Anthropic's Messages API.
// Also works with Anthropic-compatible APIs via BaseURL.
type AnthropicProvider struct {
	name      string
	client    *anthropic.Client
	model     string
	maxTokens int
}

func NewAnthropicProvider(name string, cfg config.LLMProviderConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic provider %q: api key not configured", name)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic provider %q: model not configured", name)
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := anthropic.NewClient(opts...)

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	L_debug("anthropic provider created", "name", name, "model", cfg.Model, "maxTokens", maxTokens)
	return &AnthropicProvider{
		name:      name,
		client:    &client,
		model:     cfg.Model,
		maxTokens: maxTokens,
	}, nil
}

func (p *AnthropicProvider) Name() string  { return p.name }
func (p *AnthropicProvider) Type() string  { return "anthropic" }
func (p *AnthropicProvider) Model() string { return p.model }

func (p *AnthropicProvider) Complete(ctx context.Context, systemPrompt string, messages []types.Message, tools []types.ToolDefinition) (*Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(p.maxTokens),
		Messages:  p.buildMessages(messages),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = convertAnthropicTools(tools)
	}

	startTime := time.Now()
	L_info("llm: request started", "provider", p.name, "model", p.model, "messages", len(messages))

	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		L_error("llm: request failed", "provider", p.name, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	response := &Response{StopReason: string(message.StopReason)}
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			response.Text += variant.Text
		case anthropic.ToolUseBlock:
			inputBytes, _ := json.Marshal(variant.Input)
			response.ToolCalls = append(response.ToolCalls, ToolUse{
				ID:    variant.ID,
				Name:  variant.Name,
				Input: inputBytes,
			})
		}
	}

	L_info("llm: request completed", "provider", p.name,
		"duration", time.Since(startTime).Round(time.Millisecond),
		"stopReason", response.StopReason, "toolCalls", len(response.ToolCalls))
	return response, nil
}

// buildMessages converts the exchange into Anthropic message params.
// Consecutive same-side entries are merged into one message so tool_use
// blocks sit in the assistant turn directly before their tool_result.
func (p *AnthropicProvider) buildMessages(messages []types.Message) []anthropic.MessageParam {
	// The API requires the exchange to open with a user turn, but window
	// eviction can leave assistant turns at the head. Those are dropped;
	// any tool_result they would have paired with falls through the
	// orphan repair below and goes over as text.
	start := 0
	for start < len(messages) {
		role := messages[start].Role
		if role != types.RoleAssistant && role != types.RoleToolUse {
			break
		}
		start++
	}
	messages = messages[start:]

	var result []anthropic.MessageParam
	var blocks []anthropic.ContentBlockParamUnion
	var assistantSide bool
	toolUseSeen := make(map[string]bool)

	flush := func() {
		if len(blocks) == 0 {
			return
		}
		if assistantSide {
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		} else {
			result = append(result, anthropic.NewUserMessage(blocks...))
		}
		blocks = nil
	}

	for _, msg := range messages {
		isAssistant := msg.Role == types.RoleAssistant || msg.Role == types.RoleToolUse
		if isAssistant != assistantSide {
			flush()
			assistantSide = isAssistant
		}

		switch msg.Role {
		case types.RoleUser, types.RoleAssistant:
			if msg.Body == "" {
				continue
			}
			blocks = append(blocks, anthropic.NewTextBlock(msg.Body))
		case types.RoleToolUse:
			toolUseSeen[msg.ToolUseID] = true
			var input map[string]any
			json.Unmarshal(msg.ToolInput, &input)
			blocks = append(blocks, anthropic.ContentBlockParamUnion{
				OfToolUse: &anthropic.ToolUseBlockParam{
					ID:    msg.ToolUseID,
					Name:  msg.ToolName,
					Input: input,
				},
			})
		case types.RoleToolResult:
			content := msg.Body
			if content == "" {
				content = "[empty result]"
			}
			// The window may have evicted the matching tool_use; an
			// orphaned result must go over as plain text.
			if !toolUseSeen[msg.ToolUseID] {
				blocks = append(blocks, anthropic.NewTextBlock(fmt.Sprintf("[Resultado de %s]\n%s", msg.ToolName, content)))
				continue
			}
			blocks = append(blocks, anthropic.NewToolResultBlock(msg.ToolUseID, content, false))
		}
	}
	flush()
	return result
}

func convertAnthropicTools(defs []types.ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		var properties any
		if props, ok := def.InputSchema["properties"]; ok {
			properties = props
		}
		result = append(result, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: properties},
			},
		})
	}
	return result
}
