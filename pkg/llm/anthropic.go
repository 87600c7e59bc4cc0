package llm

import (
	"context"
	"encoding/json"
	"fmt"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/pilotdeck/pilotdeck/pkg/config"
)

// MessagesClient captures the subset of the Anthropic SDK client used by the
// adapter. It is satisfied by *sdk.MessageService so tests can pass a mock.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicClient implements Client via the Anthropic Messages API.
type AnthropicClient struct {
	msg         MessagesClient
	model       string
	maxTokens   int
	temperature float64
}

// NewAnthropic builds an Anthropic-backed client from a messages client and
// provider settings.
func NewAnthropic(msg MessagesClient, cfg config.ProviderConfig) *AnthropicClient {
	return &AnthropicClient{
		msg:         msg,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// NewAnthropicFromAPIKey constructs a client using the default Anthropic HTTP
// client.
func NewAnthropicFromAPIKey(apiKey string, cfg config.ProviderConfig) *AnthropicClient {
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropic(&ac.Messages, cfg)
}

// Provider returns the provider identifier.
func (c *AnthropicClient) Provider() string {
	return config.ProviderAnthropic
}

// Complete issues a Messages.New request and translates the response.
func (c *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 {
		return Response{}, fmt.Errorf("anthropic: messages are required")
	}

	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens <= 0 {
		return Response{}, fmt.Errorf("anthropic: max_tokens must be positive")
	}

	params := sdk.MessageNewParams{
		MaxTokens: int64(maxTokens),
		Messages:  encodeAnthropicMessages(req.Messages),
		Model:     sdk.Model(modelID),
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if len(req.Tools) > 0 {
		params.Tools = encodeAnthropicTools(req.Tools)
	}
	if t := req.Temperature; t > 0 || c.temperature > 0 {
		if t <= 0 {
			t = c.temperature
		}
		params.Temperature = sdk.Float(t)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic messages.new: %w", err)
	}
	return translateAnthropicResponse(msg), nil
}

// encodeAnthropicMessages converts generic turns into SDK message params.
// Consecutive tool results are packed into a single user message, which the
// Messages API expects after an assistant tool_use turn.
func encodeAnthropicMessages(msgs []Message) []sdk.MessageParam {
	conversation := make([]sdk.MessageParam, 0, len(msgs))
	var pendingResults []sdk.ContentBlockParamUnion

	flushResults := func() {
		if len(pendingResults) > 0 {
			conversation = append(conversation, sdk.NewUserMessage(pendingResults...))
			pendingResults = nil
		}
	}

	for _, m := range msgs {
		if m.Role == RoleTool {
			pendingResults = append(pendingResults, sdk.NewToolResultBlock(m.ToolCallID, m.Content, false))
			continue
		}
		flushResults()

		blocks := make([]sdk.ContentBlockParamUnion, 0, 1+len(m.ToolCalls))
		if m.Content != "" {
			blocks = append(blocks, sdk.NewTextBlock(m.Content))
		}
		for _, call := range m.ToolCalls {
			blocks = append(blocks, sdk.NewToolUseBlock(call.ID, call.Arguments, call.Name))
		}
		if len(blocks) == 0 {
			continue
		}

		switch m.Role {
		case RoleAssistant:
			conversation = append(conversation, sdk.NewAssistantMessage(blocks...))
		default:
			conversation = append(conversation, sdk.NewUserMessage(blocks...))
		}
	}
	flushResults()
	return conversation
}

func encodeAnthropicTools(defs []ToolDefinition) []sdk.ToolUnionParam {
	tools := make([]sdk.ToolUnionParam, 0, len(defs))
	for _, def := range defs {
		schema := sdk.ToolInputSchemaParam{}
		if len(def.InputSchema) > 0 {
			schema.ExtraFields = map[string]any{}
			for k, v := range def.InputSchema {
				schema.ExtraFields[k] = v
			}
		}
		u := sdk.ToolUnionParamOfTool(schema, def.Name)
		if u.OfTool != nil && def.Description != "" {
			u.OfTool.Description = sdk.String(def.Description)
		}
		tools = append(tools, u)
	}
	return tools
}

func translateAnthropicResponse(msg *sdk.Message) Response {
	out := Response{}
	if msg == nil {
		return out
	}
	for _, block := range msg.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					args = map[string]any{"raw": string(block.Input)}
				}
			}
			out.ToolCalls = append(out.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}
	out.StopReason = string(msg.StopReason)
	out.Usage = Usage{
		InputTokens:  int(msg.Usage.InputTokens),
		OutputTokens: int(msg.Usage.OutputTokens),
		TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}
	return out
}
