package llm

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/pilotdeck/pilotdeck/pkg/config"
)

// ChatClient captures the subset of the go-openai client used by the adapter.
// It is satisfied by *openai.Client so tests can pass a mock.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// OpenAIClient implements Client via the OpenAI Chat Completions API.
type OpenAIClient struct {
	chat        ChatClient
	model       string
	maxTokens   int
	temperature float64
}

// NewOpenAI builds an OpenAI-backed client from a chat client and provider
// settings.
func NewOpenAI(chat ChatClient, cfg config.ProviderConfig) *OpenAIClient {
	return &OpenAIClient{
		chat:        chat,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

// NewOpenAIFromAPIKey constructs a client using the default go-openai HTTP
// client.
func NewOpenAIFromAPIKey(apiKey string, cfg config.ProviderConfig) *OpenAIClient {
	return NewOpenAI(openai.NewClient(apiKey), cfg)
}

// Provider returns the provider identifier.
func (c *OpenAIClient) Provider() string {
	return config.ProviderOpenAI
}

// Complete issues a chat completion and translates the response.
func (c *OpenAIClient) Complete(ctx context.Context, req Request) (Response, error) {
	if len(req.Messages) == 0 && req.System == "" {
		return Response{}, fmt.Errorf("openai: messages are required")
	}

	modelID := req.Model
	if modelID == "" {
		modelID = c.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, encodeOpenAIMessage(m))
	}

	request := openai.ChatCompletionRequest{
		Model:    modelID,
		Messages: messages,
	}
	if t := c.effectiveTemperature(req.Temperature); t > 0 {
		request.Temperature = float32(t)
	}
	if mt := c.effectiveMaxTokens(req.MaxTokens); mt > 0 {
		request.MaxTokens = mt
	}
	if len(req.Tools) > 0 {
		tools, err := encodeOpenAITools(req.Tools)
		if err != nil {
			return Response{}, err
		}
		request.Tools = tools
	}

	resp, err := c.chat.CreateChatCompletion(ctx, request)
	if err != nil {
		return Response{}, fmt.Errorf("openai chat completion: %w", err)
	}
	return translateOpenAIResponse(resp), nil
}

func (c *OpenAIClient) effectiveTemperature(requested float64) float64 {
	if requested > 0 {
		return requested
	}
	return c.temperature
}

func (c *OpenAIClient) effectiveMaxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	return c.maxTokens
}

func encodeOpenAIMessage(m Message) openai.ChatCompletionMessage {
	msg := openai.ChatCompletionMessage{
		Role:    m.Role,
		Content: m.Content,
	}
	if m.Role == RoleTool {
		msg.ToolCallID = m.ToolCallID
	}
	for _, call := range m.ToolCalls {
		args, err := json.Marshal(call.Arguments)
		if err != nil {
			args = []byte("{}")
		}
		msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
			ID:   call.ID,
			Type: openai.ToolTypeFunction,
			Function: openai.FunctionCall{
				Name:      call.Name,
				Arguments: string(args),
			},
		})
	}
	return msg
}

func encodeOpenAITools(defs []ToolDefinition) ([]openai.Tool, error) {
	tools := make([]openai.Tool, 0, len(defs))
	for _, def := range defs {
		params, err := json.Marshal(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal tool %s schema: %w", def.Name, err)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  json.RawMessage(params),
			},
		})
	}
	return tools, nil
}

func translateOpenAIResponse(resp openai.ChatCompletionResponse) Response {
	out := Response{
		Usage: Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
		},
	}
	if len(resp.Choices) == 0 {
		return out
	}

	choice := resp.Choices[0]
	out.Content = choice.Message.Content
	out.StopReason = string(choice.FinishReason)
	for _, call := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: parseToolArguments(call.Function.Arguments),
		})
	}
	return out
}

// parseToolArguments decodes a function-call argument string. Providers
// occasionally emit non-object payloads; those are preserved under "raw".
func parseToolArguments(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"raw": raw}
	}
	return args
}
