// Package llm abstracts the chat-completion providers (OpenAI, Anthropic)
// behind one Client interface. Adapters translate the generic request shape
// into each vendor SDK and map responses (text, tool calls, usage) back.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Conversation roles shared by both providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ErrEmptyCompletion indicates the model returned neither text nor tool calls.
var ErrEmptyCompletion = errors.New("empty completion")

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// ToolCalls is set on assistant turns that requested tool invocations.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`

	// ToolCallID links a RoleTool result back to the call that produced it.
	ToolCallID string `json:"tool_call_id,omitempty"`
}

// ToolDefinition is a provider-neutral function declaration.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// Request is a provider-neutral completion request. Zero Temperature and
// MaxTokens fall back to the adapter's configured defaults.
type Request struct {
	Model       string
	System      string
	Messages    []Message
	Tools       []ToolDefinition
	Temperature float64
	MaxTokens   int
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// Response is a provider-neutral completion result.
type Response struct {
	Content    string
	ToolCalls  []ToolCall
	StopReason string
	Usage      Usage
}

// Empty reports whether the completion carries neither text nor tool calls.
func (r Response) Empty() bool {
	return r.Content == "" && len(r.ToolCalls) == 0
}

// Client is a chat-completion provider.
type Client interface {
	// Provider returns the provider identifier ("openai", "anthropic").
	Provider() string

	// Complete issues one completion request.
	Complete(ctx context.Context, req Request) (Response, error)
}

// CompleteWithRetry calls Complete up to maxRetries+1 times, treating empty
// completions as failures. Backoff grows linearly per attempt.
func CompleteWithRetry(ctx context.Context, c Client, req Request, maxRetries int) (Response, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * time.Second
			slog.Warn("Retrying LLM completion",
				"provider", c.Provider(),
				"attempt", attempt,
				"max_retries", maxRetries,
				"wait", wait,
				"error", lastErr)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return Response{}, ctx.Err()
			}
		}

		resp, err := c.Complete(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Empty() {
			lastErr = ErrEmptyCompletion
			continue
		}
		return resp, nil
	}
	return Response{}, fmt.Errorf("completion failed after %d attempts: %w", maxRetries+1, lastErr)
}
