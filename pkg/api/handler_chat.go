package api

import (
	"context"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/pilotdeck/pilotdeck/pkg/events"
	"github.com/pilotdeck/pilotdeck/pkg/llm"
	"github.com/pilotdeck/pilotdeck/pkg/mcp"
)

// maxChatRounds bounds tool-use rounds within one /chat request.
const maxChatRounds = 10

// chatCompletionRetries matches the Pilot's per-turn completion retry budget.
const chatCompletionRetries = 3

// chatBudgetReply closes a conversation that kept requesting tools past the
// round budget.
const chatBudgetReply = "I wasn't able to finish the tool calls for this request. Try narrowing the request."

// ChatRequest is the request body for POST /chat.
type ChatRequest struct {
	Message  string        `json:"message"`
	History  []llm.Message `json:"history,omitempty"`
	System   string        `json:"system,omitempty"`
	Provider string        `json:"provider,omitempty"`
}

// chatHandler handles POST /chat: multi-provider chat where the model calls
// MCP tools through its native tool-use protocol. No Pilot, no learned
// sub-tools, no server-side session; the client carries the history.
func (s *Server) chatHandler(c *echo.Context) error {
	var req ChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	messages := append([]llm.Message(nil), req.History...)
	if req.Message != "" {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: req.Message})
	}
	if len(messages) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "message is required")
	}

	client, err := s.registry.Client(req.Provider)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	stream, err := openStream(c)
	if err != nil {
		return err
	}
	runCtx, pub := newGuardedPublisher(c.Request().Context(), stream)
	defer pub.Close()

	tools := s.manager.ToolDefinitions(client.Provider())

	for round := 1; round <= maxChatRounds; round++ {
		resp, err := llm.CompleteWithRetry(runCtx, client, llm.Request{
			System:   req.System,
			Messages: messages,
			Tools:    tools,
		}, chatCompletionRetries)
		if err != nil {
			if runCtx.Err() != nil {
				s.logger.Debug("Chat abandoned, client disconnected")
				return nil
			}
			pub.Publish(events.ErrorPayload{Type: events.EventTypeError, Error: err.Error()})
			return nil
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})

		if len(resp.ToolCalls) == 0 {
			pub.Publish(events.CompletePayload{
				Type:    events.EventTypeComplete,
				Message: resp.Content,
				History: messages,
			})
			return nil
		}

		for _, call := range resp.ToolCalls {
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    s.callTool(runCtx, call, pub),
				ToolCallID: call.ID,
			})
		}
	}

	s.logger.Info("Chat round budget exhausted", "rounds", maxChatRounds)
	pub.Publish(events.CompletePayload{
		Type:    events.EventTypeComplete,
		Message: chatBudgetReply,
		History: messages,
	})
	return nil
}

// callTool executes one native tool call and returns the observation text
// for the tool-role turn.
func (s *Server) callTool(ctx context.Context, call llm.ToolCall, pub events.Publisher) string {
	pub.Publish(events.ToolCallingPayload{
		Type: events.EventTypeToolCalling,
		Tool: call.Name,
		Args: call.Arguments,
	})

	result, err := s.manager.Call(ctx, call.Name, call.Arguments)
	if err != nil {
		pub.Publish(events.ToolErrorPayload{Type: events.EventTypeToolError, Tool: call.Name, Error: err.Error()})
		return fmt.Sprintf("Tool call failed: %v", err)
	}
	if result.IsError {
		pub.Publish(events.ToolErrorPayload{Type: events.EventTypeToolError, Tool: call.Name, Error: result.Text})
		return mcp.TruncateForPrompt(result.Text)
	}

	pub.Publish(events.ToolSuccessPayload{Type: events.EventTypeToolSuccess, Tool: call.Name})
	if result.Text == "" {
		return "(empty result)"
	}
	return mcp.TruncateForPrompt(result.Text)
}
