package mcp

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// CallResult is a tool call outcome in wire-shaped form. Envelope holds the
// canonical {"content": [...]} map so downstream unwrapping and path
// extraction never touch SDK types.
type CallResult struct {
	Envelope map[string]any
	Text     string
	IsError  bool
}

// envelopeFromResult round-trips the SDK result through JSON to obtain the
// wire envelope, and concatenates text items for callers that want a plain
// string view.
func envelopeFromResult(result *mcpsdk.CallToolResult) (*CallResult, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	var envelope map[string]any
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode tool result: %w", err)
	}
	return &CallResult{
		Envelope: envelope,
		Text:     extractTextContent(result),
		IsError:  result.IsError,
	}, nil
}

// extractTextContent concatenates TextContent items. Non-text content
// (images, embedded resources) is logged at debug level and skipped.
func extractTextContent(result *mcpsdk.CallToolResult) string {
	var parts []string
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		} else {
			slog.Debug("MCP tool returned non-text content, skipping",
				"content_type", fmt.Sprintf("%T", c))
		}
	}
	return strings.Join(parts, "\n")
}
