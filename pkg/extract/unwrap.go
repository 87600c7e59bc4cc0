// Package extract normalizes MCP tool responses and projects values out of
// them. It unwraps the `{content: [...]}` envelope, evaluates a small JSONPath
// subset (dotted segments, `[N]` indices, `[*]` wildcards), and renames raw
// payload fields to published schema names.
package extract

import (
	"encoding/json"
	"strings"
)

// Unwrap normalizes an MCP tool response envelope into a plain value.
//
// The envelope shape is {content: [{type, text|data}…]}. For each content
// item: a "text" item whose text parses as JSON yields the parsed value, a
// non-parseable text yields the raw string, and any other item with a "data"
// field yields that data. A single-item envelope unwraps to the item's value;
// multi-item envelopes unwrap to a slice.
//
// Double-encoded payloads exist in the wild: when the unwrapped value is
// itself a JSON-encoded string it is parsed exactly once more. Inputs that
// are not envelopes are returned unchanged.
func Unwrap(v any) any {
	items, ok := envelopeItems(v)
	if !ok {
		return parseIfJSONString(v)
	}

	values := make([]any, 0, len(items))
	for _, item := range items {
		values = append(values, unwrapItem(item))
	}

	var result any
	switch len(values) {
	case 0:
		result = nil
	case 1:
		result = values[0]
	default:
		result = values
	}

	return parseIfJSONString(result)
}

// envelopeItems reports whether v looks like an MCP response envelope and
// returns its content items.
func envelopeItems(v any) ([]map[string]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	raw, ok := m["content"]
	if !ok {
		return nil, false
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, false
	}
	items := make([]map[string]any, 0, len(list))
	for _, el := range list {
		item, ok := el.(map[string]any)
		if !ok {
			return nil, false
		}
		if _, ok := item["type"]; !ok {
			return nil, false
		}
		items = append(items, item)
	}
	return items, true
}

// unwrapItem extracts the value carried by a single content item.
func unwrapItem(item map[string]any) any {
	if item["type"] == "text" {
		if text, ok := item["text"].(string); ok {
			var parsed any
			if err := json.Unmarshal([]byte(text), &parsed); err == nil {
				return parsed
			}
			return text
		}
	}
	if data, ok := item["data"]; ok {
		return data
	}
	return item
}

// parseIfJSONString parses v once more when it is a JSON-encoded string.
// Bare words like "ok" are not valid JSON and pass through unchanged.
func parseIfJSONString(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return v
	}
	// Only strings that can carry structure are worth a parse attempt —
	// otherwise numeric-looking tool output ("42") would silently change type.
	switch trimmed[0] {
	case '{', '[', '"':
		var parsed any
		if err := json.Unmarshal([]byte(trimmed), &parsed); err == nil {
			return parsed
		}
	}
	return v
}
