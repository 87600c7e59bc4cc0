package extract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envelope(t *testing.T, items ...map[string]any) map[string]any {
	t.Helper()
	list := make([]any, 0, len(items))
	for _, item := range items {
		list = append(list, any(item))
	}
	return map[string]any{"content": list}
}

func TestUnwrap_TextItemWithJSON(t *testing.T) {
	env := envelope(t, map[string]any{
		"type": "text",
		"text": `{"rows":[{"value":"42"}]}`,
	})

	result := Unwrap(env)

	expected := map[string]any{"rows": []any{map[string]any{"value": "42"}}}
	assert.Equal(t, expected, result)
}

func TestUnwrap_TextItemNotJSON(t *testing.T) {
	env := envelope(t, map[string]any{
		"type": "text",
		"text": "operation completed",
	})

	assert.Equal(t, "operation completed", Unwrap(env))
}

func TestUnwrap_DataItem(t *testing.T) {
	env := envelope(t, map[string]any{
		"type": "json",
		"data": map[string]any{"ok": true},
	})

	assert.Equal(t, map[string]any{"ok": true}, Unwrap(env))
}

func TestUnwrap_MultipleItems(t *testing.T) {
	env := envelope(t,
		map[string]any{"type": "text", "text": `{"a":1}`},
		map[string]any{"type": "text", "text": "plain"},
	)

	result, ok := Unwrap(env).([]any)
	require.True(t, ok, "multi-item envelope should unwrap to a slice")
	require.Len(t, result, 2)
	assert.Equal(t, map[string]any{"a": float64(1)}, result[0])
	assert.Equal(t, "plain", result[1])
}

func TestUnwrap_DoubleEncodedStabilizes(t *testing.T) {
	payload := map[string]any{"nested": []any{"x", "y"}}
	inner, err := json.Marshal(payload)
	require.NoError(t, err)
	outer, err := json.Marshal(string(inner))
	require.NoError(t, err)

	env := envelope(t, map[string]any{"type": "text", "text": string(outer)})

	// First parse yields the inner JSON string; exactly one more parse
	// recovers the payload.
	result := Unwrap(env)
	assert.Equal(t, payload, result)

	// Re-unwrapping the recovered value is a no-op.
	assert.Equal(t, result, Unwrap(result))
}

func TestUnwrap_NonEnvelopePassthrough(t *testing.T) {
	tests := []struct {
		name  string
		input any
	}{
		{name: "plain string", input: "hello"},
		{name: "number", input: float64(3.5)},
		{name: "map without content", input: map[string]any{"rows": []any{}}},
		{name: "content not a list", input: map[string]any{"content": "text"}},
		{name: "slice", input: []any{"a", "b"}},
		{name: "nil", input: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.input, Unwrap(tt.input))
		})
	}
}

func TestUnwrap_TopLevelJSONString(t *testing.T) {
	assert.Equal(t, map[string]any{"a": float64(1)}, Unwrap(`{"a":1}`))
	assert.Equal(t, []any{float64(1), float64(2)}, Unwrap(`[1,2]`))
}

func TestUnwrap_EmptyContent(t *testing.T) {
	assert.Nil(t, Unwrap(map[string]any{"content": []any{}}))
}
