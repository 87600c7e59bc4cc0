package executor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCoerceValue(t *testing.T) {
	tests := []struct {
		name string
		text string
		want any
	}{
		{"integer", "42", int64(42)},
		{"negative integer", "-7", int64(-7)},
		{"float", "3.14", float64(3.14)},
		{"scientific float", "1e3", float64(1000)},
		{"boolean true", "true", true},
		{"boolean mixed case", "True", true},
		{"boolean false", "false", false},
		{"null", "null", nil},
		{"none", "none", nil},
		{"quoted number stays text", `"42"`, "42"},
		{"single quoted", "'hello'", "hello"},
		{"date stays text", "2025-11-01", "2025-11-01"},
		{"nan stays text", "nan", "nan"},
		{"infinity stays text", "inf", "inf"},
		{"plain word", "warning", "warning"},
		{"empty", "", ""},
		{"list coerces element-wise", "[1, 2, three]", []any{int64(1), int64(2), "three"}},
		{"list protects quoted commas", `["a, b", c]`, []any{"a, b", "c"}},
		{"nested list", "[[1, 2], 3]", []any{[]any{int64(1), int64(2)}, int64(3)}},
		{"surrounding space trimmed", "  99  ", int64(99)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CoerceValue(tt.text))
		})
	}
}

func TestRefParts(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		wantName  string
		wantField string
		wantOK    bool
	}{
		{"simple reference", "users[count]", "users", "count", true},
		{"trims whitespace", "  users[count]  ", "users", "count", true},
		{"quoted text is not a reference", `"users[count]"`, "", "", false},
		{"bare name", "users", "", "", false},
		{"missing name", "[users]", "", "", false},
		{"empty field", "users[]", "", "", false},
		{"name must be an identifier", "9bad[x]", "", "", false},
		{"number literal", "42", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, field, ok := RefParts(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantField, field)
		})
	}
}

func TestRefList(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"bracketed list", "[users, revenue]", []string{"users", "revenue"}},
		{"single name", "users", []string{"users"}},
		{"quotes dropped", `["users", revenue]`, []string{"users", "revenue"}},
		{"field references pass through", "[users[count], revenue]", []string{"users[count]", "revenue"}},
		{"empty", "", nil},
		{"empty brackets", "[ ]", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RefList(tt.text)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}
