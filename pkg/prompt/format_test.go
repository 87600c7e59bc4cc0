package prompt

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pilotdeck/pilotdeck/pkg/mcp"
	"github.com/pilotdeck/pilotdeck/pkg/subtool"
	"github.com/pilotdeck/pilotdeck/pkg/variables"
)

func TestFormatToolSummaries_BuiltinsAlwaysPresent(t *testing.T) {
	result := FormatToolSummaries(nil)
	assert.Contains(t, result, "- llm:")
	assert.Contains(t, result, "- extractor:")
	assert.Contains(t, result, "- table:")
	assert.Contains(t, result, "- line-chart:")
	assert.Contains(t, result, "- card:")
	assert.Contains(t, result, "- alert:")
}

func TestFormatToolSummaries_SubToolsBeforeBuiltins(t *testing.T) {
	subTools := []*subtool.SubTool{
		{ID: "get_active_users", Name: "Get Active Users", Description: "Active user count per day"},
	}
	result := FormatToolSummaries(subTools)
	assert.Contains(t, result, "- Get Active Users: Active user count per day")
	assert.Less(t,
		strings.Index(result, "Get Active Users"),
		strings.Index(result, "- llm:"))
}

func TestFormatSubToolDocs_Empty(t *testing.T) {
	result := FormatSubToolDocs(nil)
	assert.Equal(t, "No catalog tools matched; use a built-in tool.", result)
}

func TestFormatSubToolDocs_InputsAndOutputs(t *testing.T) {
	subTools := []*subtool.SubTool{
		{
			ID:          "get_active_users",
			Name:        "Get Active Users",
			Description: "Active user count for a date range",
			Inputs: []subtool.Input{
				{Name: "start", Type: "date", Required: true, Description: "Range start", Format: "YYYY-MM-DD"},
				{Name: "granularity", Type: "enum", Options: []string{"day", "week"}, Default: "day"},
				{
					Name:   "report_id",
					Type:   "reference",
					Source: &subtool.InputSource{Tool: "list_reports", FromPath: "reports[*].id"},
				},
			},
			OutputFields: []subtool.OutputField{
				{Name: "date", Path: "dimension_values[0]"},
				{Name: "users", Path: "metric_values[0].value"},
			},
			RequiresFirst: []subtool.Dependency{
				{SubTool: "list_reports", Reason: "report_id values come from here"},
			},
		},
	}
	result := FormatSubToolDocs(subTools)
	assert.Contains(t, result, "1. **Get Active Users**: Active user count for a date range")
	assert.Contains(t, result, "start (required, date): Range start [format: YYYY-MM-DD]")
	assert.Contains(t, result, `granularity (optional, enum) [default: day; choices: ["day", "week"]]`)
	assert.Contains(t, result, "report_id (optional, reference) [values come from list_reports]")
	assert.Contains(t, result, "**Result fields**: date, users")
	assert.Contains(t, result, "**Requires first**: list_reports (report_id values come from here)")
}

func TestFormatVariableSummaries(t *testing.T) {
	result := FormatVariableSummaries(nil)
	assert.Equal(t, "No variables stored yet.", result)

	sums := []variables.Summary{
		{Name: "active_users", Description: "Daily active users", Fields: []string{"date", "users"}},
		{Name: "threshold"},
	}
	result = FormatVariableSummaries(sums)
	assert.Contains(t, result, "- active_users [date, users]: Daily active users")
	assert.Contains(t, result, "- threshold")
}

func TestFormatNativeTools_Empty(t *testing.T) {
	assert.Equal(t, "No tools available.", FormatNativeTools(nil))
}

func TestFormatNativeTools_WithSchema(t *testing.T) {
	tools := []*mcp.ToolInfo{
		{
			Name:        "analytics__run_report",
			Description: "Run a metrics report",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"metric": map[string]any{
						"type":        "string",
						"description": "Metric name",
						"enum":        []any{"users", "sessions"},
					},
					"limit": map[string]any{
						"type":    "number",
						"default": float64(100),
					},
				},
				"required": []any{"metric"},
			},
		},
		{Name: "analytics__list_reports", Description: "List saved reports"},
	}
	result := FormatNativeTools(tools)
	assert.Contains(t, result, "1. **analytics__run_report**: Run a metrics report")
	assert.Contains(t, result, `metric (required, string): Metric name [choices: ["users", "sessions"]]`)
	assert.Contains(t, result, "limit (optional, number) [default: 100]")
	assert.Contains(t, result, "2. **analytics__list_reports**: List saved reports")
	assert.Contains(t, result, "**Parameters**: None")
}

func TestExtractParameters_SortedKeys(t *testing.T) {
	schema := map[string]any{
		"properties": map[string]any{
			"zebra": map[string]any{"type": "string"},
			"alpha": map[string]any{"type": "string"},
		},
	}
	params := extractParameters(schema)
	assert.Len(t, params, 2)
	assert.Contains(t, params[0], "alpha")
	assert.Contains(t, params[1], "zebra")
}
