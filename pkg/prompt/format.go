package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pilotdeck/pilotdeck/pkg/mcp"
	"github.com/pilotdeck/pilotdeck/pkg/subtool"
	"github.com/pilotdeck/pilotdeck/pkg/variables"
)

// builtinSummaries describes the display and analysis tools that are always
// available to the Executor, independent of any learned catalog.
var builtinSummaries = []struct {
	Name        string
	Description string
}{
	{"llm", "Analyze stored data and produce calculations, visuals, and a summary"},
	{"extractor", "Extract one described value from stored data"},
	{"table", "Display rows of data to the user"},
	{"line-chart", "Display a line chart to the user"},
	{"card", "Display a single highlighted value to the user"},
	{"alert", "Display a warning or notice to the user"},
}

// FormatToolSummaries renders the one-line-per-tool catalog the Pilot plans
// against: learned sub-tools first, then the built-ins.
func FormatToolSummaries(subTools []*subtool.SubTool) string {
	var sb strings.Builder
	for _, st := range subTools {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", st.Name, st.Description))
	}
	for _, b := range builtinSummaries {
		sb.WriteString(fmt.Sprintf("- %s: %s\n", b.Name, b.Description))
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatSubToolDocs renders full documents for the sub-tools relevant to one
// Executor instruction: inputs with requirement, type, and value hints, plus
// the fields the result will expose.
func FormatSubToolDocs(subTools []*subtool.SubTool) string {
	if len(subTools) == 0 {
		return "No catalog tools matched; use a built-in tool."
	}

	var sb strings.Builder
	for i, st := range subTools {
		sb.WriteString(fmt.Sprintf("%d. **%s**: %s\n", i+1, st.Name, st.Description))

		if len(st.Inputs) > 0 {
			sb.WriteString("    **Inputs**:\n")
			for _, in := range st.Inputs {
				sb.WriteString("    - ")
				sb.WriteString(formatInput(in))
				sb.WriteString("\n")
			}
		} else {
			sb.WriteString("    **Inputs**: None\n")
		}

		if len(st.OutputFields) > 0 {
			names := make([]string, 0, len(st.OutputFields))
			for _, f := range st.OutputFields {
				names = append(names, f.Name)
			}
			sb.WriteString("    **Result fields**: " + strings.Join(names, ", ") + "\n")
		}

		for _, dep := range st.RequiresFirst {
			sb.WriteString(fmt.Sprintf("    **Requires first**: %s (%s)\n", dep.SubTool, dep.Reason))
		}

		if i < len(subTools)-1 {
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func formatInput(in subtool.Input) string {
	reqLabel := "optional"
	if in.Required {
		reqLabel = "required"
	}
	typeSuffix := ""
	if in.Type != "" {
		typeSuffix = ", " + in.Type
	}

	var parts []string
	parts = append(parts, in.Name)
	parts = append(parts, fmt.Sprintf(" (%s%s)", reqLabel, typeSuffix))
	if in.Description != "" {
		parts = append(parts, ": "+in.Description)
	}

	var hints []string
	if in.Default != nil {
		hints = append(hints, fmt.Sprintf("default: %v", in.Default))
	}
	if len(in.Options) > 0 {
		vals := make([]string, 0, len(in.Options))
		for _, v := range in.Options {
			vals = append(vals, fmt.Sprintf("%q", v))
		}
		hints = append(hints, "choices: ["+strings.Join(vals, ", ")+"]")
	}
	if in.Format != "" {
		hints = append(hints, "format: "+in.Format)
	}
	if in.Source != nil {
		hints = append(hints, "values come from "+in.Source.Tool)
	}
	if len(hints) > 0 {
		parts = append(parts, " ["+strings.Join(hints, "; ")+"]")
	}
	return strings.Join(parts, "")
}

// FormatVariableSummaries renders the stored-variable section shared by the
// Pilot and Executor prompts. The payloads themselves are never inlined.
func FormatVariableSummaries(sums []variables.Summary) string {
	if len(sums) == 0 {
		return "No variables stored yet."
	}
	var sb strings.Builder
	for _, s := range sums {
		sb.WriteString("- " + s.Name)
		if len(s.Fields) > 0 {
			sb.WriteString(" [" + strings.Join(s.Fields, ", ") + "]")
		}
		if s.Description != "" {
			sb.WriteString(": " + s.Description)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

// FormatNativeTools formats live MCP tool definitions for the learning prompt.
// Includes rich JSON Schema parameter details for LLM guidance.
func FormatNativeTools(tools []*mcp.ToolInfo) string {
	if len(tools) == 0 {
		return "No tools available."
	}

	var sb strings.Builder
	for i, tool := range tools {
		sb.WriteString(fmt.Sprintf("%d. **%s**: %s\n", i+1, tool.Name, tool.Description))

		params := extractParameters(tool.InputSchema)
		if len(params) > 0 {
			sb.WriteString("    **Parameters**:\n")
			for _, p := range params {
				sb.WriteString("    - ")
				sb.WriteString(p)
				sb.WriteString("\n")
			}
		} else {
			sb.WriteString("    **Parameters**: None\n")
		}

		if i < len(tools)-1 {
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

// extractParameters extracts rich parameter info from a JSON Schema.
func extractParameters(schema map[string]any) []string {
	if schema == nil {
		return nil
	}

	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}

	required := make(map[string]bool)
	if reqList, ok := schema["required"].([]any); ok {
		for _, r := range reqList {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	// Sorted keys keep the rendered prompt deterministic.
	keys := make([]string, 0, len(properties))
	for k := range properties {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var params []string
	for _, name := range keys {
		prop, ok := properties[name].(map[string]any)
		if !ok {
			continue
		}

		reqLabel := "optional"
		if required[name] {
			reqLabel = "required"
		}
		typeSuffix := ""
		if t, ok := prop["type"].(string); ok {
			typeSuffix = ", " + t
		}

		var parts []string
		parts = append(parts, name)
		parts = append(parts, fmt.Sprintf(" (%s%s)", reqLabel, typeSuffix))

		if desc, ok := prop["description"].(string); ok && desc != "" {
			parts = append(parts, ": "+desc)
		}

		var hints []string
		if def, ok := prop["default"]; ok {
			hints = append(hints, fmt.Sprintf("default: %v", def))
		}
		if enum, ok := prop["enum"].([]any); ok {
			vals := make([]string, 0, len(enum))
			for _, v := range enum {
				vals = append(vals, fmt.Sprintf("%q", v))
			}
			hints = append(hints, "choices: ["+strings.Join(vals, ", ")+"]")
		}
		if len(hints) > 0 {
			parts = append(parts, " ["+strings.Join(hints, "; ")+"]")
		}

		params = append(params, strings.Join(parts, ""))
	}

	return params
}
