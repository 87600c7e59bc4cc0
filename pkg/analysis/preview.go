package analysis

import (
	"fmt"
	"sort"
	"strings"

	"github.com/pilotdeck/pilotdeck/pkg/variables"
)

// previewRows is how many data rows a planner preview shows.
const previewRows = 3

// BuildPreviews renders the planner-facing preview of each referenced
// variable: row count, column names with inferred types, and the first few
// rows. The planner sees shapes and samples, never the full payload.
func BuildPreviews(store *variables.Store, refs []string) string {
	seen := make(map[string]bool)
	var sections []string
	for _, ref := range refs {
		name, _, _ := splitFieldRef(strings.TrimSpace(ref))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		v, ok := store.Get(name)
		if !ok {
			sections = append(sections, fmt.Sprintf("%s: not found", name))
			continue
		}
		sections = append(sections, previewVariable(v))
	}
	if len(sections) == 0 {
		return "No data variables referenced."
	}
	return strings.Join(sections, "\n\n")
}

func previewVariable(v variables.Variable) string {
	switch data := v.ActualData.(type) {
	case []any:
		if rows, ok := mapRows(data); ok {
			return previewTable(v, rows)
		}
		return fmt.Sprintf("%s (%d values)\n%s", v.Name, len(data), displayColumn(data))
	case map[string]any:
		return previewObject(v.Name, data)
	case nil:
		return fmt.Sprintf("%s: empty", v.Name)
	default:
		return fmt.Sprintf("%s: %s", v.Name, formatCell(data))
	}
}

func previewTable(v variables.Variable, rows []map[string]any) string {
	columns := v.FieldNames()
	if len(columns) == 0 && len(rows) > 0 {
		columns = sortedKeys(rows[0])
	}

	header := make([]string, 0, len(columns))
	for _, col := range columns {
		header = append(header, fmt.Sprintf("%s (%s)", col, inferType(rows, col)))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s (%d rows)\n", v.Name, len(rows))
	b.WriteString(strings.Join(header, " | "))
	for i, row := range rows {
		if i == previewRows {
			fmt.Fprintf(&b, "\n... %d more rows", len(rows)-previewRows)
			break
		}
		cells := make([]string, 0, len(columns))
		for _, col := range columns {
			cells = append(cells, formatCell(row[col]))
		}
		b.WriteString("\n" + strings.Join(cells, " | "))
	}
	return b.String()
}

func previewObject(name string, data map[string]any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (object)", name)
	for _, key := range sortedKeys(data) {
		fmt.Fprintf(&b, "\n%s: %s", key, formatCell(data[key]))
	}
	return b.String()
}

// inferType names the type of a column from its first non-nil value.
func inferType(rows []map[string]any, column string) string {
	for _, row := range rows {
		switch row[column].(type) {
		case nil:
			continue
		case float64, float32, int, int64:
			return "number"
		case bool:
			return "boolean"
		case string:
			return "string"
		case []any:
			return "array"
		case map[string]any:
			return "object"
		default:
			return "string"
		}
	}
	return "unknown"
}

func mapRows(data []any) ([]map[string]any, bool) {
	rows := make([]map[string]any, 0, len(data))
	for _, item := range data {
		m, ok := item.(map[string]any)
		if !ok {
			return nil, false
		}
		rows = append(rows, m)
	}
	return rows, true
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
