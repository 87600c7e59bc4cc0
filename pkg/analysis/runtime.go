package analysis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pilotdeck/pilotdeck/pkg/variables"
)

// Runtime holds the analysis variables of a single invocation and resolves
// plan references. References check analysis variables first, then the
// session's conversational variables.
type Runtime struct {
	conv  *variables.Store
	vars  map[string]*Value
	order []string
}

// NewRuntime creates an empty runtime over the session's variable store.
func NewRuntime(conv *variables.Store) *Runtime {
	return &Runtime{conv: conv, vars: make(map[string]*Value)}
}

func (rt *Runtime) set(name string, v *Value) {
	if _, exists := rt.vars[name]; !exists {
		rt.order = append(rt.order, name)
	}
	rt.vars[name] = v
}

// Lookup returns the analysis variable stored under name.
func (rt *Runtime) Lookup(name string) (*Value, bool) {
	v, ok := rt.vars[name]
	return v, ok
}

// Names returns analysis variable names in creation order.
func (rt *Runtime) Names() []string {
	return append([]string(nil), rt.order...)
}

// ResolveRef resolves a reference expression to a value: a numeric literal,
// a bracketed literal list, an analysis variable, or a conversational
// variable with an optional [field] projection.
func (rt *Runtime) ResolveRef(expr string) (*Value, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty reference")
	}
	if n, err := strconv.ParseFloat(expr, 64); err == nil {
		return &Value{Kind: KindNumber, Number: n}, nil
	}
	if strings.HasPrefix(expr, "[") && strings.HasSuffix(expr, "]") {
		return &Value{Kind: KindColumn, Column: parseLiteralList(expr)}, nil
	}

	name, field, hasField := splitFieldRef(expr)
	if v, ok := rt.vars[name]; ok {
		if !hasField {
			return v, nil
		}
		if v.Kind == KindTable {
			col, ok := v.Table.columnValues(field)
			if !ok {
				return nil, fmt.Errorf("table %s has no column %q", name, field)
			}
			return &Value{Kind: KindColumn, Column: col}, nil
		}
		return nil, fmt.Errorf("%s is not a table, cannot project %q", name, field)
	}
	if rt.conv != nil {
		if v, ok := rt.conv.Get(name); ok {
			if hasField {
				col, ok := projectField(v, field)
				if !ok {
					return nil, fmt.Errorf("variable %s has no field %q", name, field)
				}
				return &Value{Kind: KindColumn, Column: col}, nil
			}
			if col, ok := flatList(v.ActualData); ok {
				return &Value{Kind: KindColumn, Column: col}, nil
			}
			return nil, fmt.Errorf("variable %s needs a [field] projection", name)
		}
	}
	return nil, fmt.Errorf("%s is not defined", name)
}

// resolveColumn resolves a reference that must yield a column.
func (rt *Runtime) resolveColumn(expr string) ([]any, error) {
	v, err := rt.ResolveRef(expr)
	if err != nil {
		return nil, err
	}
	if v.Kind != KindColumn {
		return nil, fmt.Errorf("%s is not a column", strings.TrimSpace(expr))
	}
	return v.Column, nil
}

// resolveNumber resolves a reference that must yield a scalar. Column
// references are summed before use.
func (rt *Runtime) resolveNumber(expr string) (float64, error) {
	v, err := rt.ResolveRef(expr)
	if err != nil {
		return 0, err
	}
	switch v.Kind {
	case KindNumber:
		return v.Number, nil
	case KindColumn:
		nums, err := columnNumbers(v.Column)
		if err != nil {
			return 0, err
		}
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return total, nil
	}
	return 0, fmt.Errorf("%s is not numeric", strings.TrimSpace(expr))
}

// splitFieldRef splits name[field] into its parts. The field may contain
// spaces; nested brackets are not supported in references.
func splitFieldRef(expr string) (name, field string, ok bool) {
	open := strings.Index(expr, "[")
	if open <= 0 || !strings.HasSuffix(expr, "]") {
		return expr, "", false
	}
	return strings.TrimSpace(expr[:open]), strings.TrimSpace(expr[open+1 : len(expr)-1]), true
}

// columnValues extracts one labeled column from a table.
func (t *Table) columnValues(label string) ([]any, bool) {
	for i, col := range t.Columns {
		if col == label {
			values := make([]any, 0, len(t.Rows))
			for _, row := range t.Rows {
				if i < len(row) {
					values = append(values, row[i])
				}
			}
			return values, true
		}
	}
	return nil, false
}

// projectField extracts one field across a conversational variable's rows.
// Rows missing the field are skipped.
func projectField(v variables.Variable, field string) ([]any, bool) {
	switch data := v.ActualData.(type) {
	case []any:
		col := make([]any, 0, len(data))
		for _, row := range data {
			m, ok := row.(map[string]any)
			if !ok {
				continue
			}
			if cell, ok := m[field]; ok {
				col = append(col, cell)
			}
		}
		if len(col) == 0 {
			if _, inSchema := v.Schema[field]; !inSchema {
				return nil, false
			}
		}
		return col, true
	case map[string]any:
		cell, ok := data[field]
		if !ok {
			return nil, false
		}
		if list, ok := cell.([]any); ok {
			return list, true
		}
		return []any{cell}, true
	}
	return nil, false
}

// flatList reports data that is already a flat list of scalars.
func flatList(data any) ([]any, bool) {
	list, ok := data.([]any)
	if !ok {
		return nil, false
	}
	for _, item := range list {
		switch item.(type) {
		case map[string]any, []any:
			return nil, false
		}
	}
	return list, true
}

// parseLiteralList parses a bracketed literal like [1, 2, 3] or [a, "b c"].
func parseLiteralList(expr string) []any {
	inner := strings.TrimSpace(expr[1 : len(expr)-1])
	if inner == "" {
		return nil
	}
	parts := splitTopLevel(inner)
	list := make([]any, 0, len(parts))
	for _, part := range parts {
		list = append(list, parseScalarLiteral(part))
	}
	return list
}

// parseScalarLiteral interprets one literal token: quoted strings keep their
// text, numeric tokens become numbers, everything else stays a string.
func parseScalarLiteral(token string) any {
	token = strings.TrimSpace(token)
	if len(token) >= 2 {
		if (token[0] == '"' && token[len(token)-1] == '"') || (token[0] == '\'' && token[len(token)-1] == '\'') {
			return token[1 : len(token)-1]
		}
	}
	if n, err := strconv.ParseFloat(token, 64); err == nil {
		return n
	}
	return token
}
