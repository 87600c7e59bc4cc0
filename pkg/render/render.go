// Package render turns visual descriptors into client-side DSL shortcodes.
// Rendering is programmatic: every data reference is resolved and inlined, so
// the client never sees variable names. One shortcode per line, for example:
//
//	[card title="Q2 Growth" value="25.00" label="% vs Q1"]
//	[table columns=["Quarter","Revenue"] rows=[["Q1",60],["Q2",75]]]
//	[line-chart title="Daily users" x=["2025-11-01","2025-11-02"] y=[120,95]]
//	[alert level="warning" message="Totals dropped in Q3"]
package render

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pilotdeck/pilotdeck/pkg/analysis"
	"github.com/pilotdeck/pilotdeck/pkg/variables"
)

// Renderer resolves visual descriptor references and emits DSL strings.
// References resolve against the analysis runtime first, then the session's
// variables; a renderer built without a runtime resolves against the session
// variables only.
type Renderer struct {
	runtime *analysis.Runtime
}

// New creates a renderer. runtime may be nil when rendering outside an
// analysis run (direct UI tool calls).
func New(runtime *analysis.Runtime, vars *variables.Store) *Renderer {
	if runtime == nil {
		runtime = analysis.NewRuntime(vars)
	}
	return &Renderer{runtime: runtime}
}

// Render emits the DSL string for one visual descriptor.
func (r *Renderer) Render(v analysis.Visual) (string, error) {
	switch v.Kind {
	case "card":
		return r.renderCard(v)
	case "alert":
		return r.renderAlert(v)
	case "table":
		return r.renderTable(v)
	case "line-chart":
		return r.renderLineChart(v)
	}
	return "", fmt.Errorf("unsupported visual kind %q", v.Kind)
}

func (r *Renderer) renderCard(v analysis.Visual) (string, error) {
	value, ok := v.Prop("value")
	if !ok {
		return "", fmt.Errorf("card needs a value property")
	}
	var b strings.Builder
	b.WriteString("[card")
	if title := r.resolveText(propOr(v, "title", "")); title != "" {
		writeAttr(&b, "title", title)
	}
	valueText, err := r.resolveScalarText(value)
	if err != nil {
		return "", fmt.Errorf("card value: %w", err)
	}
	writeAttr(&b, "value", valueText)
	if label, ok := v.Prop("label"); ok {
		writeAttr(&b, "label", r.resolveText(label))
	}
	b.WriteString("]")
	return b.String(), nil
}

func (r *Renderer) renderAlert(v analysis.Visual) (string, error) {
	message, ok := v.Prop("message")
	if !ok {
		return "", fmt.Errorf("alert needs a message property")
	}
	level := strings.ToLower(r.resolveText(propOr(v, "level", "info")))
	switch level {
	case "info", "success", "warning", "error":
	default:
		level = "info"
	}
	var b strings.Builder
	b.WriteString("[alert")
	writeAttr(&b, "level", level)
	writeAttr(&b, "message", r.resolveText(message))
	b.WriteString("]")
	return b.String(), nil
}

// renderTable serializes either a stored table reference (single data prop or
// single unkeyed prop) or a list of Label: ref pairs materialized row-wise.
func (r *Renderer) renderTable(v analysis.Visual) (string, error) {
	if len(v.Props) == 0 {
		return "", fmt.Errorf("table needs data")
	}
	if ref, ok := tableRefProp(v); ok {
		val, err := r.runtime.ResolveRef(ref)
		if err != nil {
			return "", fmt.Errorf("table data: %v", err)
		}
		switch val.Kind {
		case analysis.KindTable:
			return writeTable(val.Table.Columns, val.Table.Rows)
		case analysis.KindColumn:
			rows := make([][]any, 0, len(val.Column))
			for _, cell := range val.Column {
				rows = append(rows, []any{cell})
			}
			return writeTable([]string{strings.TrimSpace(ref)}, rows)
		}
		return "", fmt.Errorf("table data: %s is not a table or column", ref)
	}
	columns, rows, err := r.materializePairs(v.Props)
	if err != nil {
		return "", fmt.Errorf("table data: %w", err)
	}
	return writeTable(columns, rows)
}

func (r *Renderer) renderLineChart(v analysis.Visual) (string, error) {
	xRef, ok := v.Prop("x")
	if !ok {
		return "", fmt.Errorf("line-chart needs an x property")
	}
	yRef, ok := v.Prop("y")
	if !ok {
		return "", fmt.Errorf("line-chart needs a y property")
	}
	x, err := r.resolveColumn(xRef)
	if err != nil {
		return "", fmt.Errorf("line-chart x: %w", err)
	}
	y, err := r.resolveColumn(yRef)
	if err != nil {
		return "", fmt.Errorf("line-chart y: %w", err)
	}
	if len(y) < len(x) {
		x = x[:len(y)]
	} else if len(x) < len(y) {
		y = y[:len(x)]
	}

	var b strings.Builder
	b.WriteString("[line-chart")
	if title, ok := v.Prop("title"); ok {
		writeAttr(&b, "title", r.resolveText(title))
	}
	xJSON, err := json.Marshal(x)
	if err != nil {
		return "", fmt.Errorf("line-chart x: %w", err)
	}
	yJSON, err := json.Marshal(y)
	if err != nil {
		return "", fmt.Errorf("line-chart y: %w", err)
	}
	fmt.Fprintf(&b, " x=%s y=%s]", xJSON, yJSON)
	return b.String(), nil
}

// materializePairs zips Label: ref pairs into table rows. Scalars broadcast;
// columns truncate to the shortest.
func (r *Renderer) materializePairs(props []analysis.Prop) (columns []string, rows [][]any, err error) {
	type col struct {
		scalar *any
		values []any
	}
	cols := make([]col, 0, len(props))
	rowCount := -1
	for _, p := range props {
		ref := p.Value
		label := p.Key
		if label == "" {
			label = ref
		}
		val, err := r.runtime.ResolveRef(ref)
		if err != nil {
			return nil, nil, err
		}
		switch val.Kind {
		case analysis.KindNumber:
			cell := any(val.Number)
			cols = append(cols, col{scalar: &cell})
		case analysis.KindColumn:
			cols = append(cols, col{values: val.Column})
			if rowCount == -1 || len(val.Column) < rowCount {
				rowCount = len(val.Column)
			}
		default:
			return nil, nil, fmt.Errorf("%s is not a number or column", ref)
		}
		columns = append(columns, label)
	}
	if rowCount == -1 {
		rowCount = 1
	}
	for i := 0; i < rowCount; i++ {
		row := make([]any, 0, len(cols))
		for _, c := range cols {
			if c.scalar != nil {
				row = append(row, *c.scalar)
			} else {
				row = append(row, c.values[i])
			}
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

func writeTable(columns []string, rows [][]any) (string, error) {
	colJSON, err := json.Marshal(columns)
	if err != nil {
		return "", err
	}
	if rows == nil {
		rows = [][]any{}
	}
	rowJSON, err := json.Marshal(rows)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("[table columns=%s rows=%s]", colJSON, rowJSON), nil
}

// resolveText resolves a text-valued property. Quoted literals lose their
// quotes, resolvable references inline their value, and anything else passes
// through as plain text.
func (r *Renderer) resolveText(expr string) string {
	expr = NormalizeQuotes(strings.TrimSpace(expr))
	if inner, ok := unquote(expr); ok {
		return inner
	}
	if val, err := r.runtime.ResolveRef(expr); err == nil {
		return valueText(val)
	}
	return expr
}

// resolveScalarText resolves a property that must carry a single value.
func (r *Renderer) resolveScalarText(expr string) (string, error) {
	expr = NormalizeQuotes(strings.TrimSpace(expr))
	if inner, ok := unquote(expr); ok {
		return inner, nil
	}
	val, err := r.runtime.ResolveRef(expr)
	if err != nil {
		// unquoted prose renders as text; a failed single-token reference
		// is a real error
		if strings.ContainsAny(expr, " \t") && !strings.Contains(expr, "[") {
			return expr, nil
		}
		return "", err
	}
	switch val.Kind {
	case analysis.KindNumber:
		return strconv.FormatFloat(val.Number, 'f', 2, 64), nil
	case analysis.KindColumn:
		if len(val.Column) == 1 {
			return cellText(val.Column[0]), nil
		}
		return "", fmt.Errorf("%s has %d values, expected one", expr, len(val.Column))
	}
	return "", fmt.Errorf("%s is a table, expected a single value", expr)
}

func (r *Renderer) resolveColumn(expr string) ([]any, error) {
	expr = NormalizeQuotes(strings.TrimSpace(expr))
	val, err := r.runtime.ResolveRef(expr)
	if err != nil {
		return nil, err
	}
	switch val.Kind {
	case analysis.KindColumn:
		return val.Column, nil
	case analysis.KindNumber:
		return []any{val.Number}, nil
	}
	return nil, fmt.Errorf("%s is not a column", expr)
}

func valueText(val *analysis.Value) string {
	switch val.Kind {
	case analysis.KindNumber:
		return strconv.FormatFloat(val.Number, 'f', 2, 64)
	case analysis.KindColumn:
		cells := make([]string, 0, len(val.Column))
		for _, cell := range val.Column {
			cells = append(cells, cellText(cell))
		}
		return strings.Join(cells, ", ")
	}
	return ""
}

func cellText(cell any) string {
	if n, ok := cell.(float64); ok {
		return strconv.FormatFloat(n, 'f', -1, 64)
	}
	return fmt.Sprintf("%v", cell)
}

// tableRefProp reports a table descriptor that is a single reference rather
// than labeled pairs: table(data: overview) or table(overview).
func tableRefProp(v analysis.Visual) (string, bool) {
	if len(v.Props) != 1 {
		return "", false
	}
	p := v.Props[0]
	if p.Key == "data" || p.Key == "" {
		return p.Value, true
	}
	return "", false
}

// writeAttr appends ` key="value"` with the value escaped for the DSL.
func writeAttr(b *strings.Builder, key, value string) {
	b.WriteString(" ")
	b.WriteString(key)
	b.WriteString(`="`)
	b.WriteString(escapeAttr(value))
	b.WriteString(`"`)
}

// escapeAttr makes a value safe inside a double-quoted DSL attribute.
func escapeAttr(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	s = strings.ReplaceAll(s, "\n", `\n`)
	s = strings.ReplaceAll(s, "\r", "")
	return s
}

// NormalizeQuotes replaces curly quotes with straight ones so LLM-typed
// punctuation cannot break the DSL attribute grammar.
func NormalizeQuotes(s string) string {
	replacer := strings.NewReplacer(
		"“", `"`, "”", `"`, "„", `"`,
		"‘", "'", "’", "'",
	)
	return replacer.Replace(s)
}

func unquote(s string) (string, bool) {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1], true
		}
	}
	return s, false
}

func propOr(v analysis.Visual, key, fallback string) string {
	if value, ok := v.Prop(key); ok {
		return value
	}
	return fallback
}
