// Package analysis implements the llm(data, question) pipeline: a planner
// LLM pass that emits a deterministic calculation plan, a runtime that
// executes the plan's operations against referenced variables, and a reporter
// LLM pass whose visuals are parsed into typed descriptors. Analysis
// variables are ephemeral: a fresh runtime is created per invocation.
package analysis

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind discriminates analysis values.
type Kind string

const (
	KindNumber Kind = "number"
	KindColumn Kind = "column"
	KindTable  Kind = "table"
)

// Value is one analysis variable: a number, a column, or a table. Note
// carries caveats attached by the producing operation, such as truncation
// alignment.
type Value struct {
	Kind   Kind
	Number float64
	Column []any
	Table  *Table
	Note   string
}

// Table is a column-labeled grid.
type Table struct {
	Columns []string
	Rows    [][]any
}

// String renders a short human-readable form used in logs and reporter input.
func (v *Value) String() string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', 2, 64)
	case KindColumn:
		return fmt.Sprintf("column(%d values)", len(v.Column))
	case KindTable:
		return fmt.Sprintf("table(%dx%d)", len(v.Table.Rows), len(v.Table.Columns))
	}
	return "empty"
}

// round2 rounds to two decimals, the precision of every numeric result.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// toNumber coerces one cell to a float64. Accepts numeric types and numeric
// strings.
func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// columnNumbers coerces a whole column, reporting the first offending cell.
func columnNumbers(column []any) ([]float64, error) {
	nums := make([]float64, 0, len(column))
	for i, cell := range column {
		n, ok := toNumber(cell)
		if !ok {
			return nil, fmt.Errorf("value %v at row %d is not numeric", cell, i)
		}
		nums = append(nums, n)
	}
	return nums, nil
}
