package analysis

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Result is the outcome of one executed plan line. A failed operation keeps
// its error as a string; later lines still run and the reporter sees the
// error text.
type Result struct {
	Line  PlanLine
	Value *Value
	Err   string
}

// Failed reports whether the operation produced an error instead of a value.
func (r Result) Failed() bool { return r.Err != "" }

// Display renders the result for progress events and the reporter prompt.
func (r Result) Display() string {
	if r.Err != "" {
		return "ERROR: " + r.Err
	}
	out := displayValue(r.Value)
	if r.Value.Note != "" {
		out += " (note: " + r.Value.Note + ")"
	}
	return out
}

func displayValue(v *Value) string {
	switch v.Kind {
	case KindNumber:
		return strconv.FormatFloat(v.Number, 'f', 2, 64)
	case KindColumn:
		return displayColumn(v.Column)
	case KindTable:
		return fmt.Sprintf("table(%d rows: %s)", len(v.Table.Rows), strings.Join(v.Table.Columns, ", "))
	}
	return "empty"
}

func displayColumn(column []any) string {
	const maxShown = 8
	cells := make([]string, 0, len(column))
	for i, cell := range column {
		if i == maxShown {
			cells = append(cells, fmt.Sprintf("... %d more", len(column)-maxShown))
			break
		}
		cells = append(cells, formatCell(cell))
	}
	return "[" + strings.Join(cells, ", ") + "]"
}

// formatCell renders a cell without forced decimal padding.
func formatCell(cell any) string {
	if n, ok := toNumber(cell); ok {
		if _, isString := cell.(string); !isString {
			return strconv.FormatFloat(n, 'f', -1, 64)
		}
	}
	return fmt.Sprintf("%v", cell)
}

func errDivideByZero(detail string) error {
	return fmt.Errorf("CANNOT_DIVIDE_BY_ZERO: %s", detail)
}

func errColumnNotFound(detail string) error {
	return fmt.Errorf("COLUMN_NOT_FOUND: %s", detail)
}

func errInvalidCondition(detail string) error {
	return fmt.Errorf("INVALID_CONDITION: %s", detail)
}

// ExecuteLine runs one plan line. On success the value is stored under the
// line's output name; on failure the error becomes part of the result and
// execution of later lines continues.
func (rt *Runtime) ExecuteLine(line PlanLine) Result {
	v, err := rt.eval(line)
	if err != nil {
		return Result{Line: line, Err: err.Error()}
	}
	rt.set(line.Output, v)
	return Result{Line: line, Value: v}
}

func (rt *Runtime) eval(line PlanLine) (*Value, error) {
	switch line.Op {
	case "sum", "average", "max", "min", "count":
		return rt.aggregate(line.Op, line.Args)
	case "difference", "ratio", "percentage", "pct_change":
		return rt.compare(line.Op, line.Args)
	case "filter":
		return rt.filter(line.Args)
	case "sort_asc", "sort_desc":
		return rt.sortColumn(line.Op, line.Args)
	case "add", "subtract", "multiply", "divide":
		return rt.arithmetic(line.Op, line.Args)
	case "table":
		return rt.buildTable(line.Args)
	}
	return nil, fmt.Errorf("unknown operation %q", line.Op)
}

func (rt *Runtime) aggregate(op string, args []string) (*Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s expects 1 argument, got %d", op, len(args))
	}
	column, err := rt.resolveColumn(args[0])
	if err != nil {
		return nil, errColumnNotFound(err.Error())
	}
	if op == "count" {
		return &Value{Kind: KindNumber, Number: float64(len(column))}, nil
	}
	nums, err := columnNumbers(column)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}
	switch op {
	case "sum":
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return &Value{Kind: KindNumber, Number: round2(total)}, nil
	case "average":
		if len(nums) == 0 {
			return nil, errDivideByZero(fmt.Sprintf("average of empty column %s", args[0]))
		}
		total := 0.0
		for _, n := range nums {
			total += n
		}
		return &Value{Kind: KindNumber, Number: round2(total / float64(len(nums)))}, nil
	case "max", "min":
		if len(nums) == 0 {
			return nil, fmt.Errorf("%s: column %s is empty", op, args[0])
		}
		best := nums[0]
		for _, n := range nums[1:] {
			if (op == "max" && n > best) || (op == "min" && n < best) {
				best = n
			}
		}
		return &Value{Kind: KindNumber, Number: round2(best)}, nil
	}
	return nil, fmt.Errorf("unknown aggregation %q", op)
}

// compare implements the two-operand numeric operations. Column operands are
// summed before comparison.
func (rt *Runtime) compare(op string, args []string) (*Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%s expects 2 arguments, got %d", op, len(args))
	}
	a, err := rt.resolveNumber(args[0])
	if err != nil {
		return nil, errColumnNotFound(err.Error())
	}
	b, err := rt.resolveNumber(args[1])
	if err != nil {
		return nil, errColumnNotFound(err.Error())
	}
	switch op {
	case "difference":
		return &Value{Kind: KindNumber, Number: round2(a - b)}, nil
	case "ratio":
		if b == 0 {
			return nil, errDivideByZero(fmt.Sprintf("ratio(%s, %s)", args[0], args[1]))
		}
		return &Value{Kind: KindNumber, Number: round2(a / b)}, nil
	case "percentage":
		if b == 0 {
			return nil, errDivideByZero(fmt.Sprintf("percentage(%s, %s)", args[0], args[1]))
		}
		return &Value{Kind: KindNumber, Number: round2(a / b * 100)}, nil
	case "pct_change":
		if a == 0 {
			return nil, errDivideByZero(fmt.Sprintf("pct_change from zero baseline %s", args[0]))
		}
		return &Value{Kind: KindNumber, Number: round2((b - a) / a * 100)}, nil
	}
	return nil, fmt.Errorf("unknown comparison %q", op)
}

// comparisonOps is ordered so two-character operators match before their
// one-character prefixes.
var comparisonOps = []string{">=", "<=", "!=", ">", "<", "="}

func (rt *Runtime) filter(args []string) (*Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("filter expects 2 arguments, got %d", len(args))
	}
	column, err := rt.resolveColumn(args[0])
	if err != nil {
		return nil, errColumnNotFound(err.Error())
	}
	condition := strings.TrimSpace(unquote(args[1]))
	var op, operand string
	for _, candidate := range comparisonOps {
		if strings.HasPrefix(condition, candidate) {
			op = candidate
			operand = strings.TrimSpace(condition[len(candidate):])
			break
		}
	}
	if op == "" || operand == "" {
		return nil, errInvalidCondition(args[1])
	}
	operand = unquote(operand)
	operandNum, operandIsNum := toNumber(operand)

	kept := make([]any, 0, len(column))
	for _, cell := range column {
		if cellMatches(cell, op, operand, operandNum, operandIsNum) {
			kept = append(kept, cell)
		}
	}
	return &Value{Kind: KindColumn, Column: kept}, nil
}

// cellMatches compares numerically when both sides parse as numbers,
// lexicographically otherwise.
func cellMatches(cell any, op, operand string, operandNum float64, operandIsNum bool) bool {
	if cellNum, ok := toNumber(cell); ok && operandIsNum {
		switch op {
		case ">":
			return cellNum > operandNum
		case "<":
			return cellNum < operandNum
		case ">=":
			return cellNum >= operandNum
		case "<=":
			return cellNum <= operandNum
		case "=":
			return cellNum == operandNum
		case "!=":
			return cellNum != operandNum
		}
		return false
	}
	cellText := fmt.Sprintf("%v", cell)
	switch op {
	case ">":
		return cellText > operand
	case "<":
		return cellText < operand
	case ">=":
		return cellText >= operand
	case "<=":
		return cellText <= operand
	case "=":
		return cellText == operand
	case "!=":
		return cellText != operand
	}
	return false
}

func (rt *Runtime) sortColumn(op string, args []string) (*Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("%s expects 1 argument, got %d", op, len(args))
	}
	column, err := rt.resolveColumn(args[0])
	if err != nil {
		return nil, errColumnNotFound(err.Error())
	}
	sorted := append([]any(nil), column...)
	numeric := true
	for _, cell := range sorted {
		if _, ok := toNumber(cell); !ok {
			numeric = false
			break
		}
	}
	asc := op == "sort_asc"
	sort.SliceStable(sorted, func(i, j int) bool {
		var less bool
		if numeric {
			a, _ := toNumber(sorted[i])
			b, _ := toNumber(sorted[j])
			less = a < b
		} else {
			less = fmt.Sprintf("%v", sorted[i]) < fmt.Sprintf("%v", sorted[j])
		}
		if asc {
			return less
		}
		return !less
	})
	return &Value{Kind: KindColumn, Column: sorted}, nil
}

// arithmetic implements element-wise column math. The second operand may be
// a scalar or another column; mismatched column lengths are truncated to the
// shorter side with a note on the result.
func (rt *Runtime) arithmetic(op string, args []string) (*Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("%s expects 2 arguments, got %d", op, len(args))
	}
	left, err := rt.resolveColumn(args[0])
	if err != nil {
		return nil, errColumnNotFound(err.Error())
	}
	leftNums, err := columnNumbers(left)
	if err != nil {
		return nil, fmt.Errorf("%s: %v", op, err)
	}

	operand, err := rt.ResolveRef(args[1])
	if err != nil {
		return nil, errColumnNotFound(err.Error())
	}
	switch operand.Kind {
	case KindNumber:
		out := make([]any, len(leftNums))
		for i, n := range leftNums {
			out[i] = applyArithmetic(op, n, operand.Number)
		}
		return &Value{Kind: KindColumn, Column: out}, nil
	case KindColumn:
		rightNums, err := columnNumbers(operand.Column)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", op, err)
		}
		n := len(leftNums)
		if len(rightNums) < n {
			n = len(rightNums)
		}
		var note string
		if len(leftNums) != len(rightNums) {
			note = fmt.Sprintf("columns had %d and %d values; result truncated to %d rows", len(leftNums), len(rightNums), n)
		}
		out := make([]any, n)
		for i := 0; i < n; i++ {
			out[i] = applyArithmetic(op, leftNums[i], rightNums[i])
		}
		return &Value{Kind: KindColumn, Column: out, Note: note}, nil
	}
	return nil, fmt.Errorf("%s: second argument %s is not a number or column", op, args[1])
}

// applyArithmetic computes one cell. Division by zero yields 0 for that row.
func applyArithmetic(op string, a, b float64) float64 {
	switch op {
	case "add":
		return round2(a + b)
	case "subtract":
		return round2(a - b)
	case "multiply":
		return round2(a * b)
	case "divide":
		if b == 0 {
			return 0
		}
		return round2(a / b)
	}
	return 0
}

// buildTable assembles a labeled table from Label: ref pairs. Scalar refs
// repeat on every row; columns of different lengths are truncated to the
// shortest with a note.
func (rt *Runtime) buildTable(args []string) (*Value, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("table expects at least 1 labeled argument")
	}
	type columnSpec struct {
		label  string
		scalar *float64
		values []any
	}
	specs := make([]columnSpec, 0, len(args))
	minLen, maxLen := -1, 0

	for _, arg := range args {
		label, ref := splitLabeledArg(arg)
		v, err := rt.ResolveRef(ref)
		if err != nil {
			return nil, errColumnNotFound(err.Error())
		}
		spec := columnSpec{label: label}
		switch v.Kind {
		case KindNumber:
			n := v.Number
			spec.scalar = &n
		case KindColumn:
			spec.values = v.Column
			if minLen == -1 || len(v.Column) < minLen {
				minLen = len(v.Column)
			}
			if len(v.Column) > maxLen {
				maxLen = len(v.Column)
			}
		default:
			return nil, fmt.Errorf("table: %s is not a number or column", ref)
		}
		specs = append(specs, spec)
	}
	rowCount := minLen
	if rowCount == -1 {
		rowCount = 1
	}

	table := &Table{Columns: make([]string, 0, len(specs))}
	for _, spec := range specs {
		table.Columns = append(table.Columns, spec.label)
	}
	for i := 0; i < rowCount; i++ {
		row := make([]any, 0, len(specs))
		for _, spec := range specs {
			if spec.scalar != nil {
				row = append(row, *spec.scalar)
			} else {
				row = append(row, spec.values[i])
			}
		}
		table.Rows = append(table.Rows, row)
	}
	var note string
	if maxLen > rowCount {
		note = fmt.Sprintf("columns had up to %d values; table truncated to %d rows", maxLen, rowCount)
	}
	return &Value{Kind: KindTable, Table: table, Note: note}, nil
}

// splitLabeledArg splits "Label: ref" on the first colon outside brackets.
// An unlabeled argument uses the reference itself as its label.
func splitLabeledArg(arg string) (label, ref string) {
	depth := 0
	for i, r := range arg {
		switch r {
		case '[', '(':
			depth++
		case ']', ')':
			depth--
		case ':':
			if depth == 0 {
				return strings.TrimSpace(arg[:i]), strings.TrimSpace(arg[i+1:])
			}
		}
	}
	trimmed := strings.TrimSpace(arg)
	return trimmed, trimmed
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
