package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotdeck/pilotdeck/pkg/variables"
)

func runPlan(t *testing.T, rt *Runtime, text string) []Result {
	t.Helper()
	lines := ParsePlan(text)
	require.NotEmpty(t, lines, "plan text produced no lines")
	results := make([]Result, 0, len(lines))
	for _, line := range lines {
		results = append(results, rt.ExecuteLine(line))
	}
	return results
}

func usersStore(t *testing.T) *variables.Store {
	t.Helper()
	store := variables.NewStore()
	err := store.Put(variables.Variable{
		Name: "active_users",
		Schema: map[string]variables.FieldSpec{
			"date":  {DataType: "string"},
			"users": {DataType: "number"},
		},
		ActualData: []any{
			map[string]any{"date": "2025-11-01", "users": float64(120)},
			map[string]any{"date": "2025-11-02", "users": float64(95)},
			map[string]any{"date": "2025-11-03", "users": float64(101)},
			map[string]any{"date": "2025-11-04", "users": float64(130)},
		},
		Description: "Daily active users",
	})
	require.NoError(t, err)
	return store
}

func TestRuntime_QuarterGrowthChain(t *testing.T) {
	rt := NewRuntime(variables.NewStore())
	results := runPlan(t, rt, `
q1_total: sum([10, 20, 30])  # Q1 revenue
q2_total: sum([25, 25, 25])  # Q2 revenue
growth: pct_change(q1_total, q2_total)  # growth vs Q1
`)
	require.Len(t, results, 3)
	for _, res := range results {
		require.False(t, res.Failed(), "line %s failed: %s", res.Line.Raw, res.Err)
	}
	assert.Equal(t, 60.0, results[0].Value.Number)
	assert.Equal(t, 75.0, results[1].Value.Number)
	assert.Equal(t, 25.0, results[2].Value.Number)
	assert.Equal(t, "25.00", results[2].Display())

	growth, ok := rt.Lookup("growth")
	require.True(t, ok)
	assert.Equal(t, KindNumber, growth.Kind)
}

func TestRuntime_AddTruncatesToShorterColumn(t *testing.T) {
	rt := NewRuntime(variables.NewStore())
	results := runPlan(t, rt, `combined: add([1, 2, 3, 4], [10, 20, 30])`)

	require.Len(t, results, 1)
	require.False(t, results[0].Failed())
	assert.Equal(t, []any{11.0, 22.0, 33.0}, results[0].Value.Column)
	assert.Contains(t, results[0].Value.Note, "truncated to 3")
	assert.Contains(t, results[0].Display(), "[11, 22, 33]")
	assert.Contains(t, results[0].Display(), "note:")
}

func TestRuntime_DifferenceIsAntisymmetric(t *testing.T) {
	rt := NewRuntime(variables.NewStore())
	results := runPlan(t, rt, `
ab: difference(42.5, 17.25)
ba: difference(17.25, 42.5)
`)
	require.Len(t, results, 2)
	assert.Equal(t, 25.25, results[0].Value.Number)
	assert.Equal(t, -25.25, results[1].Value.Number)
	assert.Zero(t, results[0].Value.Number+results[1].Value.Number)
}

func TestRuntime_Aggregations(t *testing.T) {
	tests := []struct {
		name string
		line string
		want float64
	}{
		{name: "sum", line: "out: sum([1.5, 2.5, 3])", want: 7.0},
		{name: "average rounds", line: "out: average([1, 2, 2])", want: 1.67},
		{name: "max", line: "out: max([3, 9, 4])", want: 9.0},
		{name: "min", line: "out: min([3, 9, 4])", want: 3.0},
		{name: "count", line: "out: count([3, 9, 4])", want: 3.0},
		{name: "sum of numeric strings", line: `out: sum(["10", "20"])`, want: 30.0},
		{name: "sum of empty column", line: "out: sum([])", want: 0.0},
		{name: "count of empty column", line: "out: count([])", want: 0.0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := NewRuntime(variables.NewStore())
			results := runPlan(t, rt, tc.line)
			require.False(t, results[0].Failed(), results[0].Err)
			assert.Equal(t, tc.want, results[0].Value.Number)
		})
	}
}

func TestRuntime_DivideByZeroErrors(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "ratio zero denominator", line: "out: ratio(10, 0)"},
		{name: "percentage zero denominator", line: "out: percentage(10, 0)"},
		{name: "pct_change zero baseline", line: "out: pct_change(0, 75)"},
		{name: "average of empty column", line: "out: average([])"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := NewRuntime(variables.NewStore())
			results := runPlan(t, rt, tc.line)
			require.True(t, results[0].Failed())
			assert.Contains(t, results[0].Err, "CANNOT_DIVIDE_BY_ZERO")
			assert.Contains(t, results[0].Display(), "ERROR: CANNOT_DIVIDE_BY_ZERO")
		})
	}
}

func TestRuntime_FailedLineDoesNotAbortPlan(t *testing.T) {
	rt := NewRuntime(variables.NewStore())
	results := runPlan(t, rt, `
bad: ratio(10, 0)
after: sum([1, 2])
uses_bad: add([1], bad)
`)
	require.Len(t, results, 3)

	assert.True(t, results[0].Failed())
	require.False(t, results[1].Failed())
	assert.Equal(t, 3.0, results[1].Value.Number)

	_, ok := rt.Lookup("bad")
	assert.False(t, ok, "failed line must not store a value")
	_, ok = rt.Lookup("after")
	assert.True(t, ok)

	require.True(t, results[2].Failed())
	assert.Contains(t, results[2].Err, "COLUMN_NOT_FOUND")
}

func TestRuntime_ComparisonsSumColumnOperands(t *testing.T) {
	rt := NewRuntime(usersStore(t))
	results := runPlan(t, rt, `delta: difference(active_users[users], 400)`)
	require.False(t, results[0].Failed(), results[0].Err)
	assert.Equal(t, 46.0, results[0].Value.Number)
}

func TestRuntime_Filter(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []any
	}{
		{
			name: "numeric greater than",
			line: `busy: filter(active_users[users], "> 100")`,
			want: []any{float64(120), float64(101), float64(130)},
		},
		{
			name: "numeric equals",
			line: `exact: filter(active_users[users], "= 95")`,
			want: []any{float64(95)},
		},
		{
			name: "string not equals",
			line: `rest: filter(active_users[date], "!= 2025-11-01")`,
			want: []any{"2025-11-02", "2025-11-03", "2025-11-04"},
		},
		{
			name: "string lexicographic",
			line: `late: filter(active_users[date], "> 2025-11-02")`,
			want: []any{"2025-11-03", "2025-11-04"},
		},
		{
			name: "unquoted condition",
			line: `busy: filter(active_users[users], >= 120)`,
			want: []any{float64(120), float64(130)},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := NewRuntime(usersStore(t))
			results := runPlan(t, rt, tc.line)
			require.False(t, results[0].Failed(), results[0].Err)
			assert.Equal(t, tc.want, results[0].Value.Column)
		})
	}
}

func TestRuntime_FilterInvalidCondition(t *testing.T) {
	rt := NewRuntime(usersStore(t))
	results := runPlan(t, rt, `bad: filter(active_users[users], "about 100")`)
	require.True(t, results[0].Failed())
	assert.Contains(t, results[0].Err, "INVALID_CONDITION")
}

func TestRuntime_ColumnNotFound(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{name: "unknown variable", line: "out: sum(missing[users])"},
		{name: "unknown field", line: "out: sum(active_users[revenue])"},
		{name: "unknown scalar reference", line: "out: ratio(nope, 2)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rt := NewRuntime(usersStore(t))
			results := runPlan(t, rt, tc.line)
			require.True(t, results[0].Failed())
			assert.Contains(t, results[0].Err, "COLUMN_NOT_FOUND")
		})
	}
}

func TestRuntime_Sort(t *testing.T) {
	t.Run("numeric ascending", func(t *testing.T) {
		rt := NewRuntime(variables.NewStore())
		results := runPlan(t, rt, "out: sort_asc([3, 1, 2])")
		require.False(t, results[0].Failed())
		assert.Equal(t, []any{1.0, 2.0, 3.0}, results[0].Value.Column)
	})
	t.Run("numeric descending", func(t *testing.T) {
		rt := NewRuntime(variables.NewStore())
		results := runPlan(t, rt, "out: sort_desc([3, 1, 2])")
		require.False(t, results[0].Failed())
		assert.Equal(t, []any{3.0, 2.0, 1.0}, results[0].Value.Column)
	})
	t.Run("lexicographic when any value is non numeric", func(t *testing.T) {
		rt := NewRuntime(variables.NewStore())
		results := runPlan(t, rt, `out: sort_asc(["pear", "apple", "fig"])`)
		require.False(t, results[0].Failed())
		assert.Equal(t, []any{"apple", "fig", "pear"}, results[0].Value.Column)
	})
}

func TestRuntime_Arithmetic(t *testing.T) {
	t.Run("scalar operand", func(t *testing.T) {
		rt := NewRuntime(variables.NewStore())
		results := runPlan(t, rt, "out: multiply([1, 2, 3], 2.5)")
		require.False(t, results[0].Failed())
		assert.Equal(t, []any{2.5, 5.0, 7.5}, results[0].Value.Column)
		assert.Empty(t, results[0].Value.Note)
	})
	t.Run("column divide substitutes zero per row", func(t *testing.T) {
		rt := NewRuntime(variables.NewStore())
		results := runPlan(t, rt, "out: divide([10, 20, 30], [2, 0, 3])")
		require.False(t, results[0].Failed())
		assert.Equal(t, []any{5.0, 0.0, 10.0}, results[0].Value.Column)
	})
	t.Run("scalar divide by zero substitutes zero per row", func(t *testing.T) {
		rt := NewRuntime(variables.NewStore())
		results := runPlan(t, rt, "out: divide([10, 20], 0)")
		require.False(t, results[0].Failed())
		assert.Equal(t, []any{0.0, 0.0}, results[0].Value.Column)
	})
	t.Run("stored column operand", func(t *testing.T) {
		rt := NewRuntime(variables.NewStore())
		results := runPlan(t, rt, `
base: sort_asc([2, 1, 3])
out: subtract([10, 10, 10], base)
`)
		require.False(t, results[1].Failed(), results[1].Err)
		assert.Equal(t, []any{9.0, 8.0, 7.0}, results[1].Value.Column)
	})
	t.Run("rounds to two decimals", func(t *testing.T) {
		rt := NewRuntime(variables.NewStore())
		results := runPlan(t, rt, "out: divide([10], 3)")
		require.False(t, results[0].Failed())
		assert.Equal(t, []any{3.33}, results[0].Value.Column)
	})
}

func TestRuntime_TableOp(t *testing.T) {
	t.Run("labeled scalars make one row", func(t *testing.T) {
		rt := NewRuntime(variables.NewStore())
		results := runPlan(t, rt, `
q1_total: sum([10, 20, 30])
growth: pct_change(q1_total, 75)
overview: table(Total Sales: q1_total, Growth: growth)
`)
		require.False(t, results[2].Failed(), results[2].Err)
		table := results[2].Value.Table
		require.NotNil(t, table)
		assert.Equal(t, []string{"Total Sales", "Growth"}, table.Columns)
		require.Len(t, table.Rows, 1)
		assert.Equal(t, []any{60.0, 25.0}, table.Rows[0])
	})
	t.Run("scalar broadcasts across column rows", func(t *testing.T) {
		rt := NewRuntime(variables.NewStore())
		results := runPlan(t, rt, `out: table(Day: ["Mon", "Tue", "Wed"], Target: 100)`)
		require.False(t, results[0].Failed(), results[0].Err)
		table := results[0].Value.Table
		require.Len(t, table.Rows, 3)
		assert.Equal(t, []any{"Tue", 100.0}, table.Rows[1])
	})
	t.Run("mismatched columns truncate with note", func(t *testing.T) {
		rt := NewRuntime(variables.NewStore())
		results := runPlan(t, rt, `out: table(A: [1, 2, 3], B: [4, 5])`)
		require.False(t, results[0].Failed(), results[0].Err)
		require.Len(t, results[0].Value.Table.Rows, 2)
		assert.Contains(t, results[0].Value.Note, "truncated to 2")
	})
	t.Run("projects table columns by label", func(t *testing.T) {
		rt := NewRuntime(variables.NewStore())
		results := runPlan(t, rt, `
overview: table(Day: ["Mon", "Tue"], Sales: [10, 20])
total: sum(overview[Sales])
`)
		require.False(t, results[1].Failed(), results[1].Err)
		assert.Equal(t, 30.0, results[1].Value.Number)
	})
}

func TestRuntime_UnknownOperation(t *testing.T) {
	rt := NewRuntime(variables.NewStore())
	results := runPlan(t, rt, "out: median([1, 2, 3])")
	require.True(t, results[0].Failed())
	assert.Contains(t, results[0].Err, "unknown operation")
}
