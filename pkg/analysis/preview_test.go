package analysis

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilotdeck/pilotdeck/pkg/variables"
)

func TestBuildPreviews_TabularVariable(t *testing.T) {
	store := usersStore(t)
	out := BuildPreviews(store, []string{"active_users"})

	assert.Contains(t, out, "active_users (4 rows)")
	assert.Contains(t, out, "date (string) | users (number)")
	assert.Contains(t, out, "2025-11-01 | 120")
	assert.Contains(t, out, "2025-11-03 | 101")
	assert.Contains(t, out, "... 1 more rows")
	assert.NotContains(t, out, "2025-11-04", "preview must stop after three rows")
}

func TestBuildPreviews_FieldRefUsesBaseVariable(t *testing.T) {
	store := usersStore(t)
	out := BuildPreviews(store, []string{"active_users[users]", "active_users[date]"})

	assert.Equal(t, 1, strings.Count(out, "active_users (4 rows)"), "same variable previewed once")
}

func TestBuildPreviews_OtherShapes(t *testing.T) {
	store := variables.NewStore()
	require.NoError(t, store.Put(variables.Variable{
		Name:       "ids",
		ActualData: []any{float64(1), float64(2), float64(3)},
	}))
	require.NoError(t, store.Put(variables.Variable{
		Name:       "limits",
		ActualData: map[string]any{"region": "us-east-1", "max": float64(20)},
	}))
	require.NoError(t, store.Put(variables.Variable{
		Name:       "total",
		ActualData: float64(42),
	}))

	out := BuildPreviews(store, []string{"ids", "limits", "total", "missing"})
	assert.Contains(t, out, "ids (3 values)")
	assert.Contains(t, out, "[1, 2, 3]")
	assert.Contains(t, out, "limits (object)")
	assert.Contains(t, out, "max: 20")
	assert.Contains(t, out, "region: us-east-1")
	assert.Contains(t, out, "total: 42")
	assert.Contains(t, out, "missing: not found")
}

func TestBuildPreviews_NoRefs(t *testing.T) {
	assert.Equal(t, "No data variables referenced.", BuildPreviews(variables.NewStore(), nil))
}
