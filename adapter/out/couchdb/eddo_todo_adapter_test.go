package couchdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eddo_server/core/port/out"
	"eddo_server/pkg/apperr"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestBuildTodoSelectorIndexRouting(t *testing.T) {
	cases := []struct {
		name  string
		query out.TodoQuery
		index string
	}{
		{"unfiltered", out.TodoQuery{}, idxVersionDue},
		{"context only", out.TodoQuery{Context: strPtr("work")}, idxVersionContextDue},
		{"completion only", out.TodoQuery{Completed: boolPtr(true)}, idxVersionCompletedDue},
		{"open only", out.TodoQuery{Completed: boolPtr(false)}, idxVersionCompletedDue},
		{"completed range", out.TodoQuery{CompletedFrom: "2026-01-01T00:00:00.000Z"}, idxVersionCompletedDue},
		{"context and completion", out.TodoQuery{Context: strPtr("work"), Completed: boolPtr(true)}, idxVersionContextCompletedDue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, index, err := buildTodoSelector(tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.index, index)
		})
	}
}

func TestBuildTodoSelectorShapes(t *testing.T) {
	selector, _, err := buildTodoSelector(out.TodoQuery{
		Context:  strPtr("work"),
		DateFrom: "2026-01-01T00:00:00.000Z",
		DateTo:   "2026-01-31T23:59:59.999Z",
		Tags:     []string{"gtd:next", "a"},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"$exists": true}, selector["version"])
	assert.Equal(t, "work", selector["context"])
	assert.Equal(t, map[string]any{
		"$gte": "2026-01-01T00:00:00.000Z",
		"$lte": "2026-01-31T23:59:59.999Z",
	}, selector["due"])
	assert.Equal(t, map[string]any{"$all": []string{"gtd:next", "a"}}, selector["tags"])
}

func TestBuildTodoSelectorDueAlwaysPresent(t *testing.T) {
	// The due sort requires the field in the selector even without a range.
	selector, _, err := buildTodoSelector(out.TodoQuery{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"$gt": nil}, selector["due"])
}

func TestBuildTodoSelectorCompletionStates(t *testing.T) {
	// Open todos match on completed == null.
	selector, _, err := buildTodoSelector(out.TodoQuery{Completed: boolPtr(false)})
	require.NoError(t, err)
	assert.Nil(t, selector["completed"])
	assert.Contains(t, selector, "completed")

	// Completed without a range matches any non-null timestamp.
	selector, _, err = buildTodoSelector(out.TodoQuery{Completed: boolPtr(true)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"$ne": nil}, selector["completed"])

	// A range narrows by completion timestamp.
	selector, _, err = buildTodoSelector(out.TodoQuery{
		Completed:     boolPtr(true),
		CompletedFrom: "2026-02-01T00:00:00.000Z",
		CompletedTo:   "2026-02-02T00:00:00.000Z",
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"$gte": "2026-02-01T00:00:00.000Z",
		"$lte": "2026-02-02T00:00:00.000Z",
	}, selector["completed"])
}

func TestBuildTodoSelectorRejectsRangeOnOpenTodos(t *testing.T) {
	_, _, err := buildTodoSelector(out.TodoQuery{
		Completed:     boolPtr(false),
		CompletedFrom: "2026-02-01T00:00:00.000Z",
	})
	assert.True(t, apperr.IsValidation(err))
}
