package in

import (
	"context"

	"eddo_server/core/domain"
	"eddo_server/core/port/out"
)

// CreateTodoRequest carries the fields a caller may set on a new todo.
// Due defaults to the end of the current UTC day when empty.
type CreateTodoRequest struct {
	Title       string
	Description string
	Context     string
	Due         string
	Tags        []string
	Repeat      *int
	Link        *string
	ExternalID  *string
	Metadata    map[string]any
}

// TodoListResult is a list response plus its pagination block and the
// filters that were actually applied.
type TodoListResult struct {
	Todos   []*domain.Todo
	Count   int
	Limit   int
	HasMore bool
	Filters map[string]any
}

// ToggleResult reports a completion toggle. Successor is non-nil when the
// repeat policy scheduled a follow-up todo.
type ToggleResult struct {
	Todo      *domain.Todo
	Successor *domain.Todo
}

// TodoService is the per-user todo surface consumed by the tool server and
// the sync scheduler. Patches arrive as decoded JSON so an explicit null can
// clear a nullable field while an absent key preserves it.
type TodoService interface {
	Create(ctx context.Context, req CreateTodoRequest) (*domain.Todo, error)
	Get(ctx context.Context, id string) (*domain.Todo, error)
	// List treats a not-yet-provisioned database as an empty result.
	List(ctx context.Context, q out.TodoQuery) (*TodoListResult, error)
	Update(ctx context.Context, id string, patch map[string]any) (*domain.Todo, error)
	// ToggleCompletion applies the repeat policy when completing a todo with
	// a repeat interval.
	ToggleCompletion(ctx context.Context, id string, completed bool) (*ToggleResult, error)
	Delete(ctx context.Context, id string) error
	StartTimeTracking(ctx context.Context, id string) (*domain.Todo, error)
	// StopTimeTracking returns stopped=false when no timer was running.
	StopTimeTracking(ctx context.Context, id string) (todo *domain.Todo, stopped bool, err error)
	ActiveTimeTracking(ctx context.Context) ([]*domain.Todo, error)
	TagStats(ctx context.Context) (map[string]int, error)
}
