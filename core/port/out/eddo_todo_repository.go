package out

import (
	"context"

	"eddo_server/core/domain"
)

// TodoQuery narrows a todo list. Completed distinguishes three states:
// nil (any), true (completed, optionally within CompletedFrom/To) and false
// (open). CompletedFrom/To with Completed == false is invalid input.
type TodoQuery struct {
	Context       *string
	Completed     *bool
	CompletedFrom string
	CompletedTo   string
	DateFrom      string
	DateTo        string
	Tags          []string
	ExternalID    string
	Limit         int
}

// TodoRepository is the per-user todo store. All reads return alpha3 shapes
// regardless of the stored version.
type TodoRepository interface {
	// EnsureIndexes declares the Mango indexes the query planner selects
	// among. Safe to call repeatedly.
	EnsureIndexes(ctx context.Context) error
	Get(ctx context.Context, id string) (*domain.Todo, error)
	// Put writes the todo (always alpha3) and returns the new revision.
	Put(ctx context.Context, todo *domain.Todo) (string, error)
	Delete(ctx context.Context, id, rev string) error
	List(ctx context.Context, q TodoQuery) ([]*domain.Todo, error)
	// FindByExternalID resolves the dedup key to at most one todo;
	// a miss returns (nil, nil).
	FindByExternalID(ctx context.Context, externalID string) (*domain.Todo, error)
	// ActiveTracking returns todos with a running timer.
	ActiveTracking(ctx context.Context) ([]*domain.Todo, error)
	// TagStats returns tag usage counts from the tags/by_tag reduce view.
	TagStats(ctx context.Context) (map[string]int, error)
}
