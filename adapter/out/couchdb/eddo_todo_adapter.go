package couchdb

import (
	"context"
	"sync"

	"github.com/goccy/go-json"

	"eddo_server/core/domain"
	"eddo_server/core/port/out"
	"eddo_server/pkg/apperr"
	"eddo_server/pkg/logger"
)

// Mango index names pre-declared on every user database.
const (
	idxVersionDue                 = "version-due-index"
	idxVersionContextDue          = "version-context-due-index"
	idxVersionCompletedDue        = "version-completed-due-index"
	idxVersionContextCompletedDue = "version-context-completed-due-index"
	idxExternalID                 = "externalId-index"
)

// TodoAdapter implements out.TodoRepository over one per-user database.
// Reads migrate older document versions to alpha3 and write the upgrade back
// in the background.
type TodoAdapter struct {
	db  out.Database
	log *logger.Logger

	externalIDOnce sync.Once
}

func NewTodoAdapter(db out.Database) *TodoAdapter {
	return &TodoAdapter{
		db:  db,
		log: logger.Default().WithField("component", "todo_store").WithField("database", db.Name()),
	}
}

// EnsureIndexes declares the four version/due indexes. The externalId index
// is created lazily on the first dedup query instead.
func (a *TodoAdapter) EnsureIndexes(ctx context.Context) error {
	indexes := []struct {
		name   string
		fields []string
	}{
		{idxVersionDue, []string{"version", "due"}},
		{idxVersionContextDue, []string{"version", "context", "due"}},
		{idxVersionCompletedDue, []string{"version", "completed", "due"}},
		{idxVersionContextCompletedDue, []string{"version", "context", "completed", "due"}},
	}
	for _, idx := range indexes {
		if err := a.db.CreateIndex(ctx, idx.name, idx.fields); err != nil {
			return err
		}
	}
	return nil
}

func (a *TodoAdapter) ensureExternalIDIndex(ctx context.Context) {
	a.externalIDOnce.Do(func() {
		if err := a.db.CreateIndex(ctx, idxExternalID, []string{"externalId"}); err != nil {
			a.log.WithError(err).Warn("failed to create externalId index")
		}
	})
}

func (a *TodoAdapter) Get(ctx context.Context, id string) (*domain.Todo, error) {
	var doc map[string]any
	if err := a.db.Get(ctx, id, &doc); err != nil {
		return nil, err
	}
	return a.migrated(ctx, doc)
}

// migrated converts a raw document to the alpha3 shape. When the stored
// version was older, the upgraded document is written back without blocking
// the caller; a failed write-back is logged only.
func (a *TodoAdapter) migrated(ctx context.Context, doc map[string]any) (*domain.Todo, error) {
	wasLatest := domain.IsLatestTodoVersion(doc)
	todo, err := domain.TodoFromDoc(doc)
	if err != nil {
		return nil, apperr.DatabaseError("decode todo", err)
	}
	if !wasLatest {
		upgraded := *todo
		go func() {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeBackTimeout)
			defer cancel()
			if _, err := a.db.Put(ctx, upgraded.ID, &upgraded); err != nil {
				a.log.WithError(err).WithField("todo_id", upgraded.ID).Warn("migration write-back failed")
			}
		}()
	}
	return todo, nil
}

func (a *TodoAdapter) Put(ctx context.Context, todo *domain.Todo) (string, error) {
	todo.Version = domain.VersionAlpha3
	rev, err := a.db.Put(ctx, todo.ID, todo)
	if err != nil {
		return "", err
	}
	todo.Rev = rev
	return rev, nil
}

func (a *TodoAdapter) Delete(ctx context.Context, id, rev string) error {
	return a.db.Delete(ctx, id, rev)
}

// List builds a Mango selector from the query and routes it to the matching
// pre-declared index.
func (a *TodoAdapter) List(ctx context.Context, q out.TodoQuery) ([]*domain.Todo, error) {
	if q.ExternalID != "" {
		todo, err := a.FindByExternalID(ctx, q.ExternalID)
		if err != nil {
			return nil, err
		}
		if todo == nil {
			return []*domain.Todo{}, nil
		}
		return []*domain.Todo{todo}, nil
	}

	selector, index, err := buildTodoSelector(q)
	if err != nil {
		return nil, err
	}
	opts := out.FindOptions{
		Sort:     []map[string]string{{"due": "asc"}},
		UseIndex: index,
		Limit:    q.Limit,
	}
	raws, err := a.db.Find(ctx, selector, opts)
	if err != nil {
		return nil, err
	}
	return a.decodeAll(ctx, raws)
}

// buildTodoSelector returns the selector and the index it is shaped for.
func buildTodoSelector(q out.TodoQuery) (map[string]any, string, error) {
	selector := map[string]any{
		"version": map[string]any{"$exists": true},
	}

	due := map[string]any{}
	if q.DateFrom != "" {
		due["$gte"] = q.DateFrom
	}
	if q.DateTo != "" {
		due["$lte"] = q.DateTo
	}
	if len(due) == 0 {
		// The due sort requires the field in the selector.
		due["$gt"] = nil
	}
	selector["due"] = due

	hasContext := q.Context != nil
	if hasContext {
		selector["context"] = *q.Context
	}

	hasCompletion := false
	switch {
	case q.Completed != nil && !*q.Completed:
		if q.CompletedFrom != "" || q.CompletedTo != "" {
			return nil, "", apperr.InvalidInput("completed", "completion date range requires completed=true")
		}
		selector["completed"] = nil
		hasCompletion = true
	case q.CompletedFrom != "" || q.CompletedTo != "":
		completed := map[string]any{}
		if q.CompletedFrom != "" {
			completed["$gte"] = q.CompletedFrom
		}
		if q.CompletedTo != "" {
			completed["$lte"] = q.CompletedTo
		}
		selector["completed"] = completed
		hasCompletion = true
	case q.Completed != nil:
		selector["completed"] = map[string]any{"$ne": nil}
		hasCompletion = true
	}

	if len(q.Tags) > 0 {
		selector["tags"] = map[string]any{"$all": q.Tags}
	}

	var index string
	switch {
	case hasContext && hasCompletion:
		index = idxVersionContextCompletedDue
	case hasContext:
		index = idxVersionContextDue
	case hasCompletion:
		index = idxVersionCompletedDue
	default:
		index = idxVersionDue
	}
	return selector, index, nil
}

// FindByExternalID resolves the dedup key; a miss returns (nil, nil).
func (a *TodoAdapter) FindByExternalID(ctx context.Context, externalID string) (*domain.Todo, error) {
	a.ensureExternalIDIndex(ctx)
	raws, err := a.db.Find(ctx, map[string]any{"externalId": externalID}, out.FindOptions{
		UseIndex: idxExternalID,
		Limit:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(raws) == 0 {
		return nil, nil
	}
	todos, err := a.decodeAll(ctx, raws[:1])
	if err != nil {
		return nil, err
	}
	return todos[0], nil
}

// ActiveTracking returns todos with a running timer.
func (a *TodoAdapter) ActiveTracking(ctx context.Context) ([]*domain.Todo, error) {
	raws, err := a.db.Find(ctx, map[string]any{
		"version": map[string]any{"$exists": true},
		"due":     map[string]any{"$gt": nil},
	}, out.FindOptions{
		Sort:     []map[string]string{{"due": "asc"}},
		UseIndex: idxVersionDue,
	})
	if err != nil {
		return nil, err
	}
	todos, err := a.decodeAll(ctx, raws)
	if err != nil {
		return nil, err
	}
	active := make([]*domain.Todo, 0)
	for _, t := range todos {
		if t.ActiveSession() != "" {
			active = append(active, t)
		}
	}
	return active, nil
}

// TagStats aggregates tag usage via the tags/by_tag grouped reduce view.
func (a *TodoAdapter) TagStats(ctx context.Context) (map[string]int, error) {
	rows, err := a.db.QueryView(ctx, "tags", "by_tag", out.ViewOptions{Group: true, Reduce: true})
	if err != nil {
		if apperr.IsNotFound(err) {
			return map[string]int{}, nil
		}
		return nil, err
	}
	stats := make(map[string]int, len(rows))
	for _, row := range rows {
		tag, ok := row.Key.(string)
		if !ok {
			continue
		}
		if count, ok := row.Value.(float64); ok {
			stats[tag] = int(count)
		}
	}
	return stats, nil
}

func (a *TodoAdapter) decodeAll(ctx context.Context, raws []json.RawMessage) ([]*domain.Todo, error) {
	todos := make([]*domain.Todo, 0, len(raws))
	for _, raw := range raws {
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, apperr.DatabaseError("decode todo", err)
		}
		todo, err := a.migrated(ctx, doc)
		if err != nil {
			return nil, err
		}
		todos = append(todos, todo)
	}
	return todos, nil
}
