package todo

import (
	"context"
	"time"

	"eddo_server/core/domain"
	"eddo_server/core/port/in"
	"eddo_server/core/port/out"
	"eddo_server/pkg/apperr"
	"eddo_server/pkg/logger"
)

const defaultListLimit = 100

// Service implements in.TodoService for one user database. Every mutation
// emits an audit entry attributed to the session's source; audit failures are
// logged and swallowed so they never fail the user-facing operation.
type Service struct {
	repo   out.TodoRepository
	store  out.DocumentStore
	dbName string
	audit  out.AuditStore
	source domain.AuditSource
	log    *logger.Logger
}

func NewService(repo out.TodoRepository, store out.DocumentStore, dbName string, audit out.AuditStore, source domain.AuditSource) *Service {
	return &Service{
		repo:   repo,
		store:  store,
		dbName: dbName,
		audit:  audit,
		source: source,
		log:    logger.Default().WithField("component", "todo_service").WithField("database", dbName),
	}
}

// ensureReady provisions the user database and its indexes before a write.
func (s *Service) ensureReady(ctx context.Context) error {
	if err := s.store.EnsureDB(ctx, s.dbName); err != nil {
		return err
	}
	return s.repo.EnsureIndexes(ctx)
}

func (s *Service) Create(ctx context.Context, req in.CreateTodoRequest) (*domain.Todo, error) {
	if req.Title == "" {
		return nil, apperr.MissingField("title")
	}
	if err := s.ensureReady(ctx); err != nil {
		return nil, err
	}

	now := time.Now()
	todo := domain.NewTodo(now)
	todo.Title = req.Title
	todo.Description = req.Description
	todo.Context = req.Context
	if todo.Context == "" {
		todo.Context = "private"
	}
	todo.Due = req.Due
	if todo.Due == "" {
		todo.Due = domain.EndOfDay(now)
	}
	if req.Tags != nil {
		todo.Tags = req.Tags
	}
	todo.Repeat = req.Repeat
	todo.Link = req.Link
	todo.ExternalID = req.ExternalID
	if req.Metadata != nil {
		todo.Metadata = req.Metadata
	}

	if _, err := s.repo.Put(ctx, todo); err != nil {
		return nil, err
	}
	s.writeAudit(ctx, domain.AuditCreate, todo.ID, nil, todo)
	return todo, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Todo, error) {
	return s.repo.Get(ctx, id)
}

// List queries with the selector built from q. A database that does not
// exist yet is an empty result, not an error.
func (s *Service) List(ctx context.Context, q out.TodoQuery) (*in.TodoListResult, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	q.Limit = limit + 1 // probe for has_more

	todos, err := s.repo.List(ctx, q)
	if err != nil {
		if apperr.IsNotFound(err) {
			todos = nil
		} else {
			return nil, err
		}
	}

	result := &in.TodoListResult{
		Todos:   todos,
		Limit:   limit,
		Filters: appliedFilters(q),
	}
	if len(todos) > limit {
		result.Todos = todos[:limit]
		result.HasMore = true
	}
	result.Count = len(result.Todos)
	return result, nil
}

func appliedFilters(q out.TodoQuery) map[string]any {
	filters := map[string]any{}
	if q.Context != nil {
		filters["context"] = *q.Context
	}
	if q.Completed != nil {
		filters["completed"] = *q.Completed
	}
	if q.DateFrom != "" {
		filters["dateFrom"] = q.DateFrom
	}
	if q.DateTo != "" {
		filters["dateTo"] = q.DateTo
	}
	if q.CompletedFrom != "" {
		filters["completedFrom"] = q.CompletedFrom
	}
	if q.CompletedTo != "" {
		filters["completedTo"] = q.CompletedTo
	}
	if len(q.Tags) > 0 {
		filters["tags"] = q.Tags
	}
	if q.ExternalID != "" {
		filters["externalId"] = q.ExternalID
	}
	return filters
}

// Update performs a read-modify-write. Keys absent from patch are preserved;
// an explicit null clears the corresponding nullable field. The _id and
// version are never patchable.
func (s *Service) Update(ctx context.Context, id string, patch map[string]any) (*domain.Todo, error) {
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *before.Clone()
	if err := applyPatch(&updated, patch); err != nil {
		return nil, err
	}
	if _, err := s.repo.Put(ctx, &updated); err != nil {
		return nil, err
	}
	s.writeAudit(ctx, domain.AuditUpdate, id, before, &updated)
	return &updated, nil
}

func applyPatch(todo *domain.Todo, patch map[string]any) error {
	for key, value := range patch {
		switch key {
		case "title":
			str, ok := value.(string)
			if !ok {
				return apperr.InvalidInput("title", "must be a string")
			}
			todo.Title = str
		case "description":
			str, _ := value.(string)
			todo.Description = str
		case "context":
			str, _ := value.(string)
			todo.Context = str
		case "due":
			str, ok := value.(string)
			if !ok || str == "" {
				return apperr.InvalidInput("due", "must be a non-empty timestamp")
			}
			todo.Due = str
		case "tags":
			todo.Tags = toStringSlice(value)
		case "completed":
			if value == nil {
				todo.Completed = nil
			} else if str, ok := value.(string); ok {
				todo.Completed = &str
			} else {
				return apperr.InvalidInput("completed", "must be a timestamp or null")
			}
		case "repeat":
			if value == nil {
				todo.Repeat = nil
			} else if num, ok := value.(float64); ok {
				days := int(num)
				todo.Repeat = &days
			} else {
				return apperr.InvalidInput("repeat", "must be a day count or null")
			}
		case "link":
			if value == nil {
				todo.Link = nil
			} else if str, ok := value.(string); ok {
				todo.Link = &str
			} else {
				return apperr.InvalidInput("link", "must be a URL or null")
			}
		case "externalId":
			if value == nil {
				todo.ExternalID = nil
			} else if str, ok := value.(string); ok {
				todo.ExternalID = &str
			} else {
				return apperr.InvalidInput("externalId", "must be a string or null")
			}
		case "metadata":
			if value == nil {
				todo.Metadata = map[string]any{}
			} else if m, ok := value.(map[string]any); ok {
				todo.Metadata = m
			} else {
				return apperr.InvalidInput("metadata", "must be an object or null")
			}
		case "_id", "_rev", "version":
			return apperr.InvalidInput(key, "not patchable")
		default:
			return apperr.InvalidInput(key, "unknown field")
		}
	}
	return nil
}

func toStringSlice(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				tags = append(tags, str)
			}
		}
		return tags
	default:
		return []string{}
	}
}

// ToggleCompletion completes or reopens a todo. Completing a repeating todo
// also persists its successor; both writes are required, and a failed
// successor write is surfaced after the completion audit event has been
// recorded.
func (s *Service) ToggleCompletion(ctx context.Context, id string, completed bool) (*in.ToggleResult, error) {
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *before.Clone()

	if !completed {
		updated.Completed = nil
		if _, err := s.repo.Put(ctx, &updated); err != nil {
			return nil, err
		}
		s.writeAudit(ctx, domain.AuditUncomplete, id, before, &updated)
		return &in.ToggleResult{Todo: &updated}, nil
	}

	now := time.Now()
	ts := domain.Timestamp(now)
	updated.Completed = &ts
	if _, err := s.repo.Put(ctx, &updated); err != nil {
		return nil, err
	}
	s.writeAudit(ctx, domain.AuditComplete, id, before, &updated)

	result := &in.ToggleResult{Todo: &updated}
	if updated.Repeat != nil {
		successor, err := updated.Successor(now)
		if err != nil {
			return nil, apperr.InternalWithError(err)
		}
		if _, err := s.repo.Put(ctx, successor); err != nil {
			return nil, apperr.DatabaseError("persist repeat successor", err)
		}
		s.writeAudit(ctx, domain.AuditCreate, successor.ID, nil, successor)
		result.Successor = successor
	}
	return result, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, before.Rev); err != nil {
		return err
	}
	s.writeAudit(ctx, domain.AuditDelete, id, before, nil)
	return nil
}

func (s *Service) StartTimeTracking(ctx context.Context, id string) (*domain.Todo, error) {
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	updated := *before.Clone()
	if err := updated.StartTracking(time.Now()); err != nil {
		return nil, apperr.ValidationFailed(err.Error())
	}
	if _, err := s.repo.Put(ctx, &updated); err != nil {
		return nil, err
	}
	s.writeAudit(ctx, domain.AuditTimeTrackingStart, id, before, &updated)
	return &updated, nil
}

func (s *Service) StopTimeTracking(ctx context.Context, id string) (*domain.Todo, bool, error) {
	before, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, false, err
	}
	updated := *before.Clone()
	if !updated.StopTracking(time.Now()) {
		return before, false, nil
	}
	if _, err := s.repo.Put(ctx, &updated); err != nil {
		return nil, false, err
	}
	s.writeAudit(ctx, domain.AuditTimeTrackingStop, id, before, &updated)
	return &updated, true, nil
}

func (s *Service) ActiveTimeTracking(ctx context.Context) ([]*domain.Todo, error) {
	todos, err := s.repo.ActiveTracking(ctx)
	if err != nil {
		if apperr.IsNotFound(err) {
			return []*domain.Todo{}, nil
		}
		return nil, err
	}
	return todos, nil
}

func (s *Service) TagStats(ctx context.Context) (map[string]int, error) {
	return s.repo.TagStats(ctx)
}

// writeAudit records a mutation in the audit log. Failures are logged only;
// the mutation itself has already succeeded.
func (s *Service) writeAudit(ctx context.Context, action domain.AuditAction, entityID string, before, after *domain.Todo) {
	if s.audit == nil {
		return
	}
	entry := domain.NewAuditEntry(domain.Now(), action, entityID, s.source)
	entry.Before = before
	entry.After = after
	if err := s.audit.Insert(ctx, entry); err != nil {
		s.log.WithError(err).WithFields(map[string]any{
			"action":   string(action),
			"entityId": entityID,
		}).Warn("audit write failed")
	}
}

var _ in.TodoService = (*Service)(nil)
