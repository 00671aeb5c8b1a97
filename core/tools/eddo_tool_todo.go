package tools

import (
	"context"
	"fmt"

	"eddo_server/core/domain"
	"eddo_server/core/port/in"
	"eddo_server/core/port/out"
)

// todoPayload renders a todo for tool output.
func todoPayload(t *domain.Todo) map[string]any {
	return map[string]any{
		"_id":         t.ID,
		"title":       t.Title,
		"description": t.Description,
		"context":     t.Context,
		"due":         t.Due,
		"tags":        t.Tags,
		"completed":   t.Completed,
		"active":      t.Active,
		"repeat":      t.Repeat,
		"link":        t.Link,
		"externalId":  t.ExternalID,
		"metadata":    t.Metadata,
		"version":     t.Version,
	}
}

func todoPayloads(todos []*domain.Todo) []map[string]any {
	payloads := make([]map[string]any, 0, len(todos))
	for _, t := range todos {
		payloads = append(payloads, todoPayload(t))
	}
	return payloads
}

// CreateTodoTool creates a new todo in the caller's database.
type CreateTodoTool struct{}

func (t *CreateTodoTool) Name() string { return "createTodo" }

func (t *CreateTodoTool) Description() string {
	return "Create a new todo. Due defaults to the end of the current UTC day."
}

func (t *CreateTodoTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "title", Type: "string", Description: "Todo title", Required: true},
		{Name: "description", Type: "string", Description: "Longer description, markdown allowed"},
		{Name: "context", Type: "string", Description: "GTD context tag, e.g. work or private"},
		{Name: "due", Type: "string", Description: "Due timestamp (ISO-8601 UTC)"},
		{Name: "tags", Type: "array", Description: "Tags, including structured gtd:* tags"},
		{Name: "repeat", Type: "number", Description: "Repeat interval in days"},
		{Name: "link", Type: "string", Description: "Associated URL"},
		{Name: "externalId", Type: "string", Description: "Deduplication key for ingested items"},
	}
}

func (t *CreateTodoTool) Execute(ctx context.Context, sess *Session, args map[string]any) (map[string]any, string, error) {
	req := in.CreateTodoRequest{
		Title:       stringArg(args, "title"),
		Description: stringArg(args, "description"),
		Context:     stringArg(args, "context"),
		Due:         stringArg(args, "due"),
		Tags:        stringSliceArg(args, "tags"),
	}
	if repeat, ok := intArg(args, "repeat"); ok {
		req.Repeat = &repeat
	}
	if link := stringArg(args, "link"); link != "" {
		req.Link = &link
	}
	if externalID := stringArg(args, "externalId"); externalID != "" {
		req.ExternalID = &externalID
	}

	todo, err := sess.Todos.Create(ctx, req)
	if err != nil {
		return nil, "", err
	}
	data := map[string]any{
		"id":      todo.ID,
		"title":   todo.Title,
		"due":     todo.Due,
		"context": todo.Context,
	}
	return data, fmt.Sprintf("Created todo %q due %s", todo.Title, todo.Due), nil
}

// ListTodosTool queries todos with index-routed filters.
type ListTodosTool struct{}

func (t *ListTodosTool) Name() string { return "listTodos" }

func (t *ListTodosTool) Description() string {
	return "List todos filtered by context, completion state, due date range or external id."
}

func (t *ListTodosTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "context", Type: "string", Description: "Only todos with this context"},
		{Name: "completed", Type: "boolean", Description: "true for completed, false for open"},
		{Name: "dateFrom", Type: "string", Description: "Due on or after this timestamp"},
		{Name: "dateTo", Type: "string", Description: "Due on or before this timestamp"},
		{Name: "completedFrom", Type: "string", Description: "Completed on or after this timestamp (requires completed=true)"},
		{Name: "completedTo", Type: "string", Description: "Completed on or before this timestamp (requires completed=true)"},
		{Name: "tags", Type: "array", Description: "Only todos carrying all of these tags"},
		{Name: "externalId", Type: "string", Description: "Exact dedup-key match; returns at most one todo"},
		{Name: "limit", Type: "number", Description: "Page size, default 100"},
	}
}

func (t *ListTodosTool) Execute(ctx context.Context, sess *Session, args map[string]any) (map[string]any, string, error) {
	q := out.TodoQuery{
		DateFrom:      stringArg(args, "dateFrom"),
		DateTo:        stringArg(args, "dateTo"),
		CompletedFrom: stringArg(args, "completedFrom"),
		CompletedTo:   stringArg(args, "completedTo"),
		Tags:          stringSliceArg(args, "tags"),
		ExternalID:    stringArg(args, "externalId"),
	}
	if c, ok := args["context"].(string); ok {
		q.Context = &c
	}
	if completed, ok := boolArg(args, "completed"); ok {
		q.Completed = &completed
	}
	if limit, ok := intArg(args, "limit"); ok {
		q.Limit = limit
	}

	result, err := sess.Todos.List(ctx, q)
	if err != nil {
		return nil, "", err
	}
	data := map[string]any{
		"todos": todoPayloads(result.Todos),
		"pagination": map[string]any{
			"count":    result.Count,
			"limit":    result.Limit,
			"has_more": result.HasMore,
		},
		"filters": result.Filters,
	}
	return data, fmt.Sprintf("Found %d todos", result.Count), nil
}

// GetTodoTool reads one todo by id.
type GetTodoTool struct{}

func (t *GetTodoTool) Name() string        { return "getTodo" }
func (t *GetTodoTool) Description() string { return "Fetch a single todo by id." }

func (t *GetTodoTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "id", Type: "string", Description: "Todo id", Required: true},
	}
}

func (t *GetTodoTool) Execute(ctx context.Context, sess *Session, args map[string]any) (map[string]any, string, error) {
	todo, err := sess.Todos.Get(ctx, stringArg(args, "id"))
	if err != nil {
		return nil, "", err
	}
	return map[string]any{"todo": todoPayload(todo)}, fmt.Sprintf("Todo %q", todo.Title), nil
}

// UpdateTodoTool patches a todo. Absent fields are preserved; explicit nulls
// clear nullable fields.
type UpdateTodoTool struct{}

func (t *UpdateTodoTool) Name() string { return "updateTodo" }

func (t *UpdateTodoTool) Description() string {
	return "Update fields of a todo. Omitted fields keep their value; null clears a nullable field."
}

func (t *UpdateTodoTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "id", Type: "string", Description: "Todo id", Required: true},
		{Name: "title", Type: "string", Description: "New title"},
		{Name: "description", Type: "string", Description: "New description"},
		{Name: "context", Type: "string", Description: "New context"},
		{Name: "due", Type: "string", Description: "New due timestamp"},
		{Name: "tags", Type: "array", Description: "Replacement tag list"},
		{Name: "repeat", Type: "number", Description: "Repeat interval in days, or null to clear"},
		{Name: "link", Type: "string", Description: "Associated URL, or null to clear"},
		{Name: "externalId", Type: "string", Description: "Dedup key, or null to clear"},
		{Name: "metadata", Type: "object", Description: "Replacement metadata mapping"},
	}
}

func (t *UpdateTodoTool) Execute(ctx context.Context, sess *Session, args map[string]any) (map[string]any, string, error) {
	id := stringArg(args, "id")
	patch := make(map[string]any, len(args))
	for key, value := range args {
		if key == "id" {
			continue
		}
		patch[key] = value
	}
	todo, err := sess.Todos.Update(ctx, id, patch)
	if err != nil {
		return nil, "", err
	}
	return map[string]any{"todo": todoPayload(todo)}, fmt.Sprintf("Updated todo %q", todo.Title), nil
}

// ToggleTodoCompletionTool completes or reopens a todo, applying the repeat
// policy on completion.
type ToggleTodoCompletionTool struct{}

func (t *ToggleTodoCompletionTool) Name() string { return "toggleTodoCompletion" }

func (t *ToggleTodoCompletionTool) Description() string {
	return "Complete or reopen a todo. Completing a repeating todo schedules its successor."
}

func (t *ToggleTodoCompletionTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "id", Type: "string", Description: "Todo id", Required: true},
		{Name: "completed", Type: "boolean", Description: "true to complete, false to reopen", Required: true},
	}
}

func (t *ToggleTodoCompletionTool) Execute(ctx context.Context, sess *Session, args map[string]any) (map[string]any, string, error) {
	id := stringArg(args, "id")
	completed, _ := boolArg(args, "completed")

	result, err := sess.Todos.ToggleCompletion(ctx, id, completed)
	if err != nil {
		return nil, "", err
	}

	data := map[string]any{
		"id":        result.Todo.ID,
		"title":     result.Todo.Title,
		"completed": result.Todo.Completed,
	}
	summary := fmt.Sprintf("Reopened todo %q", result.Todo.Title)
	if completed {
		summary = fmt.Sprintf("Completed todo %q", result.Todo.Title)
	}
	if result.Successor != nil {
		data["new_todo_id"] = result.Successor.ID
		data["new_due_date"] = result.Successor.Due
		data["repeat_type"] = string(result.Todo.RepeatTypeFor())
		summary = fmt.Sprintf("Completed todo %q; next occurrence due %s", result.Todo.Title, result.Successor.Due)
	}
	return data, summary, nil
}

// DeleteTodoTool destroys a todo.
type DeleteTodoTool struct{}

func (t *DeleteTodoTool) Name() string        { return "deleteTodo" }
func (t *DeleteTodoTool) Description() string { return "Delete a todo permanently." }

func (t *DeleteTodoTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "id", Type: "string", Description: "Todo id", Required: true},
	}
}

func (t *DeleteTodoTool) Execute(ctx context.Context, sess *Session, args map[string]any) (map[string]any, string, error) {
	id := stringArg(args, "id")
	if err := sess.Todos.Delete(ctx, id); err != nil {
		return nil, "", err
	}
	return map[string]any{"id": id}, fmt.Sprintf("Deleted todo %s", id), nil
}
