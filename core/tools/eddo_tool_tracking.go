package tools

import (
	"context"
	"fmt"
)

// StartTimeTrackingTool starts a timer on a todo. At most one timer may run
// per todo; a second start is rejected.
type StartTimeTrackingTool struct{}

func (t *StartTimeTrackingTool) Name() string { return "startTimeTracking" }

func (t *StartTimeTrackingTool) Description() string {
	return "Start time tracking on a todo. Fails when a timer is already running."
}

func (t *StartTimeTrackingTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "id", Type: "string", Description: "Todo id", Required: true},
	}
}

func (t *StartTimeTrackingTool) Execute(ctx context.Context, sess *Session, args map[string]any) (map[string]any, string, error) {
	todo, err := sess.Todos.StartTimeTracking(ctx, stringArg(args, "id"))
	if err != nil {
		return nil, "", err
	}
	data := map[string]any{
		"id":         todo.ID,
		"title":      todo.Title,
		"started_at": todo.ActiveSession(),
	}
	return data, fmt.Sprintf("Started time tracking on %q", todo.Title), nil
}

// StopTimeTrackingTool closes a todo's running timer.
type StopTimeTrackingTool struct{}

func (t *StopTimeTrackingTool) Name() string { return "stopTimeTracking" }

func (t *StopTimeTrackingTool) Description() string {
	return "Stop the running timer on a todo. A todo without a running timer is reported, not an error."
}

func (t *StopTimeTrackingTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "id", Type: "string", Description: "Todo id", Required: true},
	}
}

func (t *StopTimeTrackingTool) Execute(ctx context.Context, sess *Session, args map[string]any) (map[string]any, string, error) {
	todo, stopped, err := sess.Todos.StopTimeTracking(ctx, stringArg(args, "id"))
	if err != nil {
		return nil, "", err
	}
	data := map[string]any{
		"id":      todo.ID,
		"title":   todo.Title,
		"stopped": stopped,
	}
	if !stopped {
		return data, fmt.Sprintf("No active time tracking session on %q", todo.Title), nil
	}
	return data, fmt.Sprintf("Stopped time tracking on %q", todo.Title), nil
}

// ActiveTimeTrackingTool lists todos with a running timer.
type ActiveTimeTrackingTool struct{}

func (t *ActiveTimeTrackingTool) Name() string { return "getActiveTimeTracking" }

func (t *ActiveTimeTrackingTool) Description() string {
	return "List todos that currently have a running time-tracking session."
}

func (t *ActiveTimeTrackingTool) Parameters() []ParameterSpec { return nil }

func (t *ActiveTimeTrackingTool) Execute(ctx context.Context, sess *Session, args map[string]any) (map[string]any, string, error) {
	todos, err := sess.Todos.ActiveTimeTracking(ctx)
	if err != nil {
		return nil, "", err
	}
	items := make([]map[string]any, 0, len(todos))
	for _, todo := range todos {
		item := todoPayload(todo)
		item["started_at"] = todo.ActiveSession()
		items = append(items, item)
	}
	data := map[string]any{
		"todos":                items,
		"active_session_count": len(items),
	}
	return data, fmt.Sprintf("%d active time tracking sessions", len(items)), nil
}
