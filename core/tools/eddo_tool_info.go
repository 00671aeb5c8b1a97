package tools

import (
	"context"
	"fmt"
	"time"

	"eddo_server/core/domain"
	"eddo_server/core/port/out"
)

// UserInfoTool reports the caller's registry entry.
type UserInfoTool struct{}

func (t *UserInfoTool) Name() string        { return "getUserInfo" }
func (t *UserInfoTool) Description() string { return "Show the authenticated user's account details." }

func (t *UserInfoTool) Parameters() []ParameterSpec { return nil }

func (t *UserInfoTool) Execute(ctx context.Context, sess *Session, args map[string]any) (map[string]any, string, error) {
	data := map[string]any{
		"user_id":       sess.UserID,
		"username":      sess.Username,
		"database_name": sess.DBName,
	}
	if u := sess.User; u != nil {
		data["status"] = u.Status
		data["permissions"] = u.Permissions
		data["created_at"] = u.CreatedAt
		data["email_sync_enabled"] = u.Preferences.EmailSync
		if u.Email != nil {
			data["email"] = *u.Email
		}
		if u.TelegramID != nil {
			data["telegram_id"] = *u.TelegramID
		}
	}
	return data, fmt.Sprintf("User %s", sess.Username), nil
}

// ServerInfoTool is the introspection surface: an overview, aggregate tag
// statistics, and a digest of memory-tagged todos.
type ServerInfoTool struct{}

func (t *ServerInfoTool) Name() string { return "getServerInfo" }

func (t *ServerInfoTool) Description() string {
	return "Inspect the server: overview, tag statistics, or the user's memory digest."
}

func (t *ServerInfoTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "section", Type: "string", Description: "Which section to return",
			Enum: []string{"overview", "tags", "memories", "all"}, Default: "overview"},
	}
}

func (t *ServerInfoTool) Execute(ctx context.Context, sess *Session, args map[string]any) (map[string]any, string, error) {
	section := stringArg(args, "section")
	if section == "" {
		section = "overview"
	}

	data := map[string]any{}
	if section == "overview" || section == "all" {
		data["overview"] = map[string]any{
			"name":          "eddo-server",
			"database_name": sess.DBName,
			"timestamp":     domain.Now(),
		}
	}
	if section == "tags" || section == "all" {
		stats, err := sess.Todos.TagStats(ctx)
		if err != nil {
			return nil, "", err
		}
		data["tags"] = stats
	}
	if section == "memories" || section == "all" {
		result, err := sess.Todos.List(ctx, out.TodoQuery{Tags: []string{domain.TagMemory}})
		if err != nil {
			return nil, "", err
		}
		memories := make([]map[string]any, 0, len(result.Todos))
		for _, todo := range result.Todos {
			memories = append(memories, map[string]any{
				"id":          todo.ID,
				"title":       todo.Title,
				"description": todo.Description,
			})
		}
		data["memories"] = memories
	}
	return data, fmt.Sprintf("Server info (%s)", section), nil
}

// BriefingTool aggregates what needs attention now: overdue and due-today
// open todos plus running timers. Read-only.
type BriefingTool struct{}

func (t *BriefingTool) Name() string { return "getBriefingData" }

func (t *BriefingTool) Description() string {
	return "Aggregate overdue todos, todos due today and active timers for a daily briefing."
}

func (t *BriefingTool) Parameters() []ParameterSpec { return nil }

func (t *BriefingTool) Execute(ctx context.Context, sess *Session, args map[string]any) (map[string]any, string, error) {
	now := time.Now()
	open := false

	dueToday, err := sess.Todos.List(ctx, out.TodoQuery{
		Completed: &open,
		DateTo:    domain.EndOfDay(now),
	})
	if err != nil {
		return nil, "", err
	}

	nowTS := domain.Timestamp(now)
	overdue := make([]map[string]any, 0)
	today := make([]map[string]any, 0)
	for _, todo := range dueToday.Todos {
		if todo.Due < nowTS {
			overdue = append(overdue, todoPayload(todo))
		} else {
			today = append(today, todoPayload(todo))
		}
	}

	active, err := sess.Todos.ActiveTimeTracking(ctx)
	if err != nil {
		return nil, "", err
	}

	data := map[string]any{
		"overdue":         overdue,
		"due_today":       today,
		"active_tracking": todoPayloads(active),
		"generated_at":    nowTS,
	}
	summary := fmt.Sprintf("%d overdue, %d due today, %d timers running",
		len(overdue), len(today), len(active))
	return data, summary, nil
}

// RecapTool aggregates what got done in a period. Read-only.
type RecapTool struct{}

func (t *RecapTool) Name() string { return "getRecapData" }

func (t *RecapTool) Description() string {
	return "Aggregate todos completed within a period, defaulting to the last 24 hours."
}

func (t *RecapTool) Parameters() []ParameterSpec {
	return []ParameterSpec{
		{Name: "dateFrom", Type: "string", Description: "Period start (ISO-8601 UTC), default 24h ago"},
		{Name: "dateTo", Type: "string", Description: "Period end, default now"},
	}
}

func (t *RecapTool) Execute(ctx context.Context, sess *Session, args map[string]any) (map[string]any, string, error) {
	now := time.Now()
	from := stringArg(args, "dateFrom")
	if from == "" {
		from = domain.Timestamp(now.Add(-24 * time.Hour))
	}
	to := stringArg(args, "dateTo")
	if to == "" {
		to = domain.Timestamp(now)
	}

	completed, err := sess.Todos.List(ctx, out.TodoQuery{
		CompletedFrom: from,
		CompletedTo:   to,
	})
	if err != nil {
		return nil, "", err
	}

	byContext := map[string]int{}
	for _, todo := range completed.Todos {
		byContext[todo.Context]++
	}
	data := map[string]any{
		"completed":    todoPayloads(completed.Todos),
		"by_context":   byContext,
		"period_start": from,
		"period_end":   to,
	}
	return data, fmt.Sprintf("%d todos completed between %s and %s", completed.Count, from, to), nil
}
