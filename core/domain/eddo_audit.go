package domain

// AuditVersion is the audit entry schema literal.
const AuditVersion = "audit_alpha1"

// AuditAction enumerates the recorded mutations.
type AuditAction string

const (
	AuditCreate            AuditAction = "create"
	AuditUpdate            AuditAction = "update"
	AuditDelete            AuditAction = "delete"
	AuditComplete          AuditAction = "complete"
	AuditUncomplete        AuditAction = "uncomplete"
	AuditTimeTrackingStart AuditAction = "time_tracking_start"
	AuditTimeTrackingStop  AuditAction = "time_tracking_stop"
)

// AuditSource enumerates the surfaces that write audit entries.
type AuditSource string

const (
	SourceWeb        AuditSource = "web"
	SourceMCP        AuditSource = "mcp"
	SourceTelegram   AuditSource = "telegram"
	SourceGitHubSync AuditSource = "github-sync"
	SourceRSSSync    AuditSource = "rss-sync"
	SourceEmailSync  AuditSource = "email-sync"
)

// AuditSources lists every source, in the order bucketed queries report them.
var AuditSources = []AuditSource{
	SourceWeb, SourceMCP, SourceTelegram, SourceGitHubSync, SourceRSSSync, SourceEmailSync,
}

// AuditEntry is one append-only log record. The _id equals the timestamp and
// provides the sort order; entries are never updated or deleted by
// application code.
type AuditEntry struct {
	ID         string            `json:"_id"`
	Rev        string            `json:"_rev,omitempty"`
	Timestamp  string            `json:"timestamp"`
	Action     AuditAction       `json:"action"`
	EntityType string            `json:"entityType"`
	EntityID   string            `json:"entityId"`
	Source     AuditSource       `json:"source"`
	Before     *Todo             `json:"before,omitempty"`
	After      *Todo             `json:"after,omitempty"`
	Message    string            `json:"message,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	Version    string            `json:"version"`
}

// NewAuditEntry builds an entry stamped at ts with _id == timestamp.
func NewAuditEntry(ts string, action AuditAction, entityID string, source AuditSource) *AuditEntry {
	return &AuditEntry{
		ID:         ts,
		Timestamp:  ts,
		Action:     action,
		EntityType: "todo",
		EntityID:   entityID,
		Source:     source,
		Version:    AuditVersion,
	}
}
