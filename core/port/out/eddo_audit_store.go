package out

import (
	"context"

	"eddo_server/core/domain"
)

// AuditListOptions page through the per-user audit log, newest first.
type AuditListOptions struct {
	Limit      int
	StartAfter string
	EntityIDs  []string
}

// AuditPage is one page of audit entries plus a continuation hint.
type AuditPage struct {
	Entries []*domain.AuditEntry
	HasMore bool
}

// AuditStore is the per-user append-only audit log.
type AuditStore interface {
	// EnsureDatabase provisions the audit database and its indexes/views.
	EnsureDatabase(ctx context.Context) error
	Insert(ctx context.Context, entry *domain.AuditEntry) error
	// List returns entries newest first. EntityIDs narrows to the named
	// entities via the entityId index.
	List(ctx context.Context, opts AuditListOptions) (*AuditPage, error)
	// GetByIDs fetches entries by _id, eliding missing ones.
	GetByIDs(ctx context.Context, ids []string) ([]*domain.AuditEntry, error)
	// ListBySource buckets the most recent entries per source. A missing view
	// yields empty buckets rather than an error.
	ListBySource(ctx context.Context, perSource int) (map[domain.AuditSource][]*domain.AuditEntry, error)
}
