package out

import (
	"context"

	"eddo_server/core/domain"
)

// ChatStore is the per-user chat session and entry store.
type ChatStore interface {
	// EnsureDatabase provisions the chat database and its views.
	EnsureDatabase(ctx context.Context) error
	CreateSession(ctx context.Context, session *domain.ChatSession) (*domain.ChatSession, error)
	GetSession(ctx context.Context, id string) (*domain.ChatSession, error)
	// ListSessions returns sessions newest-updated first.
	ListSessions(ctx context.Context, limit int) ([]*domain.ChatSession, error)
	UpdateSession(ctx context.Context, id string, patch func(*domain.ChatSession)) (*domain.ChatSession, error)
	// DeleteSession removes the session and cascades to its entries.
	DeleteSession(ctx context.Context, id string) error
	// AppendEntry stores the entry and folds its stat delta into the session.
	AppendEntry(ctx context.Context, entry *domain.ChatEntry) (*domain.ChatEntry, error)
	// ListEntries returns a session's entries in timestamp order, via the
	// entries/by_session view with an _all_docs prefix scan fallback.
	ListEntries(ctx context.Context, sessionID string) ([]*domain.ChatEntry, error)
	// Branch walks parent links from leafID back to the root and returns the
	// path in root-first order.
	Branch(ctx context.Context, sessionID, leafID string) ([]*domain.ChatEntry, error)
}
