package in

import (
	"context"

	"eddo_server/core/domain"
)

// CreateSessionRequest opens a new conversation.
type CreateSessionRequest struct {
	Name            string
	Repository      string
	ParentSessionID string
	Metadata        map[string]any
}

// AppendEntryRequest adds one entry to a session.
type AppendEntryRequest struct {
	ParentID *string
	Type     string
	Message  *domain.ChatMessage
	Payload  any
}

// ChatService manages per-user chat sessions and their entries.
type ChatService interface {
	CreateSession(ctx context.Context, req CreateSessionRequest) (*domain.ChatSession, error)
	GetSession(ctx context.Context, id string) (*domain.ChatSession, error)
	ListSessions(ctx context.Context, limit int) ([]*domain.ChatSession, error)
	DeleteSession(ctx context.Context, id string) error
	AppendEntry(ctx context.Context, sessionID string, req AppendEntryRequest) (*domain.ChatEntry, error)
	GetEntries(ctx context.Context, sessionID string) ([]*domain.ChatEntry, error)
	// GetBranch returns the root-first path ending at fromEntryID, or all
	// entries when fromEntryID is empty.
	GetBranch(ctx context.Context, sessionID, fromEntryID string) ([]*domain.ChatEntry, error)
}
