package chat

import (
	"context"
	"time"

	"eddo_server/core/domain"
	"eddo_server/core/port/in"
	"eddo_server/core/port/out"
	"eddo_server/pkg/apperr"
	"eddo_server/pkg/logger"
)

// Service implements in.ChatService for one user's chat database.
type Service struct {
	store    out.ChatStore
	username string
	log      *logger.Logger
}

func NewService(store out.ChatStore, username string) *Service {
	return &Service{
		store:    store,
		username: username,
		log:      logger.Default().WithField("component", "chat_service").WithField("username", username),
	}
}

func (s *Service) CreateSession(ctx context.Context, req in.CreateSessionRequest) (*domain.ChatSession, error) {
	if err := s.store.EnsureDatabase(ctx); err != nil {
		return nil, err
	}
	now := time.Now()
	session := &domain.ChatSession{
		ID:              domain.NewSessionID(now),
		Username:        s.username,
		Name:            req.Name,
		CreatedAt:       domain.Timestamp(now),
		UpdatedAt:       domain.Timestamp(now),
		Repository:      req.Repository,
		ParentSessionID: req.ParentSessionID,
		Metadata:        req.Metadata,
	}
	return s.store.CreateSession(ctx, session)
}

func (s *Service) GetSession(ctx context.Context, id string) (*domain.ChatSession, error) {
	return s.store.GetSession(ctx, id)
}

func (s *Service) ListSessions(ctx context.Context, limit int) ([]*domain.ChatSession, error) {
	sessions, err := s.store.ListSessions(ctx, limit)
	if err != nil {
		if apperr.IsNotFound(err) {
			return []*domain.ChatSession{}, nil
		}
		return nil, err
	}
	return sessions, nil
}

func (s *Service) DeleteSession(ctx context.Context, id string) error {
	return s.store.DeleteSession(ctx, id)
}

// AppendEntry stores one entry. A non-nil parent must already exist in the
// same session.
func (s *Service) AppendEntry(ctx context.Context, sessionID string, req in.AppendEntryRequest) (*domain.ChatEntry, error) {
	if req.Type == "" {
		return nil, apperr.MissingField("type")
	}
	if _, err := s.store.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if req.ParentID != nil {
		if err := s.checkParent(ctx, sessionID, *req.ParentID); err != nil {
			return nil, err
		}
	}
	entry := &domain.ChatEntry{
		ID:        domain.NewEntryID(sessionID),
		SessionID: sessionID,
		Timestamp: domain.Now(),
		ParentID:  req.ParentID,
		Type:      req.Type,
		Message:   req.Message,
		Payload:   req.Payload,
	}
	entry.DocID = entry.ID
	return s.store.AppendEntry(ctx, entry)
}

// checkParent rejects a parentId that does not resolve to an entry of the
// same session, so branch walks never dangle.
func (s *Service) checkParent(ctx context.Context, sessionID, parentID string) error {
	entries, err := s.store.ListEntries(ctx, sessionID)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.ID == parentID {
			return nil
		}
	}
	return apperr.InvalidInput("parentId", "must reference an entry of the same session")
}

func (s *Service) GetEntries(ctx context.Context, sessionID string) ([]*domain.ChatEntry, error) {
	return s.store.ListEntries(ctx, sessionID)
}

func (s *Service) GetBranch(ctx context.Context, sessionID, fromEntryID string) ([]*domain.ChatEntry, error) {
	return s.store.Branch(ctx, sessionID, fromEntryID)
}

var _ in.ChatService = (*Service)(nil)
