package user

import (
	"context"

	"eddo_server/core/domain"
	"eddo_server/core/port/in"
	"eddo_server/core/port/out"
	"eddo_server/pkg/apperr"
	"eddo_server/pkg/logger"
)

// Service implements in.UserService on the shared tenant registry.
type Service struct {
	registry out.UserRegistry
	log      *logger.Logger
}

func NewService(registry out.UserRegistry) *Service {
	return &Service{
		registry: registry,
		log:      logger.Default().WithField("component", "user_service"),
	}
}

// Register creates the tenant entry and provisions its todo database.
func (s *Service) Register(ctx context.Context, req in.RegisterUserRequest) (*domain.User, error) {
	if req.Username == "" {
		return nil, apperr.MissingField("username")
	}
	entry := &domain.User{
		Username:   req.Username,
		Email:      req.Email,
		TelegramID: req.TelegramID,
		Preferences: domain.UserPreferences{
			EmailSync: false,
		},
	}
	created, err := s.registry.Create(ctx, entry)
	if err != nil {
		return nil, err
	}
	if err := s.registry.EnsureUserDatabase(ctx, created.Username); err != nil {
		// The registry entry exists; the database will also be created on
		// first write, so surfacing here would only confuse the caller.
		s.log.WithError(err).WithField("username", created.Username).
			Warn("failed to provision user database at registration")
	}
	return created, nil
}

// Resolve looks the user up by username, falling back to the Telegram id
// when the username misses. A miss on both returns (nil, nil).
func (s *Service) Resolve(ctx context.Context, username string, telegramID *int64) (*domain.User, error) {
	if username != "" {
		user, err := s.registry.FindByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if user != nil {
			return user, nil
		}
	}
	if telegramID != nil {
		return s.registry.FindByTelegramID(ctx, *telegramID)
	}
	return nil, nil
}

func (s *Service) Get(ctx context.Context, username string) (*domain.User, error) {
	user, err := s.registry.FindByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperr.NotFound("user " + username)
	}
	return user, nil
}

func (s *Service) List(ctx context.Context) ([]*domain.User, error) {
	return s.registry.List(ctx)
}

func (s *Service) UpdatePreferences(ctx context.Context, id string, patch func(*domain.UserPreferences)) (*domain.User, error) {
	return s.registry.Update(ctx, id, func(u *domain.User) {
		patch(&u.Preferences)
	})
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.registry.Delete(ctx, id)
}

var _ in.UserService = (*Service)(nil)
