package in

import (
	"context"

	"eddo_server/core/domain"
)

// RegisterUserRequest creates a tenant.
type RegisterUserRequest struct {
	Username   string
	Email      *string
	TelegramID *int64
}

// UserService manages tenant registry entries and their databases.
type UserService interface {
	Register(ctx context.Context, req RegisterUserRequest) (*domain.User, error)
	// Resolve looks a user up by username with a Telegram-id fallback.
	// A miss returns (nil, nil).
	Resolve(ctx context.Context, username string, telegramID *int64) (*domain.User, error)
	Get(ctx context.Context, username string) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	UpdatePreferences(ctx context.Context, id string, patch func(*domain.UserPreferences)) (*domain.User, error)
	Delete(ctx context.Context, id string) error
}
