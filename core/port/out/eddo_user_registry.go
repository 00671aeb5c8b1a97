package out

import (
	"context"

	"eddo_server/core/domain"
)

// UserRegistry is the shared tenant registry. Lookups return (nil, nil) on a
// miss; Create surfaces AlreadyExists when the sanitized username collides.
type UserRegistry interface {
	EnsureDatabase(ctx context.Context) error
	// SetupDesignDocuments installs the lookup views, retrying conflicting
	// installs up to ten times with linear backoff.
	SetupDesignDocuments(ctx context.Context) error
	FindByUsername(ctx context.Context, username string) (*domain.User, error)
	FindByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	// Update applies patch to the latest-version document and writes it back
	// with a refreshed updated_at.
	Update(ctx context.Context, id string, patch func(*domain.User)) (*domain.User, error)
	List(ctx context.Context) ([]*domain.User, error)
	Delete(ctx context.Context, id string) error
	// EnsureUserDatabase provisions the per-user todo database when absent.
	EnsureUserDatabase(ctx context.Context, username string) error
}
