package mcp

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eddo_server/core/domain"
	"eddo_server/core/port/in"
	"eddo_server/pkg/apperr"
)

type stubUserService struct {
	byUsername map[string]*domain.User
	byTelegram map[int64]*domain.User
}

func newStubUserService(users ...*domain.User) *stubUserService {
	s := &stubUserService{
		byUsername: map[string]*domain.User{},
		byTelegram: map[int64]*domain.User{},
	}
	for _, user := range users {
		s.byUsername[user.Username] = user
		if user.TelegramID != nil {
			s.byTelegram[*user.TelegramID] = user
		}
	}
	return s
}

func (s *stubUserService) Register(ctx context.Context, req in.RegisterUserRequest) (*domain.User, error) {
	return nil, nil
}

func (s *stubUserService) Resolve(ctx context.Context, username string, telegramID *int64) (*domain.User, error) {
	if user, ok := s.byUsername[username]; ok {
		return user, nil
	}
	if telegramID != nil {
		if user, ok := s.byTelegram[*telegramID]; ok {
			return user, nil
		}
	}
	return nil, nil
}

func (s *stubUserService) Get(ctx context.Context, username string) (*domain.User, error) {
	return nil, nil
}

func (s *stubUserService) List(ctx context.Context) ([]*domain.User, error) { return nil, nil }

func (s *stubUserService) UpdatePreferences(ctx context.Context, id string, patch func(*domain.UserPreferences)) (*domain.User, error) {
	return nil, nil
}

func (s *stubUserService) Delete(ctx context.Context, id string) error { return nil }

func activeUser(username string) *domain.User {
	return &domain.User{
		ID:           domain.UserIDPrefix + username,
		Username:     username,
		DatabaseName: "eddo_user_" + username,
		Status:       domain.UserStatusActive,
	}
}

const testSecret = "test-secret"

func TestAuthenticateAnonymousWithoutHeaders(t *testing.T) {
	gate := NewAuthGate(newStubUserService(), testSecret)
	r := httptest.NewRequest("POST", "/mcp", nil)

	identity, err := gate.Authenticate(context.Background(), r)
	require.NoError(t, err)
	assert.True(t, identity.Anonymous)
	assert.Equal(t, "anonymous", identity.UserID)
	assert.Equal(t, "default", identity.DBName)
}

func TestAuthenticateByUserIDHeader(t *testing.T) {
	gate := NewAuthGate(newStubUserService(activeUser("ada")), testSecret)
	r := httptest.NewRequest("POST", "/mcp", nil)
	r.Header.Set("X-User-ID", "ada")

	identity, err := gate.Authenticate(context.Background(), r)
	require.NoError(t, err)
	assert.False(t, identity.Anonymous)
	assert.Equal(t, "user_ada", identity.UserID)
	assert.Equal(t, "eddo_user_ada", identity.DBName)
}

func TestAuthenticateUnknownUserIsUnauthorized(t *testing.T) {
	gate := NewAuthGate(newStubUserService(), testSecret)
	r := httptest.NewRequest("POST", "/mcp", nil)
	r.Header.Set("X-User-ID", "ghost")

	_, err := gate.Authenticate(context.Background(), r)
	assert.True(t, apperr.IsUnauthorized(err))
}

func TestAuthenticateInactiveUserIsUnauthorized(t *testing.T) {
	suspended := activeUser("mallory")
	suspended.Status = domain.UserStatusSuspended
	gate := NewAuthGate(newStubUserService(suspended), testSecret)
	r := httptest.NewRequest("POST", "/mcp", nil)
	r.Header.Set("X-User-ID", "mallory")

	_, err := gate.Authenticate(context.Background(), r)
	assert.True(t, apperr.IsUnauthorized(err))
}

func TestAuthenticateTelegramFallback(t *testing.T) {
	telegramID := int64(42)
	user := activeUser("bob")
	user.TelegramID = &telegramID
	gate := NewAuthGate(newStubUserService(user), testSecret)

	// The X-User-ID value misses by name but the Telegram id resolves.
	r := httptest.NewRequest("POST", "/mcp", nil)
	r.Header.Set("X-User-ID", "Bob Smith")
	r.Header.Set("X-Telegram-ID", "42")

	identity, err := gate.Authenticate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "bob", identity.Username)
}

func TestAuthenticateDatabaseOverride(t *testing.T) {
	gate := NewAuthGate(newStubUserService(activeUser("ada")), testSecret)
	r := httptest.NewRequest("POST", "/mcp", nil)
	r.Header.Set("X-User-ID", "ada")
	r.Header.Set("X-Database-Name", "eddo_user_shared")

	identity, err := gate.Authenticate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "eddo_user_shared", identity.DBName)
}

func TestAuthenticateBearerJWT(t *testing.T) {
	gate := NewAuthGate(newStubUserService(activeUser("ada")), testSecret)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"username": "ada"})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/mcp", nil)
	r.Header.Set("Authorization", "Bearer "+signed)

	identity, err := gate.Authenticate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "ada", identity.Username)
}

func TestAuthenticateRejectsBadJWT(t *testing.T) {
	gate := NewAuthGate(newStubUserService(activeUser("ada")), testSecret)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"username": "ada"})
	signed, err := token.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/mcp", nil)
	r.Header.Set("Authorization", "Bearer "+signed)

	_, err = gate.Authenticate(context.Background(), r)
	assert.True(t, apperr.IsUnauthorized(err))
}

func TestAuthenticateUserIDHeaderWinsOverBearer(t *testing.T) {
	gate := NewAuthGate(newStubUserService(activeUser("ada"), activeUser("eve")), testSecret)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"username": "eve"})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/mcp", nil)
	r.Header.Set("X-User-ID", "ada")
	r.Header.Set("Authorization", "Bearer "+signed)

	identity, err := gate.Authenticate(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, "ada", identity.Username)
}
