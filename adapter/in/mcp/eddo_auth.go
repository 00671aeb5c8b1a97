package mcp

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"eddo_server/core/domain"
	"eddo_server/core/port/in"
	"eddo_server/pkg/apperr"
	"eddo_server/pkg/logger"
)

// Identity is the outcome of per-request authentication. Anonymous identities
// permit the connection handshake only; tool execution requires a resolved
// user.
type Identity struct {
	UserID    string
	Username  string
	DBName    string
	Anonymous bool
	User      *domain.User
}

var anonymousIdentity = Identity{
	UserID:    "anonymous",
	Username:  "anonymous",
	DBName:    "default",
	Anonymous: true,
}

// AuthGate authenticates one request from its headers. Stateless: every
// request is validated against the registry.
type AuthGate struct {
	users     in.UserService
	jwtSecret []byte
	log       *logger.Logger
}

func NewAuthGate(users in.UserService, jwtSecret string) *AuthGate {
	return &AuthGate{
		users:     users,
		jwtSecret: []byte(jwtSecret),
		log:       logger.Default().WithField("component", "auth_gate"),
	}
}

// Authenticate resolves the caller. Order: X-User-ID header, then an
// Authorization bearer token (the web client's session JWT), then anonymous.
// A named user that cannot be resolved is Unauthorized, not anonymous.
func (g *AuthGate) Authenticate(ctx context.Context, r *http.Request) (*Identity, error) {
	username := r.Header.Get("X-User-ID")
	if username == "" {
		if bearer := bearerToken(r); bearer != "" {
			claimed, err := g.usernameFromJWT(bearer)
			if err != nil {
				return nil, err
			}
			username = claimed
		}
	}
	if username == "" {
		identity := anonymousIdentity
		return &identity, nil
	}

	var telegramID *int64
	if raw := r.Header.Get("X-Telegram-ID"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			telegramID = &id
		}
	}

	user, err := g.users.Resolve(ctx, username, telegramID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		g.log.WithField("username", username).Warn("authentication failed: unknown user")
		return nil, apperr.Unauthorized("unknown user: " + username)
	}
	if !user.IsActive() {
		return nil, apperr.Unauthorized("user is " + user.Status)
	}

	dbName := user.DatabaseName
	if override := r.Header.Get("X-Database-Name"); override != "" {
		dbName = override
	}
	return &Identity{
		UserID:   user.ID,
		Username: user.Username,
		DBName:   dbName,
		User:     user,
	}, nil
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(auth) > len(prefix) && strings.EqualFold(auth[:len(prefix)], prefix) {
		return auth[len(prefix):]
	}
	return ""
}

// usernameFromJWT validates an HS256 web-session token and returns its
// username claim.
func (g *AuthGate) usernameFromJWT(token string) (string, error) {
	if len(g.jwtSecret) == 0 {
		return "", apperr.Unauthorized("bearer authentication is not configured")
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperr.Unauthorized("unexpected signing method")
		}
		return g.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return "", apperr.Unauthorized("invalid session token")
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", apperr.Unauthorized("invalid session token")
	}
	username, _ := claims["username"].(string)
	if username == "" {
		return "", apperr.Unauthorized("session token carries no username")
	}
	return username, nil
}

// ExtractTraceContext parses W3C traceparent/tracestate headers so tool spans
// can be parented to the caller's span.
func ExtractTraceContext(ctx context.Context, r *http.Request) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, propagation.HeaderCarrier(r.Header))
}
