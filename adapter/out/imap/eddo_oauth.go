package imap

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"eddo_server/core/port/out"
	"eddo_server/pkg/apperr"
	"eddo_server/pkg/logger"
)

// GmailTokenSource refreshes Gmail access tokens from a stored refresh token.
// Refreshes go through a circuit breaker so a misconfigured user cannot
// hammer the token endpoint on every scheduler tick.
type GmailTokenSource struct {
	conf         *oauth2.Config
	refreshToken string
	breaker      *gobreaker.CircuitBreaker
	log          *logger.Logger
}

func NewGmailTokenSource(clientID, clientSecret, refreshToken string) *GmailTokenSource {
	return &GmailTokenSource{
		conf: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{"https://mail.google.com/"},
		},
		refreshToken: refreshToken,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "gmail-oauth",
			MaxRequests: 1,
			Timeout:     60 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
		log: logger.Default().WithField("component", "gmail_oauth"),
	}
}

// AccessToken exchanges the refresh token for a fresh access token. The token
// itself is never logged.
func (s *GmailTokenSource) AccessToken(ctx context.Context) (string, error) {
	result, err := s.breaker.Execute(func() (any, error) {
		src := s.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: s.refreshToken})
		return src.Token()
	})
	if err != nil {
		return "", apperr.OAuthFailed("gmail", err)
	}
	token := result.(*oauth2.Token)
	s.log.WithField("expiry", token.Expiry.Format(time.RFC3339)).Info("refreshed gmail access token")
	return token.AccessToken, nil
}

var _ out.TokenSource = (*GmailTokenSource)(nil)
