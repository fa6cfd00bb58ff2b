// Package identity reads the caller's user id from the Battle access token.
// The token is issued and verified by the auth collaborator; this client only
// inspects its claims.
package identity

import (
	"battle-arena/internal/config"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoSubject = errors.New("access token has no subject")

type Identity struct {
	UserID    string
	ExpiresAt time.Time
}

// Expired reports whether the token is past its exp claim. Tokens without one
// never expire.
func (i Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && !now.Before(i.ExpiresAt)
}

func Parse(token string) (Identity, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.Subject == "" {
		return Identity{}, ErrNoSubject
	}
	id := Identity{UserID: claims.Subject}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}

func FromConfig(cfg *config.Config) (Identity, error) {
	return Parse(cfg.BattleAccessToken)
}
