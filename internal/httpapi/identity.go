package httpapi

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoCredential = errors.New("no valid credential")

// Identity is what the client can learn about the local player from the
// bearer token without the server's signing key.
type Identity struct {
	PlayerID  string
	Username  string
	ExpiresAt time.Time
}

// Valid reports whether the identity names a player and has not expired.
// A token with no expiry never expires.
func (id Identity) Valid(now time.Time) bool {
	if id.PlayerID == "" {
		return false
	}
	return id.ExpiresAt.IsZero() || now.Before(id.ExpiresAt)
}

type accessClaims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id,omitempty"`
	Username string `json:"username,omitempty"`
}

// ParseIdentity reads the claims of an access token. The signature is not
// verified; the server does that on every request.
func ParseIdentity(token string) (Identity, error) {
	if token == "" {
		return Identity{}, ErrNoCredential
	}

	var claims accessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return Identity{}, fmt.Errorf("parse access token: %w", err)
	}

	id := Identity{PlayerID: claims.Subject, Username: claims.Username}
	if id.PlayerID == "" {
		id.PlayerID = claims.UserID
	}
	if id.PlayerID == "" {
		return Identity{}, fmt.Errorf("%w: token has no subject", ErrNoCredential)
	}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	if id.Username == "" {
		id.Username = id.PlayerID
	}
	return id, nil
}
