package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// RefreshToken is the persisted record of one refresh token. Only the
// sha256 hash of the opaque value is stored; the plaintext exists exactly
// once, in the response that issued it.
type RefreshToken struct {
	ID         int64
	TokenHash  string
	MemberID   int64
	FamilyID   uuid.UUID
	UserAgent  string
	IPAddress  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	Revoked    bool
	ReplacedBy *int64
}

// Active reports whether the token may still be rotated: not revoked, not
// superseded, not past expiry.
func (t *RefreshToken) Active(now time.Time) bool {
	return !t.Revoked && t.ReplacedBy == nil && now.Before(t.ExpiresAt)
}

// AccessTokenClaims is the fixed claim set embedded in every access token.
type AccessTokenClaims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// ClientInfo is the best-effort client fingerprint bound to a refresh
// token at issuance. Used for anomaly logging only, never authorization.
type ClientInfo struct {
	UserAgent string
	IPAddress string
}
