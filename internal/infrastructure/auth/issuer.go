package auth

import (
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/eventhub/auth-service/internal/models"
	pkgerrors "github.com/eventhub/auth-service/pkg/errors"
)

// AccessTokenIssuer builds and validates short-lived HS256 bearer tokens.
// Tokens are stateless: validity is signature plus expiry, nothing else.
type AccessTokenIssuer struct {
	keys  SigningKeyProvider
	ttl   time.Duration
	clock func() time.Time
}

func NewAccessTokenIssuer(keys SigningKeyProvider, ttl time.Duration) *AccessTokenIssuer {
	return &AccessTokenIssuer{keys: keys, ttl: ttl, clock: time.Now}
}

// TTL reports the configured access token lifetime.
func (i *AccessTokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a new access token for the member. Returns the signed token
// and its jti for audit correlation.
func (i *AccessTokenIssuer) Issue(memberID int64, email string, roles []string, now time.Time) (string, string, error) {
	key, err := i.keys.SigningKey()
	if err != nil {
		return "", "", err
	}

	tokenID := uuid.NewString()
	claims := models.AccessTokenClaims{
		Email: email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(memberID, 10),
			ID:        tokenID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, tokenID, nil
}

// Parse validates the token against every configured validation key in order
// and returns its claims. The signing method is checked explicitly so a
// downgraded or "none" algorithm never passes.
func (i *AccessTokenIssuer) Parse(tokenStr string) (*models.AccessTokenClaims, error) {
	keys, err := i.keys.ValidationKeys()
	if err != nil {
		return nil, err
	}

	var lastErr error
	for _, key := range keys {
		claims := &models.AccessTokenClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", token.Method.Alg())
			}
			return key, nil
		}, jwt.WithTimeFunc(i.clock))
		if err == nil && token.Valid {
			return claims, nil
		}
		lastErr = err
	}

	if lastErr == nil {
		lastErr = stderrors.New("token invalid")
	}
	return nil, fmt.Errorf("%w: %v", pkgerrors.ErrInvalidCredentials, lastErr)
}
