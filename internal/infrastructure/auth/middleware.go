package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/eventhub/auth-service/internal/models"
)

type contextKey string

const (
	memberIDKey contextKey = "member_id"
	claimsKey   contextKey = "claims"
)

// MemberIDFromContext returns the authenticated member id set by Middleware.
func MemberIDFromContext(ctx context.Context) (int64, bool) {
	id, ok := ctx.Value(memberIDKey).(int64)
	return id, ok
}

// ClaimsFromContext returns the full access token claims set by Middleware.
func ClaimsFromContext(ctx context.Context) (*models.AccessTokenClaims, bool) {
	claims, ok := ctx.Value(claimsKey).(*models.AccessTokenClaims)
	return claims, ok
}

// HasBearer reports whether the request carries an Authorization header with
// the Bearer scheme (case-insensitive). Bearer requests are immune to CSRF
// because a browser never attaches the header on its own.
func HasBearer(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	return len(header) > 7 && strings.EqualFold(header[:7], "Bearer ")
}

// Middleware authenticates requests with a bearer access token, or with the
// access token cookie when no Authorization header is present.
func Middleware(issuer *AccessTokenIssuer, accessCookie string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := ""
			if HasBearer(r) {
				tokenStr = r.Header.Get("Authorization")[7:]
			} else if cookie, err := r.Cookie(accessCookie); err == nil {
				tokenStr = cookie.Value
			}
			if tokenStr == "" {
				http.Error(w, "authorization required", http.StatusUnauthorized)
				return
			}

			claims, err := issuer.Parse(tokenStr)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}

			memberID, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil {
				slog.Error("invalid subject in access token", "subject", claims.Subject, "error", err)
				http.Error(w, "invalid token claims", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), memberIDKey, memberID)
			ctx = context.WithValue(ctx, claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
