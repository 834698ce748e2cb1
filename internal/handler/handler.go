package handler

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/eventhub/auth-service/internal/clientinfo"
	"github.com/eventhub/auth-service/internal/infrastructure/auth"
	"github.com/eventhub/auth-service/internal/models"
	service "github.com/eventhub/auth-service/internal/services"
	pkgerrors "github.com/eventhub/auth-service/pkg/errors"
)

// CookieConfig names the cookies the auth endpoints set and clear.
type CookieConfig struct {
	Access  string
	Refresh string
	CSRF    string
	Secure  bool
}

type AuthHandler struct {
	service service.TokenService
	cookies CookieConfig
}

func NewAuthHandler(s service.TokenService, cookies CookieConfig) *AuthHandler {
	return &AuthHandler{service: s, cookies: cookies}
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *AuthHandler) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: err.Error()})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	client := clientinfo.Extract(r)
	pair, err := h.service.Login(r.Context(), req.Email, req.Password, client)
	if err != nil {
		switch {
		case errors.Is(err, pkgerrors.ErrInvalidCredentials):
			h.writeError(w, http.StatusUnauthorized, pkgerrors.ErrInvalidCredentials)
		case errors.Is(err, pkgerrors.ErrInvalidInput):
			h.writeError(w, http.StatusBadRequest, err)
		default:
			h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
		}
		return
	}

	h.setAuthCookies(w, pair)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pair)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	// Body is optional: the token may arrive in a cookie instead.
	_ = json.NewDecoder(r.Body).Decode(&req)

	client := clientinfo.Extract(r)

	var pair *models.TokenPair
	var err error
	if req.RefreshToken != "" {
		pair, err = h.service.RefreshTokenPair(r.Context(), req.RefreshToken, client)
	} else {
		pair, err = h.service.RefreshTokenPairFromCookies(r.Context(), r, client)
	}
	if err != nil {
		// One generic signal for every rotation outcome: the client is
		// logged out and must re-authenticate.
		if errors.Is(err, pkgerrors.ErrRefreshFailed) {
			h.clearAuthCookies(w)
			h.writeError(w, http.StatusUnauthorized, pkgerrors.ErrRefreshFailed)
		} else {
			h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
		}
		return
	}

	h.setAuthCookies(w, pair)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(pair)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	presented := req.RefreshToken
	if presented == "" {
		if cookie, err := r.Cookie(h.cookies.Refresh); err == nil {
			presented = cookie.Value
		}
	}

	if err := h.service.Logout(r.Context(), presented); err != nil {
		slog.Error("logout failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, pkgerrors.ErrInternal)
		return
	}

	h.clearAuthCookies(w)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "logged_out"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	memberID, ok := auth.MemberIDFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("not authenticated"))
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, errors.New("not authenticated"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"member_id": memberID,
		"email":     claims.Email,
		"roles":     claims.Roles,
	})
}

func (h *AuthHandler) setAuthCookies(w http.ResponseWriter, pair *models.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.Access,
		Value:    pair.AccessToken,
		Path:     "/",
		Expires:  pair.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.Refresh,
		Value:    pair.RefreshToken,
		Path:     "/api/v1/auth",
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	// Readable on purpose: the client echoes it back in X-CSRF-Token.
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.CSRF,
		Value:    newCSRFToken(),
		Path:     "/",
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearAuthCookies(w http.ResponseWriter) {
	expired := time.Unix(0, 0)
	for _, c := range []http.Cookie{
		{Name: h.cookies.Access, Path: "/"},
		{Name: h.cookies.Refresh, Path: "/api/v1/auth"},
		{Name: h.cookies.CSRF, Path: "/"},
	} {
		c.Value = ""
		c.Expires = expired
		c.MaxAge = -1
		c.HttpOnly = c.Name != h.cookies.CSRF
		c.Secure = h.cookies.Secure
		http.SetCookie(w, &c)
	}
}

func newCSRFToken() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		slog.Error("failed to generate csrf token", "error", err)
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
