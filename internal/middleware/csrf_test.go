package middleware

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/eventhub/auth-service/pkg/errors"
)

func newTestGate(predicate func(*http.Request) bool) *CSRFGate {
	return NewCSRFGate(Options{
		CookieNames:      []string{"access_token", "refresh_token"},
		AuthPathPrefixes: []string{"/api/v1/auth"},
		Predicate:        predicate,
	})
}

func TestCSRFGate_MustValidate(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		path      string
		bearer    bool
		cookie    string
		predicate func(*http.Request) bool
		want      bool
	}{
		{
			name:   "unsafe method with auth cookie",
			method: "POST", path: "/api/v1/orgs",
			cookie: "access_token",
			want:   true,
		},
		{
			name:   "safe method with auth cookie",
			method: "GET", path: "/api/v1/orgs",
			cookie: "access_token",
			want:   false,
		},
		{
			name:   "auth endpoint without any cookie",
			method: "POST", path: "/api/v1/auth/login",
			want: true,
		},
		{
			name:   "bearer request exempt",
			method: "POST", path: "/api/v1/orgs",
			bearer: true,
			want:   false,
		},
		{
			name:   "custom predicate adds requirement",
			method: "DELETE", path: "/api/v2/events/1",
			predicate: func(*http.Request) bool { return true },
			want:      true,
		},
		{
			name:   "predicate cannot remove requirement",
			method: "POST", path: "/api/v1/orgs",
			cookie:    "access_token",
			predicate: func(*http.Request) bool { return false },
			want:      true,
		},
		{
			name:   "unsafe method without credentials off auth paths",
			method: "DELETE", path: "/api/v2/events/1",
			want: false,
		},
		{
			name:   "bearer beats auth endpoint",
			method: "POST", path: "/api/v1/auth/logout",
			bearer: true,
			want:   false,
		},
		{
			name:   "refresh cookie counts as cookie auth",
			method: "PATCH", path: "/api/v1/orgs/5",
			cookie: "refresh_token",
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := newTestGate(tt.predicate)
			r := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.bearer {
				r.Header.Set("Authorization", "Bearer some.jwt.value")
			}
			if tt.cookie != "" {
				r.AddCookie(&http.Cookie{Name: tt.cookie, Value: "v"})
			}
			assert.Equal(t, tt.want, gate.MustValidate(r))
		})
	}
}

func TestCSRFGate_BearerCaseInsensitive(t *testing.T) {
	gate := newTestGate(nil)
	r := httptest.NewRequest("POST", "/api/v1/orgs", nil)
	r.Header.Set("Authorization", "bearer some.jwt.value")
	r.AddCookie(&http.Cookie{Name: "access_token", Value: "v"})
	assert.False(t, gate.MustValidate(r))
}

func TestCSRFGate_Middleware(t *testing.T) {
	gate := newTestGate(nil)
	downstream := false
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		downstream = true
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("matching double-submit pair passes", func(t *testing.T) {
		downstream = false
		r := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
		r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok123"})
		r.Header.Set("X-CSRF-Token", "tok123")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, downstream)
	})

	t.Run("mismatch short-circuits with 403", func(t *testing.T) {
		downstream = false
		r := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
		r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok123"})
		r.Header.Set("X-CSRF-Token", "other")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Contains(t, w.Body.String(), pkgerrors.ErrCSRFValidationFailed.Error())
		assert.False(t, downstream, "downstream handler must not run")
	})

	t.Run("missing header short-circuits with 403", func(t *testing.T) {
		downstream = false
		r := httptest.NewRequest("POST", "/api/v1/auth/login", nil)
		r.AddCookie(&http.Cookie{Name: "csrf_token", Value: "tok123"})
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.False(t, downstream)
	})

	t.Run("no validation required passes through", func(t *testing.T) {
		downstream = false
		r := httptest.NewRequest("GET", "/api/v1/orgs", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.True(t, downstream)
	})
}

func TestCSRFGate_SkipMarker(t *testing.T) {
	gate := newTestGate(nil)
	gate.Skip("webhook")

	router := mux.NewRouter()
	router.Use(gate.Middleware)
	router.HandleFunc("/api/v1/auth/webhook", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("POST").Name("webhook")
	router.HandleFunc("/api/v1/auth/login", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("POST")

	t.Run("skip-marked route bypasses the gate", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/auth/webhook", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("unmarked route on the same prefix is still gated", func(t *testing.T) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/api/v1/auth/login", nil))
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}

func TestCSRFGate_OptionsOverlay(t *testing.T) {
	gate := newTestGate(nil)
	dir := t.TempDir()
	path := filepath.Join(dir, "csrf.json")

	require.NoError(t, os.WriteFile(path, []byte(`{"cookie_names":["legacy_session"],"auth_path_prefixes":["/v2/session"]}`), 0o600))
	gate.applyOverlay(path)

	r := httptest.NewRequest("POST", "/v2/session/start", nil)
	assert.True(t, gate.MustValidate(r), "overlay prefixes take effect")

	r = httptest.NewRequest("POST", "/api/v1/orgs", nil)
	r.AddCookie(&http.Cookie{Name: "legacy_session", Value: "v"})
	assert.True(t, gate.MustValidate(r), "overlay cookie names take effect")

	r = httptest.NewRequest("POST", "/api/v1/orgs", nil)
	r.AddCookie(&http.Cookie{Name: "access_token", Value: "v"})
	assert.False(t, gate.MustValidate(r), "base cookie names replaced by overlay")

	t.Run("missing overlay restores base options", func(t *testing.T) {
		require.NoError(t, os.Remove(path))
		gate.applyOverlay(path)
		r := httptest.NewRequest("POST", "/api/v1/orgs", nil)
		r.AddCookie(&http.Cookie{Name: "access_token", Value: "v"})
		assert.True(t, gate.MustValidate(r))
	})
}
