// Package middleware contains the CSRF gate: the per-request decision of
// whether cross-site-request-forgery validation must run before business
// logic, and the validation itself.
package middleware

import (
	"crypto/hmac"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/mux"

	"github.com/eventhub/auth-service/internal/infrastructure/auth"
	"github.com/eventhub/auth-service/internal/infrastructure/observability"
	pkgerrors "github.com/eventhub/auth-service/pkg/errors"
)

// Options configures the CSRF gate. CookieNames and AuthPathPrefixes may be
// replaced at runtime through an overlay file; Predicate is fixed at start.
type Options struct {
	// Auth cookies whose presence marks the request as cookie-authenticated.
	CookieNames []string
	// Paths under these prefixes are always gated, even without a session
	// cookie: a logged-out browser may still send a stale one.
	AuthPathPrefixes []string
	// Double-submit pair: the readable cookie and the header echoing it.
	CSRFCookie string
	HeaderName string
	// Predicate may only add a validation requirement, never remove one.
	Predicate func(*http.Request) bool
}

func (o Options) withDefaults() Options {
	if o.CSRFCookie == "" {
		o.CSRFCookie = "csrf_token"
	}
	if o.HeaderName == "" {
		o.HeaderName = "X-CSRF-Token"
	}
	return o
}

// CSRFGate decides per request whether CSRF validation is required and
// performs it. Stateless across requests.
type CSRFGate struct {
	base Options
	opts atomic.Pointer[Options]

	mu   sync.Mutex
	skip map[string]struct{}
}

func NewCSRFGate(opts Options) *CSRFGate {
	g := &CSRFGate{
		base: opts.withDefaults(),
		skip: make(map[string]struct{}),
	}
	g.opts.Store(&g.base)
	return g
}

// Skip marks mux route names as exempt from CSRF checking, for public
// read-only or webhook endpoints. Routes must be named at registration.
func (g *CSRFGate) Skip(routeNames ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, name := range routeNames {
		g.skip[name] = struct{}{}
	}
}

func (g *CSRFGate) skipped(r *http.Request) bool {
	route := mux.CurrentRoute(r)
	if route == nil {
		return false
	}
	name := route.GetName()
	if name == "" {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.skip[name]
	return ok
}

func isUnsafeMethod(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// MustValidate is the decision function. A skip-marked route is a terminal
// allow; otherwise validation is required for unsafe methods carrying
// cookie credentials (or hitting an auth endpoint) without a bearer token,
// plus whatever the predicate adds on top.
func (g *CSRFGate) MustValidate(r *http.Request) bool {
	if g.skipped(r) {
		return false
	}

	opts := g.opts.Load()

	hasCookieAuth := false
	for _, name := range opts.CookieNames {
		if _, err := r.Cookie(name); err == nil {
			hasCookieAuth = true
			break
		}
	}

	isAuthEndpoint := false
	for _, prefix := range opts.AuthPathPrefixes {
		if strings.HasPrefix(r.URL.Path, prefix) {
			isAuthEndpoint = true
			break
		}
	}

	mustValidate := isUnsafeMethod(r.Method) &&
		!auth.HasBearer(r) &&
		(hasCookieAuth || isAuthEndpoint)

	if opts.Predicate != nil && opts.Predicate(r) {
		mustValidate = true
	}
	return mustValidate
}

// validate performs the double-submit check: the CSRF cookie must match the
// request header, compared in constant time.
func (g *CSRFGate) validate(r *http.Request) bool {
	opts := g.opts.Load()
	cookie, err := r.Cookie(opts.CSRFCookie)
	if err != nil || cookie.Value == "" {
		return false
	}
	header := r.Header.Get(opts.HeaderName)
	if header == "" {
		return false
	}
	return hmac.Equal([]byte(cookie.Value), []byte(header))
}

// Middleware short-circuits the pipeline with 403 when validation is
// required and fails; downstream handlers are never invoked in that case.
func (g *CSRFGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.MustValidate(r) {
			observability.CSRFDecisions.WithLabelValues("allowed").Inc()
			next.ServeHTTP(w, r)
			return
		}
		if !g.validate(r) {
			observability.CSRFDecisions.WithLabelValues("denied").Inc()
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			json.NewEncoder(w).Encode(map[string]string{"error": pkgerrors.ErrCSRFValidationFailed.Error()})
			return
		}
		observability.CSRFDecisions.WithLabelValues("validated").Inc()
		next.ServeHTTP(w, r)
	})
}
