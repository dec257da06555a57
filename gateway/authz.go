package gateway

import (
	"context"
	"net/http"
	"strings"

	"authgw/auth"
)

type contextKey string

const identityContextKey contextKey = "authgw.identity"

// IdentityFromContext returns the authenticated identity placed on the
// request by the authorizer, or nil outside a guarded request.
func IdentityFromContext(ctx context.Context) *auth.Identity {
	id, _ := ctx.Value(identityContextKey).(*auth.Identity)
	return id
}

// SessionFromContext returns the full session for the request, or nil.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey).(*Session)
	return sess
}

const sessionContextKey contextKey = "authgw.session"

// RequestAuthorizer guards proxied paths. Requests with a live session pass
// through with the identity on the context; everything else is bounced to
// login with the original path and query preserved. Auth-flow endpoints and
// static assets are exempt so login itself can never loop.
func (a *App) RequestAuthorizer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.isExcluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		sess := a.sessions.Fetch(r)
		if sess == nil {
			a.logger.Debug("unauthenticated request", "path", r.URL.Path)
			http.Redirect(w, r, a.loginRedirectURL(r), http.StatusFound)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, &sess.Identity)
		ctx = context.WithValue(ctx, sessionContextKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// isExcluded reports whether the path bypasses the session check.
func (a *App) isExcluded(path string) bool {
	for _, prefix := range a.cfg.AuthFilter.ExcludedPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	lower := strings.ToLower(path)
	for _, suffix := range a.cfg.AuthFilter.StaticSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}
