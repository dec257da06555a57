package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes constructs the HTTP router: auth-flow endpoints, the code
// exchange, health, and a catch-all that authorizes and proxies everything
// else to the configured backends.
func (a *App) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(a.logger))
	r.Use(RecoveryMiddleware(a.logger))
	if !a.cfg.Server.DevMode {
		r.Use(SecurityHeadersMiddleware(a.cfg.Server.TLS.HSTSMaxAge))
	}

	r.Get("/oauth/login", a.handleLogin)
	r.Get("/oauth/callback", a.handleCallback)
	r.Get("/oauth/logout", a.handleLogout)
	r.Post("/oauth/logout", a.handleLogout)
	r.Get("/oauth/status", a.handleStatus)

	r.Post("/oauth/session/create", a.handleSessionCreate)
	r.Post("/oauth/session/destroy", a.handleSessionDestroy)
	r.Get("/oauth/session/info", a.handleSessionInfo)

	r.Get("/auth/create-code", a.handleCreateCode)
	r.Post("/internal/validate-code", a.handleValidateCode)

	r.Get("/health", a.handleHealth)

	if a.proxy.HasRoutes() {
		r.Handle("/*", a.RequestAuthorizer(a.proxy))
	} else {
		r.Handle("/*", a.RequestAuthorizer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "Not Found", http.StatusNotFound)
		})))
	}

	return r
}
