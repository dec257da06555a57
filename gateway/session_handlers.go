package gateway

import (
	"encoding/json"
	"net/http"
)

// The session API lets a browser that already holds an ID token (for
// example from a client-side MSAL flow) trade it for a gateway session
// without going through the redirect dance.

type sessionCreateRequest struct {
	IDToken string `json:"id_token"`
}

// handleSessionCreate validates the posted ID token and, on success, issues
// a session cookie. The token goes through the exact same validator as the
// callback path; a token signed by an untrusted key never mints a session.
func (a *App) handleSessionCreate(w http.ResponseWriter, r *http.Request) {
	var req sessionCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IDToken == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "bad_request",
			"message": "request body must be JSON with a non-empty id_token",
		})
		return
	}

	identity, err := a.validator.Validate(r.Context(), req.IDToken)
	if err != nil {
		a.logger.Warn("session create rejected", "err", err)
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "invalid_token",
			"message": "the supplied id_token failed validation",
		})
		return
	}

	if _, err := a.sessions.Create(w, *identity, req.IDToken); err != nil {
		a.internalError(w, r, "create session", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"user":    userPayload(*identity),
	})
}

// handleSessionDestroy drops the caller's session. Idempotent: destroying a
// session that does not exist still succeeds.
func (a *App) handleSessionDestroy(w http.ResponseWriter, r *http.Request) {
	a.sessions.Destroy(w, r)
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleSessionInfo reports the caller's session details.
func (a *App) handleSessionInfo(w http.ResponseWriter, r *http.Request) {
	setNoCache(w)

	sess := a.sessions.Fetch(r)
	if sess == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success": false,
			"error":   "no_session",
			"message": "no active session",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"user":       userPayload(sess.Identity),
		"created_at": sess.CreatedAt,
		"expires_at": sess.ExpiresAt,
	})
}
