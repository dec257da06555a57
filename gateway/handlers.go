package gateway

import (
	"encoding/json"
	"html"
	"net/http"
	"strings"
	"time"

	"authgw/auth"
)

// flowCookieName carries the per-browser flow id that keys the pending
// request store. It exists only between login initiation and callback.
const flowCookieName = "authgw_flow"

// popupCompletePage closes the login popup and notifies the opener. Served
// only when the flow was started with popup=true.
const popupCompletePage = `<!DOCTYPE html>
<html>
<head><title>Login complete</title></head>
<body>
<p>Login complete. You can close this window.</p>
<script>
if (window.opener) {
	window.opener.postMessage("authgw:login-complete", window.location.origin);
}
window.close();
</script>
</body>
</html>`

// handleLogin starts the authorization-code flow: mint state and nonce,
// remember where the user was headed, and bounce to the IdP.
func (a *App) handleLogin(w http.ResponseWriter, r *http.Request) {
	orig := sanitizeReturnPath(r.URL.Query().Get("orig"))
	popup := r.URL.Query().Get("popup") == "true"

	state, err := newSecureToken()
	if err != nil {
		a.internalError(w, r, "mint state", err)
		return
	}
	nonce, err := newSecureToken()
	if err != nil {
		a.internalError(w, r, "mint nonce", err)
		return
	}
	flowID, err := newSecureToken()
	if err != nil {
		a.internalError(w, r, "mint flow id", err)
		return
	}

	a.pending.Save(flowID, PendingAuthRequest{
		State:       state,
		Nonce:       nonce,
		OriginalURL: orig,
		Popup:       popup,
		CreatedAt:   time.Now(),
	})

	http.SetCookie(w, &http.Cookie{
		Name:     flowCookieName,
		Value:    flowID,
		Path:     a.cfg.CookiePath(),
		HttpOnly: true,
		Secure:   a.cfg.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(DefaultPendingTTL.Seconds()),
	})

	a.logger.Info("login initiated", "orig", orig, "popup", popup)
	http.Redirect(w, r, a.provider.AuthCodeURL(state, nonce), http.StatusFound)
}

// handleCallback finishes the flow. The pending record is consumed before
// any other check, so a replayed callback always finds nothing.
func (a *App) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if errCode := q.Get("error"); errCode != "" {
		// The code and description go to the log only; the page stays generic.
		a.logger.Warn("idp returned error", "error", errCode, "description", q.Get("error_description"))
		a.authError(w, http.StatusBadGateway, "The identity provider rejected the login.")
		return
	}

	code := q.Get("code")
	state := q.Get("state")
	if code == "" || state == "" {
		a.authError(w, http.StatusBadRequest, "Malformed callback: code and state are required.")
		return
	}

	flowCookie, err := r.Cookie(flowCookieName)
	if err != nil || flowCookie.Value == "" {
		a.authError(w, http.StatusBadRequest, "Login session expired. Please try again.")
		return
	}
	pending, ok := a.pending.Consume(flowCookie.Value)
	a.clearFlowCookie(w)
	if !ok {
		a.logger.Warn("callback without pending request")
		a.authError(w, http.StatusBadRequest, "Login session expired. Please try again.")
		return
	}

	if state != pending.State {
		a.logger.Warn("state mismatch on callback")
		a.authError(w, http.StatusBadRequest, "State validation failed. Please try again.")
		return
	}

	rawIDToken, err := a.provider.Exchange(r.Context(), code)
	if err != nil {
		a.logger.Error("token exchange failed", "err", err)
		a.authError(w, http.StatusBadGateway, "Could not complete the login with the identity provider.")
		return
	}

	identity, err := a.validator.Validate(r.Context(), rawIDToken)
	if err != nil {
		a.logger.Warn("id token rejected", "err", err)
		a.authError(w, http.StatusUnauthorized, "The identity token could not be verified.")
		return
	}
	if identity.Nonce == "" || identity.Nonce != pending.Nonce {
		a.logger.Warn("nonce mismatch on callback", "sub", identity.Subject)
		a.authError(w, http.StatusUnauthorized, "The identity token could not be verified.")
		return
	}

	if _, err := a.sessions.Create(w, *identity, rawIDToken); err != nil {
		a.internalError(w, r, "create session", err)
		return
	}

	if pending.Popup {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(popupCompletePage))
		return
	}
	http.Redirect(w, r, pending.OriginalURL, http.StatusFound)
}

// handleLogout tears down the local session. With azure_logout=true the
// browser is then sent to the IdP end-session endpoint so the IdP session
// dies too; otherwise logout is local only.
func (a *App) handleLogout(w http.ResponseWriter, r *http.Request) {
	a.sessions.Destroy(w, r)

	redirect := sanitizeReturnPath(r.URL.Query().Get("redirect"))
	if r.URL.Query().Get("azure_logout") == "true" {
		if idpLogout := a.provider.LogoutURL(a.absoluteURL(redirect)); idpLogout != "" {
			http.Redirect(w, r, idpLogout, http.StatusFound)
			return
		}
	}
	http.Redirect(w, r, redirect, http.StatusFound)
}

// handleStatus reports whether the caller holds a live session. Responses
// are marked uncacheable so intermediaries never serve a stale verdict.
func (a *App) handleStatus(w http.ResponseWriter, r *http.Request) {
	setNoCache(w)

	sess := a.sessions.Fetch(r)
	if sess == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": false,
			"user":          nil,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          userPayload(sess.Identity),
	})
}

func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": true,
	})
}

func (a *App) clearFlowCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     flowCookieName,
		Value:    "",
		Path:     a.cfg.CookiePath(),
		HttpOnly: true,
		Secure:   a.cfg.SecureCookies(),
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// authError renders a minimal error page for browser-facing flow failures.
// Messages must be fixed strings; anything request-derived is escaped anyway.
func (a *App) authError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte("<!DOCTYPE html><html><body><h1>Login failed</h1><p>" + html.EscapeString(msg) + "</p><p><a href=\"/oauth/login\">Try again</a></p></body></html>"))
}

func (a *App) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	a.logger.Error("internal error", "op", op, "err", err)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// absoluteURL resolves a local path against the public URL.
func (a *App) absoluteURL(path string) string {
	return strings.TrimSuffix(a.cfg.Server.PublicURL, "/") + path
}

// sanitizeReturnPath keeps post-login redirects on this host. Anything that
// is not a plain local path collapses to the root.
func sanitizeReturnPath(p string) string {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.HasPrefix(p, "/\\") {
		return "/"
	}
	return p
}

func setNoCache(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func userPayload(id auth.Identity) map[string]any {
	return map[string]any{
		"subject":           id.Subject,
		"email":             id.Email,
		"name":              id.Name,
		"preferredUsername": id.PreferredUsername,
	}
}
