package gateway

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
)

// The code exchange bridges to a trusted backend in another trust domain:
// the browser carries an opaque one-time code there, and the backend
// redeems it server-to-server with a shared secret.

// handleCreateCode issues a one-time code for the caller's session and
// redirects the browser to the backend's consume endpoint.
func (a *App) handleCreateCode(w http.ResponseWriter, r *http.Request) {
	sess := a.sessions.Fetch(r)
	if sess == nil {
		http.Redirect(w, r, a.loginRedirectURL(r), http.StatusFound)
		return
	}

	consumeURL := a.cfg.CodeExchange.ConsumeURL
	if consumeURL == "" {
		a.logger.Error("create-code called without code_exchange.consume_url configured")
		http.Error(w, "code exchange is not configured", http.StatusInternalServerError)
		return
	}

	code, err := a.codes.Issue(CodeClaims{
		Email: sess.Identity.Email,
		Name:  sess.Identity.Name,
		Sub:   sess.Identity.Subject,
	})
	if err != nil {
		a.internalError(w, r, "issue code", err)
		return
	}

	sep := "?"
	if strings.Contains(consumeURL, "?") {
		sep = "&"
	}
	a.logger.Info("exchange code issued", "sub", sess.Identity.Subject)
	http.Redirect(w, r, consumeURL+sep+"code="+url.QueryEscape(code), http.StatusFound)
}

// handleValidateCode redeems a one-time code for its claims. Called
// server-to-server by the trusted backend with a bearer shared secret. The
// secret check runs before anything else, and an empty configured secret
// rejects every caller rather than admitting them all.
func (a *App) handleValidateCode(w http.ResponseWriter, r *http.Request) {
	if !a.checkSharedSecret(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "unauthorized"})
		return
	}

	code := readCode(r)
	if code == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "missing code"})
		return
	}

	claims, ok := a.codes.Redeem(code)
	if !ok {
		a.logger.Warn("code redemption failed")
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid or expired code"})
		return
	}

	a.logger.Info("exchange code redeemed", "sub", claims.Sub)
	writeJSON(w, http.StatusOK, claims)
}

// readCode pulls the code from a JSON body, a form body, or the query
// string. Trusted backends post JSON; the other carriers stay supported.
func readCode(r *http.Request) string {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Code string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Code != "" {
			return req.Code
		}
		return ""
	}
	if code := r.URL.Query().Get("code"); code != "" {
		return code
	}
	if err := r.ParseForm(); err == nil {
		return r.PostForm.Get("code")
	}
	return ""
}

// checkSharedSecret compares the bearer token against the configured shared
// secret in constant time. Fails closed when no secret is configured.
func (a *App) checkSharedSecret(r *http.Request) bool {
	secret := a.cfg.CodeExchange.SharedSecret
	if secret == "" {
		a.logger.Error("validate-code rejected: shared secret not configured")
		return false
	}

	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return false
	}
	presented := header[len(prefix):]
	return subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1
}

// loginRedirectURL points an unauthenticated browser at login, preserving
// where it was headed.
func (a *App) loginRedirectURL(r *http.Request) string {
	orig := r.URL.Path
	if r.URL.RawQuery != "" {
		orig += "?" + r.URL.RawQuery
	}
	return "/oauth/login?orig=" + url.QueryEscape(orig)
}
