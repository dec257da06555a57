package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestSessionCreateIssuesCookieForValidToken(t *testing.T) {
	idp := newFakeIDP(t)
	_, router := newTestApp(t, idp, nil)

	raw := idp.signToken(t, nil)
	body := strings.NewReader(`{"id_token":"` + raw + `"}`)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/oauth/session/create", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool `json:"success"`
		User    struct {
			Subject string `json:"subject"`
			Email   string `json:"email"`
			Name    string `json:"name"`
		} `json:"user"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if !resp.Success || resp.User.Subject != "user-123" || resp.User.Email != "alice@example.com" {
		t.Fatalf("response = %+v", resp)
	}

	found := false
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no session cookie issued")
	}
}

func TestSessionCreateRejectsUntrustedToken(t *testing.T) {
	idp := newFakeIDP(t)
	_, router := newTestApp(t, idp, nil)

	// Token signed by a key the gateway's JWKS never published.
	rogue := newFakeIDP(t)
	raw := rogue.signToken(t, func(c jwt.MapClaims) { c["sub"] = "attacker" })
	body := strings.NewReader(`{"id_token":"` + raw + `"}`)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/oauth/session/create", body))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName && c.Value != "" {
			t.Fatalf("session cookie issued for untrusted token")
		}
	}

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v", err)
	}
	if resp.Success || resp.Error != "invalid_token" {
		t.Fatalf("response = %+v", resp)
	}
}

func TestSessionCreateRejectsBadBody(t *testing.T) {
	idp := newFakeIDP(t)
	_, router := newTestApp(t, idp, nil)

	for _, body := range []string{"", "{}", "not json", `{"id_token":""}`} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/oauth/session/create", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
}

func TestSessionInfoAndDestroy(t *testing.T) {
	idp := newFakeIDP(t)
	_, router := newTestApp(t, idp, nil)

	raw := idp.signToken(t, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/oauth/session/create",
		strings.NewReader(`{"id_token":"`+raw+`"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("create status = %d", rec.Code)
	}
	var sessCookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == sessionCookieName {
			sessCookie = c
		}
	}

	infoReq := httptest.NewRequest(http.MethodGet, "/oauth/session/info", nil)
	infoReq.AddCookie(sessCookie)
	infoRec := httptest.NewRecorder()
	router.ServeHTTP(infoRec, infoReq)
	if infoRec.Code != http.StatusOK {
		t.Fatalf("info status = %d", infoRec.Code)
	}

	destroyReq := httptest.NewRequest(http.MethodPost, "/oauth/session/destroy", nil)
	destroyReq.AddCookie(sessCookie)
	destroyRec := httptest.NewRecorder()
	router.ServeHTTP(destroyRec, destroyReq)
	if destroyRec.Code != http.StatusOK {
		t.Fatalf("destroy status = %d", destroyRec.Code)
	}

	infoRec = httptest.NewRecorder()
	router.ServeHTTP(infoRec, infoReq)
	if infoRec.Code != http.StatusUnauthorized {
		t.Fatalf("info after destroy = %d, want 401", infoRec.Code)
	}
}
