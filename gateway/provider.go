package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// ErrExchange classifies token-endpoint failures: unreachable IdP, rejected
// code, or a response without an id_token. Not retried within the request.
var ErrExchange = errors.New("token exchange failed")

// Provider wraps the upstream IdP: authorize URL construction, code
// exchange, and the logout endpoint.
type Provider struct {
	oauth           *oauth2.Config
	jwksURL         string
	endSessionURL   string
	exchangeTimeout time.Duration
	logger          *slog.Logger
}

// NewProvider wires the IdP from config. Explicit endpoint URLs win;
// otherwise the issuer is resolved through OIDC discovery.
func NewProvider(ctx context.Context, cfg ProviderConfig, logger *slog.Logger) (*Provider, error) {
	p := &Provider{
		jwksURL:         cfg.JWKSURL,
		endSessionURL:   cfg.EndSessionURL,
		exchangeTimeout: cfg.ExchangeTimeout,
		logger:          logger,
	}
	if p.exchangeTimeout <= 0 {
		p.exchangeTimeout = DefaultExchangeWait
	}

	endpoint := oauth2.Endpoint{AuthURL: cfg.AuthorizeURL, TokenURL: cfg.TokenURL}
	if cfg.AuthorizeURL == "" || cfg.TokenURL == "" || cfg.JWKSURL == "" {
		op, err := oidc.NewProvider(ctx, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("discover provider %s: %w", cfg.Issuer, err)
		}
		var meta struct {
			JWKSURI            string `json:"jwks_uri"`
			EndSessionEndpoint string `json:"end_session_endpoint"`
		}
		if err := op.Claims(&meta); err != nil {
			return nil, fmt.Errorf("parse provider metadata: %w", err)
		}
		endpoint = op.Endpoint()
		if p.jwksURL == "" {
			p.jwksURL = meta.JWKSURI
		}
		if p.endSessionURL == "" {
			p.endSessionURL = meta.EndSessionEndpoint
		}
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	p.oauth = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
	return p, nil
}

// AuthCodeURL constructs the authorization request for the IdP.
func (p *Provider) AuthCodeURL(state, nonce string) string {
	return p.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("response_mode", "query"),
	)
}

// Exchange redeems the authorization code at the IdP token endpoint and
// returns the raw ID token. The call is bounded by the exchange timeout;
// any non-success outcome is an ErrExchange, never silently retried.
func (p *Provider) Exchange(ctx context.Context, code string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.exchangeTimeout)
	defer cancel()

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExchange, err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", fmt.Errorf("%w: id_token missing in response", ErrExchange)
	}
	return rawIDToken, nil
}

// JWKSURL reports the resolved signing-key endpoint.
func (p *Provider) JWKSURL() string {
	return p.jwksURL
}

// LogoutURL builds the IdP end-session URL with an optional post-logout
// redirect. Empty when the IdP publishes no end-session endpoint.
func (p *Provider) LogoutURL(postLogoutRedirect string) string {
	if p.endSessionURL == "" {
		return ""
	}
	if postLogoutRedirect == "" {
		return p.endSessionURL
	}
	return p.endSessionURL + "?post_logout_redirect_uri=" + url.QueryEscape(postLogoutRedirect)
}
