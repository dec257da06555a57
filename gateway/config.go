package gateway

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardcoded TTL defaults
const (
	DefaultSessionTTL   = 8 * time.Hour
	DefaultCodeTTL      = 5 * time.Minute
	DefaultPendingTTL   = 10 * time.Minute
	DefaultKeySetTTL    = time.Hour
	DefaultSweepEvery   = 5 * time.Minute
	DefaultExchangeWait = 15 * time.Second
)

// Default path set skipped by the request authorizer. The auth-flow paths
// must be reachable without a session or login would loop forever.
var (
	DefaultExcludedPrefixes = []string{"/oauth/", "/auth/", "/internal/", "/health"}
	DefaultStaticSuffixes = []string{
		".css", ".js", ".png", ".jpg", ".jpeg", ".gif", ".ico", ".svg",
		".woff", ".woff2", ".ttf", ".eot", ".map",
	}
)

// Config captures the full application configuration loaded from YAML and
// environment variables.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Provider     ProviderConfig     `yaml:"provider"`
	Sessions     SessionConfig      `yaml:"sessions"`
	CodeExchange CodeExchangeConfig `yaml:"code_exchange"`
	AuthFilter   AuthFilterConfig   `yaml:"auth_filter"`
	Proxy        ProxyConfig        `yaml:"proxy"`
}

// ServerConfig controls listener, TLS, and cookie concerns.
type ServerConfig struct {
	PublicURL       string    `yaml:"public_url"`
	BasePath        string    `yaml:"base_path"`
	DevListenAddr   string    `yaml:"dev_listen_addr"`
	HTTPListenAddr  string    `yaml:"http_listen_addr"`
	HTTPSListenAddr string    `yaml:"https_listen_addr"`
	DevMode         bool      `yaml:"dev_mode"`
	CookieSecure    string    `yaml:"cookie_secure"` // auto|true|false
	TLS             TLSConfig `yaml:"tls"`
}

// TLSConfig defines autocert behaviour.
type TLSConfig struct {
	Domains    []string `yaml:"domains"`
	Email      string   `yaml:"email"`
	CacheDir   string   `yaml:"cache_dir"`
	HSTSMaxAge int      `yaml:"hsts_max_age"`
}

// ProviderConfig encapsulates the upstream IdP. When TenantID is set the
// Azure AD v2.0 endpoint templates fill in everything else; otherwise the
// issuer is resolved through OIDC discovery unless explicit endpoint URLs
// are given.
type ProviderConfig struct {
	Issuer       string `yaml:"issuer"`
	LegacyIssuer string `yaml:"legacy_issuer"`
	TenantID     string `yaml:"tenant_id"`
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`

	AuthorizeURL  string `yaml:"authorize_url"`
	TokenURL      string `yaml:"token_url"`
	JWKSURL       string `yaml:"jwks_url"`
	EndSessionURL string `yaml:"end_session_url"`

	Scopes          []string      `yaml:"scopes"`
	KeySetTTL       time.Duration `yaml:"keyset_ttl"`
	ClockSkew       time.Duration `yaml:"clock_skew"`
	ExchangeTimeout time.Duration `yaml:"exchange_timeout"`
}

// SessionConfig controls the server-side session store.
type SessionConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	SweepEvery time.Duration `yaml:"sweep_every"`
}

// CodeExchangeConfig controls the one-time code hand-off to a trusted
// backend in another trust domain.
type CodeExchangeConfig struct {
	SharedSecret string        `yaml:"shared_secret"`
	TTL          time.Duration `yaml:"ttl"`
	ConsumeURL   string        `yaml:"consume_url"`
}

// AuthFilterConfig controls which paths the request authorizer guards.
type AuthFilterConfig struct {
	ExcludedPrefixes []string `yaml:"excluded_prefixes"`
	StaticSuffixes   []string `yaml:"static_suffixes"`
}

// ProxyConfig defines reverse proxy routes for host-based routing.
type ProxyConfig struct {
	Routes []ProxyRoute `yaml:"routes"`
}

// ProxyRoute maps a hostname to a backend target.
type ProxyRoute struct {
	Host               string `yaml:"host"`
	Target             string `yaml:"target"`
	RequireAuth        bool   `yaml:"require_auth"`
	StripPrefix        string `yaml:"strip_prefix"`
	PreserveHost       bool   `yaml:"preserve_host"`
	Timeout            string `yaml:"timeout"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	InjectIDToken      bool   `yaml:"inject_id_token"`
}

// LoadConfig reads the YAML config file and merges environment overrides.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(b))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	cfg.applyProviderDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// DefaultConfig returns the default configuration template.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			PublicURL:       "http://127.0.0.1:8080",
			BasePath:        "/",
			DevListenAddr:   "127.0.0.1:8080",
			HTTPListenAddr:  ":80",
			HTTPSListenAddr: ":443",
			DevMode:         true,
			CookieSecure:    "auto",
			TLS: TLSConfig{
				CacheDir:   ".secrets/tls",
				HSTSMaxAge: 31536000,
			},
		},
		Provider: ProviderConfig{
			Scopes:          []string{"openid", "profile", "email"},
			KeySetTTL:       DefaultKeySetTTL,
			ClockSkew:       5 * time.Minute,
			ExchangeTimeout: DefaultExchangeWait,
		},
		Sessions: SessionConfig{
			TTL:        DefaultSessionTTL,
			SweepEvery: DefaultSweepEvery,
		},
		CodeExchange: CodeExchangeConfig{
			TTL: DefaultCodeTTL,
		},
		AuthFilter: AuthFilterConfig{
			ExcludedPrefixes: append([]string(nil), DefaultExcludedPrefixes...),
			StaticSuffixes:   append([]string(nil), DefaultStaticSuffixes...),
		},
	}
}

// applyProviderDefaults expands the Azure AD endpoint templates when only a
// tenant id was supplied, mirroring how the IdP publishes them.
func (c *Config) applyProviderDefaults() {
	p := &c.Provider
	if p.TenantID != "" {
		base := "https://login.microsoftonline.com/" + p.TenantID
		if p.Issuer == "" {
			p.Issuer = base + "/v2.0"
		}
		if p.LegacyIssuer == "" {
			p.LegacyIssuer = "https://sts.windows.net/" + p.TenantID + "/"
		}
		if p.AuthorizeURL == "" {
			p.AuthorizeURL = base + "/oauth2/v2.0/authorize"
		}
		if p.TokenURL == "" {
			p.TokenURL = base + "/oauth2/v2.0/token"
		}
		if p.JWKSURL == "" {
			p.JWKSURL = base + "/discovery/v2.0/keys"
		}
		if p.EndSessionURL == "" {
			p.EndSessionURL = base + "/oauth2/v2.0/logout"
		}
	}
	if p.RedirectURI == "" && c.Server.PublicURL != "" {
		p.RedirectURI = strings.TrimSuffix(c.Server.PublicURL, "/") + "/oauth/callback"
	}
}

func applyEnvOverrides(cfg *Config) {
	overrides := map[string]func(string){
		"AUTHGW_PUBLIC_URL":      func(v string) { cfg.Server.PublicURL = v },
		"AUTHGW_DEV_LISTEN_ADDR": func(v string) { cfg.Server.DevListenAddr = v },
		"AUTHGW_DEV_MODE":        func(v string) { cfg.Server.DevMode = parseBool(v, cfg.Server.DevMode) },
		"AUTHGW_COOKIE_SECURE":   func(v string) { cfg.Server.CookieSecure = v },
		"AUTHGW_TENANT_ID":       func(v string) { cfg.Provider.TenantID = v },
		"AUTHGW_CLIENT_ID":       func(v string) { cfg.Provider.ClientID = v },
		"AUTHGW_CLIENT_SECRET":   func(v string) { cfg.Provider.ClientSecret = v },
		"AUTHGW_REDIRECT_URI":    func(v string) { cfg.Provider.RedirectURI = v },
		"AUTHGW_ISSUER":          func(v string) { cfg.Provider.Issuer = v },
		"AUTHGW_SHARED_SECRET":   func(v string) { cfg.CodeExchange.SharedSecret = v },
		"AUTHGW_CONSUME_URL":     func(v string) { cfg.CodeExchange.ConsumeURL = v },
		"AUTHGW_SESSION_TTL":     func(v string) { cfg.Sessions.TTL = parseDuration(v, cfg.Sessions.TTL) },
		"AUTHGW_CODE_TTL":        func(v string) { cfg.CodeExchange.TTL = parseDuration(v, cfg.CodeExchange.TTL) },
	}

	for key, fn := range overrides {
		if val, ok := os.LookupEnv(key); ok {
			fn(val)
		}
	}
}

// Validate performs sanity checks. Anything required for the auth flow is
// rejected up front rather than discovered mid-login.
func (c Config) Validate() error {
	if c.Server.PublicURL == "" {
		return errors.New("server.public_url is required")
	}
	if !strings.HasPrefix(c.Server.PublicURL, "http://") && !strings.HasPrefix(c.Server.PublicURL, "https://") {
		return fmt.Errorf("server.public_url must start with http:// or https://, got: %s", c.Server.PublicURL)
	}
	switch c.Server.CookieSecure {
	case "", "auto", "true", "false":
	default:
		return fmt.Errorf("server.cookie_secure must be auto, true, or false, got: %s", c.Server.CookieSecure)
	}
	if !c.Server.DevMode && len(c.Server.TLS.Domains) == 0 {
		return errors.New("server.tls.domains must be provided in production")
	}

	p := c.Provider
	if p.ClientID == "" {
		return errors.New("provider.client_id is required")
	}
	if p.ClientSecret == "" {
		return errors.New("provider.client_secret is required")
	}
	if p.Issuer == "" && p.TenantID == "" {
		return errors.New("provider.issuer or provider.tenant_id is required")
	}
	if p.RedirectURI != "" && !strings.HasPrefix(p.RedirectURI, "http://") && !strings.HasPrefix(p.RedirectURI, "https://") {
		return fmt.Errorf("provider.redirect_uri must be a valid HTTP(S) URL, got: %s", p.RedirectURI)
	}

	for i, route := range c.Proxy.Routes {
		if route.Host == "" {
			return fmt.Errorf("proxy.routes[%d]: host is required", i)
		}
		if route.Target == "" {
			return fmt.Errorf("proxy.routes[%d] (%s): target is required", i, route.Host)
		}
		if !strings.HasPrefix(route.Target, "http://") && !strings.HasPrefix(route.Target, "https://") {
			return fmt.Errorf("proxy.routes[%d] (%s): target must start with http:// or https://", i, route.Host)
		}
		if route.Timeout != "" {
			if _, err := time.ParseDuration(route.Timeout); err != nil {
				return fmt.Errorf("proxy.routes[%d] (%s): invalid timeout %q: %w", i, route.Host, route.Timeout, err)
			}
		}
	}

	return nil
}

// SecureCookies resolves the effective Secure flag for issued cookies.
// "auto" means secure everywhere except dev mode.
func (c Config) SecureCookies() bool {
	switch c.Server.CookieSecure {
	case "true":
		return true
	case "false":
		return false
	default:
		return !c.Server.DevMode
	}
}

// CookiePath returns the path attribute for issued cookies, scoped to the
// gateway mount path.
func (c Config) CookiePath() string {
	if c.Server.BasePath == "" {
		return "/"
	}
	return c.Server.BasePath
}

func parseDuration(val string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return d
}

func parseBool(val string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return fallback
	}
}
