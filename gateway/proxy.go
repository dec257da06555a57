package gateway

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"strings"
	"time"
)

// Identity headers injected for backends. Inbound copies are always
// stripped first so a client can never spoof them.
const (
	headerUserName  = "X-Auth-User-Name"
	headerUserEmail = "X-Auth-User-Email"
	headerUserSub   = "X-Auth-User-Sub"
	headerIDToken   = "X-Auth-Id-Token"
)

// ProxyManager routes requests to backends by Host header, decorating them
// with the authenticated identity.
type ProxyManager struct {
	routes map[string]*proxyRoute
	logger *slog.Logger
}

type proxyRoute struct {
	host          string
	proxy         *httputil.ReverseProxy
	requireAuth   bool
	injectIDToken bool
}

// NewProxyManager builds the routing table from configuration.
func NewProxyManager(cfg ProxyConfig, logger *slog.Logger) (*ProxyManager, error) {
	pm := &ProxyManager{
		routes: make(map[string]*proxyRoute),
		logger: logger,
	}
	for _, routeCfg := range cfg.Routes {
		if err := pm.addRoute(routeCfg); err != nil {
			return nil, fmt.Errorf("invalid proxy route for %s: %w", routeCfg.Host, err)
		}
	}
	return pm, nil
}

func (pm *ProxyManager) addRoute(cfg ProxyRoute) error {
	targetURL, err := url.Parse(cfg.Target)
	if err != nil {
		return fmt.Errorf("invalid target URL: %w", err)
	}

	timeout := 30 * time.Second
	if cfg.Timeout != "" {
		parsed, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("invalid timeout: %w", err)
		}
		timeout = parsed
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	proxy := httputil.NewSingleHostReverseProxy(targetURL)
	proxy.Transport = transport

	injectIDToken := cfg.InjectIDToken
	originalDirector := proxy.Director
	proxy.Director = func(req *http.Request) {
		originalDirector(req)

		if cfg.StripPrefix != "" && strings.HasPrefix(req.URL.Path, cfg.StripPrefix) {
			req.URL.Path = strings.TrimPrefix(req.URL.Path, cfg.StripPrefix)
			if req.URL.Path == "" {
				req.URL.Path = "/"
			}
		}

		if !cfg.PreserveHost {
			req.Host = targetURL.Host
		}

		if clientIP, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
			prior := req.Header.Get("X-Forwarded-For")
			if prior != "" {
				clientIP = prior + ", " + clientIP
			}
			req.Header.Set("X-Forwarded-For", clientIP)
		}
		req.Header.Set("X-Forwarded-Proto", schemeFromRequest(req))
		req.Header.Set("X-Forwarded-Host", req.Host)

		// Identity headers are trusted by backends, so inbound values are
		// dropped unconditionally before the session's identity is applied.
		req.Header.Del(headerUserName)
		req.Header.Del(headerUserEmail)
		req.Header.Del(headerUserSub)
		req.Header.Del(headerIDToken)

		if sess := SessionFromContext(req.Context()); sess != nil {
			req.Header.Set(headerUserName, sess.Identity.Name)
			req.Header.Set(headerUserEmail, sess.Identity.Email)
			req.Header.Set(headerUserSub, sess.Identity.Subject)
			if injectIDToken {
				req.Header.Set(headerIDToken, sess.RawIDToken)
			}
		}
	}

	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		pm.logger.Error("proxy error",
			"host", cfg.Host,
			"target", cfg.Target,
			"error", err,
			"path", r.URL.Path,
		)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
	}

	route := &proxyRoute{
		host:          strings.ToLower(cfg.Host),
		proxy:         proxy,
		requireAuth:   cfg.RequireAuth,
		injectIDToken: injectIDToken,
	}
	pm.routes[route.host] = route
	pm.logger.Info("proxy route added",
		"host", cfg.Host,
		"target", cfg.Target,
		"require_auth", cfg.RequireAuth,
	)
	return nil
}

// HasRoutes reports whether any backend routes are configured.
func (pm *ProxyManager) HasRoutes() bool {
	return len(pm.routes) > 0
}

// ServeHTTP routes the request by Host header. Routes marked require_auth
// refuse requests that carry no session identity even if the path slipped
// past the authorizer exclusions.
func (pm *ProxyManager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	host := strings.ToLower(strings.Split(r.Host, ":")[0])

	route, ok := pm.routes[host]
	if !ok {
		pm.logger.Debug("no proxy route for host", "host", host, "path", r.URL.Path)
		http.Error(w, "Not Found", http.StatusNotFound)
		return
	}

	if route.requireAuth && SessionFromContext(r.Context()) == nil {
		pm.logger.Debug("unauthenticated proxy request", "host", host, "path", r.URL.Path)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	pm.logger.Debug("proxying request",
		"host", host,
		"path", r.URL.Path,
		"method", r.Method,
	)
	route.proxy.ServeHTTP(w, r)
}

func schemeFromRequest(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	return "http"
}
