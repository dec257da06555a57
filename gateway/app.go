package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"authgw/auth"
)

// App wires the gateway components: IdP provider, token validator, session
// store, pending flow store, one-time code store, and the reverse proxy.
type App struct {
	cfg       Config
	logger    *slog.Logger
	provider  *Provider
	keys      *auth.KeySetCache
	validator *auth.Validator
	sessions  *SessionManager
	pending   PendingStore
	codes     *CodeStore
	proxy     *ProxyManager

	stop chan struct{}
}

// NewApp constructs the application from validated configuration. The
// context bounds provider discovery, which may hit the network.
func NewApp(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	provider, err := NewProvider(ctx, cfg.Provider, logger)
	if err != nil {
		return nil, fmt.Errorf("init provider: %w", err)
	}

	keys := auth.NewKeySetCache(provider.JWKSURL(), cfg.Provider.KeySetTTL, nil, logger)
	validator := auth.NewValidator(auth.ValidatorConfig{
		Issuer:       cfg.Provider.Issuer,
		LegacyIssuer: cfg.Provider.LegacyIssuer,
		Audience:     cfg.Provider.ClientID,
		ClockSkew:    cfg.Provider.ClockSkew,
	}, keys)

	proxy, err := NewProxyManager(cfg.Proxy, logger)
	if err != nil {
		return nil, fmt.Errorf("init proxy: %w", err)
	}

	return &App{
		cfg:       cfg,
		logger:    logger,
		provider:  provider,
		keys:      keys,
		validator: validator,
		sessions:  NewSessionManager(cfg, NewMemorySessionBackend(), logger),
		pending:   NewPendingStore(DefaultPendingTTL),
		codes:     NewCodeStore(cfg.CodeExchange.TTL),
		proxy:     proxy,
		stop:      make(chan struct{}),
	}, nil
}

// Start launches background maintenance: session and pending-flow sweeps.
func (a *App) Start() {
	every := a.cfg.Sessions.SweepEvery
	if every <= 0 {
		every = DefaultSweepEvery
	}
	a.sessions.StartSweeper(every, a.stop)

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := a.pending.Sweep(time.Now()); n > 0 {
					a.logger.Debug("pending sweep", "removed", n)
				}
			case <-a.stop:
				return
			}
		}
	}()
}

// Stop terminates background maintenance.
func (a *App) Stop() {
	close(a.stop)
}
