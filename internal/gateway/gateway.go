// ABOUTME: Gateway orchestrator that wires provider adapters, the runtime client, and HTTP listeners.
// ABOUTME: Manages identity resolution, Tailscale exposure, and graceful drain of in-flight turns.

package gateway

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/sigil-gateway/internal/card"
	"github.com/2389/sigil-gateway/internal/config"
	"github.com/2389/sigil-gateway/internal/memory"
	"github.com/2389/sigil-gateway/internal/metrics"
	"github.com/2389/sigil-gateway/internal/provider"
	"github.com/2389/sigil-gateway/internal/provider/peer"
	"github.com/2389/sigil-gateway/internal/provider/slack"
	"github.com/2389/sigil-gateway/internal/provider/telegram"
	"github.com/2389/sigil-gateway/internal/runtime"
	"github.com/2389/sigil-gateway/internal/sign"
)

// identityResolver is implemented by adapters that need a network
// round-trip before serving (Slack auth.test, Telegram getMe).
type identityResolver interface {
	Name() string
	ResolveIdentity(ctx context.Context) error
}

// Gateway orchestrates the sigil-gateway server: provider webhooks in,
// runtime turns out, capability discovery on the side.
type Gateway struct {
	config      *config.Config
	registry    *provider.Registry
	runtime     runtime.Client
	memory      *memory.Coordinator
	announcer   *card.Announcer
	metrics     *metrics.TurnMetrics
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger

	// resolvers are adapters that must resolve their bot identity
	// before the gateway reports ready.
	resolvers []identityResolver

	// inflight tracks detached turns so shutdown can drain them.
	inflight sync.WaitGroup

	ready atomic.Bool
}

// loadOperations reads the operations manifest, falling back to the
// built-in conversational set when no file is configured.
func loadOperations(path string) ([]card.Operation, error) {
	if path == "" {
		return card.DefaultOperations(), nil
	}
	ops, err := card.LoadManifest(path)
	if err != nil {
		return nil, fmt.Errorf("loading operations manifest: %w", err)
	}
	return ops, nil
}

// New creates a Gateway from configuration. No network calls happen
// here; Run resolves provider identities and binds listeners.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	runtimeClient := runtime.NewHTTPClient(runtime.Options{
		Endpoint:      cfg.Runtime.Endpoint,
		AuthToken:     cfg.Runtime.AuthToken,
		QueryTimeout:  cfg.Runtime.QueryTimeout,
		MemoryTimeout: cfg.Runtime.MemoryTimeout,
	})

	turnMetrics, err := metrics.NewTurnMetrics()
	if err != nil {
		return nil, fmt.Errorf("creating turn metrics: %w", err)
	}

	operations, err := loadOperations(cfg.Identity.OperationsFile)
	if err != nil {
		return nil, err
	}

	announcer, err := card.NewAnnouncer(card.Descriptor{
		Identity: card.Identity{
			Name:        cfg.Identity.Name,
			Description: cfg.Identity.Description,
		},
		Version:             cfg.Identity.Version,
		PublicEndpoint:      cfg.Identity.PublicEndpoint,
		SupportedOperations: operations,
		AuthRequirements: card.AuthRequirements{
			Scheme:                 "hmac-sha256",
			SignatureHeader:        peer.HeaderSignature,
			TimestampHeader:        peer.HeaderTimestamp,
			FreshnessWindowSeconds: int(cfg.Signing.FreshnessWindow.Seconds()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("building capability descriptor: %w", err)
	}

	gw := &Gateway{
		config:    cfg,
		registry:  provider.NewRegistry(),
		runtime:   runtimeClient,
		memory:    memory.NewCoordinator(runtimeClient, logger),
		announcer: announcer,
		metrics:   turnMetrics,
		logger:    logger.With("component", "gateway"),
	}
	gw.registerProviders(cfg, operations, logger)

	mux := http.NewServeMux()
	mux.Handle(card.WellKnownPath, announcer.Handler())
	mux.Handle(card.AliasPath, announcer.Handler())
	mux.HandleFunc("/healthz", gw.handleHealth)
	mux.HandleFunc("/readyz", gw.handleReady)

	// The canonical dialect owns the bare /events route; every adapter,
	// canonical included, is also mounted under its own name.
	if canonical, err := gw.registry.Get("peer"); err == nil {
		mux.HandleFunc("/events", gw.eventsHandler(canonical))
	}
	for _, name := range gw.registry.Names() {
		adapter, err := gw.registry.Get(name)
		if err != nil {
			continue
		}
		mux.HandleFunc("/events/"+name, gw.eventsHandler(adapter))
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           mux,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// registerProviders builds the enabled adapters and records which ones
// need identity resolution before serving.
func (g *Gateway) registerProviders(cfg *config.Config, operations []card.Operation, logger *slog.Logger) {
	var tokens sign.TokenIssuer
	if cfg.Callback.JWTSecret != "" {
		tokens = sign.NewJWTSigner([]byte(cfg.Callback.JWTSecret))
	}

	g.registry.Register(peer.New(peer.Config{
		SigningSecret:   cfg.Signing.Secret,
		FreshnessWindow: cfg.Signing.FreshnessWindow,
		Operations:      card.OperationSet(operations),
		Tokens:          tokens,
		TokenSubject:    cfg.Identity.Name,
		TokenTTL:        cfg.Callback.TokenTTL,
		Logger:          logger,
	}))

	if cfg.Providers.Slack.Enabled {
		adapter := slack.New(slack.Config{
			SigningSecret:   cfg.Providers.Slack.SigningSecret,
			BotToken:        cfg.Providers.Slack.BotToken,
			BotUserID:       cfg.Providers.Slack.BotUserID,
			AllowedChannels: cfg.Providers.Slack.AllowedChannels,
			FreshnessWindow: cfg.Signing.FreshnessWindow,
			Logger:          logger,
		})
		g.registry.Register(adapter)
		g.resolvers = append(g.resolvers, adapter)
	}

	if cfg.Providers.Telegram.Enabled {
		adapter := telegram.New(telegram.Config{
			BotToken:      cfg.Providers.Telegram.BotToken,
			WebhookSecret: cfg.Providers.Telegram.WebhookSecret,
			AllowedChats:  cfg.Providers.Telegram.AllowedChats,
			Logger:        logger,
		})
		g.registry.Register(adapter)
		g.resolvers = append(g.resolvers, adapter)
	}
}

// Run starts the gateway and blocks until the context is canceled.
// Returns nil on graceful shutdown, or an error if startup or the
// server fails.
func (g *Gateway) Run(ctx context.Context) error {
	if err := g.resolveIdentities(ctx); err != nil {
		return err
	}

	listener, err := g.setupListener(ctx)
	if err != nil {
		return err
	}

	g.ready.Store(true)
	errCh := g.startServer(listener)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// resolveIdentities asks each provider that needs it to discover its
// own bot identity. Failing here is a startup error: serving without a
// self id would echo the gateway's replies back into itself.
func (g *Gateway) resolveIdentities(ctx context.Context) error {
	for _, r := range g.resolvers {
		if err := r.ResolveIdentity(ctx); err != nil {
			return fmt.Errorf("resolving %s identity: %w", r.Name(), err)
		}
	}
	return nil
}

// setupListener creates the HTTP listener based on configuration
// (Tailscale or plain TCP).
func (g *Gateway) setupListener(ctx context.Context) (net.Listener, error) {
	if g.config.Tailscale.Enabled {
		if g.config.Server.HTTPAddr != "" {
			g.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", g.config.Server.HTTPAddr,
			)
		}
		return g.setupTailscaleListener(ctx)
	}

	g.logger.Info("starting gateway",
		"http_addr", g.config.Server.HTTPAddr,
		"providers", g.registry.Names(),
	)
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// startServer starts the HTTP server in a goroutine, returning its
// error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// waitForShutdownSignal waits for context cancellation or a server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context bounded by
// the configured grace period. Uses context.Background() intentionally
// since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	grace := g.config.Server.ShutdownGrace
	if grace <= 0 {
		grace = 25 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown stops accepting requests, drains in-flight turns up to the
// context deadline, and releases the Tailscale node.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")
	g.ready.Store(false)

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))

	g.drainTurns(ctx)

	if g.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", g.tsnetServer.Close())
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// drainTurns waits for detached turns to finish, bounded by ctx. Turns
// still running at the deadline lose their memory commit when the
// process exits.
func (g *Gateway) drainTurns(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		g.logger.Warn("shutdown grace expired with turns in flight")
	}
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir explicitly): %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "sigil-gateway", "tailscale"), nil
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set auth_key in config or TS_AUTHKEY environment variable (get one at https://login.tailscale.com/admin/settings/keys)")
	}
	return authKey, nil
}

// setupTailscaleListener creates a tsnet node and returns the HTTP
// listener for it, public via Funnel when configured.
func (g *Gateway) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := g.config.Tailscale

	stateDir, err := resolveTailscaleStateDir(tsCfg.StateDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		return nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}

	g.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	g.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := g.tsnetServer.Up(ctx)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailscaleStatus(tsCfg.Hostname, status)

	ln, err := g.createTailscaleHTTPListener(tsCfg)
	if err != nil {
		_ = g.tsnetServer.Close()
		return nil, err
	}
	return ln, nil
}

// logTailscaleStatus logs info about the tailscale node status.
func (g *Gateway) logTailscaleStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}

// createTailscaleHTTPListener creates the appropriate listener: public
// Funnel, tailnet HTTPS with Tailscale certs, or plain tailnet HTTP.
func (g *Gateway) createTailscaleHTTPListener(tsCfg config.TailscaleConfig) (net.Listener, error) {
	switch {
	case tsCfg.Funnel:
		g.logger.Info("enabling tailscale funnel (public HTTPS) on :443")
		ln, err := g.tsnetServer.ListenFunnel("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale funnel port: %w", err)
		}
		return ln, nil
	case tsCfg.HTTPS:
		g.logger.Info("enabling HTTPS with Tailscale certs on :443")
		ln, err := g.tsnetServer.Listen("tcp", ":443")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTPS port: %w", err)
		}
		lc, err := g.tsnetServer.LocalClient()
		if err != nil {
			_ = ln.Close()
			return nil, fmt.Errorf("getting tailscale local client: %w", err)
		}
		return tls.NewListener(ln, &tls.Config{
			GetCertificate: lc.GetCertificate,
			MinVersion:     tls.VersionTLS12,
		}), nil
	default:
		ln, err := g.tsnetServer.Listen("tcp", ":80")
		if err != nil {
			return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
		}
		return ln, nil
	}
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 once provider identities are resolved and
// listeners are up, 503 before that and during shutdown.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	if !g.ready.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("starting"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d providers)", len(g.registry.Names()))
}
