// ABOUTME: Gateway orchestrator that wires storage, agents, and the message pipeline behind HTTP
// ABOUTME: Manages the HTTP server lifecycle, health endpoints, and optional metrics exposition

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/2389/agentdesk/internal/agent"
	"github.com/2389/agentdesk/internal/auth"
	"github.com/2389/agentdesk/internal/builtins"
	"github.com/2389/agentdesk/internal/config"
	"github.com/2389/agentdesk/internal/conversation"
	"github.com/2389/agentdesk/internal/dedupe"
	"github.com/2389/agentdesk/internal/history"
	"github.com/2389/agentdesk/internal/llm"
	"github.com/2389/agentdesk/internal/metrics"
	"github.com/2389/agentdesk/internal/providers"
	"github.com/2389/agentdesk/internal/store"
)

// maxBodyBytes bounds request bodies; base64 images are the large case.
const maxBodyBytes = 10 << 20

// Gateway owns the server components.
type Gateway struct {
	config       *config.Config
	store        store.Store
	history      *history.Store
	registry     *agent.Registry
	pool         *agent.Pool
	conversation *conversation.Service
	events       *conversation.Broadcaster
	replay       *dedupe.Cache[conversation.Response]
	metrics      *metrics.Metrics
	handler      http.Handler
	httpServer   *http.Server
	logger       *slog.Logger
}

// New opens the configured database and builds a Gateway on it.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	gw, err := NewWithStore(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// NewWithStore builds a Gateway on an already opened store. The gateway
// takes ownership of s and closes it on Shutdown.
func NewWithStore(cfg *config.Config, s store.Store, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	completer, err := llm.New(cfg.LLM.Provider, cfg.LLM.BaseURL, cfg.LLM.APIKey, cfg.LLM.Model, logger)
	if err != nil {
		return nil, fmt.Errorf("creating completer: %w", err)
	}

	registry := agent.NewRegistry(s, logger)
	if err := builtins.Register(registry, newBuiltinDeps(cfg, completer, logger)); err != nil {
		return nil, fmt.Errorf("registering builtin agents: %w", err)
	}

	gw := &Gateway{
		config:   cfg,
		store:    s,
		history:  history.New(s, logger),
		registry: registry,
		events:   conversation.NewBroadcaster(logger),
		logger:   logger.With("component", "gateway"),
	}

	var gauge agent.Gauge
	opts := conversation.Options{
		InvokeTimeout: cfg.Agents.InvokeTimeout,
		HistoryWindow: cfg.Agents.HistoryWindow,
		Events:        gw.events,
	}
	if cfg.Metrics.Enabled {
		gw.metrics = metrics.New()
		gauge = gw.metrics.InFlight()
		opts.Recorder = gw.metrics
	}
	if cfg.Dedupe.Enabled {
		gw.replay = dedupe.New[conversation.Response](cfg.Dedupe.TTL, cfg.Dedupe.MaxEntries)
		opts.Replay = gw.replay
	}

	gw.pool = agent.NewPool(cfg.Agents.Workers, gauge, logger)
	gw.conversation = conversation.New(gw.history, registry, gw.pool, opts, logger)

	handler, err := gw.routes()
	if err != nil {
		gw.closeComponents()
		return nil, err
	}
	gw.handler = handler
	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	gw.logger.Info("gateway configured",
		"llm_provider", cfg.LLM.Provider,
		"agent_types", registry.Types(),
		"workers", gw.pool.Workers(),
		"replay_cache", cfg.Dedupe.Enabled,
		"metrics", cfg.Metrics.Enabled,
	)
	return gw, nil
}

// newBuiltinDeps creates provider clients for every provider that has the
// credentials it needs. OpenSky works anonymously and is always available.
func newBuiltinDeps(cfg *config.Config, completer llm.Completer, logger *slog.Logger) builtins.Deps {
	p := cfg.Providers
	fetch := providers.NewFetcher(p.Timeout, 0, logger)
	deps := builtins.Deps{
		LLM:    completer,
		Sky:    providers.NewOpenSkyClient(providers.NewFetcher(p.Timeout, p.OpenSky.RequestsPerSecond, logger), p.OpenSky.BaseURL, p.OpenSky.Username, p.OpenSky.Password),
		Logger: logger,
	}
	if p.Weather.APIKey != "" {
		deps.Weather = providers.NewWeatherClient(fetch, p.Weather.BaseURL, p.Weather.APIKey)
	} else {
		logger.Warn("weather provider disabled - no providers.weather.api_key configured")
	}
	if p.Windy.APIKey != "" {
		deps.Windy = providers.NewWindyClient(fetch, p.Windy.BaseURL, p.Windy.APIKey)
	} else {
		logger.Warn("windy provider disabled - no providers.windy.api_key configured")
	}
	return deps
}

// routes builds the HTTP handler. API routes sit behind JWT auth when a
// secret is configured.
func (g *Gateway) routes() (http.Handler, error) {
	mux := http.NewServeMux()

	// Health endpoints - no auth required
	mux.HandleFunc("GET /health", g.handleHealth)
	mux.HandleFunc("GET /health/ready", g.handleReady)

	if g.metrics != nil {
		mux.Handle("GET "+g.config.Metrics.Path, g.metrics.Handler())
	}

	api := http.NewServeMux()
	api.HandleFunc("POST /api/send", g.handleSend)
	api.HandleFunc("POST /api/add_message", g.handleAddMessage)
	api.HandleFunc("GET /api/get_chat", g.handleGetChat)
	api.HandleFunc("POST /api/clear_chat", g.handleClearChat)
	api.HandleFunc("GET /api/all_agents", g.handleAllAgents)
	api.HandleFunc("GET /api/agent_types", g.handleAgentTypes)
	api.HandleFunc("POST /api/users", g.handleCreateUser)
	api.HandleFunc("GET /api/events", g.handleEvents)

	var apiHandler http.Handler = api
	if secret := g.config.Auth.JWTSecret; secret != "" {
		verifier, err := auth.NewJWTVerifier([]byte(secret))
		if err != nil {
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		apiHandler = auth.Middleware(g.store, verifier, g.logger)(api)
		g.logger.Info("HTTP auth middleware enabled")
	} else {
		g.logger.Warn("HTTP auth disabled - no jwt_secret configured")
	}
	mux.Handle("/api/", limitBody(apiHandler))

	return mux, nil
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
		next.ServeHTTP(w, r)
	})
}

// Handler returns the gateway's HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Run serves HTTP and blocks until ctx is canceled or the server fails.
// Returns nil on graceful shutdown.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	// The run context is already done, so shutdown gets its own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	shutdownErr := g.Shutdown(shutdownCtx)

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// Shutdown stops the HTTP server, ends live subscriptions, and closes the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if err := g.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	g.closeComponents()
	if err := g.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store close: %w", err))
	}
	return errors.Join(errs...)
}

func (g *Gateway) closeComponents() {
	if g.replay != nil {
		g.replay.Close()
	}
	if g.events != nil {
		g.events.Close()
	}
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the database answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("database unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "ready (%d agent types)", len(g.registry.Types()))
}
