package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"

	"tradegate/internal/authflow"
	"tradegate/internal/authstate"
	"tradegate/internal/broker"
	"tradegate/internal/config"
	"tradegate/internal/credstore"
	"tradegate/internal/session"
	"tradegate/pkg/logging"
)

const serverVersion = "1.0.0"

// brokerHTTPTimeout bounds outgoing brokerage requests. The broker client
// itself adds no timeout layer; this is the one place it is set.
const brokerHTTPTimeout = 30 * time.Second

// Server owns the HTTP listener and everything mounted on it.
type Server struct {
	config config.TradegateConfig
	logger *slog.Logger

	backend    credstore.Backend
	store      *credstore.Store
	approvals  *Approvals
	registry   *session.Registry
	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server
}

// New assembles the server from a validated configuration.
func New(cfg config.TradegateConfig, logger *slog.Logger) (*Server, error) {
	backend, err := newBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	store := credstore.NewStore(backend, cfg.Credentials.TTL, logger)

	codec, err := authstate.NewCodec([]byte(cfg.Auth.StateSecret), cfg.Auth.StateTTL)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("create state codec: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.Broker.ClientID,
		ClientSecret: cfg.Broker.ClientSecret,
		RedirectURL:  cfg.Broker.RedirectURL,
		Scopes:       cfg.Broker.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  cfg.Broker.AuthURL,
			TokenURL: cfg.Broker.TokenURL,
		},
	}

	httpClient := &http.Client{Timeout: brokerHTTPTimeout}
	approvals := NewApprovals(0)

	controller := authflow.NewController(authflow.Config{
		Codec:   codec,
		Store:   store,
		Clients: approvals,
		// The exchanger carries no load/save closures: the flow itself
		// persists the exchanged credential under both keys.
		Exchanger: broker.NewOAuthTokenManager(oauthCfg, nil, nil, logger),
		Identity:  newIdentityResolver(cfg.Broker.APIBaseURL, httpClient, logger),
		Provider: &recordingProvider{
			ProviderGateway: broker.NewProvider(oauthCfg, cfg.Broker.CompletionURL),
			approvals:       approvals,
		},
		Scope:       strings.Join(cfg.Broker.Scopes, " "),
		RedirectURI: cfg.Broker.RedirectURL,
		Logger:      logger,
	})

	mcpServer := mcpserver.NewMCPServer(
		"tradegate",
		serverVersion,
		mcpserver.WithToolCapabilities(true),
	)

	sessionLevel, err := logging.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		sessionLevel = slog.LevelInfo
	}

	deps := session.Deps{
		Config: staticResolver{settings: session.Settings{
			LogLevel:        sessionLevel,
			DefaultClientID: cfg.Session.DefaultClientID,
		}},
		Store: store,
		Tools: &mcpToolRegistry{srv: mcpServer},
		NewTokenManager: func(load broker.LoadFunc, save broker.SaveFunc, logger *slog.Logger) broker.TokenManager {
			return broker.NewOAuthTokenManager(oauthCfg, load, save, logger)
		},
		NewClient: func(tokens broker.TokenProvider, logger *slog.Logger) session.BrokerAPI {
			return broker.NewClient(cfg.Broker.APIBaseURL, tokens, httpClient, logger)
		},
		NewLogger: func(level slog.Level) *slog.Logger {
			return logging.New(level, os.Stderr)
		},
		Logger: logger,
	}

	registry := session.NewRegistryWithLimits(
		func(sessionID string, props session.Props) *session.Actor {
			return session.NewActor(sessionID, props, deps)
		},
		cfg.Session.Timeout, cfg.Session.MaxSessions, logger)

	s := &Server{
		config:    cfg,
		logger:    logger,
		backend:   backend,
		store:     store,
		approvals: approvals,
		registry:  registry,
		mcpServer: mcpServer,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/initiate", controller.HandleInitiate)
	mux.HandleFunc("/auth/approve", controller.HandleApprove)
	mux.HandleFunc("/auth/callback", controller.HandleCallback)
	mux.HandleFunc(config.DefaultCompletionPath, s.handleComplete)
	mux.HandleFunc("/healthz", s.handleHealth)

	streamable := mcpserver.NewStreamableHTTPServer(mcpServer)
	mux.Handle("/mcp", newStreamEntry(registry, streamable, logger))

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: mux,
	}

	return s, nil
}

func newBackend(cfg config.TradegateConfig, logger *slog.Logger) (credstore.Backend, error) {
	switch cfg.Credentials.Backend {
	case config.CredentialBackendSQLite:
		backend, err := credstore.NewSQLiteBackend(cfg.Credentials.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("open credential database: %w", err)
		}
		return backend, nil
	case config.CredentialBackendMemory, "":
		return credstore.NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.Credentials.Backend)
	}
}

// Run serves until the context is canceled or the listener fails, then
// shuts down gracefully and releases every background loop.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening",
			"addr", s.httpServer.Addr,
			"public_url", s.config.Server.PublicURL)
		if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()

	s.registry.Stop()
	s.approvals.Stop()
	if cerr := s.backend.Close(); cerr != nil {
		s.logger.Warn("error closing credential backend", "error", cerr)
	}

	s.logger.Info("server stopped")
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","sessions":%d}`+"\n", s.registry.Count())
}

// staticResolver serves one settings snapshot for every session. The
// resolver is an interface so deployments can plug per-session sources
// later; the default is process-wide configuration.
type staticResolver struct {
	settings session.Settings
}

func (r staticResolver) Resolve(context.Context) (session.Settings, error) {
	return r.settings, nil
}
