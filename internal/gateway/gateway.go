// ABOUTME: Composition root for chat-gateway: wires store, agent client, API and server
// ABOUTME: Owns the HTTP server lifecycle including graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dom360/chat-gateway/internal/agentapi"
	"github.com/dom360/chat-gateway/internal/auth"
	"github.com/dom360/chat-gateway/internal/config"
	"github.com/dom360/chat-gateway/internal/conversation"
	"github.com/dom360/chat-gateway/internal/httpapi"
	"github.com/dom360/chat-gateway/internal/settings"
	"github.com/dom360/chat-gateway/internal/store"
	"github.com/dom360/chat-gateway/internal/turn"
)

// Gateway owns the wired service graph and the HTTP server.
type Gateway struct {
	config     *config.Config
	store      *store.SQLiteStore
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	provider, err := settings.Load(cfg.Agent.SettingsPath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("loading agent settings: %w", err)
	}

	turns := turn.New(
		conversation.New(st, logger.With("component", "conversation")),
		agentapi.NewClient(provider, logger),
		st,
		logger,
	)
	verifier := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
	api := httpapi.New(turns, st, verifier, logger)

	return &Gateway{
		config: cfg,
		store:  st,
		httpServer: &http.Server{
			Addr:              cfg.Server.HTTPAddr,
			Handler:           api.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "gateway"),
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled or
// the server fails. On cancellation it shuts down gracefully.
func (g *Gateway) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("http server listening", "addr", g.httpServer.Addr)
		if err := g.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("shutdown signal received")
	case serverErr = <-errCh:
	}

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := g.httpServer.Shutdown(ctx)
	if closeErr := g.store.Close(); err == nil {
		err = closeErr
	}
	return err
}

// Store exposes the underlying store for administrative subcommands.
func (g *Gateway) Store() *store.SQLiteStore {
	return g.store
}
