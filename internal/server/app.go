// Package server initializes and runs the Cushion auth server.
// It opens the configured storage backend, wires the token and auth services,
// builds the HTTP router and handles graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/cushion-app/cushion-server/internal/server/auth"
	"github.com/cushion-app/cushion-server/internal/server/config"
	"github.com/cushion-app/cushion-server/internal/server/handlers"
	"github.com/cushion-app/cushion-server/internal/server/idp"
	"github.com/cushion-app/cushion-server/internal/server/middleware"
	"github.com/cushion-app/cushion-server/internal/server/storage"
	"github.com/cushion-app/cushion-server/internal/server/storage/boltdb"
	"github.com/cushion-app/cushion-server/internal/server/storage/sqlite"
	"github.com/cushion-app/cushion-server/internal/server/token"
)

// Store is the combined storage capability the server needs
type Store interface {
	storage.UserStorage
	storage.TokenStorage
	Close() error
}

// App собирает все компоненты сервера
type App struct {
	config        *config.Config
	logger        *slog.Logger
	store         Store
	tokens        *token.Service
	auth          *auth.Service
	authenticator middleware.Authenticator
	version       string
}

// NewApp wires the application from the given configuration.
// The caller owns the config validation; NewApp assumes it passed.
func NewApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*App, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	tokens := token.NewService(store, token.Config{
		AccessSecret:  []byte(cfg.JWTAccessSecret),
		RefreshSecret: []byte(cfg.JWTRefreshSecret),
		AccessTTL:     cfg.AccessTTL,
		RefreshTTL:    cfg.RefreshTTL,
	})

	authService := auth.NewService(logger, store, tokens)

	// Режим аутентификации выбирается один раз при старте процесса
	var authenticator middleware.Authenticator
	switch cfg.AuthMode {
	case config.AuthModeIdp:
		provider := idp.NewClient(cfg.IdpURL, cfg.IdpAPIKey, cfg.IdpTimeout)
		authenticator = middleware.NewExternalAuthenticator(logger, provider, store)
	default:
		authenticator = middleware.NewLocalAuthenticator(tokens, authService)
	}

	return &App{
		config:        cfg,
		logger:        logger,
		store:         store,
		tokens:        tokens,
		auth:          authService,
		authenticator: authenticator,
		version:       version,
	}, nil
}

// openStore opens the configured storage backend
func openStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StorageBackend {
	case config.BackendBolt:
		store, err := boltdb.New(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt storage: %w", err)
		}
		return store, nil
	case config.BackendSqlite:
		store, err := sqlite.New(ctx, cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}

// Router builds the HTTP routing table
func (app *App) Router() http.Handler {
	authHandler := handlers.NewAuthHandler(app.logger, app.auth)
	healthHandler := handlers.NewHealthHandler(app.logger, app.version)

	authenticate := middleware.Authenticate(app.logger, app.authenticator)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", healthHandler.Health)

	mux.HandleFunc("POST /api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("POST /api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("POST /api/v1/auth/refresh", authHandler.Refresh)

	// Защищенные маршруты
	mux.Handle("POST /api/v1/auth/logout", authenticate(http.HandlerFunc(authHandler.Logout)))
	mux.Handle("GET /api/v1/auth/me", authenticate(http.HandlerFunc(authHandler.Me)))

	var handler http.Handler = mux
	handler = middleware.LoggingWithSkip(app.logger, []string{"/api/v1/health"})(handler)
	handler = middleware.Recovery(app.logger)(handler)

	return handler
}

// Run starts the HTTP server and blocks until ctx is canceled,
// then shuts it down gracefully.
func (app *App) Run(ctx context.Context) error {
	defer func() {
		if err := app.store.Close(); err != nil {
			app.logger.Error("failed to close storage", slog.Any("error", err))
		}
	}()

	srv := &http.Server{
		Addr:              app.config.Address,
		Handler:           app.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		app.logger.Info("server listening",
			slog.String("address", app.config.Address),
			slog.String("auth_mode", app.config.AuthMode),
			slog.String("storage", app.config.StorageBackend))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	app.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	return nil
}
