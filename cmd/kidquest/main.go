package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/dukerupert/kidquest/internal/auth"
	"github.com/dukerupert/kidquest/internal/config"
	"github.com/dukerupert/kidquest/internal/database"
	"github.com/dukerupert/kidquest/internal/docstore"
	"github.com/dukerupert/kidquest/internal/engine"
	"github.com/dukerupert/kidquest/internal/logging"
	"github.com/dukerupert/kidquest/internal/seed"
	"github.com/dukerupert/kidquest/internal/server"
	"github.com/dukerupert/kidquest/internal/session"
	"github.com/dukerupert/kidquest/internal/store"
	"github.com/dukerupert/kidquest/internal/websocket"
)

const cleanupInterval = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	catalogue, err := seed.Load(cfg.Family.SeedPath)
	if err != nil {
		return err
	}

	var fb *firebaseClients
	if cfg.Store.Backend == "firestore" || cfg.Auth.Provider == "firebase" {
		fb, err = newFirebase(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer fb.Close()
	}

	var docs docstore.Store
	switch cfg.Store.Backend {
	case "firestore":
		docs = docstore.NewFirestore(fb.firestore, cfg.Store.Collection, logger.With("component", "firestore"))
	default:
		docs = docstore.NewSQLite(db)
	}

	hub := websocket.NewHub(docs, logger)
	defer hub.Close()

	eng := engine.New(docs, engine.Config{
		ConflictRetries: cfg.Family.ConflictRetries,
		Location:        cfg.Family.Location,
		PINCost:         bcrypt.DefaultCost,
	}, engine.WithLogger(logger), engine.WithObserver(hub.Publish))

	tokens := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, cfg.Auth.AccessTokenTTL, cfg.Auth.ParentTokenTTL)
	var (
		local    *auth.Local
		verifier auth.Verifier
	)
	switch cfg.Auth.Provider {
	case "firebase":
		verifier = auth.NewFirebase(fb.auth)
	default:
		local = auth.NewLocal(store.NewAccountStore(db), tokens, bcrypt.DefaultCost)
		verifier = local
	}

	registry := session.NewRegistry(eng)
	srv := server.New(server.Deps{
		Engine:    eng,
		Hub:       hub,
		Registry:  registry,
		Local:     local,
		Verifier:  verifier,
		Tokens:    tokens,
		Catalogue: catalogue,
		Limits: server.RateLimits{
			AuthAttempts: cfg.RateLimit.AuthAttempts,
			PINAttempts:  cfg.RateLimit.PINAttempts,
			Window:       cfg.RateLimit.Window,
		},
		Origins: cfg.Server.AllowedOrigins,
	}, logger)

	go cleanup(ctx, srv, registry, cfg.Family.SessionIdle, logger)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr, "store", cfg.Store.Backend, "auth", cfg.Auth.Provider)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// cleanup drops idle device sessions and expired rate-limit windows.
func cleanup(ctx context.Context, srv *server.Server, registry *session.Registry, idle time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions := registry.Cleanup(idle)
			windows := srv.RateLimiter().Cleanup()
			if sessions > 0 || windows > 0 {
				logger.Debug("cleanup", "sessions", sessions, "rate_limit_windows", windows)
			}
		}
	}
}
