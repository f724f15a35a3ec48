package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mattszczp/kirby-oauth/internal/config"
	"github.com/Mattszczp/kirby-oauth/internal/logger"
	"github.com/Mattszczp/kirby-oauth/internal/metrics"
	"github.com/Mattszczp/kirby-oauth/internal/server"
	"github.com/Mattszczp/kirby-oauth/internal/session"
	"github.com/Mattszczp/kirby-oauth/internal/userstore"
	"github.com/Mattszczp/kirby-oauth/pkg/auth"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the login bridge HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

type userStore interface {
	auth.UserStore
	Ping(ctx context.Context) error
}

type memoryUsers struct{ *userstore.Memory }

func (memoryUsers) Ping(context.Context) error { return nil }

func serve(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(logger.Config{
		Env:         cfg.Log.Env,
		Level:       cfg.Log.Level,
		ServiceName: "loginbridge",
		Version:     version,
	})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	backend, err := openSessionBackend(ctx, cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	users, closeUsers, err := openUserStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeUsers()

	if len(cfg.Users.Seed) > 0 {
		seed := make([]auth.NewAccount, 0, len(cfg.Users.Seed))
		for _, u := range cfg.Users.Seed {
			seed = append(seed, auth.NewAccount{Email: u.Email, Name: u.Name, Role: u.Role})
		}
		n, err := userstore.Seed(ctx, users, seed)
		if err != nil {
			return err
		}
		log.Info("Seeded accounts", zap.Int("created", n))
	}

	presets, err := cfg.Presets()
	if err != nil {
		return err
	}
	bridge, err := auth.New(presets, auth.Deps{
		Logger:        log,
		LogEnricher:   auth.TraceIDEnricher(logger.RequestIDKey),
		Users:         users,
		Authenticator: session.Authenticator{},
		System:        userstore.System,
	}, auth.Options{
		OnlyOauth:       cfg.OAuth.OnlyOauth,
		Policy:          cfg.Policy(),
		DefaultRole:     cfg.OAuth.DefaultRole,
		LoginPath:       cfg.Server.LoginPath,
		LandingPath:     cfg.Server.LandingPath,
		RedirectBaseURL: cfg.RedirectBaseURL(),
		HTTPClient:      &http.Client{Timeout: cfg.OAuth.ProviderTimeout},
	})
	if err != nil {
		return err
	}

	m, err := metrics.New()
	if err != nil {
		return err
	}
	srv, err := server.New(server.Config{
		Bridge: bridge,
		Sessions: session.NewManager(backend, session.Options{
			CookieName: cfg.Session.CookieName,
			TTL:        cfg.Session.TTL,
			Secure:     cfg.Session.Secure,
		}, log),
		Metrics:     m,
		Logger:      log,
		LoginPath:   cfg.Server.LoginPath,
		LandingPath: cfg.Server.LandingPath,
		TrustProxy:  cfg.Server.TrustProxy,
		Health: func(ctx context.Context) error {
			return errors.Join(backend.Ping(ctx), users.Ping(ctx))
		},
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second + cfg.OAuth.ProviderTimeout,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting login bridge", zap.String("addr", cfg.Server.Addr),
			zap.String("redirect_base", cfg.RedirectBaseURL()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func openSessionBackend(ctx context.Context, cfg *config.Config) (session.Backend, error) {
	switch cfg.Session.Driver {
	case "redis":
		return session.NewRedis(ctx, session.RedisConfig{
			Addr:     cfg.Session.Redis.Addr,
			Password: cfg.Session.Redis.Password,
			DB:       cfg.Session.Redis.DB,
			Prefix:   cfg.Session.Redis.Prefix,
		})
	default:
		return session.NewMemory(cfg.Session.TTL), nil
	}
}

func openUserStore(ctx context.Context, cfg *config.Config) (userStore, func(), error) {
	switch cfg.Users.Driver {
	case "postgres":
		pg, err := userstore.OpenPostgres(ctx, cfg.Users.DSN, cfg.Users.BcryptCost)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, err
		}
		return pg, pg.Close, nil
	default:
		return memoryUsers{userstore.NewMemory(cfg.Users.BcryptCost)}, func() {}, nil
	}
}
