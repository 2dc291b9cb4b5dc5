package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatrelay/internal/auth"
	"github.com/vovakirdan/chatrelay/internal/config"
	"github.com/vovakirdan/chatrelay/internal/core"
	"github.com/vovakirdan/chatrelay/internal/directory"
	"github.com/vovakirdan/chatrelay/internal/history"
	"github.com/vovakirdan/chatrelay/internal/ratelimit"
	"github.com/vovakirdan/chatrelay/internal/store"
	transporthttp "github.com/vovakirdan/chatrelay/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	closers         []closer
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}

	rooms, err := directory.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init directory: %w", err)
	}
	a.track("directory", rooms.Close)
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	kv, err := openStore(ctx, cfg)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.track("store", kv.Close)
	logger.Info().Str("driver", cfg.Store.Driver).Msg("message store initialized")

	group, closeGroup, err := openGroup(ctx, cfg, kv, logger)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("init broadcast: %w", err)
	}
	a.track("broadcast", closeGroup)
	logger.Info().Str("driver", cfg.Broadcast.Driver).Msg("broadcast group initialized")

	hist := newHistory(kv, cfg, logger)
	limiter := ratelimit.New(kv, logger,
		ratelimit.WithNamespace(cfg.Store.Namespace),
		ratelimit.WithTimeout(cfg.Store.OpTimeout),
	)

	relay := core.NewRelay(rooms, hist, limiter, group, logger, core.Options{
		EnforceMembership: cfg.Directory.EnforceMembership,
		SessionBuffer:     cfg.SessionBuffer,
		TeardownTimeout:   cfg.ShutdownTimeout,
	})

	authService := auth.NewService(JWTConfig(cfg))
	a.server = transporthttp.NewServer(relay, authService, rooms, hist, cfg, logger)

	return a, nil
}

// JWTConfig derives token settings from the server configuration.
func JWTConfig(cfg *config.Config) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	}
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// Close releases resources without running the server.
func (a *App) Close() {
	a.cleanup()
}

type closer struct {
	name string
	fn   func() error
}

func (a *App) track(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// cleanup closes resources in reverse order of creation.
func (a *App) cleanup() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Warn().Err(err).Str("resource", c.name).Msg("failed to close")
		} else {
			a.log.Info().Str("resource", c.name).Msg("closed")
		}
	}
	a.closers = nil
}

func newHistory(kv store.KV, cfg *config.Config, logger *zerolog.Logger) *history.Store {
	return history.New(kv, history.Config{
		Namespace:   cfg.Store.Namespace,
		ReplayLimit: cfg.History.ReplayLimit,
		Retain:      cfg.History.Retain,
		OpTimeout:   cfg.Store.OpTimeout,
	}, logger)
}
