package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run() error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}
	NewLogger(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var ai Assistant
	if cfg.Gemini.Enabled() {
		gemini, err := NewGeminiClient(ctx, cfg.Gemini)
		if err != nil {
			return err
		}
		defer gemini.Close()
		ai = gemini
		log.Info().Str("model", gemini.modelName).Str("project", cfg.Gemini.ProjectID).Msg("gemini client ready")
	} else {
		log.Warn().Msg("GCP_PROJECT_ID and GEMINI_API_KEY unset, AI features disabled")
	}

	store := NewStore()
	defer store.Close()

	var repo Repository = store
	if cfg.Database.DSN != "" {
		pool, err := NewPool(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := Migrate(ctx, pool); err != nil {
			return err
		}
		repo = NewPGRepository(pool)
		log.Info().Msg("using postgres storage")
	} else {
		log.Warn().Msg("DATABASE_DSN unset, glossary kept in memory")
	}

	app := NewServer(repo, store, ai, NewAuthenticator(cfg.Auth), cfg.Limits)
	defer app.Close()

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      app,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
