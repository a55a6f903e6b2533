package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/CharlyBGood/planificadorfinanciero/internal/backend"
	"github.com/CharlyBGood/planificadorfinanciero/internal/config"
	"github.com/CharlyBGood/planificadorfinanciero/internal/documents"
	apphttp "github.com/CharlyBGood/planificadorfinanciero/internal/http"
	"github.com/CharlyBGood/planificadorfinanciero/internal/log"
	"github.com/CharlyBGood/planificadorfinanciero/internal/objectives"
	"github.com/CharlyBGood/planificadorfinanciero/internal/session"
)

func main() {
	// Optional .env for local development.
	_ = godotenv.Load()

	logger := log.New(log.Config{
		Level:     log.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", log.FieldError, err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}

	factory := backend.NewFactory(logger.Logger)
	result, err := factory.CreateBackend(ctx, backendConfig)
	if err != nil {
		logger.Error("backend initialization failed", log.FieldError, err, log.FieldBackend, cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if result.Cleanup != nil {
			if err := result.Cleanup(); err != nil {
				logger.Error("backend cleanup failed", log.FieldError, err)
			}
		}
	}()

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Gateway:    result.Gateway,
		Auth:       result.Auth,
		Objectives: objectives.NewService(result.Gateway, result.Gateway),
		Documents:  documents.NewService(result.Gateway, result.Logos),
		Tokens:     session.NewTokenManager(cfg.JWTSecret, cfg.TokenTTL),
	})
	// No WriteTimeout: the SSE feed holds its response open.
	srv.ReadTimeout = 15 * time.Second
	srv.IdleTimeout = 120 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	group, groupCtx := errgroup.WithContext(ctx)

	if result.Bridge != nil {
		group.Go(func() error {
			logger.Info("starting change bridge", "origin", result.Bridge.Origin())
			return result.Bridge.Run(groupCtx)
		})
	}

	group.Go(func() error {
		logger.Info("starting server", "port", cfg.Port, log.FieldBackend, cfg.DataBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Error("server error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}
