package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/ent0n29/chatrelay/internal/app"
	"github.com/ent0n29/chatrelay/internal/config"
	"github.com/ent0n29/chatrelay/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config error")
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	if cfg.Backend == config.BackendGemini && cfg.GeminiAPIKey == "" {
		logger.Warn().Msg("GEMINI_API_KEY is not set; every chat request will fail until it is")
	}

	ctx := context.Background()
	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer func() {
		if err := built.Cleanup(); err != nil {
			logger.Error().Err(err).Msg("cleanup failed")
		}
	}()

	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: built.API.Router(),
	}

	go func() {
		logger.Info().
			Str("addr", cfg.BindAddr).
			Str("backend", built.Backend.Name()).
			Int("max_history", cfg.MaxHistory).
			Msg("server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown failed")
		_ = httpServer.Close()
	}

	logger.Info().Msg("shutdown complete")
}
