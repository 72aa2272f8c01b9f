package app

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/ent0n29/chatrelay/internal/backend"
	"github.com/ent0n29/chatrelay/internal/chat"
	"github.com/ent0n29/chatrelay/internal/config"
	"github.com/ent0n29/chatrelay/internal/httpapi"
	"github.com/ent0n29/chatrelay/internal/observability"
	"github.com/ent0n29/chatrelay/internal/session"
)

type BuildResult struct {
	Config   config.Config
	API      *httpapi.Server
	Sessions *session.Manager
	Chat     *chat.Service
	Backend  backend.Backend
	Metrics  *observability.Metrics

	// Cleanup should be called on shutdown to release pooled backend connections.
	Cleanup func() error
}

func Build(_ context.Context, cfg config.Config, logger zerolog.Logger) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	// No timeout: a generation may legitimately stream for minutes.
	client := &http.Client{}
	llm, err := backend.New(cfg, backend.Options{
		Client:        client,
		MaxFrameBytes: cfg.MaxFrameBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("backend init failed: %w", err)
	}

	sessions := session.NewManager(cfg.MaxHistory)
	sessions.SetCreateHook(func(s *session.Session) {
		metrics.Sessions.Set(float64(sessions.Len()))
		logger.Debug().Str("session_id", s.ID).Msg("session created")
	})

	svc := chat.NewService(sessions, llm, metrics, logger)
	api := httpapi.New(cfg, svc, sessions, metrics, logger)

	cleanup := func() error {
		client.CloseIdleConnections()
		return nil
	}

	return &BuildResult{
		Config:   cfg,
		API:      api,
		Sessions: sessions,
		Chat:     svc,
		Backend:  llm,
		Metrics:  metrics,
		Cleanup:  cleanup,
	}, nil
}
