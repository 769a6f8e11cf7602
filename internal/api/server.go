package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hikariwave/hikariwave-go/internal/config"
	"github.com/hikariwave/hikariwave-go/internal/queue"
	"github.com/hikariwave/hikariwave-go/internal/voicehub"
)

// Server handles HTTP API requests.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	server *http.Server
	queue  *queue.Queue
	hub    *voicehub.Hub
}

// New creates a new API server. hub may be nil, in which case the
// player-control endpoints (skip/pause/resume/history) report 503.
func New(cfg *config.Config, logger *slog.Logger, q *queue.Queue, hub *voicehub.Hub) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		queue:  q,
		hub:    hub,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/healthz", s.handleHealthz)
	mux.HandleFunc("POST /v1/speak", s.withAuth(s.handleSpeak))
	mux.HandleFunc("POST /v1/player/skip", s.withAuth(s.handleSkip))
	mux.HandleFunc("POST /v1/player/pause", s.withAuth(s.handlePause))
	mux.HandleFunc("POST /v1/player/resume", s.withAuth(s.handleResume))
	mux.HandleFunc("GET /v1/player/history", s.withAuth(s.handleHistory))

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
