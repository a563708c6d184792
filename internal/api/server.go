package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reelkit/reelkit-agent/internal/cloud"
	"github.com/reelkit/reelkit-agent/internal/editor"
	"github.com/reelkit/reelkit-agent/internal/engine"
	"github.com/reelkit/reelkit-agent/internal/export"
	"github.com/reelkit/reelkit-agent/internal/project"
	"github.com/reelkit/reelkit-agent/internal/stream"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port        int
	Version     string
	StartTime   time.Time
	Projects    *project.Service
	Repository  project.Repository
	Engine      engine.Engine
	Exports     *export.Manager
	Editors     *editor.Manager
	Frames      *editor.FrameHub
	Streamer    *stream.Streamer
	Credentials *cloud.CredentialStore
	Cloud       cloud.Client
	Plan        *cloud.CachedPlan
	Logger      *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
