package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"pairchat/internal/middleware"
	"pairchat/internal/models"
	"pairchat/internal/service"
	"pairchat/internal/transport"
)

type Server struct {
	router *mux.Router
	logger *logrus.Logger
	cfg    *models.Config
	relay  *service.Relay
	server *http.Server
}

func NewServer(cfg *models.Config, relay *service.Relay, logger *logrus.Logger) *Server {
	s := &Server{
		router: mux.NewRouter(),
		logger: logger,
		cfg:    cfg,
		relay:  relay,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Observability(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)
	s.router.Handle("/ws", transport.NewHandler(s.relay, s.logger)).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	// No WriteTimeout: WebSocket sessions outlive any request deadline and
	// manage their own per-frame write deadlines.
	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:     s.router,
		ReadTimeout: time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		IdleTimeout: time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			s.logger.WithError(err).Debug("Failed to write health response")
		}
	}
}
