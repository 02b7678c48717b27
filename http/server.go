// Package http serves the delay predictor over HTTP.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"flightdelay/db"
	"flightdelay/ml"
	"flightdelay/monitoring"

	"go.uber.org/zap"
)

// Server serves the prediction API over HTTP.
type Server struct {
	server  *http.Server
	handler http.Handler
	config  ServerConfig
	logger  *zap.Logger
}

// ServerConfig holds the listener and request limits. Timeout applies per
// route, except on the websocket feed.
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	MaxBodyBytes   int64
	AllowedOrigins []string
}

// DefaultServerConfig listens on 8080 with a 30s route timeout.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		MaxBodyBytes:   1 << 20,
		AllowedOrigins: []string{"*"},
	}
}

// Deps are the components the handlers read from. Only Predictor is
// required.
type Deps struct {
	Predictor *ml.DelayPredictor
	Cache     *ml.PredictionCache
	Store     *db.Store
	Metrics   *monitoring.Metrics
	Feed      *monitoring.FeedHub
	Logger    *zap.Logger
}

// NewServer wires routes and middleware around deps. Predictor is required;
// the other deps are optional and their features are skipped when nil.
func NewServer(config ServerConfig, deps Deps) (*Server, error) {
	if deps.Predictor == nil {
		return nil, errors.New("predictor is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultServerConfig().Timeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultServerConfig().MaxBodyBytes
	}

	h := &handlers{deps: deps, logger: deps.Logger}
	mux := http.NewServeMux()
	timeout := TimeoutMiddleware(config.Timeout)

	mux.Handle("GET /health", timeout(http.HandlerFunc(h.health)))
	mux.Handle("POST /predict", timeout(http.HandlerFunc(h.predict)))
	mux.Handle("GET /model", timeout(http.HandlerFunc(h.model)))
	if deps.Store != nil {
		mux.Handle("GET /predictions/{id}", timeout(http.HandlerFunc(h.predictions)))
	}
	if deps.Metrics != nil {
		mux.Handle("GET /metrics", deps.Metrics.Handler())
	}
	if deps.Feed != nil {
		// websocket upgrades need the raw connection, so no timeout here
		mux.HandleFunc("GET /ws/predictions", deps.Feed.HandleWebSocket)
	}

	chain := Chain(
		RecoveryMiddleware(deps.Logger),
		RequestIDMiddleware,
		LoggerMiddleware(deps.Logger, deps.Metrics),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		RequestSizeMiddleware(config.MaxBodyBytes),
	)
	handler := chain(mux)

	return &Server{
		server: &http.Server{
			Addr:        fmt.Sprintf(":%d", config.Port),
			Handler:     handler,
			ReadTimeout: config.Timeout,
			IdleTimeout: 120 * time.Second,
		},
		handler: handler,
		config:  config,
		logger:  deps.Logger,
	}, nil
}

// Handler exposes the full middleware chain, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start blocks until the server is stopped.
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func (s *Server) Addr() string {
	return s.server.Addr
}
