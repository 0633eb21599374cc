package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lamim/copyforge/internal/config"
	"github.com/lamim/copyforge/internal/metrics"
)

// RouterConfig collects what the router wires together
type RouterConfig struct {
	Handler *Handler
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// NewRouter builds the gin engine with all routes
func NewRouter(cfg RouterConfig) *gin.Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(RequestLogger(logger))
	r.Use(Metrics(cfg.Metrics))

	r.GET("/healthz", cfg.Handler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/generate_marketing_content", cfg.Handler.GenerateMarketingContent)

	prompt := r.Group("/prompt")
	{
		prompt.POST("/compose", cfg.Handler.Compose)
		prompt.POST("/evaluate", cfg.Handler.Evaluate)
		prompt.GET("/modules", cfg.Handler.Modules)
	}

	return r
}

// Server runs the HTTP service until its context is canceled
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a server listening on cfg.Address
func New(cfg config.ServerConfig, engine *gin.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           engine,
			ReadHeaderTimeout: time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
			ReadTimeout:       time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		},
		logger: logger.With("component", "server"),
	}
}

// Run serves until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "address", s.httpServer.Addr)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
