// Package server exposes the presented frames and pipeline controls over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intothevoid/edgeview/pkg/pipeline"
)

// Pipeline is the part of the orchestrator the API drives.
type Pipeline interface {
	Status() pipeline.Status
	ToggleProcessing() bool
}

// Options configures the HTTP server.
type Options struct {
	Addr     string
	User     string
	Password string
}

type Server struct {
	opts   Options
	router *gin.Engine
	logger *zap.Logger
}

// New builds the router. Basic auth protects every route when a user is set.
func New(opts Options, p Pipeline, frames *FrameStore, logger *zap.Logger) *Server {
	logger = logger.Named("http")

	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	routes := router.Group("/")
	if opts.User != "" {
		routes.Use(gin.BasicAuth(gin.Accounts{opts.User: opts.Password}))
	}

	frameHandler := &FrameHandler{Frames: frames}
	routes.GET("/stream", frameHandler.Stream)
	routes.GET("/snapshot.jpg", frameHandler.Snapshot)

	apiHandler := &APIHandler{Pipeline: p}
	api := routes.Group("/api")
	api.GET("/status", apiHandler.Status)
	api.POST("/mode", apiHandler.Mode)

	return &Server{opts: opts, router: router, logger: logger}
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Preview server listening", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("preview server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("preview server shutdown: %w", err)
	}
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
