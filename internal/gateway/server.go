// Package gateway implements the Gateway Frontend: the gin HTTP server
// that exposes the OpenAI, Gemini, and Claude surfaces over the shared
// credential pool, translators, and upstream client.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/antigravity-gateway/gateway/internal/config"
	"github.com/antigravity-gateway/gateway/internal/memory"
	"github.com/antigravity-gateway/gateway/internal/pool"
	"github.com/antigravity-gateway/gateway/internal/quota"
	"github.com/antigravity-gateway/gateway/internal/resilience"
	"github.com/antigravity-gateway/gateway/internal/signature"
	"github.com/antigravity-gateway/gateway/internal/telemetry"
	"github.com/antigravity-gateway/gateway/internal/upstream"
)

// Deps collects every component the gateway wires together. It is built
// once at process startup and handed to New.
type Deps struct {
	Config     *config.Config
	Log        *slog.Logger
	Rotator    *pool.Rotator
	Upstream   *upstream.Client
	Quota      *quota.Cache
	Signatures *signature.Cache
	Memory     *memory.Regulator
	Retrier    *resilience.Retrier
	Breakers   *resilience.BreakerRegistry
	Heartbeat  *Heartbeat
	Metrics    *telemetry.Metrics
	StartedAt  time.Time
}

// Server wraps the gin engine and the wired dependencies.
type Server struct {
	engine *gin.Engine
	deps   *Deps
}

// New builds a Server with every route registered.
func New(deps *Deps) *Server {
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{engine: engine, deps: deps}
	s.setupMiddleware()
	s.registerRoutes()
	return s
}

// setupMiddleware applies, in order, panic recovery, structured request
// logging, and CORS — the same ordering the credential-pool's original
// gin wiring used, re-authored against log/slog instead of logrus.
func (s *Server) setupMiddleware() {
	s.engine.Use(s.recoveryMiddleware())
	s.engine.Use(s.requestLoggingMiddleware())
	s.engine.Use(corsMiddleware())
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "*")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func (s *Server) recoveryMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.deps.Log.Error("panic recovered", "panic", r, "path", c.Request.URL.Path)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}

func (s *Server) requestLoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		s.deps.Log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", elapsed.Milliseconds(),
		)
		s.recordMetrics(requestSurface(c.FullPath()), c.Writer.Status(), elapsed)
	}
}

// requestSurface maps a route's registered path (not the raw request
// path, so path params don't explode the metric's cardinality) to the
// surface label used on every request metric.
func requestSurface(fullPath string) string {
	switch {
	case strings.HasPrefix(fullPath, "/v1beta/"):
		return "gemini"
	case strings.HasPrefix(fullPath, "/v1/messages"):
		return "claude"
	case strings.HasPrefix(fullPath, "/v1/chat/completions"):
		return "openai"
	default:
		return "other"
	}
}

func (s *Server) recordMetrics(surface string, status int, elapsed time.Duration) {
	if s.deps.Metrics == nil {
		return
	}
	outcome := "ok"
	if status >= http.StatusBadRequest {
		outcome = "error"
	}
	s.deps.Metrics.RequestsTotal.WithLabelValues(surface, outcome).Inc()
	s.deps.Metrics.RequestDuration.WithLabelValues(surface).Observe(elapsed.Seconds())
}

func (s *Server) registerRoutes() {
	s.engine.GET("/health", s.handleHealth)
	if s.deps.Metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	v1 := s.engine.Group("/v1")
	v1.Use(apiKeyMiddleware(s.deps.Config))
	{
		v1.GET("/memory", s.handleMemory)
		v1.GET("/models", s.handleOpenAIModels)
		v1.POST("/chat/completions", s.handleChatCompletions)
		v1.POST("/messages", s.handleClaudeMessages)
	}

	v1beta := s.engine.Group("/v1beta")
	v1beta.Use(apiKeyMiddleware(s.deps.Config))
	{
		v1beta.GET("/models", s.handleGeminiModelList)
		v1beta.GET("/models/:model", s.handleGeminiModelGet)
		v1beta.POST("/models/:model/*action", s.dispatchGeminiAction)
	}
}

// Run starts the HTTP server on addr and blocks until ctx is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.engine,
		// Chat calls are expected to run long; the gateway disables its
		// own per-request timeout and relies on the heartbeat to keep
		// intermediaries from closing the connection.
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
