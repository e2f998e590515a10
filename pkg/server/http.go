package server

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/redaction-plane/internal/metrics"
)

// HTTPConfig contains configuration for the HTTP server
type HTTPConfig struct {
	Host         string        `json:"host" yaml:"host" default:"0.0.0.0"`
	Port         string        `json:"port" yaml:"port" default:"8080"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout" default:"30s"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout" default:"30s"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout" default:"60s"`
	MaxBodyBytes int64         `json:"max_body_bytes" yaml:"max_body_bytes" default:"1048576"`
}

// HTTP implements the Server interface for HTTP
type HTTP struct {
	handler   *gin.Engine
	pipeline  *Pipeline
	log       *logger.Handler
	metric    *metrics.Handler
	config    *HTTPConfig
	server    *http.Server
	isRunning bool
	mu        sync.RWMutex
}

// NewHTTP creates a new HTTP server instance
func NewHTTP(config *HTTPConfig, pipeline *Pipeline, l *logger.Handler, m *metrics.Handler) *HTTP {
	gin.SetMode(gin.ReleaseMode)

	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = 1 << 20
	}

	server := &HTTP{
		handler:  gin.New(),
		pipeline: pipeline,
		log:      l,
		metric:   m,
		config:   config,
	}

	server.handler.Use(gin.Recovery())
	server.handler.Use(server.loggingMiddleware())
	server.handler.Use(server.corsMiddleware())

	server.setupRoutes()

	return server
}

// Start starts the HTTP server
func (s *HTTP) Start() error {
	s.mu.Lock()

	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("HTTP server is already running")
	}

	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
	srv := s.server

	s.isRunning = true
	s.mu.Unlock()
	s.log.Info().Msgf("Starting HTTP server on %s", addr)

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully shuts down the HTTP server
func (s *HTTP) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning || s.server == nil {
		return nil
	}

	s.log.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("Error during HTTP server shutdown")
		return err
	}

	s.isRunning = false
	s.log.Info().Msg("HTTP server stopped")
	return nil
}

// IsRunning returns true if the HTTP server is currently running
func (s *HTTP) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetName returns the name of the server implementation
func (s *HTTP) GetName() string {
	return "HTTP"
}

// setupRoutes adds HTTP-specific routes
func (s *HTTP) setupRoutes() {
	s.handler.POST("/v1/redact", func(c *gin.Context) {
		s.redactRecordHandler(c, time.Now())
	})
	s.handler.POST("/v1/redact/text", func(c *gin.Context) {
		s.redactTextHandler(c, time.Now())
	})

	// Health and metrics endpoints
	s.handler.GET("/healthz", s.healthHandler)
	s.handler.GET("/metrics", s.metricsHandler)
}

// getBodyReader returns a reader for the request body, handling gzip decompression if needed
func getBodyReader(r *http.Request) (io.ReadCloser, error) {
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Encoding")), "gzip") {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			return nil, err
		}
		return gz, nil
	}
	return r.Body, nil
}

// healthHandler handles health check endpoint
func (s *HTTP) healthHandler(c *gin.Context) {
	body := gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	}
	if s.pipeline != nil && s.pipeline.Cache != nil {
		ok, err := s.pipeline.Cache.Ping()
		cacheStatus := gin.H{"ok": ok, "entries": s.pipeline.Cache.Len()}
		if err != nil {
			cacheStatus["error"] = err.Error()
		}
		body["cache"] = cacheStatus
		if !ok || err != nil {
			body["status"] = "degraded"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
	}
	c.JSON(http.StatusOK, body)
}

// metricsHandler handles metrics endpoint
func (s *HTTP) metricsHandler(c *gin.Context) {
	if s.metric == nil {
		c.Status(http.StatusNotFound)
		return
	}
	s.metric.HTTPHandler().ServeHTTP(c.Writer, c.Request)
}

// loggingMiddleware adds request logging
func (s *HTTP) loggingMiddleware() gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		s.log.Info().
			Str("method", param.Method).
			Str("path", param.Path).
			Int("status", param.StatusCode).
			Dur("latency", param.Latency).
			Str("client_ip", param.ClientIP).
			Str("user_agent", param.Request.UserAgent()).
			Msg("HTTP Request")
		return ""
	})
}

// corsMiddleware adds CORS headers
func (s *HTTP) corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Encoding, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusOK)
			return
		}

		c.Next()
	}
}
