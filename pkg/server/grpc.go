package server

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/redaction-plane/internal/metrics"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// GRPCConfig contains configuration for the gRPC server
type GRPCConfig struct {
	Host                 string `json:"host" yaml:"host" default:"0.0.0.0"`
	Port                 string `json:"port" yaml:"port" default:"9090"`
	MaxConcurrentStreams uint32 `json:"max_concurrent_streams" yaml:"max_concurrent_streams" default:"100"`
}

// GRPC serves the standard health service and reflection
type GRPC struct {
	handler   *grpc.Server
	health    *health.Server
	log       *logger.Handler
	metric    *metrics.Handler
	config    *GRPCConfig
	listener  net.Listener
	isRunning bool
	mu        sync.RWMutex
}

// NewGRPC creates a new gRPC server instance. Health reports NOT_SERVING
// until SetServing is called.
func NewGRPC(config *GRPCConfig, log *logger.Handler, metric *metrics.Handler) *GRPC {
	opts := []grpc.ServerOption{
		grpc.MaxConcurrentStreams(config.MaxConcurrentStreams),
		grpc.ChainUnaryInterceptor(
			grpcLoggingInterceptor(log),
			grpcMetricsInterceptor(metric),
			grpcErrorInterceptor(log),
		),
	}

	server := &GRPC{
		handler: grpc.NewServer(opts...),
		health:  health.NewServer(),
		log:     log,
		metric:  metric,
		config:  config,
	}

	healthpb.RegisterHealthServer(server.handler, server.health)
	server.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	// Register reflection service for gRPC debugging
	reflection.Register(server.handler)

	return server
}

// SetServing flips the overall health status
func (s *GRPC) SetServing(serving bool) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		status = healthpb.HealthCheckResponse_SERVING
	}
	s.health.SetServingStatus("", status)
}

// Start starts the gRPC server
func (s *GRPC) Start() error {
	s.mu.Lock()

	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("gRPC server is already running")
	}

	addr := fmt.Sprintf("%s:%s", s.config.Host, s.config.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.listener = listener
	s.isRunning = true
	s.mu.Unlock()
	s.log.Info().Msgf("Starting gRPC server on %s", addr)

	return s.Serve(listener)
}

// Serve serves on an existing listener
func (s *GRPC) Serve(listener net.Listener) error {
	return s.handler.Serve(listener)
}

// Stop gracefully shuts down the gRPC server
func (s *GRPC) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning || s.handler == nil {
		return nil
	}

	s.log.Info().Msg("Shutting down gRPC server...")
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.handler.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.handler.Stop()
	}

	s.isRunning = false
	s.log.Info().Msg("gRPC server stopped")
	return nil
}

// IsRunning returns true if the gRPC server is currently running
func (s *GRPC) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetName returns the name of the server implementation
func (s *GRPC) GetName() string {
	return "gRPC"
}
