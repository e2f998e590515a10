package server

import (
	"context"
	"errors"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/redaction-plane/internal/metrics"
	"github.com/kumarabd/redaction-plane/pkg/dispatch"
	"github.com/kumarabd/redaction-plane/pkg/redact"
)

// Config contains configuration for all server types
type Config struct {
	HTTP *HTTPConfig `json:"http" yaml:"http"`
	GRPC *GRPCConfig `json:"grpc" yaml:"grpc"`
}

// Transformer redacts a message's key and value
type Transformer interface {
	Transform(ctx context.Context, msg *dispatch.Message) error
}

// TextRedactor redacts a single text
type TextRedactor interface {
	RedactText(ctx context.Context, text, language string) (string, redact.Report)
}

// LanguageValidator rejects languages the analyzer cannot handle
type LanguageValidator interface {
	Validate(languages []string) error
}

// CacheChecker reports the state of the redaction cache
type CacheChecker interface {
	Ping() (bool, error)
	Len() int
}

// Pipeline groups the redaction handles the servers expose. Languages and
// Cache are optional.
type Pipeline struct {
	Transformer Transformer
	Redactor    TextRedactor
	Languages   LanguageValidator
	Cache       CacheChecker
}

type Handler struct {
	HTTP   *HTTP
	GRPC   *GRPC
	config *Config
	log    *logger.Handler
}

// New creates a new server handler
func New(l *logger.Handler, m *metrics.Handler, serverConfig *Config, pipeline *Pipeline) (*Handler, error) {
	if pipeline == nil || pipeline.Transformer == nil || pipeline.Redactor == nil {
		return nil, errors.New("server: pipeline requires a transformer and a redactor")
	}
	if serverConfig == nil {
		serverConfig = &Config{}
	}

	var httpServer *HTTP
	if serverConfig.HTTP != nil {
		httpServer = NewHTTP(serverConfig.HTTP, pipeline, l, m)
	}

	var grpcServer *GRPC
	if serverConfig.GRPC != nil {
		grpcServer = NewGRPC(serverConfig.GRPC, l, m)
	}

	return &Handler{
		HTTP:   httpServer,
		GRPC:   grpcServer,
		config: serverConfig,
		log:    l,
	}, nil
}

// Start starts every configured server; ch receives once per server that exits
func (h *Handler) Start(ch chan struct{}) {
	if h.HTTP != nil {
		go func() {
			if err := h.HTTP.Start(); err != nil {
				h.log.Error().Err(err).Str("server", h.HTTP.GetName()).Msg("server failed")
			}
			ch <- struct{}{}
		}()
	}

	if h.GRPC != nil {
		go func() {
			if err := h.GRPC.Start(); err != nil {
				h.log.Error().Err(err).Str("server", h.GRPC.GetName()).Msg("server failed")
			}
			ch <- struct{}{}
		}()
	}
}

// Stop shuts down every configured server
func (h *Handler) Stop(ctx context.Context) error {
	var errs []error
	if h.GRPC != nil && h.GRPC.IsRunning() {
		if err := h.GRPC.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if h.HTTP != nil && h.HTTP.IsRunning() {
		if err := h.HTTP.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Configured reports how many servers were configured
func (h *Handler) Configured() int {
	n := 0
	if h.HTTP != nil {
		n++
	}
	if h.GRPC != nil {
		n++
	}
	return n
}
