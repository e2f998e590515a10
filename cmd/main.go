package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/redaction-plane/internal/config"
	"github.com/kumarabd/redaction-plane/internal/metrics"
	"github.com/kumarabd/redaction-plane/pkg/analyzer"
	"github.com/kumarabd/redaction-plane/pkg/cache"
	"github.com/kumarabd/redaction-plane/pkg/dispatch"
	"github.com/kumarabd/redaction-plane/pkg/language"
	"github.com/kumarabd/redaction-plane/pkg/redact"
	"github.com/kumarabd/redaction-plane/pkg/server"
	"github.com/kumarabd/redaction-plane/pkg/stream"
)

const shutdownTimeout = 15 * time.Second

// main is the entry point of the application
func main() {
	// Initialize a new logger with the application name and syslog format
	log, err := logger.New(config.ApplicationName, logger.Options{
		Format: logger.SyslogLogFormat,
	})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	// Initialize a new configuration handler
	configHandler, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("")
		os.Exit(1)
	}

	// Initialize a new metrics handler with the application name
	metricsOptions := metrics.Options{}
	if configHandler.Metrics != nil {
		metricsOptions = *configHandler.Metrics
	}
	metricsHandler, err := metrics.NewWithOptions(config.ApplicationName, metricsOptions)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	redactionConfig := configHandler.Redaction

	// Build the analyzer and make sure it covers every candidate language
	analyzerHandler, err := analyzer.New(redactionConfig.AnalyzerOptions()...)
	if err != nil {
		log.Error().Err(err).Msg("analyzer initialization failed")
		os.Exit(1)
	}

	candidates := redactionConfig.Candidates()
	policy, err := language.NewPolicy(candidates, redactionConfig.PolicyOptions()...)
	if err != nil {
		log.Error().Err(err).Msg("language policy initialization failed")
		os.Exit(1)
	}
	if tag, fixed := policy.Fixed(); fixed {
		err = analyzerHandler.Validate([]string{tag})
	} else {
		err = analyzerHandler.Validate(policy.Candidates())
	}
	if err != nil {
		log.Error().Err(err).Msg("analyzer does not support the configured languages")
		os.Exit(1)
	}
	log.Info().
		Str("version", config.ApplicationVersion).
		Strs("languages", candidates).
		Strs("analyzer_languages", analyzerHandler.SupportedLanguages()).
		Strs("entities", analyzerHandler.Entities()).
		Msg("analyzer initialized")

	pipeline := &server.Pipeline{Languages: analyzerHandler}
	redactorOpts := []redact.Option{redact.WithLogger(log), redact.WithMetrics(metricsHandler)}
	if redactionConfig.Cache != nil && redactionConfig.Cache.Enabled {
		cacheHandler, err := cache.New(cache.Options{
			TTL:             redactionConfig.Cache.TTL,
			CleanupInterval: redactionConfig.Cache.CleanupInterval,
		})
		if err != nil {
			log.Error().Err(err).Msg("cache initialization failed")
			os.Exit(1)
		}
		redactorOpts = append(redactorOpts, redact.WithCache(cacheHandler))
		pipeline.Cache = cacheHandler
	}

	redactor := redact.New(analyzerHandler, policy, redactorOpts...)
	dispatcher := dispatch.New(redactor, log, metricsHandler)
	pipeline.Transformer = dispatcher
	pipeline.Redactor = redactor

	// Create server instance
	srv, err := server.New(log, metricsHandler, configHandler.Server, pipeline)
	if err != nil {
		log.Error().Err(err).Msg("server initialization failed")
		os.Exit(1)
	}
	log.Info().Msg("server initialized")

	var processor *stream.Processor
	if streamConfig := configHandler.Stream; streamConfig != nil && streamConfig.Enabled {
		var deadLetter stream.Writer
		if streamConfig.DeadLetterTopic != "" {
			deadLetter = stream.NewKafkaWriter(streamConfig, streamConfig.DeadLetterTopic)
		}
		processor = stream.NewProcessor(
			streamConfig,
			stream.NewKafkaReader(streamConfig),
			stream.NewKafkaWriter(streamConfig, streamConfig.OutputTopic),
			deadLetter,
			dispatcher,
			log,
			metricsHandler,
		)
		if err := processor.Start(); err != nil {
			log.Error().Err(err).Msg("stream processor start failed")
			os.Exit(1)
		}
	}

	// Run the servers until one exits or a signal arrives
	ch := make(chan struct{}, srv.Configured())
	srv.Start(ch)
	if srv.GRPC != nil {
		srv.GRPC.SetServing(true)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	case <-ch:
		log.Info().Msg("server exited, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if processor != nil && processor.IsRunning() {
		if err := processor.Stop(); err != nil {
			log.Error().Err(err).Msg("stream processor stop failed")
		}
	}
	if err := srv.Stop(ctx); err != nil {
		log.Error().Err(err).Msg("server stop failed")
	}
	log.Info().Msg("server stopped")
}
