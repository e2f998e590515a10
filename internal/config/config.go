package config

import (
	"fmt"
	"sort"
	"time"

	"github.com/joho/godotenv"
	config_pkg "github.com/kumarabd/gokit/config"
	"github.com/kumarabd/redaction-plane/internal/metrics"
	"github.com/kumarabd/redaction-plane/pkg/analyzer"
	"github.com/kumarabd/redaction-plane/pkg/language"
	"github.com/kumarabd/redaction-plane/pkg/server"
	"github.com/kumarabd/redaction-plane/pkg/settings"
	"github.com/kumarabd/redaction-plane/pkg/stream"
)

var (
	ApplicationName    = "redaction-plane"
	ApplicationVersion = "dev"
)

// CacheConfig controls memoization of redacted texts
type CacheConfig struct {
	Enabled         bool          `json:"enabled" yaml:"enabled" default:"true"`
	TTL             time.Duration `json:"ttl" yaml:"ttl" default:"5m"`
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval" default:"10m"`
}

// RedactionConfig configures language handling and the analyzer
type RedactionConfig struct {
	// Languages are the candidate languages; one entry fixes the language,
	// "auto" or several entries enable detection
	Languages         settings.StringList            `json:"languages" yaml:"languages"`
	AnalyzerLanguages settings.StringList            `json:"analyzer_languages" yaml:"analyzer_languages"`
	FallbackLanguage  string                         `json:"fallback_language" yaml:"fallback_language" default:"en"`
	Preload           bool                           `json:"preload" yaml:"preload" default:"false"`
	EntityTypes       settings.StringList            `json:"entity_types" yaml:"entity_types"`
	DisabledEntities  settings.StringList            `json:"disabled_entities" yaml:"disabled_entities"`
	RecognizersFile   string                         `json:"recognizers_file" yaml:"recognizers_file" default:""`
	DenyLists         map[string]settings.StringList `json:"deny_lists" yaml:"deny_lists"`
	MinScore          float64                        `json:"min_score" yaml:"min_score" default:"0.5"`
	Cache             *CacheConfig                   `json:"cache" yaml:"cache"`
}

type Config struct {
	Redaction *RedactionConfig `json:"redaction" yaml:"redaction"`
	Server    *server.Config   `json:"server,omitempty" yaml:"server,omitempty"`
	Stream    *stream.Config   `json:"stream" yaml:"stream"`
	Metrics   *metrics.Options `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Redaction: &RedactionConfig{
			Languages:         settings.StringList{"en"},
			AnalyzerLanguages: settings.StringList{"en"},
			FallbackLanguage:  language.DefaultFallback,
			MinScore:          analyzer.DefaultMinScore,
			Cache: &CacheConfig{
				Enabled:         true,
				TTL:             5 * time.Minute,
				CleanupInterval: 10 * time.Minute,
			},
		},
		Server: &server.Config{
			HTTP: &server.HTTPConfig{
				Host:         "0.0.0.0",
				Port:         "8080",
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  60 * time.Second,
				MaxBodyBytes: 1 << 20,
			},
			GRPC: &server.GRPCConfig{
				Host:                 "0.0.0.0",
				Port:                 "9090",
				MaxConcurrentStreams: 100,
			},
		},
		Stream: &stream.Config{
			Brokers:      settings.StringList{"localhost:9092"},
			GroupID:      "redaction-plane",
			InputTopic:   "records",
			OutputTopic:  "records-redacted",
			KeySchema:    "STRING",
			ValueSchema:  "JSON",
			RetryBackoff: time.Second,
			MaxFailures:  5,
		},
		Metrics: &metrics.Options{},
	}
}

// New creates a new config instance. A .env file in the working directory
// is loaded into the environment first when present.
func New() (*Config, error) {
	_ = godotenv.Load()

	configObject := Default()

	// Load config using gokit config package
	finalConfig, err := config_pkg.New(configObject)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Safe type assertion
	if finalConfig == nil {
		return nil, fmt.Errorf("config is nil")
	}

	cfg, ok := finalConfig.(*Config)
	if !ok {
		return nil, fmt.Errorf("config type assertion failed: expected *Config, got %T", finalConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that would otherwise fail later at startup
func (c *Config) Validate() error {
	if c.Redaction == nil {
		return fmt.Errorf("config: redaction section is required")
	}
	if c.Redaction.MinScore < 0 || c.Redaction.MinScore > 1 {
		return fmt.Errorf("config: redaction.min_score must be within [0, 1], got %v", c.Redaction.MinScore)
	}
	if c.Stream != nil {
		if err := c.Stream.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// AnalyzerOptions translates the redaction section into analyzer options
func (r *RedactionConfig) AnalyzerOptions() []analyzer.Option {
	opts := []analyzer.Option{
		analyzer.WithLanguages(r.AnalyzerLanguages.Values()...),
		analyzer.WithMinScore(r.MinScore),
	}
	if r.RecognizersFile != "" {
		opts = append(opts, analyzer.WithRecognizerFile(r.RecognizersFile))
	}
	if entities := nonEmpty(r.EntityTypes); len(entities) > 0 {
		opts = append(opts, analyzer.WithEnabledEntities(entities))
	}
	if disabled := nonEmpty(r.DisabledEntities); len(disabled) > 0 {
		opts = append(opts, analyzer.WithDisabledEntities(disabled))
	}

	entities := make([]string, 0, len(r.DenyLists))
	for entity := range r.DenyLists {
		entities = append(entities, entity)
	}
	sort.Strings(entities)
	for _, entity := range entities {
		if terms := nonEmpty(r.DenyLists[entity]); len(terms) > 0 {
			opts = append(opts, analyzer.WithDenyList(entity, terms))
		}
	}
	return opts
}

// Candidates returns the candidate languages for the language policy. A
// missing or blank setting means unrestricted detection.
func (r *RedactionConfig) Candidates() []string {
	if len(nonEmpty(r.Languages)) == 0 {
		return []string{language.Auto}
	}
	return r.Languages.Values()
}

// PolicyOptions translates the redaction section into language policy options
func (r *RedactionConfig) PolicyOptions() []language.Option {
	opts := []language.Option{language.WithPreload(r.Preload)}
	if r.FallbackLanguage != "" {
		opts = append(opts, language.WithFallback(r.FallbackLanguage))
	}
	return opts
}

func nonEmpty(list settings.StringList) []string {
	var out []string
	for _, v := range list.Values() {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
