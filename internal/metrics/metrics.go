package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handler struct {
	registry *prometheus.Registry

	RequestsReceived       *prometheus.CounterVec
	PayloadsTotal          *prometheus.CounterVec
	EntitiesTotal          *prometheus.CounterVec
	FieldWriteFailures     *prometheus.CounterVec
	LanguageDecisionsTotal *prometheus.CounterVec
	RedactionLatency       *prometheus.HistogramVec
	StreamMessagesTotal    *prometheus.CounterVec
	CacheLookupsTotal      *prometheus.CounterVec
}

type Options struct {
	// Namespace prefixes every metric name when set
	Namespace string `json:"namespace" yaml:"namespace" default:""`
}

// New registers the service metrics on a fresh registry so several handlers
// can coexist in one process
func New(name string) (*Handler, error) {
	return NewWithOptions(name, Options{})
}

// NewWithOptions creates a new metrics handler with a metric namespace
func NewWithOptions(name string, opts Options) (*Handler, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)
	constLabels := prometheus.Labels{"service": name}

	return &Handler{
		registry: reg,
		RequestsReceived: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "redaction_requests_received",
			ConstLabels: constLabels,
			Help:        "The total number of redaction requests received",
		}, []string{"route", "status"}),
		PayloadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "redaction_payloads_total",
			ConstLabels: constLabels,
			Help:        "The total number of payloads dispatched",
		}, []string{"part", "kind", "outcome"}),
		EntitiesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "redaction_entities_total",
			ConstLabels: constLabels,
			Help:        "The total number of PII entities replaced",
		}, []string{"entity"}),
		FieldWriteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "redaction_field_write_failures_total",
			ConstLabels: constLabels,
			Help:        "The total number of redacted fields that could not be written back",
		}, []string{}),
		LanguageDecisionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "redaction_language_decisions_total",
			ConstLabels: constLabels,
			Help:        "The total number of language decisions",
		}, []string{"mode", "language"}),
		RedactionLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   opts.Namespace,
			Name:        "redaction_latency_seconds",
			ConstLabels: constLabels,
			Help:        "The latency of redaction operations",
			Buckets:     prometheus.DefBuckets,
		}, []string{"operation", "success"}),
		StreamMessagesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "stream_messages_total",
			ConstLabels: constLabels,
			Help:        "The total number of stream messages processed",
		}, []string{"outcome"}),
		CacheLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   opts.Namespace,
			Name:        "redaction_cache_lookups_total",
			ConstLabels: constLabels,
			Help:        "The total number of redaction cache lookups",
		}, []string{"result"}),
	}, nil
}

// HTTPHandler serves the registry in the Prometheus exposition format
func (h *Handler) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{Registry: h.registry})
}

// IncRequestsReceived increments the requests counter
func (h *Handler) IncRequestsReceived(route, status string) {
	h.RequestsReceived.WithLabelValues(route, status).Inc()
}

// IncPayloadsTotal increments the dispatched payloads counter
func (h *Handler) IncPayloadsTotal(part, kind, outcome string) {
	h.PayloadsTotal.WithLabelValues(part, kind, outcome).Inc()
}

// AddEntities counts replaced entities by type
func (h *Handler) AddEntities(entities []string) {
	for _, e := range entities {
		h.EntitiesTotal.WithLabelValues(e).Inc()
	}
}

// IncFieldWriteFailures increments the unwritten field counter
func (h *Handler) IncFieldWriteFailures(n int) {
	h.FieldWriteFailures.WithLabelValues().Add(float64(n))
}

// IncLanguageDecisions increments the language decision counter
func (h *Handler) IncLanguageDecisions(mode, language string) {
	h.LanguageDecisionsTotal.WithLabelValues(mode, language).Inc()
}

// ObserveRedactionLatency records the latency of a redaction operation
func (h *Handler) ObserveRedactionLatency(duration time.Duration, operation string, success bool) {
	successStr := "true"
	if !success {
		successStr = "false"
	}
	h.RedactionLatency.WithLabelValues(operation, successStr).Observe(duration.Seconds())
}

// IncStreamMessages increments the stream message counter
func (h *Handler) IncStreamMessages(outcome string) {
	h.StreamMessagesTotal.WithLabelValues(outcome).Inc()
}

// IncCacheLookups increments the cache lookup counter
func (h *Handler) IncCacheLookups(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	h.CacheLookupsTotal.WithLabelValues(result).Inc()
}
