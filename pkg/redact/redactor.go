// Package redact replaces PII in free text and in every text leaf of a
// record tree, deciding the language once per record.
package redact

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/kumarabd/gokit/logger"
	"github.com/kumarabd/redaction-plane/internal/metrics"
	"github.com/kumarabd/redaction-plane/pkg/analyzer"
	"github.com/kumarabd/redaction-plane/pkg/cache"
	"github.com/kumarabd/redaction-plane/pkg/record"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/text/unicode/norm"
)

var tracer = otel.Tracer("redaction-plane/redact")

// Analyzer detects PII spans and substitutes them
type Analyzer interface {
	Analyze(ctx context.Context, text, language string) []analyzer.Result
	Anonymize(text string, results []analyzer.Result) string
}

// LanguagePolicy picks the language tag for a text
type LanguagePolicy interface {
	Language(text string) string
}

type fixedPolicy interface {
	Fixed() (string, bool)
}

// Report describes what a redaction did
type Report struct {
	Applied   bool     `json:"applied"`
	Language  string   `json:"language,omitempty"`
	Entities  []string `json:"entities"`
	Count     int      `json:"count"`
	Fields    []string `json:"fields,omitempty"`
	Unwritten []string `json:"unwritten,omitempty"`
}

func (r *Report) merge(other Report) {
	r.Count += other.Count
	r.Applied = r.Applied || other.Applied
	for _, e := range other.Entities {
		if !slices.Contains(r.Entities, e) {
			r.Entities = append(r.Entities, e)
		}
	}
}

// Redactor is safe for concurrent use once built
type Redactor struct {
	analyzer Analyzer
	policy   LanguagePolicy
	cache    *cache.Handler
	log      *logger.Handler
	metric   *metrics.Handler
}

// Option configures a Redactor
type Option func(*Redactor)

// WithCache memoizes redactions per (language, text)
func WithCache(c *cache.Handler) Option {
	return func(r *Redactor) { r.cache = c }
}

// WithLogger logs fields that could not be written back
func WithLogger(l *logger.Handler) Option {
	return func(r *Redactor) { r.log = l }
}

// WithMetrics records entity, language, cache and latency metrics
func WithMetrics(m *metrics.Handler) Option {
	return func(r *Redactor) { r.metric = m }
}

// New creates a new redactor over an analyzer and a language policy
func New(a Analyzer, p LanguagePolicy, opts ...Option) *Redactor {
	r := &Redactor{
		analyzer: a,
		policy:   p,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RedactText replaces every PII span in text. When language is empty it is
// decided from text. Empty text returns immediately without touching the
// analyzer or the language policy.
func (r *Redactor) RedactText(ctx context.Context, text, language string) (string, Report) {
	if text == "" {
		return "", Report{Entities: []string{}}
	}

	ctx, span := tracer.Start(ctx, "redact.text")
	defer span.End()
	start := time.Now()

	if language == "" {
		language = r.decide(text)
	}
	out, report := r.redact(ctx, text, language)

	span.SetAttributes(
		attribute.String("redact.language", language),
		attribute.Int("redact.entities", report.Count),
	)
	if r.metric != nil {
		r.metric.ObserveRedactionLatency(time.Since(start), "text", true)
	}
	return out, report
}

// RedactRecord redacts every text leaf reachable from root through mappings
// and writes the results back in place. The language is decided once from
// all text in the record, including text inside sequences. Fields that cannot
// be written back are listed in Report.Unwritten; the rest are still
// processed. The same root is returned.
func (r *Redactor) RedactRecord(ctx context.Context, root record.Node) (record.Node, Report) {
	ctx, span := tracer.Start(ctx, "redact.record")
	defer span.End()
	start := time.Now()

	report := Report{Entities: []string{}}

	aggregate := aggregateText(root)
	if aggregate == "" {
		return root, report
	}
	language := r.decide(aggregate)
	report.Language = language

	for path, text := range record.CollectTextFields(root) {
		redacted, fieldReport := r.RedactText(ctx, text, language)
		report.merge(fieldReport)

		dotted := path.String()
		if !path.Addressable() || !record.WriteLeaf(root, dotted, redacted) {
			report.Unwritten = append(report.Unwritten, dotted)
			if r.log != nil {
				r.log.Warn().Str("field", dotted).Msg("redacted field could not be written back")
			}
			continue
		}
		if fieldReport.Applied {
			report.Fields = append(report.Fields, dotted)
		}
	}

	slices.Sort(report.Entities)
	span.SetAttributes(
		attribute.String("redact.language", language),
		attribute.Int("redact.entities", report.Count),
		attribute.Int("redact.unwritten", len(report.Unwritten)),
	)
	if r.metric != nil {
		if len(report.Unwritten) > 0 {
			r.metric.IncFieldWriteFailures(len(report.Unwritten))
		}
		r.metric.ObserveRedactionLatency(time.Since(start), "record", len(report.Unwritten) == 0)
	}
	return root, report
}

func (r *Redactor) decide(text string) string {
	language := r.policy.Language(text)
	if r.metric != nil {
		mode := "detected"
		if fp, ok := r.policy.(fixedPolicy); ok {
			if _, fixed := fp.Fixed(); fixed {
				mode = "fixed"
			}
		}
		r.metric.IncLanguageDecisions(mode, language)
	}
	return language
}

func (r *Redactor) redact(ctx context.Context, text, language string) (string, Report) {
	if r.cache != nil {
		entry, hit := r.cache.Get(language, text)
		if r.metric != nil {
			r.metric.IncCacheLookups(hit)
		}
		if hit {
			return entry.Text, Report{
				Applied:  entry.Count > 0,
				Language: language,
				Entities: slices.Clone(entry.Entities),
				Count:    entry.Count,
			}
		}
	}

	results := r.analyzer.Analyze(ctx, text, language)
	out := text
	if len(results) > 0 {
		out = r.analyzer.Anonymize(text, results)
	}

	found := make([]string, 0, len(results))
	for _, res := range results {
		found = append(found, res.EntityType)
	}
	if r.metric != nil {
		r.metric.AddEntities(found)
	}
	slices.Sort(found)
	entities := slices.Compact(found)
	if r.cache != nil {
		r.cache.Set(language, text, cache.Entry{Text: out, Entities: entities, Count: len(results)})
	}

	return out, Report{
		Applied:  len(results) > 0,
		Language: language,
		Entities: entities,
		Count:    len(results),
	}
}

// aggregateText joins every text value of the tree for language detection,
// NFC-normalized with runs of whitespace collapsed
func aggregateText(root record.Node) string {
	var parts []string
	for text := range record.CollectTextValues(root) {
		parts = append(parts, text)
	}
	joined := norm.NFC.String(strings.Join(parts, " "))
	return strings.Join(strings.Fields(joined), " ")
}
