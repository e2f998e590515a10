// Package analyzer detects PII spans in text with Presidio-compatible
// recognizers and substitutes them with per-entity placeholders.
//
// Recognizers are layered: the embedded defaults, then an optional recognizer
// file, then programmatic recognizers and deny lists. A recognizer either
// matches regex patterns (optionally gated by a Luhn or IBAN validator) or a
// literal deny list. Context words found near a match raise its score.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("redaction-plane/analyzer")

const (
	// DefaultMinScore drops matches below this confidence
	DefaultMinScore = 0.5
	// ContextSimilarityFactor is added to a score when a context word is near the match
	ContextSimilarityFactor = 0.35
	// ContextWindowChars is how far around a match context words are searched
	ContextWindowChars = 100
	// MaxScore is assigned to matches confirmed by a validator
	MaxScore = 1.0
)

// ErrUnsupportedLanguage is returned by Validate for languages the analyzer
// was not configured for
var ErrUnsupportedLanguage = errors.New("language not supported by analyzer")

// Result is one detected PII span. Offsets are byte offsets into the
// analyzed text.
type Result struct {
	EntityType string  `json:"entity_type"`
	Start      int     `json:"start"`
	End        int     `json:"end"`
	Score      float64 `json:"score"`
	Recognizer string  `json:"recognizer"`
}

// Operator controls how spans of one entity type are substituted
type Operator struct {
	Type        string `json:"type" yaml:"type"` // replace | redact | mask
	NewValue    string `json:"new_value,omitempty" yaml:"new_value,omitempty"`
	MaskingChar string `json:"masking_char,omitempty" yaml:"masking_char,omitempty"`
}

// Analyzer holds compiled recognizers. It is immutable after New and safe
// for concurrent use.
type Analyzer struct {
	recognizers []*recognizer
	languages   []string
	minScore    float64
	operators   map[string]Operator
}

// Option configures an Analyzer
type Option func(*analyzerConfig)

type analyzerConfig struct {
	languages        []string
	recognizerFile   string
	custom           []RecognizerConfig
	denyLists        map[string][]string
	enabledEntities  []string
	disabledEntities []string
	minScore         float64
	operators        map[string]Operator
}

// WithLanguages sets the languages the analyzer supports (default "en")
func WithLanguages(tags ...string) Option {
	return func(c *analyzerConfig) { c.languages = tags }
}

// WithRecognizerFile layers recognizers from a YAML file over the defaults
func WithRecognizerFile(path string) Option {
	return func(c *analyzerConfig) { c.recognizerFile = path }
}

// WithRecognizers layers programmatic recognizers over the file
func WithRecognizers(recognizers ...RecognizerConfig) Option {
	return func(c *analyzerConfig) { c.custom = append(c.custom, recognizers...) }
}

// WithDenyList detects the literal terms as entity
func WithDenyList(entity string, terms []string) Option {
	return func(c *analyzerConfig) {
		if c.denyLists == nil {
			c.denyLists = make(map[string][]string)
		}
		c.denyLists[entity] = append(c.denyLists[entity], terms...)
	}
}

// WithEnabledEntities keeps only recognizers for the listed entities
func WithEnabledEntities(entities []string) Option {
	return func(c *analyzerConfig) { c.enabledEntities = entities }
}

// WithDisabledEntities drops recognizers for the listed entities
func WithDisabledEntities(entities []string) Option {
	return func(c *analyzerConfig) { c.disabledEntities = entities }
}

// WithMinScore overrides DefaultMinScore
func WithMinScore(score float64) Option {
	return func(c *analyzerConfig) { c.minScore = score }
}

// WithOperator overrides the substitution for one entity type
func WithOperator(entity string, op Operator) Option {
	return func(c *analyzerConfig) {
		if c.operators == nil {
			c.operators = make(map[string]Operator)
		}
		c.operators[entity] = op
	}
}

// New builds an analyzer from the embedded defaults plus options
func New(opts ...Option) (*Analyzer, error) {
	cfg := analyzerConfig{minScore: DefaultMinScore}
	for _, o := range opts {
		o(&cfg)
	}

	languages, err := normalizeLanguages(cfg.languages)
	if err != nil {
		return nil, err
	}

	defaults, err := DefaultRecognizers()
	if err != nil {
		return nil, fmt.Errorf("loading default recognizers: %w", err)
	}

	var fromFile []RecognizerConfig
	if cfg.recognizerFile != "" {
		rf, err := LoadRecognizerFile(cfg.recognizerFile)
		if err != nil {
			return nil, fmt.Errorf("loading recognizer file: %w", err)
		}
		if rf != nil {
			fromFile = rf.Recognizers
		}
	}

	entities := make([]string, 0, len(cfg.denyLists))
	for entity := range cfg.denyLists {
		entities = append(entities, entity)
	}
	slices.Sort(entities)
	denyLists := make([]RecognizerConfig, 0, len(entities))
	for _, entity := range entities {
		denyLists = append(denyLists, DenyListRecognizer(entity, cfg.denyLists[entity]))
	}

	merged := MergeRecognizers(defaults, fromFile, cfg.custom, denyLists)
	merged = FilterByEntities(merged, cfg.enabledEntities, cfg.disabledEntities)

	compiled, err := compileRecognizers(merged)
	if err != nil {
		return nil, fmt.Errorf("compiling recognizers: %w", err)
	}

	for entity, op := range cfg.operators {
		switch op.Type {
		case "", "replace", "redact", "mask":
		default:
			return nil, fmt.Errorf("operator for %s: unknown type %q", entity, op.Type)
		}
	}

	minScore := cfg.minScore
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	return &Analyzer{
		recognizers: compiled,
		languages:   languages,
		minScore:    minScore,
		operators:   cfg.operators,
	}, nil
}

func normalizeLanguages(tags []string) ([]string, error) {
	if len(tags) == 0 {
		return []string{"en"}, nil
	}
	var out []string
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			return nil, fmt.Errorf("%w: empty language tag", ErrUnsupportedLanguage)
		}
		if !slices.Contains(out, tag) {
			out = append(out, tag)
		}
	}
	return out, nil
}

// SupportedLanguages returns the configured languages
func (a *Analyzer) SupportedLanguages() []string {
	return slices.Clone(a.languages)
}

// Entities returns the entity types the analyzer can detect, sorted
func (a *Analyzer) Entities() []string {
	var out []string
	for _, r := range a.recognizers {
		if !slices.Contains(out, r.entity) {
			out = append(out, r.entity)
		}
	}
	slices.Sort(out)
	return out
}

// Validate fails when any of languages is not supported
func (a *Analyzer) Validate(languages []string) error {
	for _, lang := range languages {
		if !slices.Contains(a.languages, strings.ToLower(lang)) {
			return fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedLanguage, lang, strings.Join(a.languages, ", "))
		}
	}
	return nil
}

// Analyze returns the PII spans found in text, ordered by offset. An
// unsupported language yields no results.
func (a *Analyzer) Analyze(ctx context.Context, text, language string) []Result {
	_, span := tracer.Start(ctx, "analyzer.analyze")
	defer span.End()

	language = strings.ToLower(strings.TrimSpace(language))
	span.SetAttributes(attribute.String("analyzer.language", language))

	if text == "" || !slices.Contains(a.languages, language) {
		return nil
	}

	var results []Result
	for _, r := range a.recognizers {
		words, ok := r.appliesTo(language)
		if !ok {
			continue
		}

		for _, p := range r.patterns {
			for _, m := range p.re.FindAllStringIndex(text, -1) {
				score := p.score
				if r.validate != nil {
					if !r.validate(text[m[0]:m[1]]) {
						continue
					}
					score = MaxScore
				}
				score = enhanceScoreWithContext(text, m[0], m[1], score, words)
				if score < a.minScore {
					continue
				}
				results = append(results, Result{
					EntityType: r.entity,
					Start:      m[0],
					End:        m[1],
					Score:      score,
					Recognizer: r.name,
				})
			}
		}

		if r.denyList != nil {
			for _, m := range r.denyList.findAll(text) {
				score := enhanceScoreWithContext(text, m[0], m[1], r.denyScore, words)
				if score < a.minScore {
					continue
				}
				results = append(results, Result{
					EntityType: r.entity,
					Start:      m[0],
					End:        m[1],
					Score:      score,
					Recognizer: r.name,
				})
			}
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Start != results[j].Start {
			return results[i].Start < results[j].Start
		}
		return results[i].End > results[j].End
	})

	span.SetAttributes(attribute.Int("analyzer.results", len(results)))
	return results
}

// Anonymize replaces every result span in text. Overlapping spans are merged
// into one replacement; the entity type of the highest-scoring span is used.
func (a *Analyzer) Anonymize(text string, results []Result) string {
	if len(results) == 0 {
		return text
	}

	spans := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Start < 0 || r.End > len(text) || r.Start >= r.End {
			continue
		}
		spans = append(spans, r)
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].Start != spans[j].Start {
			return spans[i].Start < spans[j].Start
		}
		lenI := spans[i].End - spans[i].Start
		lenJ := spans[j].End - spans[j].Start
		if lenI != lenJ {
			return lenI > lenJ
		}
		return spans[i].Score > spans[j].Score
	})

	var merged []Result
	for _, s := range spans {
		if len(merged) == 0 {
			merged = append(merged, s)
			continue
		}
		last := &merged[len(merged)-1]
		if s.Start < last.End {
			if s.Score > last.Score {
				last.EntityType = s.EntityType
				last.Score = s.Score
			}
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}

	var b strings.Builder
	b.Grow(len(text))
	prev := 0
	for _, m := range merged {
		b.WriteString(text[prev:m.Start])
		b.WriteString(a.replacement(m.EntityType, text[m.Start:m.End]))
		prev = m.End
	}
	b.WriteString(text[prev:])
	return b.String()
}

func (a *Analyzer) replacement(entity, original string) string {
	op := a.operators[entity]
	switch op.Type {
	case "redact":
		return ""
	case "mask":
		char := op.MaskingChar
		if char == "" {
			char = "*"
		}
		return strings.Repeat(char, utf8.RuneCountInString(original))
	default:
		if op.NewValue != "" {
			return op.NewValue
		}
		return "<" + entity + ">"
	}
}

// enhanceScoreWithContext boosts baseScore when a context word appears within
// ContextWindowChars of the match
func enhanceScoreWithContext(text string, start, end int, baseScore float64, contextWords []string) float64 {
	if len(contextWords) == 0 {
		return baseScore
	}
	from := max(start-ContextWindowChars, 0)
	to := min(end+ContextWindowChars, len(text))
	window := strings.ToLower(text[from:to])

	for _, cw := range contextWords {
		if strings.Contains(window, strings.ToLower(cw)) {
			return min(baseScore+ContextSimilarityFactor, MaxScore)
		}
	}
	return baseScore
}

// onWordBoundary reports whether text[start:end] is not glued to letters or
// digits on either side
func onWordBoundary(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
