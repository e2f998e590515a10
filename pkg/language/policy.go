// Package language decides which natural language a text is written in.
//
// A Policy configured with exactly one candidate language always answers
// with it and never loads a detector. Any other candidate set (none, meaning
// every supported language, or several) delegates each call to a Detector
// restricted to that set.
package language

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// Auto as the only candidate means "no restriction"
	Auto = "auto"
	// DefaultFallback is returned when an unrestricted detector cannot decide
	DefaultFallback = "en"
)

var (
	ErrUnknownTag = errors.New("unknown language tag")
	ErrEmptyTag   = errors.New("empty language tag")
)

// Policy resolves a language tag for a text
type Policy struct {
	candidates []string
	fixed      string
	isFixed    bool
	fallback   string
	detector   Detector
}

// Option configures a Policy
type Option func(*policyConfig)

type policyConfig struct {
	detector Detector
	fallback string
	preload  bool
}

// WithDetector replaces the default lingua detector
func WithDetector(d Detector) Option {
	return func(c *policyConfig) { c.detector = d }
}

// WithFallback sets the tag returned when an unrestricted detector cannot
// decide
func WithFallback(tag string) Option {
	return func(c *policyConfig) { c.fallback = tag }
}

// WithPreload builds the detector models at construction instead of on
// first use
func WithPreload(preload bool) Option {
	return func(c *policyConfig) { c.preload = preload }
}

// NewPolicy creates a policy for the given candidate languages
func NewPolicy(candidates []string, opts ...Option) (*Policy, error) {
	cfg := policyConfig{fallback: DefaultFallback}
	for _, o := range opts {
		o(&cfg)
	}

	tags := make([]string, len(candidates))
	for i, c := range candidates {
		tags[i] = strings.ToLower(strings.TrimSpace(c))
	}
	if len(tags) == 1 && tags[0] == Auto {
		tags = []string{}
	}

	if len(tags) == 1 {
		if tags[0] == "" {
			return nil, ErrEmptyTag
		}
		return &Policy{
			candidates: tags,
			fixed:      tags[0],
			isFixed:    true,
		}, nil
	}

	for _, tag := range tags {
		if _, ok := FromTag(tag); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
		}
	}

	fallback := strings.ToLower(cfg.fallback)
	if len(tags) > 0 {
		fallback = tags[0]
	}

	detector := cfg.detector
	if detector == nil {
		d, err := NewLinguaDetector(tags, cfg.preload)
		if err != nil {
			return nil, err
		}
		detector = d
	}

	return &Policy{
		candidates: tags,
		fallback:   fallback,
		detector:   detector,
	}, nil
}

// Language returns the language tag for text
func (p *Policy) Language(text string) string {
	if p.isFixed {
		return p.fixed
	}
	if strings.TrimSpace(text) == "" {
		return p.fallback
	}
	if tag := p.detector.Detect(text); tag != "" {
		return tag
	}
	return p.fallback
}

// Fixed reports the configured language when detection is bypassed
func (p *Policy) Fixed() (string, bool) {
	return p.fixed, p.isFixed
}

// Candidates returns the normalized candidate set; empty means unrestricted
func (p *Policy) Candidates() []string {
	out := make([]string, len(p.candidates))
	copy(out, p.candidates)
	return out
}
