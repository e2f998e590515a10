package language

import (
	"fmt"
	"sync"

	"github.com/pemistahl/lingua-go"
)

// Detector guesses the language of a text. It returns an empty tag when it
// cannot decide.
type Detector interface {
	Detect(text string) string
}

// LinguaDetector is a Detector backed by lingua. Language models are built
// on first use, exactly once, unless preloading was requested. A candidate
// set that collapses to one language answers with it and never loads models.
type LinguaDetector struct {
	languages []lingua.Language
	preload   bool
	only      string

	once     sync.Once
	detector lingua.LanguageDetector
}

// NewLinguaDetector creates a detector restricted to tags, or covering every
// supported language when tags is empty
func NewLinguaDetector(tags []string, preload bool) (*LinguaDetector, error) {
	seen := make(map[lingua.Language]bool, len(tags))
	var languages []lingua.Language
	for _, tag := range tags {
		lang, ok := FromTag(tag)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
		}
		if seen[lang] {
			continue
		}
		seen[lang] = true
		languages = append(languages, lang)
	}

	d := &LinguaDetector{
		languages: languages,
		preload:   preload,
	}
	if len(languages) == 1 {
		// one distinct candidate leaves nothing to tell apart
		d.only, _ = ToTag(languages[0])
		return d, nil
	}
	if preload {
		d.once.Do(d.build)
	}
	return d, nil
}

func (d *LinguaDetector) build() {
	builder := lingua.NewLanguageDetectorBuilder()
	switch {
	case len(d.languages) == 0 && d.preload:
		d.detector = builder.FromAllLanguages().WithPreloadedLanguageModels().Build()
	case len(d.languages) == 0:
		d.detector = builder.FromAllLanguages().Build()
	case d.preload:
		d.detector = builder.FromLanguages(d.languages...).WithPreloadedLanguageModels().Build()
	default:
		d.detector = builder.FromLanguages(d.languages...).Build()
	}
}

// Detect implements Detector
func (d *LinguaDetector) Detect(text string) string {
	if d.only != "" {
		return d.only
	}
	d.once.Do(d.build)

	lang, reliable := d.detector.DetectLanguageOf(text)
	if !reliable {
		return ""
	}
	tag, _ := ToTag(lang)
	return tag
}
