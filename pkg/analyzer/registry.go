package analyzer

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"
)

//go:embed recognizers.yaml
var defaultRecognizersYAML []byte

// RecognizerFile is the top-level YAML structure for a recognizer file
type RecognizerFile struct {
	Recognizers []RecognizerConfig `yaml:"recognizers"`
}

// RecognizerConfig follows Presidio's YAML recognizer schema
type RecognizerConfig struct {
	Name               string            `yaml:"name" json:"name"`
	SupportedEntity    string            `yaml:"supported_entity" json:"supported_entity"`
	Enabled            *bool             `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Patterns           []PatternConfig   `yaml:"patterns,omitempty" json:"patterns,omitempty"`
	SupportedLanguages []LanguageContext `yaml:"supported_languages,omitempty" json:"supported_languages,omitempty"`
	DenyList           []string          `yaml:"deny_list,omitempty" json:"deny_list,omitempty"`
	DenyListScore      float64           `yaml:"deny_list_score,omitempty" json:"deny_list_score,omitempty"`
	Validator          string            `yaml:"validator,omitempty" json:"validator,omitempty"` // luhn | iban
}

// PatternConfig is a single regex pattern within a recognizer
type PatternConfig struct {
	Name  string  `yaml:"name" json:"name"`
	Regex string  `yaml:"regex" json:"regex"`
	Score float64 `yaml:"score" json:"score"`
}

// LanguageContext restricts a recognizer to a language and lists the words
// that raise confidence when found near a match
type LanguageContext struct {
	Language string   `yaml:"language" json:"language"`
	Context  []string `yaml:"context,omitempty" json:"context,omitempty"`
}

func (r *RecognizerConfig) isEnabled() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// DefaultRecognizers returns the built-in recognizers
func DefaultRecognizers() ([]RecognizerConfig, error) {
	rf, err := ParseRecognizerFile(defaultRecognizersYAML)
	if err != nil {
		return nil, fmt.Errorf("parsing embedded recognizers: %w", err)
	}
	return rf.Recognizers, nil
}

// ParseRecognizerFile parses recognizer YAML
func ParseRecognizerFile(data []byte) (*RecognizerFile, error) {
	var rf RecognizerFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing recognizer YAML: %w", err)
	}
	return &rf, nil
}

// LoadRecognizerFile reads a recognizer file from disk. A missing file is
// not an error and yields nil.
func LoadRecognizerFile(path string) (*RecognizerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading recognizer file %s: %w", path, err)
	}
	return ParseRecognizerFile(data)
}

// MergeRecognizers merges layers in order; a recognizer in a later layer
// replaces the one with the same name, new names are appended
func MergeRecognizers(layers ...[]RecognizerConfig) []RecognizerConfig {
	index := make(map[string]int)
	var merged []RecognizerConfig

	for _, layer := range layers {
		for _, rc := range layer {
			if idx, exists := index[rc.Name]; exists {
				merged[idx] = rc
				continue
			}
			index[rc.Name] = len(merged)
			merged = append(merged, rc)
		}
	}
	return merged
}

// FilterByEntities keeps only enabled entities (when the list is non-empty)
// and then drops disabled ones
func FilterByEntities(recognizers []RecognizerConfig, enabled, disabled []string) []RecognizerConfig {
	var out []RecognizerConfig
	for _, r := range recognizers {
		if len(enabled) > 0 && !slices.Contains(enabled, r.SupportedEntity) {
			continue
		}
		if slices.Contains(disabled, r.SupportedEntity) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// DenyListRecognizer builds a recognizer matching the literal terms as entity
func DenyListRecognizer(entity string, terms []string) RecognizerConfig {
	return RecognizerConfig{
		Name:            strings.ToLower(entity) + "_deny_list",
		SupportedEntity: entity,
		DenyList:        terms,
	}
}

type compiledPattern struct {
	name  string
	re    *regexp.Regexp
	score float64
}

type recognizer struct {
	name      string
	entity    string
	patterns  []compiledPattern
	denyList  *denyList
	denyScore float64
	languages map[string][]string
	validate  func(string) bool
}

// appliesTo reports whether the recognizer runs for language and returns
// its context words there
func (r *recognizer) appliesTo(language string) ([]string, bool) {
	if len(r.languages) == 0 {
		return nil, true
	}
	ctx, ok := r.languages[language]
	return ctx, ok
}

func compileRecognizers(configs []RecognizerConfig) ([]*recognizer, error) {
	var out []*recognizer
	for _, rc := range configs {
		if !rc.isEnabled() {
			continue
		}
		if rc.SupportedEntity == "" {
			return nil, fmt.Errorf("recognizer %q: supported_entity is required", rc.Name)
		}

		r := &recognizer{
			name:      rc.Name,
			entity:    rc.SupportedEntity,
			denyScore: rc.DenyListScore,
		}
		if r.denyScore == 0 {
			r.denyScore = 1.0
		}

		switch rc.Validator {
		case "":
		case "luhn":
			r.validate = func(s string) bool { return luhnValid(stripNonDigits(s)) }
		case "iban":
			r.validate = func(s string) bool {
				clean := strings.ReplaceAll(s, " ", "")
				return validateIBANLength(clean) && validateIBANChecksum(clean)
			}
		default:
			return nil, fmt.Errorf("recognizer %q: unknown validator %q", rc.Name, rc.Validator)
		}

		for _, p := range rc.Patterns {
			re, err := regexp.Compile(p.Regex)
			if err != nil {
				return nil, fmt.Errorf("compiling pattern %q in recognizer %q: %w", p.Name, rc.Name, err)
			}
			r.patterns = append(r.patterns, compiledPattern{name: p.Name, re: re, score: p.Score})
		}

		if len(rc.DenyList) > 0 {
			r.denyList = compileDenyList(rc.DenyList)
		}

		if len(rc.SupportedLanguages) > 0 {
			r.languages = make(map[string][]string, len(rc.SupportedLanguages))
			for _, lc := range rc.SupportedLanguages {
				r.languages[strings.ToLower(lc.Language)] = lc.Context
			}
		}

		if len(r.patterns) == 0 && r.denyList == nil {
			return nil, fmt.Errorf("recognizer %q: needs patterns or a deny_list", rc.Name)
		}
		out = append(out, r)
	}
	return out, nil
}

// denyList matches literal terms that stand on word boundaries. The
// alternation only locates candidate starts; at each start the terms are
// tried longest first, so a longer term glued to a following letter falls
// back to a shorter one at the same position.
type denyList struct {
	re    *regexp.Regexp
	terms []string
}

func compileDenyList(terms []string) *denyList {
	sorted := make([]string, 0, len(terms))
	for _, t := range terms {
		if t != "" && !slices.Contains(sorted, t) {
			sorted = append(sorted, t)
		}
	}
	if len(sorted) == 0 {
		return nil
	}
	slices.SortStableFunc(sorted, func(a, b string) int { return len(b) - len(a) })

	quoted := make([]string, len(sorted))
	for i, t := range sorted {
		quoted[i] = regexp.QuoteMeta(t)
	}
	return &denyList{
		re:    regexp.MustCompile("(?:" + strings.Join(quoted, "|") + ")"),
		terms: sorted,
	}
}

// findAll returns the [start, end) offsets of non-overlapping term matches
func (d *denyList) findAll(text string) [][2]int {
	var out [][2]int
	pos := 0
	for pos < len(text) {
		loc := d.re.FindStringIndex(text[pos:])
		if loc == nil {
			break
		}
		start := pos + loc[0]
		end := d.matchAt(text, start)
		if end < 0 {
			_, size := utf8.DecodeRuneInString(text[start:])
			pos = start + size
			continue
		}
		out = append(out, [2]int{start, end})
		pos = end
	}
	return out
}

// matchAt returns the end of the longest term at start that sits on word
// boundaries, or -1
func (d *denyList) matchAt(text string, start int) int {
	for _, t := range d.terms {
		end := start + len(t)
		if strings.HasPrefix(text[start:], t) && onWordBoundary(text, start, end) {
			return end
		}
	}
	return -1
}
