package language

import (
	"strings"

	"github.com/pemistahl/lingua-go"
)

type tagIndex struct {
	byTag      map[string]lingua.Language
	byLanguage map[lingua.Language]string
}

var index = buildTagIndex()

func buildTagIndex() tagIndex {
	idx := tagIndex{
		byTag:      make(map[string]lingua.Language),
		byLanguage: make(map[lingua.Language]string),
	}
	for _, lang := range lingua.AllLanguages() {
		tag := strings.ToLower(lang.IsoCode639_1().String())
		idx.byTag[tag] = lang
		idx.byLanguage[lang] = tag
	}
	return idx
}

// ToTag returns the two-letter tag of a lingua language
func ToTag(lang lingua.Language) (string, bool) {
	tag, ok := index.byLanguage[lang]
	return tag, ok
}

// FromTag returns the lingua language for a two-letter tag. Matching is
// case-insensitive.
func FromTag(tag string) (lingua.Language, bool) {
	lang, ok := index.byTag[strings.ToLower(strings.TrimSpace(tag))]
	return lang, ok
}
