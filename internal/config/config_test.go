package config

import (
	"context"
	"testing"

	"github.com/kumarabd/redaction-plane/pkg/analyzer"
	"github.com/kumarabd/redaction-plane/pkg/language"
	"github.com/kumarabd/redaction-plane/pkg/settings"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"en"}, cfg.Redaction.Languages.Values())
	assert.False(t, cfg.Stream.Enabled)
	assert.Equal(t, "8080", cfg.Server.HTTP.Port)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Redaction.MinScore = 1.5
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Stream.Enabled = true
	cfg.Stream.OutputTopic = cfg.Stream.InputTopic
	assert.Error(t, cfg.Validate())

	assert.Error(t, (&Config{}).Validate())
}

func TestRedactionSectionFromYAML(t *testing.T) {
	var section RedactionConfig
	require.NoError(t, yaml.Unmarshal([]byte(`
languages: "en, fr"
analyzer_languages: [en, fr]
entity_types: ""
deny_lists:
  PERSON: "Bob D, Laurent"
min_score: 0.4
`), &section))

	assert.Equal(t, settings.StringList{"en", "fr"}, section.Languages)
	assert.Equal(t, settings.StringList{"en", "fr"}, section.AnalyzerLanguages)
	assert.Equal(t, settings.StringList{""}, section.EntityTypes, "an empty string is one empty element")
	assert.Equal(t, settings.StringList{"Bob D", "Laurent"}, section.DenyLists["PERSON"])

	a, err := analyzer.New(section.AnalyzerOptions()...)
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "fr"}, a.SupportedLanguages())
	assert.Contains(t, a.Entities(), "EMAIL_ADDRESS", "an empty entity filter keeps every recognizer")

	results := a.Analyze(context.Background(), "je suis Laurent", "fr")
	assert.Equal(t, "je suis <PERSON>", a.Anonymize("je suis Laurent", results))
}

func TestBlankLanguagesMeanUnrestricted(t *testing.T) {
	for _, doc := range []string{`languages: ""`, `languages: []`, `languages: "  "`, `min_score: 0.5`} {
		var section RedactionConfig
		require.NoError(t, yaml.Unmarshal([]byte(doc), &section), doc)
		assert.Equal(t, []string{language.Auto}, section.Candidates(), doc)

		policy, err := language.NewPolicy(section.Candidates(), language.WithDetector(stubDetector("it")))
		require.NoError(t, err, doc)
		assert.Empty(t, policy.Candidates())
		assert.Equal(t, "it", policy.Language("ciao a tutti"))
	}

	section := RedactionConfig{Languages: settings.StringList{"en", "fr"}}
	assert.Equal(t, []string{"en", "fr"}, section.Candidates())
}

type stubDetector string

func (s stubDetector) Detect(string) string { return string(s) }

func TestPolicyFromSection(t *testing.T) {
	section := Default().Redaction
	policy, err := language.NewPolicy(section.Candidates(), section.PolicyOptions()...)
	require.NoError(t, err)

	tag, fixed := policy.Fixed()
	assert.True(t, fixed)
	assert.Equal(t, "en", tag)
}
