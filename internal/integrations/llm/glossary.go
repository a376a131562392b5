package llm

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"supportbot/internal/domain"
)

// Glossary holds operator-maintained phrase hints applied after the
// classifier answers. Category hints override; severity hints only raise.
type Glossary struct {
	Categories    []GlossaryCategory     `yaml:"categories"`
	SeverityHints []GlossarySeverityHint `yaml:"severity_hints"`
}

type GlossaryCategory struct {
	Phrase   string `yaml:"phrase"`
	Category string `yaml:"category"`
}

type GlossarySeverityHint struct {
	Phrase   string `yaml:"phrase"`
	Severity string `yaml:"severity"`
}

func LoadGlossary(path string) (*Glossary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read glossary: %w", err)
	}
	var g Glossary
	if err := yaml.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("parse glossary yaml: %w", err)
	}
	for _, term := range g.Categories {
		if _, err := domain.ParseCategory(term.Category); err != nil {
			return nil, fmt.Errorf("glossary phrase %q: %w", term.Phrase, err)
		}
	}
	for _, hint := range g.SeverityHints {
		if _, err := domain.ParseSeverity(hint.Severity); err != nil {
			return nil, fmt.Errorf("glossary phrase %q: %w", hint.Phrase, err)
		}
	}
	return &g, nil
}

func normalizeTextToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Apply rewrites cls in place using the first matching category phrase
// and the most severe matching severity hint. It reports whether anything
// changed.
func (g *Glossary) Apply(text string, cls *domain.Classification) bool {
	if g == nil || cls == nil {
		return false
	}
	lower := normalizeTextToken(text)
	changed := false

	for _, term := range g.Categories {
		phrase := normalizeTextToken(term.Phrase)
		if phrase == "" || !strings.Contains(lower, phrase) {
			continue
		}
		category, err := domain.ParseCategory(term.Category)
		if err != nil {
			continue
		}
		if cls.Category != category {
			cls.Category = category
			changed = true
		}
		break
	}

	for _, hint := range g.SeverityHints {
		phrase := normalizeTextToken(hint.Phrase)
		if phrase == "" || !strings.Contains(lower, phrase) {
			continue
		}
		severity, err := domain.ParseSeverity(hint.Severity)
		if err != nil {
			continue
		}
		if !cls.Severity.AtLeast(severity) {
			cls.Severity = severity
			changed = true
		}
	}
	return changed
}
