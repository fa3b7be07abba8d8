package parsers

import (
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/soulra/clinical-router/internal/agent/model"
)

// MatchKind records how a raw classifier output was resolved.
type MatchKind string

const (
	MatchExact     MatchKind = "exact"
	MatchSubstring MatchKind = "substring"
	MatchDefault   MatchKind = "default"
)

// Rule maps classifier wording onto one intent. Aliases must equal the whole
// normalised output; keywords may appear anywhere in it.
type Rule struct {
	Intent   model.Intent
	Aliases  []string
	Keywords []string
}

var defaultRules = map[model.Intent]Rule{
	model.IntentSummary: {
		Intent:   model.IntentSummary,
		Aliases:  []string{"summary", "summarize", "summarise"},
		Keywords: []string{"summar"},
	},
	model.IntentPrescription: {
		Intent:   model.IntentPrescription,
		Aliases:  []string{"prescription", "suggest"},
		Keywords: []string{"prescri", "suggest", "treat"},
	},
	model.IntentGeneral: {
		Intent:   model.IntentGeneral,
		Aliases:  []string{"general", "chat"},
		Keywords: []string{"general", "chat"},
	},
}

// DefaultPriority is the tie-break order used when no priority is configured.
var DefaultPriority = []model.Intent{model.IntentSummary, model.IntentPrescription, model.IntentGeneral}

// IntentMatch is the result of normalising one classifier output.
type IntentMatch struct {
	Intent     model.Intent
	Raw        string
	Normalized string
	Kind       MatchKind
	// Candidates lists every intent whose keywords matched, in priority order.
	Candidates []model.Intent
}

// IntentParser resolves free-form classifier output to a closed-set intent
// using a priority-ordered rule table. The first matching rule wins.
type IntentParser struct {
	rules    []Rule
	fallback model.Intent
}

// NewIntentParser builds a parser whose rules are checked in priority order.
// priority must name every intent exactly once.
func NewIntentParser(priority []model.Intent) (*IntentParser, error) {
	if len(priority) == 0 {
		priority = DefaultPriority
	}
	if len(priority) != len(model.Intents) {
		return nil, fmt.Errorf("classifier priority must list %d intents, got %d", len(model.Intents), len(priority))
	}
	rules := make([]Rule, 0, len(priority))
	seen := map[model.Intent]bool{}
	for _, i := range priority {
		rule, ok := defaultRules[i]
		if !ok {
			return nil, fmt.Errorf("classifier priority: unknown intent %q", i)
		}
		if seen[i] {
			return nil, fmt.Errorf("classifier priority: duplicate intent %q", i)
		}
		seen[i] = true
		rules = append(rules, rule)
	}
	return &IntentParser{rules: rules, fallback: model.IntentGeneral}, nil
}

// ParsePriority parses a comma separated intent list such as
// "summary,prescription,general".
func ParsePriority(s string) ([]model.Intent, error) {
	if strings.TrimSpace(s) == "" {
		return slices.Clone(DefaultPriority), nil
	}
	var out []model.Intent
	for _, part := range strings.Split(s, ",") {
		i, err := model.ParseIntent(strings.ToLower(strings.TrimSpace(part)))
		if err != nil {
			return nil, fmt.Errorf("classifier priority: %w", err)
		}
		out = append(out, i)
	}
	return out, nil
}

// Priority returns the rule order.
func (p *IntentParser) Priority() []model.Intent {
	out := make([]model.Intent, len(p.rules))
	for i, r := range p.rules {
		out[i] = r.Intent
	}
	return out
}

// Parse never fails: unmatched output resolves to the general intent.
func (p *IntentParser) Parse(raw string) IntentMatch {
	norm := Normalize(raw)
	m := IntentMatch{Raw: raw, Normalized: norm}

	for _, r := range p.rules {
		if slices.Contains(r.Aliases, norm) {
			m.Intent = r.Intent
			m.Kind = MatchExact
			m.Candidates = []model.Intent{r.Intent}
			return m
		}
	}

	for _, r := range p.rules {
		for _, kw := range r.Keywords {
			if strings.Contains(norm, kw) {
				m.Candidates = append(m.Candidates, r.Intent)
				break
			}
		}
	}
	if len(m.Candidates) > 0 {
		m.Intent = m.Candidates[0]
		m.Kind = MatchSubstring
		return m
	}

	m.Intent = p.fallback
	m.Kind = MatchDefault
	return m
}

// Normalize lower-cases the output and strips surrounding whitespace, quotes
// and punctuation.
func Normalize(raw string) string {
	s := strings.ToLower(raw)
	return strings.TrimFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}
