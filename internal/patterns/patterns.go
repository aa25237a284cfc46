// Package patterns holds the detection tables shared by every interceptor:
// secret and PII patterns used for redaction, injection phrasing used for
// risk scoring, and the keyword lists used to classify payloads.
//
// All patterns are case-insensitive. Matching is deterministic: patterns are
// tried in declaration order and matches are returned left to right.
package patterns

import (
	"regexp"
	"unicode/utf8"
)

// Category groups patterns by what they detect.
type Category string

const (
	CategorySecret    Category = "secret"
	CategoryPII       Category = "pii"
	CategoryInjection Category = "injection"
)

// MinValueLength is the rune length a matched value must exceed before it
// is eligible for redaction.
const MinValueLength = 3

// Match is one pattern hit. Start and End delimit Value inside the scanned
// text (byte offsets). Value is the raw sensitive text and must never be
// logged or persisted.
type Match struct {
	Label    string
	Category Category
	Start    int
	End      int
	Value    string
}

// Redactable reports whether the matched value is long enough to redact.
func (m Match) Redactable() bool {
	return utf8.RuneCountInString(m.Value) > MinValueLength
}

// Pattern is a single labelled detection rule.
type Pattern interface {
	Label() string
	Category() Category
	Expr() string
	FindAll(text string) []Match
}

type matcher struct {
	label string
	re    *regexp.Regexp
}

func (m matcher) Label() string { return m.label }
func (m matcher) Expr() string  { return m.re.String() }

// find returns every non-overlapping match. For patterns with capture
// groups the last participating group is the value; otherwise the whole
// match is.
func (m matcher) find(text string, category Category) []Match {
	locs := m.re.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return nil
	}

	matches := make([]Match, 0, len(locs))
	for _, loc := range locs {
		start, end := loc[0], loc[1]
		for g := len(loc)/2 - 1; g >= 1; g-- {
			if loc[2*g] >= 0 {
				start, end = loc[2*g], loc[2*g+1]
				break
			}
		}
		matches = append(matches, Match{
			Label:    m.label,
			Category: category,
			Start:    start,
			End:      end,
			Value:    text[start:end],
		})
	}
	return matches
}

// SecretPattern detects credentials and key material.
type SecretPattern struct{ matcher }

func (SecretPattern) Category() Category { return CategorySecret }

func (p SecretPattern) FindAll(text string) []Match { return p.find(text, CategorySecret) }

// PIIPattern detects personal data.
type PIIPattern struct{ matcher }

func (PIIPattern) Category() Category { return CategoryPII }

func (p PIIPattern) FindAll(text string) []Match { return p.find(text, CategoryPII) }

// InjectionPattern detects prompt-injection phrasing.
type InjectionPattern struct{ matcher }

func (InjectionPattern) Category() Category { return CategoryInjection }

func (p InjectionPattern) FindAll(text string) []Match { return p.find(text, CategoryInjection) }

// Count returns the number of non-overlapping matches in text.
func (p InjectionPattern) Count(text string) int {
	return len(p.re.FindAllStringIndex(text, -1))
}

// NewSecretPattern compiles expr case-insensitively into a SecretPattern.
func NewSecretPattern(label, expr string) (SecretPattern, error) {
	re, err := compile(expr)
	if err != nil {
		return SecretPattern{}, err
	}
	return SecretPattern{matcher{label: label, re: re}}, nil
}

// NewPIIPattern compiles expr case-insensitively into a PIIPattern.
func NewPIIPattern(label, expr string) (PIIPattern, error) {
	re, err := compile(expr)
	if err != nil {
		return PIIPattern{}, err
	}
	return PIIPattern{matcher{label: label, re: re}}, nil
}

func compile(expr string) (*regexp.Regexp, error) {
	return regexp.Compile("(?i)" + expr)
}

func mustMatcher(label, expr string) matcher {
	return matcher{label: label, re: regexp.MustCompile("(?i)" + expr)}
}
