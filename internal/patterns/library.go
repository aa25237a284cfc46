package patterns

import (
	"fmt"
	"strings"
)

const (
	LabelCustomSecret = "CUSTOM_SECRET"
	LabelCustomPII    = "CUSTOM_PII"
)

// Library is an immutable set of compiled patterns. Build one at startup
// and share it; it holds no per-request state.
type Library struct {
	secrets   []Pattern
	pii       []Pattern
	injection []Pattern
	keywords  []string
}

// Option customizes a Library.
type Option func(*options)

type options struct {
	customSecrets []string
	customPII     []string
}

// WithCustomSecrets appends caller-supplied secret patterns, labelled
// CUSTOM_SECRET, after the built-in ones.
func WithCustomSecrets(exprs ...string) Option {
	return func(o *options) { o.customSecrets = append(o.customSecrets, exprs...) }
}

// WithCustomPII appends caller-supplied PII patterns, labelled CUSTOM_PII,
// after the built-in ones.
func WithCustomPII(exprs ...string) Option {
	return func(o *options) { o.customPII = append(o.customPII, exprs...) }
}

// New builds a Library from the built-in tables plus any custom patterns.
// An invalid custom pattern is an error; nothing is silently dropped.
func New(opts ...Option) (*Library, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	l := &Library{
		secrets:   append([]Pattern(nil), builtinSecrets...),
		pii:       append([]Pattern(nil), builtinPII...),
		injection: builtinInjection,
		keywords:  riskKeywords,
	}

	for _, expr := range o.customSecrets {
		p, err := NewSecretPattern(LabelCustomSecret, expr)
		if err != nil {
			return nil, fmt.Errorf("custom secret pattern %q: %w", expr, err)
		}
		l.secrets = append(l.secrets, p)
	}
	for _, expr := range o.customPII {
		p, err := NewPIIPattern(LabelCustomPII, expr)
		if err != nil {
			return nil, fmt.Errorf("custom pii pattern %q: %w", expr, err)
		}
		l.pii = append(l.pii, p)
	}

	return l, nil
}

// Default returns a Library with only the built-in tables.
func Default() *Library {
	l, _ := New()
	return l
}

func (l *Library) Secrets() []Pattern   { return l.secrets }
func (l *Library) PII() []Pattern       { return l.pii }
func (l *Library) Injection() []Pattern { return l.injection }
func (l *Library) RiskKeywords() []string {
	return l.keywords
}

// Scan runs each pattern over text in order and returns all matches.
func (l *Library) Scan(text string, ps []Pattern) []Match {
	var all []Match
	for _, p := range ps {
		all = append(all, p.FindAll(text)...)
	}
	return all
}

// KeywordHits counts case-insensitive, non-overlapping occurrences of every
// risk keyword in text.
func (l *Library) KeywordHits(text string) int {
	lower := strings.ToLower(text)
	hits := 0
	for _, k := range l.keywords {
		hits += strings.Count(lower, k)
	}
	return hits
}
