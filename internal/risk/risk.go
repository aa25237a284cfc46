// Package risk computes the heuristic prompt-injection risk score of a tool
// request. Scores are bounded to [0, 10] and are a tunable heuristic, not a
// security boundary.
package risk

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/gzhole/toolwarden/internal/hidden"
	"github.com/gzhole/toolwarden/internal/patterns"
	"github.com/gzhole/toolwarden/internal/rpc"
)

// Weights and limits of the scoring heuristics.
const (
	PatternWeight      = 2.0
	KeywordWeight      = 1.5
	HeuristicWeight    = 1.0
	HighRiskToolWeight = 2.0
	ParamsFactor       = 0.5

	LongInputRunes     = 5000
	SpecialCharRatio   = 0.3
	RepetitionMinWords = 50

	MaxScore = 10.0
)

// DefaultHighRiskTools are tools whose use alone adds HighRiskToolWeight.
var DefaultHighRiskTools = []string{
	"execute_command", "run_shell", "file_write", "file_read",
	"system_call", "eval_code", "docker_exec", "kubectl_apply",
}

// Breakdown is the per-heuristic contribution to one text score.
type Breakdown struct {
	PatternMatches int      `json:"pattern_matches"`
	MatchedLabels  []string `json:"matched_labels,omitempty"`
	KeywordHits    int      `json:"keyword_hits"`
	LongInput      bool     `json:"long_input"`
	SpecialChars   bool     `json:"special_chars"`
	Repetition     bool     `json:"repetition"`
	Obfuscated     bool     `json:"obfuscated"`
	HiddenChars    []string `json:"hidden_chars,omitempty"`
	Score          float64  `json:"score"`
}

// Assessment is the full risk evaluation of one request.
type Assessment struct {
	Tool         string    `json:"tool"`
	Content      Breakdown `json:"content"`
	Params       Breakdown `json:"params"`
	HighRiskTool bool      `json:"high_risk_tool"`
	ContextScore float64   `json:"context_score"`
	Total        float64   `json:"total"`
}

// Scorer is stateless apart from its configuration and safe for concurrent
// use.
type Scorer struct {
	lib      *patterns.Library
	highRisk map[string]bool
}

// Option customizes a Scorer.
type Option func(*Scorer)

// WithHighRiskTools replaces the default high-risk tool set.
func WithHighRiskTools(tools ...string) Option {
	return func(s *Scorer) {
		s.highRisk = make(map[string]bool, len(tools))
		for _, t := range tools {
			s.highRisk[t] = true
		}
	}
}

// NewScorer returns a Scorer over the injection patterns and risk keywords
// of lib.
func NewScorer(lib *patterns.Library, opts ...Option) *Scorer {
	s := &Scorer{lib: lib}
	WithHighRiskTools(DefaultHighRiskTools...)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score rates text on the injection heuristics. Patterns and keywords match
// the text with hidden characters folded away; invisible characters add
// HeuristicWeight once. The result is clamped to [0, MaxScore].
func (s *Scorer) Score(text string) Breakdown {
	var b Breakdown
	if text == "" {
		return b
	}

	rep := hidden.Scan(text)
	b.HiddenChars = rep.Categories()
	b.Obfuscated = rep.Invisible() > 0

	for _, m := range s.lib.Scan(rep.Folded, s.lib.Injection()) {
		b.PatternMatches++
		b.MatchedLabels = appendUnique(b.MatchedLabels, m.Label)
	}
	b.KeywordHits = s.lib.KeywordHits(rep.Folded)

	runes := utf8.RuneCountInString(text)
	b.LongInput = runes > LongInputRunes
	b.SpecialChars = float64(countSpecial(text))/float64(runes) > SpecialCharRatio
	b.Repetition = repeated(text)

	score := float64(b.PatternMatches)*PatternWeight + float64(b.KeywordHits)*KeywordWeight
	for _, flag := range []bool{b.LongInput, b.SpecialChars, b.Repetition, b.Obfuscated} {
		if flag {
			score += HeuristicWeight
		}
	}
	b.Score = clamp(score)
	return b
}

// ContextRisk rates the tool choice and its parameters: a flat penalty for
// high-risk tools plus half the score of the serialized parameters.
func (s *Scorer) ContextRisk(tool string, params map[string]any) (float64, Breakdown, error) {
	if params == nil {
		params = map[string]any{}
	}
	text, err := rpc.CanonicalString(params)
	if err != nil {
		return 0, Breakdown{}, err
	}

	b := s.Score(text)
	score := b.Score * ParamsFactor
	if s.highRisk[tool] {
		score += HighRiskToolWeight
	}
	return clamp(score), b, nil
}

// Assess scores the serialized request plus its tool context. Total is
// clamped to [0, MaxScore].
func (s *Scorer) Assess(req *rpc.ToolRequest) (Assessment, error) {
	a := Assessment{Tool: req.Method, HighRiskTool: s.highRisk[req.Method]}

	text, err := rpc.CanonicalString(req.Document())
	if err != nil {
		return a, err
	}
	a.Content = s.Score(text)

	a.ContextScore, a.Params, err = s.ContextRisk(req.Method, req.Params)
	if err != nil {
		return a, err
	}

	a.Total = clamp(a.Content.Score + a.ContextScore)
	return a, nil
}

// countSpecial counts runes that are neither word characters nor space.
func countSpecial(text string) int {
	n := 0
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '_' || unicode.IsSpace(r) {
			continue
		}
		n++
	}
	return n
}

// repeated reports flooding: more than RepetitionMinWords words with at
// least one duplicate.
func repeated(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) <= RepetitionMinWords {
		return false
	}
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, ok := seen[w]; ok {
			return true
		}
		seen[w] = struct{}{}
	}
	return false
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > MaxScore:
		return MaxScore
	}
	return v
}

func appendUnique(list []string, s string) []string {
	for _, v := range list {
		if v == s {
			return list
		}
	}
	return append(list, s)
}
