// Package redact replaces detected sensitive values with opaque,
// per-invocation placeholders of the form [REDACTED_<LABEL>_<SUFFIX>].
package redact

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"math/big"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/gzhole/toolwarden/internal/patterns"
)

const (
	suffixLen      = 6
	suffixAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	scrubbed       = "[REDACTED]"
)

// tokenPattern matches any placeholder produced by a Registry.
var tokenPattern = regexp.MustCompile(`\[REDACTED_[A-Z0-9_]+_[A-Z0-9]{6}\]`)

// Span is a byte range in the scanned text.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Detection describes one redacted value. It never carries the value.
type Detection struct {
	Category       patterns.Category `json:"category"`
	Label          string            `json:"label"`
	OriginalLength int               `json:"original_length"`
	Token          string            `json:"redaction_token"`
	Span           *Span             `json:"span,omitempty"`
}

// Registry maps value fingerprints to tokens. It lives for one invocation
// and must not be shared across invocations. There is no reverse lookup.
type Registry struct {
	tokens map[string]string
	random io.Reader
}

// NewRegistry returns an empty registry drawing suffixes from crypto/rand.
func NewRegistry() *Registry {
	return &Registry{tokens: make(map[string]string), random: rand.Reader}
}

// TokenFor returns the placeholder for value, generating and caching one on
// first sight. Identical values always yield the identical token.
func (r *Registry) TokenFor(value, label string) string {
	fp := fingerprint(value)
	if tok, ok := r.tokens[fp]; ok {
		return tok
	}
	tok := "[REDACTED_" + label + "_" + r.suffix() + "]"
	r.tokens[fp] = tok
	return tok
}

// Len reports how many distinct values have been tokenized.
func (r *Registry) Len() int { return len(r.tokens) }

// Redact runs each pattern over text in order, replacing every redactable
// match with its token. Later patterns see the output of earlier ones.
// A match lying entirely inside existing tokens is skipped, so redacting
// already-redacted text is a no-op. A match that only partly overlaps
// tokens, such as a credential whose value an earlier pattern tokenized in
// part, is replaced as a whole.
func (r *Registry) Redact(text string, ps []patterns.Pattern) (string, []Detection) {
	var detections []Detection

	for _, p := range ps {
		matches := p.FindAll(text)
		if len(matches) == 0 {
			continue
		}

		tokens := tokenSpans(text)
		type replacement struct{ value, token string }
		type spanReplacement struct {
			start, end int
			token      string
		}
		var (
			pending []replacement
			partial []spanReplacement
		)
		seen := make(map[string]bool)

		for _, m := range matches {
			if !m.Redactable() || covered(tokens, m.Start, m.End) {
				continue
			}
			tok := r.TokenFor(m.Value, m.Label)
			detections = append(detections, Detection{
				Category:       m.Category,
				Label:          m.Label,
				OriginalLength: utf8.RuneCountInString(m.Value),
				Token:          tok,
				Span:           &Span{Start: m.Start, End: m.End},
			})
			if overlaps(tokens, m.Start, m.End) {
				partial = append(partial, spanReplacement{m.Start, m.End, tok})
				continue
			}
			if !seen[m.Value] {
				seen[m.Value] = true
				pending = append(pending, replacement{m.Value, tok})
			}
		}

		// Matches are ordered and disjoint; replacing from the right keeps
		// the earlier offsets valid.
		for i := len(partial) - 1; i >= 0; i-- {
			sr := partial[i]
			text = text[:sr.start] + sr.token + text[sr.end:]
		}
		for _, rep := range pending {
			text = replaceOutsideTokens(text, rep.value, rep.token)
		}
	}

	return text, detections
}

// IsToken reports whether s contains a redaction placeholder.
func IsToken(s string) bool {
	return tokenPattern.MatchString(s)
}

// Scrub replaces every secret the library knows about with a fixed
// placeholder. It is meant for diagnostic strings such as error messages,
// where no correlation is needed.
func Scrub(text string, lib *patterns.Library) string {
	for _, m := range lib.Scan(text, lib.Secrets()) {
		if m.Redactable() {
			text = strings.ReplaceAll(text, m.Value, scrubbed)
		}
	}
	return text
}

func fingerprint(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

func (r *Registry) suffix() string {
	var sb strings.Builder
	max := big.NewInt(int64(len(suffixAlphabet)))
	for i := 0; i < suffixLen; i++ {
		n, err := rand.Int(r.random, max)
		if err != nil {
			// crypto/rand does not fail on supported platforms; keep the
			// token well-formed regardless.
			sb.WriteByte(suffixAlphabet[i])
			continue
		}
		sb.WriteByte(suffixAlphabet[n.Int64()])
	}
	return sb.String()
}

func tokenSpans(text string) [][]int {
	return tokenPattern.FindAllStringIndex(text, -1)
}

// covered reports whether every byte of [start, end) lies inside a token.
// spans must be sorted and disjoint.
func covered(spans [][]int, start, end int) bool {
	cursor := start
	for _, s := range spans {
		if s[0] > cursor {
			break
		}
		if s[1] > cursor {
			cursor = s[1]
		}
		if cursor >= end {
			return true
		}
	}
	return cursor >= end
}

func overlaps(spans [][]int, start, end int) bool {
	for _, s := range spans {
		if start < s[1] && s[0] < end {
			return true
		}
	}
	return false
}

// replaceOutsideTokens replaces value with token everywhere except inside
// existing placeholders.
func replaceOutsideTokens(text, value, token string) string {
	spans := tokenSpans(text)
	if len(spans) == 0 {
		return strings.ReplaceAll(text, value, token)
	}

	var sb strings.Builder
	prev := 0
	for _, s := range spans {
		sb.WriteString(strings.ReplaceAll(text[prev:s[0]], value, token))
		sb.WriteString(text[s[0]:s[1]])
		prev = s[1]
	}
	sb.WriteString(strings.ReplaceAll(text[prev:], value, token))
	return sb.String()
}
