// Package hidden finds characters that make the text a model reads differ
// from the text a reviewer sees, and folds them away so pattern matching
// runs on what the model actually receives.
package hidden

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Categories of hidden-character findings.
const (
	CategoryZeroWidth   = "zero-width"
	CategoryBidi        = "bidi-override"
	CategoryTag         = "tag-char"
	CategoryControl     = "control-char"
	CategoryInvalidUTF8 = "invalid-utf8"
	CategoryHomoglyph   = "homoglyph"
)

// Finding is one suspicious character.
type Finding struct {
	Category  string `json:"category"`
	Codepoint string `json:"codepoint"`
	Offset    int    `json:"offset"`
	// Invisible is true when the character renders as nothing. Homoglyphs
	// are visible and only folded.
	Invisible bool `json:"invisible"`
}

// Report is the result of Scan.
type Report struct {
	Findings []Finding `json:"findings,omitempty"`
	// Folded is the input with invisible characters removed and homoglyphs
	// replaced by the Latin letters they imitate.
	Folded string `json:"-"`
}

// Invisible counts findings that render as nothing.
func (r Report) Invisible() int {
	n := 0
	for _, f := range r.Findings {
		if f.Invisible {
			n++
		}
	}
	return n
}

// Categories returns the distinct finding categories in order of first
// appearance.
func (r Report) Categories() []string {
	var out []string
	for _, f := range r.Findings {
		if !contains(out, f.Category) {
			out = append(out, f.Category)
		}
	}
	return out
}

// Scan inspects text. Pure ASCII without control characters returns an
// empty report whose Folded is text itself.
func Scan(text string) Report {
	if plain(text) {
		return Report{Folded: text}
	}

	var (
		rep    Report
		folded strings.Builder
	)
	folded.Grow(len(text))
	for i := 0; i < len(text); {
		r, size := utf8.DecodeRuneInString(text[i:])
		if r == utf8.RuneError && size == 1 {
			rep.Findings = append(rep.Findings, Finding{
				Category:  CategoryInvalidUTF8,
				Codepoint: fmt.Sprintf("0x%02X", text[i]),
				Offset:    i,
				Invisible: true,
			})
			i++
			continue
		}

		if cat := invisibleCategory(r); cat != "" {
			rep.Findings = append(rep.Findings, Finding{Category: cat, Codepoint: codepoint(r), Offset: i, Invisible: true})
		} else if latin, ok := homoglyph(r); ok {
			rep.Findings = append(rep.Findings, Finding{Category: CategoryHomoglyph, Codepoint: codepoint(r), Offset: i})
			folded.WriteRune(latin)
		} else {
			folded.WriteRune(r)
		}
		i += size
	}
	rep.Folded = folded.String()
	return rep
}

func plain(text string) bool {
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c >= utf8.RuneSelf || (c < 0x20 && c != '\t' && c != '\n' && c != '\r') || c == 0x7F {
			return false
		}
	}
	return true
}

func invisibleCategory(r rune) string {
	switch {
	case isZeroWidth(r):
		return CategoryZeroWidth
	case isBidi(r):
		return CategoryBidi
	case r >= 0xE0001 && r <= 0xE007F:
		return CategoryTag
	case isUnsafeControl(r):
		return CategoryControl
	}
	return ""
}

func isZeroWidth(r rune) bool {
	switch r {
	case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u2060', '\u180E', '\u200E', '\u200F':
		return true
	}
	return false
}

func isBidi(r rune) bool {
	return (r >= '\u202A' && r <= '\u202E') || (r >= '\u2066' && r <= '\u2069')
}

func isUnsafeControl(r rune) bool {
	if r == '\t' || r == '\n' || r == '\r' {
		return false
	}
	return r <= 0x1F || r == 0x7F || (r >= 0x80 && r <= 0x9F)
}

func homoglyph(r rune) (rune, bool) {
	if !unicode.In(r, unicode.Cyrillic, unicode.Greek) {
		return 0, false
	}
	latin, ok := confusables[r]
	return latin, ok
}

func codepoint(r rune) string {
	return fmt.Sprintf("U+%04X", r)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Cyrillic and Greek letters that render like Latin ones.
var confusables = map[rune]rune{
	'а': 'a', 'А': 'A', 'В': 'B', 'с': 'c', 'С': 'C', 'е': 'e', 'Е': 'E',
	'Н': 'H', 'і': 'i', 'І': 'I', 'К': 'K', 'М': 'M', 'о': 'o', 'О': 'O',
	'р': 'p', 'Р': 'P', 'Т': 'T', 'х': 'x', 'Х': 'X', 'у': 'y', 'У': 'Y',

	'Α': 'A', 'Β': 'B', 'Ε': 'E', 'Η': 'H', 'Ι': 'I', 'Κ': 'K', 'Μ': 'M',
	'Ν': 'N', 'Ο': 'O', 'ο': 'o', 'Ρ': 'P', 'Τ': 'T', 'Χ': 'X', 'Υ': 'Y',
	'Ζ': 'Z',
}
