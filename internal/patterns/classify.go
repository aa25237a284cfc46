package patterns

import (
	"regexp"
	"strings"
)

// Sensitivity is the coarse data classification used by the audit trail.
type Sensitivity string

const (
	SensitivityHigh   Sensitivity = "high"
	SensitivityMedium Sensitivity = "medium"
	SensitivityLow    Sensitivity = "low"
)

// IndicatorKind selects one of the content indicator lists.
type IndicatorKind int

const (
	IndicatorFiles IndicatorKind = iota
	IndicatorCode
	IndicatorURLs
	IndicatorExecution
)

var highSensitivityKeywords = []string{
	"password", "secret", "token", "key", "credential",
	"private_key", "api_key", "auth_token", "session_id",
	"credit_card", "ssn", "social_security",
}

var mediumSensitivityKeywords = []string{
	"email", "phone", "address", "name", "user",
	"account", "id", "personal", "private",
}

var indicators = map[IndicatorKind][]string{
	IndicatorFiles:     {"filename", "filepath", "directory", "file_content"},
	IndicatorCode:      {"function", "class", "import", "def ", "var ", "const ", "let "},
	IndicatorURLs:      {"http://", "https://", "ftp://", "file://"},
	IndicatorExecution: {"executed", "ran", "output", "stderr", "stdout", "exit_code"},
}

// Hazard is a structural indicator of script injection or code execution
// in a response payload.
type Hazard struct {
	Name string
	re   *regexp.Regexp
}

var hazards = []Hazard{
	{Name: "script_tag", re: regexp.MustCompile(`(?i)<\s*script\b[^>]*>`)},
	{Name: "javascript_uri", re: regexp.MustCompile(`(?i)javascript:`)},
	{Name: "inline_event_handler", re: regexp.MustCompile(`(?i)<[a-z][a-z0-9:-]*\b[^<>]*\son[a-z]+\s*=`)},
	{Name: "eval_call", re: regexp.MustCompile(`(?i)eval\s*\(`)},
	{Name: "exec_call", re: regexp.MustCompile(`(?i)exec\s*\(`)},
}

// Sensitivity classifies text by keyword presence: any high keyword wins,
// then any medium keyword, otherwise low.
func (l *Library) Sensitivity(text string) Sensitivity {
	lower := strings.ToLower(text)
	if containsAny(lower, highSensitivityKeywords) {
		return SensitivityHigh
	}
	if containsAny(lower, mediumSensitivityKeywords) {
		return SensitivityMedium
	}
	return SensitivityLow
}

// Indicators returns the indicators of the given kind present in text, in
// list order.
func (l *Library) Indicators(text string, kind IndicatorKind) []string {
	lower := strings.ToLower(text)
	var found []string
	for _, ind := range indicators[kind] {
		if strings.Contains(lower, ind) {
			found = append(found, ind)
		}
	}
	return found
}

// Hazards returns the names of the structural hazards present in text.
func (l *Library) Hazards(text string) []string {
	var found []string
	for _, h := range hazards {
		if h.re.MatchString(text) {
			found = append(found, h.Name)
		}
	}
	return found
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
