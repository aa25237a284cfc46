// Package sanitize rewrites tool responses before they reach the agent:
// oversized text is truncated, structurally unsafe payloads are blocked and
// secrets and personal data are replaced with redaction tokens.
package sanitize

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/gzhole/toolwarden/internal/patterns"
	"github.com/gzhole/toolwarden/internal/redact"
	"github.com/gzhole/toolwarden/internal/rpc"
)

const (
	DefaultMaxResponseSize = 50000
	TruncationMarker       = "\n[TRUNCATED - Response too large]"
)

const (
	ActionAllow = "allow"
	ActionBlock = "block"

	ReasonComplete      = "sanitization_complete"
	ReasonInvalidFormat = "invalid_response_format"
	ReasonError         = "sanitization_error"
)

// textFields are tried in order; the first one present holds the text.
var textFields = []string{"response", "content", "message"}

// Config selects which passes run and the size cap in bytes.
type Config struct {
	RemoveSecrets   bool
	RedactPII       bool
	MaxResponseSize int
}

// DefaultConfig enables both passes with the default size cap.
func DefaultConfig() Config {
	return Config{RemoveSecrets: true, RedactPII: true, MaxResponseSize: DefaultMaxResponseSize}
}

// Info summarizes what sanitization did. It never carries detected values.
type Info struct {
	Sanitized       bool     `json:"sanitized"`
	DetectionsCount int      `json:"detections_count"`
	OriginalSize    int      `json:"original_size"`
	SanitizedSize   int      `json:"sanitized_size"`
	Truncated       bool     `json:"truncated"`
	RedactedTypes   []string `json:"redacted_types,omitempty"`
	RedactedLabels  []string `json:"redacted_labels,omitempty"`
	ProcessingTime  float64  `json:"processing_time"`
}

// Result is the sanitizer output document.
type Result struct {
	Action   string `json:"action"`
	Reason   string `json:"reason"`
	Details  string `json:"details,omitempty"`
	Response any    `json:"response,omitempty"`
	Info     *Info  `json:"sanitization_info,omitempty"`
	Error    string `json:"error,omitempty"`

	// Detections stay in-process for metrics; they are not serialized.
	Detections []redact.Detection `json:"-"`
}

// Allowed reports whether the response may be forwarded.
func (r *Result) Allowed() bool { return r.Action == ActionAllow }

// BlockedResult builds the block document for a failure inside the
// sanitizer. msg must already be free of sensitive values.
func BlockedResult(msg string) *Result {
	return &Result{Action: ActionBlock, Reason: ReasonError, Error: msg}
}

type Sanitizer struct {
	lib *patterns.Library
	cfg Config
	log *zap.Logger
	now func() time.Time
}

// Option customizes a Sanitizer.
type Option func(*Sanitizer)

func WithLogger(l *zap.Logger) Option {
	return func(s *Sanitizer) { s.log = l }
}

func New(lib *patterns.Library, cfg Config, opts ...Option) *Sanitizer {
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = DefaultMaxResponseSize
	}
	s := &Sanitizer{lib: lib, cfg: cfg, log: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sanitize processes one response payload. A returned error means the
// payload could not be processed; callers must not forward it unsanitized.
func (s *Sanitizer) Sanitize(payload map[string]any) (*Result, error) {
	start := s.now()

	// The hazard scan covers the payload as received, before truncation:
	// fields outside the extracted text are forwarded unchanged, and a
	// hazard in a tail that truncation would drop still blocks.
	if reason := s.validate(payload); reason != "" {
		s.log.Warn("response blocked", zap.String("reason", ReasonInvalidFormat), zap.String("details", reason))
		return &Result{Action: ActionBlock, Reason: ReasonInvalidFormat, Details: reason}, nil
	}

	field, text, err := extractText(payload)
	if err != nil {
		return nil, err
	}

	originalSize := len(text)
	text, truncated := Truncate(text, s.cfg.MaxResponseSize)
	if truncated {
		s.log.Warn("response too large, truncated",
			zap.Int("size", originalSize),
			zap.Int("max_response_size", s.cfg.MaxResponseSize))
	}

	registry := redact.NewRegistry()
	var detections []redact.Detection
	if s.cfg.RemoveSecrets {
		var found []redact.Detection
		text, found = registry.Redact(text, s.lib.Secrets())
		detections = append(detections, found...)
	}
	if s.cfg.RedactPII {
		var found []redact.Detection
		text, found = registry.Redact(text, s.lib.PII())
		detections = append(detections, found...)
	}

	info := &Info{
		Sanitized:       len(detections) > 0,
		DetectionsCount: len(detections),
		OriginalSize:    originalSize,
		SanitizedSize:   len(text),
		Truncated:       truncated,
	}
	info.RedactedTypes, info.RedactedLabels = summarize(detections)
	info.ProcessingTime = s.now().Sub(start).Seconds()

	if info.Sanitized {
		s.log.Info("response sanitized",
			zap.Int("detections", info.DetectionsCount),
			zap.Strings("redacted_labels", info.RedactedLabels))
	}

	return &Result{
		Action:     ActionAllow,
		Reason:     ReasonComplete,
		Response:   reassemble(payload, field, text),
		Info:       info,
		Detections: detections,
	}, nil
}

// validate returns a non-empty reason when the payload is structurally
// unsafe. The whole payload is inspected, not only the extracted text.
func (s *Sanitizer) validate(payload map[string]any) string {
	if e, ok := payload["error"]; ok {
		switch e.(type) {
		case string, map[string]any:
		default:
			return fmt.Sprintf("Invalid error format: expected string or object, got %s", rpc.TypeName(e))
		}
	}

	serialized, err := rpc.CanonicalString(payload)
	if err != nil {
		return "Unserializable payload"
	}
	if found := s.lib.Hazards(serialized); len(found) > 0 {
		return "Suspicious pattern detected: " + strings.Join(found, ", ")
	}
	return ""
}

// Truncate cuts text to at most max bytes including TruncationMarker,
// never splitting a UTF-8 sequence. When max is smaller than the marker
// the result is the marker alone.
func Truncate(text string, max int) (string, bool) {
	if len(text) <= max {
		return text, false
	}
	keep := max - len(TruncationMarker)
	if keep < 0 {
		keep = 0
	}
	for keep > 0 && !utf8.RuneStart(text[keep]) {
		keep--
	}
	return text[:keep] + TruncationMarker, true
}

// extractText returns the field the text came from ("" for the whole
// payload) and the text itself. Non-string values are serialized as JSON.
func extractText(payload map[string]any) (string, string, error) {
	for _, f := range textFields {
		v, ok := payload[f]
		if !ok {
			continue
		}
		if s, ok := v.(string); ok {
			return f, s, nil
		}
		text, err := rpc.CanonicalString(v)
		if err != nil {
			return "", "", fmt.Errorf("serialize %s: %w", f, err)
		}
		return f, text, nil
	}

	text, err := rpc.CanonicalString(payload)
	if err != nil {
		return "", "", fmt.Errorf("serialize payload: %w", err)
	}
	return "", text, nil
}

// reassemble puts the sanitized text back where it came from. Text that
// was serialized from a structured value is parsed back when it is still
// valid JSON.
func reassemble(payload map[string]any, field, text string) any {
	if field == "" {
		if v, err := rpc.Decode([]byte(text)); err == nil {
			return v
		}
		return text
	}

	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}

	if _, wasString := payload[field].(string); wasString {
		out[field] = text
		return out
	}
	if v, err := rpc.DecodeValue([]byte(text)); err == nil {
		out[field] = v
	} else {
		out[field] = text
	}
	return out
}

func summarize(detections []redact.Detection) ([]string, []string) {
	if len(detections) == 0 {
		return nil, nil
	}
	types := map[string]bool{}
	labels := map[string]bool{}
	for _, d := range detections {
		types[string(d.Category)] = true
		labels[d.Label] = true
	}
	return sortedKeys(types), sortedKeys(labels)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
