// Package audit builds, stores and forwards the audit trail of tool
// responses. Auditing never changes the response it observes.
package audit

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gzhole/toolwarden/internal/patterns"
	"github.com/gzhole/toolwarden/internal/rpc"
)

const (
	Version   = "1.0"
	EventType = "tool_response"

	// LargeResponseBytes tags a response as large_response.
	LargeResponseBytes = 100_000
)

// Tags attached to records.
const (
	TagFileOperation    = "file_operation"
	TagNetworkOperation = "network_operation"
	TagSystemOperation  = "system_operation"
	TagSensitiveData    = "sensitive_data"
	TagFileContent      = "file_content"
	TagCodeContent      = "code_content"
	TagURLContent       = "url_content"
	TagErrorResponse    = "error_response"
	TagLargeResponse    = "large_response"
)

type Record struct {
	AuditVersion string          `json:"audit_version"`
	RecordID     string          `json:"record_id"`
	Timestamp    string          `json:"timestamp"`
	EventType    string          `json:"event_type"`
	SessionID    string          `json:"session_id"`
	ClientIP     string          `json:"client_ip"`
	UserRole     string          `json:"user_role"`
	RequestHash  string          `json:"request_hash"`
	Request      RequestSummary  `json:"request_summary"`
	Response     ResponseSummary `json:"response_summary"`
	Analysis     Analysis        `json:"analysis"`
	Tags         []string        `json:"tags"`
	Metrics      Metrics         `json:"metrics"`
}

type RequestSummary struct {
	Method     string `json:"method"`
	ParamsHash string `json:"params_hash"`
	ID         any    `json:"id"`
}

type ResponseSummary struct {
	Success          bool                 `json:"success"`
	DataSize         int                  `json:"data_size"`
	SensitivityLevel patterns.Sensitivity `json:"sensitivity_level"`
	ErrorType        any                  `json:"error_type"`
}

type Analysis struct {
	HasError            bool                 `json:"has_error"`
	DataSize            int                  `json:"data_size"`
	SensitivityLevel    patterns.Sensitivity `json:"sensitivity_level"`
	ContainsFiles       bool                 `json:"contains_files"`
	ContainsCode        bool                 `json:"contains_code"`
	ContainsURLs        bool                 `json:"contains_urls"`
	ExecutionIndicators []string             `json:"execution_indicators"`
}

// Metrics are processing hints passed through from the gateway verbatim.
type Metrics struct {
	ProcessingTimeMS string `json:"processing_time_ms"`
	MemoryUsageMB    string `json:"memory_usage_mb"`
}

// Time parses the record timestamp, returning the zero time if it is
// malformed.
func (r Record) Time() time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Builder constructs records. It is pure apart from the clock and the id
// source.
type Builder struct {
	lib   *patterns.Library
	now   func() time.Time
	newID func() string
}

// BuilderOption customizes a Builder.
type BuilderOption func(*Builder)

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithIDs overrides the record id source.
func WithIDs(newID func() string) BuilderOption {
	return func(b *Builder) { b.newID = newID }
}

func NewBuilder(lib *patterns.Library, opts ...BuilderOption) *Builder {
	b := &Builder{lib: lib, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build creates the audit record for one request/response pair.
func (b *Builder) Build(env *rpc.Envelope, sess rpc.Session) (Record, error) {
	req, resp := env.Request, env.Response

	analysis, err := b.analyze(resp)
	if err != nil {
		return Record{}, err
	}
	paramsHash, err := rpc.Hash(req.Params)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		AuditVersion: Version,
		RecordID:     b.newID(),
		Timestamp:    rpc.Timestamp(b.now()),
		EventType:    EventType,
		SessionID:    sess.SessionID,
		ClientIP:     sess.ClientIP,
		UserRole:     sess.UserRole,
		RequestHash:  req.Hash(),
		Request: RequestSummary{
			Method:     req.Method,
			ParamsHash: paramsHash,
			ID:         req.ID,
		},
		Response: ResponseSummary{
			Success:          !resp.HasError(),
			DataSize:         analysis.DataSize,
			SensitivityLevel: analysis.SensitivityLevel,
			ErrorType:        resp.ErrorCode(),
		},
		Analysis: analysis,
		Metrics: Metrics{
			ProcessingTimeMS: sess.ProcessingTimeMS,
			MemoryUsageMB:    sess.MemoryUsageMB,
		},
	}
	rec.Tags = tags(req.Method, analysis)
	return rec, nil
}

func (b *Builder) analyze(resp *rpc.ToolResponse) (Analysis, error) {
	serialized, err := rpc.CanonicalString(resp.Document())
	if err != nil {
		return Analysis{}, err
	}

	sensitivity := patterns.SensitivityLow
	if len(resp.Document()) > 0 {
		sensitivity = b.lib.Sensitivity(serialized)
	}

	exec := b.lib.Indicators(serialized, patterns.IndicatorExecution)
	if exec == nil {
		exec = []string{}
	}

	return Analysis{
		HasError:            resp.HasError(),
		DataSize:            len(serialized),
		SensitivityLevel:    sensitivity,
		ContainsFiles:       len(b.lib.Indicators(serialized, patterns.IndicatorFiles)) > 0,
		ContainsCode:        len(b.lib.Indicators(serialized, patterns.IndicatorCode)) > 0,
		ContainsURLs:        len(b.lib.Indicators(serialized, patterns.IndicatorURLs)) > 0,
		ExecutionIndicators: exec,
	}, nil
}

func tags(method string, a Analysis) []string {
	tool := strings.ToLower(method)
	out := []string{}

	if strings.Contains(tool, "file") {
		out = append(out, TagFileOperation)
	}
	if strings.Contains(tool, "network") || strings.Contains(tool, "http") {
		out = append(out, TagNetworkOperation)
	}
	if strings.Contains(tool, "execute") || strings.Contains(tool, "command") {
		out = append(out, TagSystemOperation)
	}
	if a.SensitivityLevel == patterns.SensitivityHigh {
		out = append(out, TagSensitiveData)
	}
	if a.ContainsFiles {
		out = append(out, TagFileContent)
	}
	if a.ContainsCode {
		out = append(out, TagCodeContent)
	}
	if a.ContainsURLs {
		out = append(out, TagURLContent)
	}
	if a.HasError {
		out = append(out, TagErrorResponse)
	}
	if a.DataSize > LargeResponseBytes {
		out = append(out, TagLargeResponse)
	}
	return out
}
