package intercept

import (
	"bytes"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/gzhole/toolwarden/internal/audit"
	"github.com/gzhole/toolwarden/internal/policy"
	"github.com/gzhole/toolwarden/internal/rpc"
)

const (
	MessageInjectionBlocked = "Security policy violation detected"
	MessageAccessDenied     = "Tool access denied"
	MessageInternalError    = "Internal server error"
	MessageAuditError       = "Audit logger error"

	TypeInjectionBlocked = "prompt_injection_blocked"
	TypeAccessViolation  = "access_control_violation"
)

// InjectionBlockData is the error data of a guard block.
type InjectionBlockData struct {
	Type      string  `json:"type"`
	RiskScore float64 `json:"risk_score"`
	Timestamp string  `json:"timestamp"`
	Message   string  `json:"message"`
	Contact   string  `json:"contact"`
}

// AccessDeniedData is the error data of an access control denial.
type AccessDeniedData struct {
	Type      string `json:"type"`
	Tool      string `json:"tool"`
	Reason    string `json:"reason"`
	UserRole  string `json:"user_role"`
	SessionID string `json:"session_id"`
	Timestamp string `json:"timestamp"`
}

// Guard scores a request for prompt injection and blocks it when the total
// risk reaches the configured threshold.
func (r *Runtime) Guard(input []byte) Decision {
	return r.run(FilterGuard, input, r.guard)
}

func (r *Runtime) guard(input []byte) (Decision, error) {
	req, err := rpc.ParseRequest(input)
	if err != nil {
		return Decision{}, err
	}
	a, err := r.scorer.Assess(req)
	if err != nil {
		return Decision{}, err
	}
	r.metrics.RiskScore(a.Total)

	fields := []zap.Field{
		zap.String("filter", FilterGuard),
		zap.String("tool", req.Method),
		zap.Float64("risk_score", a.Total),
		zap.Float64("content_score", a.Content.Score),
		zap.Float64("context_score", a.ContextScore),
		zap.Strings("matched_patterns", a.Content.MatchedLabels),
		zap.Int("keyword_hits", a.Content.KeywordHits),
	}
	if len(a.Content.HiddenChars) > 0 {
		fields = append(fields, zap.Strings("hidden_chars", a.Content.HiddenChars))
	}
	if a.Total < r.cfg.Guard.BlockThreshold {
		r.log.Info("prompt injection analyzed", fields...)
		return allow(FilterGuard, "", nil), nil
	}

	r.log.Warn("prompt injection blocked", fields...)
	doc := rpc.NewErrorDocument(rpc.CodeInternalError, MessageInjectionBlocked, InjectionBlockData{
		Type:      TypeInjectionBlocked,
		RiskScore: a.Total,
		Timestamp: rpc.Timestamp(r.now()),
		Message:   "This request was blocked by the gateway's security filter due to potential prompt injection patterns.",
		Contact:   "Please review your request and ensure it complies with security guidelines.",
	})
	return block(FilterGuard, TypeInjectionBlocked, doc), nil
}

// AccessControl evaluates the request against the role policy of the
// session. The engine logs every decision itself.
func (r *Runtime) AccessControl(input []byte) Decision {
	return r.run(FilterAccess, input, r.accessControl)
}

func (r *Runtime) accessControl(input []byte) (Decision, error) {
	req, err := rpc.ParseRequest(input)
	if err != nil {
		return Decision{}, err
	}

	res := r.Engine().Evaluate(policy.Request{
		Tool:      req.Method,
		Params:    req.Params,
		Role:      r.session.UserRole,
		SessionID: r.session.SessionID,
		ClientIP:  r.session.ClientIP,
	})
	if res.Allowed {
		return allow(FilterAccess, "", nil), nil
	}

	doc := rpc.NewErrorDocument(rpc.CodeMethodNotFound, MessageAccessDenied, AccessDeniedData{
		Type:      TypeAccessViolation,
		Tool:      req.Method,
		Reason:    res.Reason,
		UserRole:  r.session.UserRole,
		SessionID: r.session.SessionID,
		Timestamp: rpc.Timestamp(r.now()),
	})
	return block(FilterAccess, res.Reason, doc), nil
}

// Sanitize rewrites a response payload. The input is either the payload
// itself or the {request, response} envelope, recognized by its request
// key.
func (r *Runtime) Sanitize(input []byte) Decision {
	return r.run(FilterSanitize, input, r.sanitize)
}

func (r *Runtime) sanitize(input []byte) (Decision, error) {
	doc, err := rpc.Decode(input)
	if err != nil {
		return Decision{}, err
	}
	payload := doc
	if _, ok := doc["request"]; ok {
		env, err := rpc.EnvelopeFromDocument(doc)
		if err != nil {
			return Decision{}, err
		}
		payload = env.Response.Document()
	}

	res, err := r.sanit.Sanitize(payload)
	if err != nil {
		return Decision{}, err
	}
	for _, det := range res.Detections {
		r.metrics.Detection(string(det.Category), det.Label)
	}

	if !res.Allowed() {
		return block(FilterSanitize, res.Reason, res), nil
	}
	return allow(FilterSanitize, res.Reason, res), nil
}

// Audit records the request/response pair and passes the original
// response through semantically unchanged. Failing to persist or forward the record is
// reported on the diagnostic channel and never changes the outcome.
func (r *Runtime) Audit(input []byte) Decision {
	return r.run(FilterAudit, input, r.audit)
}

func (r *Runtime) audit(input []byte) (Decision, error) {
	env, err := rpc.ParseEnvelope(input)
	if err != nil {
		return Decision{}, err
	}
	rec, err := r.builder.Build(env, r.session)
	if err != nil {
		return Decision{}, err
	}

	recFields := []zap.Field{
		zap.String("filter", FilterAudit),
		zap.String("record_id", rec.RecordID),
		zap.String("tool", rec.Request.Method),
	}

	if store, err := r.auditStore(); err != nil {
		r.diag.Error("audit store unavailable", append(recFields, zap.Error(err))...)
	} else if err := store.Append(rec); err != nil {
		r.diag.Error("audit write failed", append(recFields, zap.Error(err))...)
	}
	if err := r.forward.Forward(rec); err != nil {
		r.diag.Error("siem forward failed", append(recFields, zap.Error(err))...)
	}

	if alerts := audit.Evaluate(rec); alerts != nil {
		for _, a := range alerts.Alerts {
			r.metrics.Alert(a.Type)
			r.log.Warn("audit alert", append(recFields,
				zap.String("type", a.Type),
				zap.String("severity", a.Severity),
				zap.String("message", a.Message))...)
		}
	}

	r.log.Info("response audited", append(recFields,
		zap.String("sensitivity", string(rec.Analysis.SensitivityLevel)),
		zap.Strings("tags", rec.Tags))...)

	return allow(FilterAudit, "", originalResponse(input)), nil
}

// originalResponse returns the response of an envelope semantically
// unchanged: key order and number text are kept, insignificant whitespace
// is dropped when the output is encoded. A document without a response
// yields an empty object; input that is not a JSON object yields nil.
func originalResponse(input []byte) any {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(input, &doc); err != nil || doc == nil {
		return nil
	}
	resp, ok := doc["response"]
	if !ok || bytes.Equal(bytes.TrimSpace(resp), []byte("null")) {
		return map[string]any{}
	}
	return resp
}

// originalPayload returns what the sanitizer would have processed: the
// envelope response, or the whole document.
func originalPayload(input []byte) any {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(input, &doc); err != nil || doc == nil {
		return nil
	}
	if _, ok := doc["request"]; ok {
		return originalResponse(input)
	}
	return json.RawMessage(input)
}
