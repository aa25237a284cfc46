package policy

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"path"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	fileToolKeywords    = []string{"file", "read", "write", "delete"}
	writeToolKeywords   = []string{"write", "create"}
	networkToolKeywords = []string{"http", "request", "fetch", "download"}
	systemToolKeywords  = []string{"execute", "command", "system", "shell"}

	pathParams    = []string{"path", "file_path", "filename"}
	urlParams     = []string{"url", "endpoint"}
	commandParams = []string{"command", "cmd"}
)

// EvaluationError reports a request or policy the engine could not evaluate.
// The engine denies on it.
type EvaluationError struct {
	Err error
}

func (e *EvaluationError) Error() string { return e.Err.Error() }
func (e *EvaluationError) Unwrap() error { return e.Err }

// Engine evaluates access requests against one immutable Policy.
type Engine struct {
	policy *Policy
	now    func() time.Time
	log    *zap.Logger
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithClock overrides the time source used for time restrictions.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger every decision is written to.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

func NewEngine(p *Policy, opts ...EngineOption) *Engine {
	e := &Engine{policy: p, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the engine's policy (for inspection/testing).
func (e *Engine) Policy() *Policy {
	return e.policy
}

// Evaluate decides a request in one pass: time window, tool allow/deny,
// then file, network and system restrictions, stopping at the first
// violation. Any evaluation failure is a deny.
func (e *Engine) Evaluate(req Request) EvalResult {
	result, err := e.evaluate(req)
	if err != nil {
		result.Allowed = false
		result.Check = CheckInternal
		result.Reason = "Internal error: " + err.Error()
	}

	logFields := []zap.Field{
		zap.String("tool", req.Tool),
		zap.String("user_role", result.RequestedRole),
		zap.String("effective_role", result.Role),
		zap.String("session_id", req.SessionID),
		zap.String("client_ip", req.ClientIP),
		zap.Bool("allowed", result.Allowed),
	}
	if result.Allowed {
		e.log.Info("tool access allowed", logFields...)
	} else {
		logFields = append(logFields, zap.String("check", string(result.Check)), zap.String("reason", result.Reason))
		e.log.Warn("tool access denied", logFields...)
	}
	return result
}

func (e *Engine) evaluate(req Request) (EvalResult, error) {
	result := EvalResult{RequestedRole: req.Role}
	if e.policy == nil {
		return result, &EvaluationError{Err: errors.New("no policy loaded")}
	}

	role, rp, err := e.resolveRole(req.Role)
	result.Role = role
	if err != nil {
		return result, err
	}
	if result.RequestedRole == "" {
		result.RequestedRole = role
	}

	deny := func(check Check, reason string) (EvalResult, error) {
		result.Check = check
		result.Reason = reason
		return result, nil
	}

	if reason, err := e.checkTime(); err != nil {
		return result, err
	} else if reason != "" {
		return deny(CheckTime, reason)
	}

	if !toolAllowed(req.Tool, rp) {
		return deny(CheckTool, fmt.Sprintf("Tool '%s' not allowed for role '%s'", req.Tool, result.RequestedRole))
	}

	checks := []struct {
		check Check
		fn    func(string, map[string]any) (string, error)
	}{
		{CheckFile, e.checkFile},
		{CheckNetwork, e.checkNetwork},
		{CheckSystem, e.checkSystem},
	}
	for _, c := range checks {
		reason, err := c.fn(req.Tool, req.Params)
		if err != nil {
			return result, err
		}
		if reason != "" {
			return deny(c.check, reason)
		}
	}

	result.Allowed = true
	return result, nil
}

// resolveRole maps the requested role to a defined one. An empty or
// undefined role takes FallbackRole, never anything more privileged.
func (e *Engine) resolveRole(role string) (string, RolePolicy, error) {
	if role == "" {
		role = FallbackRole
	}
	if rp, ok := e.policy.Roles[role]; ok {
		return role, rp, nil
	}
	if rp, ok := e.policy.Roles[FallbackRole]; ok {
		return FallbackRole, rp, nil
	}
	return role, RolePolicy{}, &EvaluationError{Err: fmt.Errorf("role %q is not defined and the policy has no %q role", role, FallbackRole)}
}

// toolAllowed applies deny before allow; a tool on neither list is denied.
func toolAllowed(tool string, rp RolePolicy) bool {
	if slices.Contains(rp.DeniedTools, Wildcard) || slices.Contains(rp.DeniedTools, tool) {
		return false
	}
	return slices.Contains(rp.AllowedTools, Wildcard) || slices.Contains(rp.AllowedTools, tool)
}

func (e *Engine) checkTime() (string, error) {
	tr := e.policy.TimeRestrictions
	if !tr.BusinessHoursOnly {
		return "", nil
	}

	loc, err := tr.Location()
	if err != nil {
		return "", &EvaluationError{Err: err}
	}
	start, end, err := tr.Hours()
	if err != nil {
		return "", &EvaluationError{Err: err}
	}

	hour := e.now().In(loc).Hour()
	if hour < start || hour >= end {
		return fmt.Sprintf("Access denied: outside allowed hours (operations only allowed between %d:00 and %d:00 %s)", start, end, loc), nil
	}
	return "", nil
}

func (e *Engine) checkFile(tool string, params map[string]any) (string, error) {
	name := strings.ToLower(tool)
	if !containsAny(name, fileToolKeywords) {
		return "", nil
	}

	p, err := stringParam(params, pathParams)
	if err != nil || p == "" {
		return "", err
	}

	fr := e.policy.ToolRestrictions.FileOperations
	cleaned := path.Clean(p)
	for _, forbidden := range fr.ForbiddenPaths {
		if strings.HasPrefix(p, forbidden) || strings.HasPrefix(cleaned, forbidden) {
			return fmt.Sprintf("Access denied: Path '%s' is in forbidden directory '%s'", p, forbidden), nil
		}
	}

	if containsAny(name, writeToolKeywords) && len(fr.AllowedExtensions) > 0 {
		ext := strings.ToLower(extension(cleaned))
		if !slices.Contains(fr.AllowedExtensions, ext) {
			return fmt.Sprintf("Access denied: File extension '%s' not allowed", ext), nil
		}
	}
	return "", nil
}

func (e *Engine) checkNetwork(tool string, params map[string]any) (string, error) {
	if !containsAny(strings.ToLower(tool), networkToolKeywords) {
		return "", nil
	}

	target, err := stringParam(params, urlParams)
	if err != nil || target == "" {
		return "", err
	}

	lower := strings.ToLower(target)
	host := hostAddr(target)
	for _, domain := range e.policy.ToolRestrictions.NetworkOperations.ForbiddenDomains {
		if strings.Contains(lower, strings.ToLower(domain)) {
			return fmt.Sprintf("Access denied: Domain '%s' is forbidden", domain), nil
		}
		if prefix, err := netip.ParsePrefix(domain); err == nil && host.IsValid() && prefix.Contains(host) {
			return fmt.Sprintf("Access denied: Domain '%s' is forbidden", domain), nil
		}
	}
	return "", nil
}

func (e *Engine) checkSystem(tool string, params map[string]any) (string, error) {
	if !containsAny(strings.ToLower(tool), systemToolKeywords) {
		return "", nil
	}

	command, err := commandParam(params)
	if err != nil || command == "" {
		return "", err
	}

	lower := strings.ToLower(command)
	for _, forbidden := range e.policy.ToolRestrictions.SystemOperations.ForbiddenCommands {
		if strings.Contains(lower, strings.ToLower(forbidden)) {
			return fmt.Sprintf("Access denied: Command contains forbidden keyword '%s'", forbidden), nil
		}
	}
	return "", nil
}

// Location returns the configured timezone, UTC when unset.
func (tr TimeRestrictions) Location() (*time.Location, error) {
	if tr.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(tr.Timezone)
}

// Hours returns the allowed window, 9 to 17 when unset.
func (tr TimeRestrictions) Hours() (int, int, error) {
	switch len(tr.AllowedHours) {
	case 0:
		return 9, 17, nil
	case 2:
		return tr.AllowedHours[0], tr.AllowedHours[1], nil
	default:
		return 0, 0, fmt.Errorf("allowed_hours must have two entries, got %d", len(tr.AllowedHours))
	}
}

// stringParam returns the first non-empty string among keys. A present
// value of another type is an error.
func stringParam(params map[string]any, keys []string) (string, error) {
	for _, k := range keys {
		switch v := params[k].(type) {
		case nil:
		case string:
			if v != "" {
				return v, nil
			}
		default:
			return "", &EvaluationError{Err: fmt.Errorf("parameter %q must be a string, got %T", k, v)}
		}
	}
	return "", nil
}

// commandParam accepts a command string or an argv list, joined by spaces.
func commandParam(params map[string]any) (string, error) {
	for _, k := range commandParams {
		switch v := params[k].(type) {
		case nil:
		case string:
			if v != "" {
				return v, nil
			}
		case []any:
			parts := make([]string, 0, len(v))
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					return "", &EvaluationError{Err: fmt.Errorf("parameter %q must contain only strings, got %T", k, item)}
				}
				parts = append(parts, s)
			}
			if len(parts) > 0 {
				return strings.Join(parts, " "), nil
			}
		default:
			return "", &EvaluationError{Err: fmt.Errorf("parameter %q must be a string or list of strings, got %T", k, v)}
		}
	}
	return "", nil
}

// extension mirrors the usual "splitext" rule: a leading dot on the base
// name does not start an extension.
func extension(p string) string {
	base := path.Base(p)
	trimmed := strings.TrimLeft(base, ".")
	i := strings.LastIndex(trimmed, ".")
	if i < 0 {
		return ""
	}
	return trimmed[i:]
}

// hostAddr extracts the host of a URL-like target as an IP address, or the
// zero Addr when the host is a name.
func hostAddr(target string) netip.Addr {
	raw := target
	if !strings.Contains(raw, "://") {
		raw = "//" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return netip.Addr{}
	}
	addr, err := netip.ParseAddr(u.Hostname())
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
