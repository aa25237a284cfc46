package intercept

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/gzhole/toolwarden/internal/audit"
	"github.com/gzhole/toolwarden/internal/config"
	"github.com/gzhole/toolwarden/internal/logger"
	"github.com/gzhole/toolwarden/internal/metrics"
	"github.com/gzhole/toolwarden/internal/patterns"
	"github.com/gzhole/toolwarden/internal/policy"
	"github.com/gzhole/toolwarden/internal/redact"
	"github.com/gzhole/toolwarden/internal/risk"
	"github.com/gzhole/toolwarden/internal/rpc"
	"github.com/gzhole/toolwarden/internal/sanitize"
)

// MaxInputBytes bounds the document a filter will read.
const MaxInputBytes = 64 << 20

// ErrTerminalInput is returned when a filter is pointed at an interactive
// terminal instead of a piped document.
var ErrTerminalInput = errors.New("refusing to read a document from a terminal; pipe JSON on stdin")

// Runtime holds everything one invocation needs. It is built once at
// startup and passed to the filters; nothing in it is package-global.
// The policy engine and audit store are set up on first use so a filter
// only touches the files it needs.
type Runtime struct {
	cfg     *config.Config
	session rpc.Session
	lib     *patterns.Library
	scorer  *risk.Scorer
	sanit   *sanitize.Sanitizer
	builder *audit.Builder
	forward *audit.Forwarder
	metrics *metrics.Metrics
	log     *zap.Logger
	diag    *zap.Logger
	now     func() time.Time

	engineOnce sync.Once
	policy     *policy.Policy
	engine     *policy.Engine

	storeOnce sync.Once
	store     *audit.Store
	storeErr  error
}

// Option customizes a Runtime.
type Option func(*Runtime)

// WithClock overrides the time source of every component.
func WithClock(now func() time.Time) Option {
	return func(r *Runtime) { r.now = now }
}

// WithPolicy uses p instead of loading the policy file and packs.
func WithPolicy(p *policy.Policy) Option {
	return func(r *Runtime) { r.policy = p }
}

// WithMetrics records into m instead of a fresh registry.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runtime) { r.metrics = m }
}

// WithRecordIDs overrides the audit record id source.
func WithRecordIDs(newID func() string) Option {
	return func(r *Runtime) {
		r.builder = audit.NewBuilder(r.lib, audit.WithClock(r.clock), audit.WithIDs(newID))
	}
}

func NewRuntime(cfg *config.Config, sess rpc.Session, log *zap.Logger, opts ...Option) (*Runtime, error) {
	lib, err := patterns.New(
		patterns.WithCustomSecrets(cfg.Sanitizer.SecretPatterns...),
		patterns.WithCustomPII(cfg.Sanitizer.PIIPatterns...),
	)
	if err != nil {
		return nil, fmt.Errorf("build pattern library: %w", err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("session_id", sess.SessionID))

	r := &Runtime{
		cfg:     cfg,
		session: sess,
		lib:     lib,
		log:     log,
		diag:    logger.Diagnostic(log),
		now:     time.Now,
		metrics: metrics.New(),
	}
	r.scorer = risk.NewScorer(lib, risk.WithHighRiskTools(cfg.Guard.HighRiskTools...))
	r.sanit = sanitize.New(lib, cfg.SanitizeConfig(), sanitize.WithLogger(log.With(zap.String("filter", FilterSanitize))))
	r.builder = audit.NewBuilder(lib, audit.WithClock(r.clock))
	r.forward = audit.NewForwarder(audit.SIEMConfig{
		AgentName:   cfg.Audit.AgentName,
		ManagerName: cfg.Audit.ManagerName,
		Location:    cfg.Audit.Location,
		Decoder:     cfg.Audit.Decoder,
	}, logger.SIEM(log))

	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// clock indirects through r.now so WithClock applies regardless of option
// order.
func (r *Runtime) clock() time.Time { return r.now() }

// Metrics returns the invocation's metrics.
func (r *Runtime) Metrics() *metrics.Metrics { return r.metrics }

// Library returns the pattern library the filters share.
func (r *Runtime) Library() *patterns.Library { return r.lib }

// Scorer returns the configured risk scorer.
func (r *Runtime) Scorer() *risk.Scorer { return r.scorer }

// Engine returns the access policy engine, loading the policy on first
// use. A policy that cannot be loaded is reported and the default policy
// is used.
func (r *Runtime) Engine() *policy.Engine {
	r.engineOnce.Do(func() {
		if r.policy == nil {
			r.policy = r.loadPolicy()
		}
		r.engine = policy.NewEngine(r.policy,
			policy.WithClock(r.clock),
			policy.WithLogger(r.log.With(zap.String("filter", FilterAccess))))
	})
	return r.engine
}

func (r *Runtime) loadPolicy() *policy.Policy {
	p, err := policy.LoadOrDefault(r.cfg.PolicyPath)
	if err != nil {
		r.log.Warn("policy load failed, using default policy",
			zap.String("path", r.cfg.PolicyPath), zap.Error(err))
	}

	merged, packs, err := policy.LoadPacks(r.cfg.PacksDir, p)
	if err != nil {
		r.log.Warn("policy packs unreadable", zap.String("dir", r.cfg.PacksDir), zap.Error(err))
		return p
	}
	for _, info := range packs {
		if info.Err != nil {
			r.log.Warn("policy pack skipped", zap.String("pack", info.Name), zap.Error(info.Err))
		}
	}
	return merged
}

// auditStore opens the audit store on first use.
func (r *Runtime) auditStore() (*audit.Store, error) {
	r.storeOnce.Do(func() {
		r.store, r.storeErr = audit.OpenStore(r.cfg.AuditDirs()...)
		if r.storeErr == nil && r.store.Dir() != r.cfg.Audit.Dir {
			r.diag.Warn("audit directory unavailable, using fallback",
				zap.String("configured", r.cfg.Audit.Dir), zap.String("dir", r.store.Dir()))
		}
	})
	return r.store, r.storeErr
}

// Run reads one document from in and applies the named filter.
func (r *Runtime) Run(filter string, in io.Reader) Decision {
	input, err := ReadInput(in)
	if err != nil {
		return r.onFailure(filter, nil, err)
	}

	switch filter {
	case FilterGuard:
		return r.Guard(input)
	case FilterAccess:
		return r.AccessControl(input)
	case FilterSanitize:
		return r.Sanitize(input)
	case FilterAudit:
		return r.Audit(input)
	default:
		return r.onFailure(filter, input, fmt.Errorf("unknown filter %q", filter))
	}
}

// ReadInput reads a whole document, refusing terminals and documents
// larger than MaxInputBytes.
func ReadInput(in io.Reader) ([]byte, error) {
	if IsTerminal(in) {
		return nil, ErrTerminalInput
	}
	data, err := io.ReadAll(io.LimitReader(in, MaxInputBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	if len(data) > MaxInputBytes {
		return nil, fmt.Errorf("input exceeds %d bytes", MaxInputBytes)
	}
	return data, nil
}

// IsTerminal reports whether in is an interactive terminal.
func IsTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// run applies fn and routes any error or panic to the failure handler.
func (r *Runtime) run(filter string, input []byte, fn func([]byte) (Decision, error)) (d Decision) {
	defer func() {
		if p := recover(); p != nil {
			d = r.onFailure(filter, input, fmt.Errorf("panic: %v", p))
		}
	}()

	d, err := fn(input)
	if err != nil {
		return r.onFailure(filter, input, err)
	}
	r.metrics.Decision(filter, string(d.Action))
	return d
}

// mode returns the configured failure mode of a filter. Unknown filters
// fail closed.
func (r *Runtime) mode(filter string) config.FailureMode {
	switch filter {
	case FilterGuard:
		return r.cfg.Guard.OnError
	case FilterAccess:
		return r.cfg.Access.OnError
	case FilterSanitize:
		return r.cfg.Sanitizer.OnError
	case FilterAudit:
		return r.cfg.Audit.OnError
	default:
		return config.FailClosed
	}
}

// onFailure turns a filter failure into the decision its failure mode
// prescribes. The error text is scrubbed of secrets before it is logged or
// emitted.
func (r *Runtime) onFailure(filter string, input []byte, err error) Decision {
	mode := r.mode(filter)
	msg := redact.Scrub(err.Error(), r.lib)

	r.log.Error("filter failed",
		zap.String("filter", filter),
		zap.String("on_error", string(mode)),
		zap.String("error", msg))
	r.metrics.Failure(filter, string(mode))

	var d Decision
	if mode == config.FailOpen {
		d = allow(filter, "filter_error", failOpenOutput(filter, input))
	} else {
		d = block(filter, "filter_error", r.failClosedOutput(filter, msg))
	}
	r.metrics.Decision(filter, string(d.Action))
	return d
}

func failOpenOutput(filter string, input []byte) any {
	switch filter {
	case FilterAudit:
		if resp := originalResponse(input); resp != nil {
			return resp
		}
		return rpc.NewErrorDocument(rpc.CodeInternalError, MessageAuditError, nil)
	case FilterSanitize:
		if payload := originalPayload(input); payload != nil {
			return sanitize.Result{Action: sanitize.ActionAllow, Reason: sanitize.ReasonError, Response: payload}
		}
	}
	return nil
}

func (r *Runtime) failClosedOutput(filter, msg string) any {
	switch filter {
	case FilterSanitize:
		return sanitize.BlockedResult(msg)
	case FilterAccess:
		return rpc.NewErrorDocument(rpc.CodeInternalError, MessageInternalError, map[string]any{"type": "controller_error"})
	case FilterAudit:
		return rpc.NewErrorDocument(rpc.CodeInternalError, MessageAuditError, nil)
	default:
		return rpc.NewErrorDocument(rpc.CodeInternalError, MessageInternalError, map[string]any{
			"type":      filter + "_error",
			"timestamp": rpc.Timestamp(r.now()),
		})
	}
}
