// Package intercept runs the four filters placed around the gateway. Each
// filter reads one JSON document, returns a Decision and never lets an
// internal failure escape: the filter's configured failure mode decides
// what the gateway sees instead.
package intercept

import (
	"io"

	"github.com/gzhole/toolwarden/internal/rpc"
)

// Filter names, used in logs, metrics and on the command line.
const (
	FilterGuard    = "guard"
	FilterAccess   = "access"
	FilterSanitize = "sanitize"
	FilterAudit    = "audit"
)

// Process exit codes. A block is a business outcome, distinct from a usage
// error.
const (
	ExitAllow = 0
	ExitUsage = 1
	ExitBlock = 2
)

type Action string

const (
	Allow Action = "allow"
	Block Action = "block"
)

// Decision is the outcome of one filter run. Output, when non-nil, is the
// document written to stdout: the transformed or original payload on
// allow, the substitute error payload on block.
type Decision struct {
	Filter string
	Action Action
	Reason string
	Output any
}

func (d Decision) Blocked() bool { return d.Action == Block }

// ExitCode maps the decision onto the process exit code.
func (d Decision) ExitCode() int {
	if d.Blocked() {
		return ExitBlock
	}
	return ExitAllow
}

// Write emits the decision document, if any, as one line of JSON.
func (d Decision) Write(w io.Writer) error {
	if d.Output == nil {
		return nil
	}
	b, err := rpc.Canonical(d.Output)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

func allow(filter, reason string, output any) Decision {
	return Decision{Filter: filter, Action: Allow, Reason: reason, Output: output}
}

func block(filter, reason string, output any) Decision {
	return Decision{Filter: filter, Action: Block, Reason: reason, Output: output}
}
