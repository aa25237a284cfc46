package cli

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gzhole/toolwarden/internal/config"
	"github.com/gzhole/toolwarden/internal/intercept"
)

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Block tool requests that look like prompt injection",
	Long: `Reads a tool request {"method", "params", "id"} from stdin and scores it
for prompt injection. Requests whose total risk reaches the configured
threshold (default 5.0) are blocked with a -32603 error document.

Fails open: a request that cannot be evaluated is allowed and logged.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFilter(cmd, intercept.FilterGuard, cmd.InOrStdin())
	},
}

var accessCmd = &cobra.Command{
	Use:   "access",
	Short: "Enforce role-based tool access policy",
	Long: `Reads a tool request from stdin and evaluates it against the role policy
in tool-permissions.yaml plus any packs in policies.d. The role comes from
USER_ROLE; denials return a -32601 error document.

Fails closed: a request that cannot be evaluated is denied.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFilter(cmd, intercept.FilterAccess, cmd.InOrStdin())
	},
}

var sanitizeCmd = &cobra.Command{
	Use:   "sanitize [response-json]",
	Short: "Redact secrets and personal data from a tool response",
	Long: `Reads a tool response from its argument or stdin, either bare or as a
{"request", "response"} envelope, and writes the sanitizer document
{action, reason, response, sanitization_info}.

Fails closed: a response that cannot be processed is blocked.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		in := cmd.InOrStdin()
		if len(args) == 1 {
			in = strings.NewReader(args[0])
		}
		return runFilter(cmd, intercept.FilterSanitize, in)
	},
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Record a request/response pair in the audit trail",
	Long: `Reads a {"request", "response"} envelope from stdin, appends an audit
record to the daily log, emits a SIEM event on stderr and writes the
original response back to stdout unchanged.

Fails open: auditing problems never block the response.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFilter(cmd, intercept.FilterAudit, cmd.InOrStdin())
	},
}

func init() {
	rootCmd.AddCommand(guardCmd)
	rootCmd.AddCommand(accessCmd)
	rootCmd.AddCommand(sanitizeCmd)
	rootCmd.AddCommand(auditCmd)
}

func runFilter(cmd *cobra.Command, filter string, in io.Reader) error {
	cfg, log := setup(cmd)
	defer log.Sync() //nolint:errcheck // best-effort flush

	rt, err := intercept.NewRuntime(cfg, config.SessionFromEnv(getenv), log)
	if err != nil {
		return err
	}

	d := rt.Run(filter, in)
	if err := d.Write(cmd.OutOrStdout()); err != nil {
		log.Error("write decision failed", zap.String("filter", filter), zap.Error(err))
	}
	if err := rt.Metrics().WriteFile(cfg.MetricsFile); err != nil {
		log.Warn("write metrics failed", zap.String("path", cfg.MetricsFile), zap.Error(err))
	}

	if d.Blocked() {
		return &exitError{code: intercept.ExitBlock}
	}
	return nil
}
