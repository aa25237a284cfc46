package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/gzhole/toolwarden/internal/audit"
	"github.com/gzhole/toolwarden/internal/patterns"
)

var (
	logDate      string
	logSensitive bool
	logSession   string
	logLast      int
	logSummary   bool
	logJSON      bool
	logDir       string
)

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "View and filter the audit trail",
	Long: `View toolwarden audit records across the daily partitions.

Examples:
  toolwarden log                          # Show all records
  toolwarden log --last 20                # Show the last 20 records
  toolwarden log --date 2025-06-01        # Show one day
  toolwarden log --sensitive              # Show only high-sensitivity records
  toolwarden log --session abc123         # Show one session
  toolwarden log --summary                # Show summary statistics`,
	Args: cobra.NoArgs,
	RunE: logCommand,
}

func init() {
	logCmd.Flags().StringVar(&logDate, "date", "", "Only read the partition for this day (YYYY-MM-DD)")
	logCmd.Flags().BoolVar(&logSensitive, "sensitive", false, "Read the sensitive-data partitions")
	logCmd.Flags().StringVar(&logSession, "session", "", "Filter by session id")
	logCmd.Flags().IntVar(&logLast, "last", 0, "Show last N records")
	logCmd.Flags().BoolVar(&logSummary, "summary", false, "Show summary statistics")
	logCmd.Flags().BoolVar(&logJSON, "json", false, "Print records as JSON lines")
	logCmd.Flags().StringVar(&logDir, "dir", "", "Audit directory (default: from config)")
	rootCmd.AddCommand(logCmd)
}

func logCommand(cmd *cobra.Command, args []string) error {
	cfg, log := setup(cmd)
	defer log.Sync() //nolint:errcheck // best-effort flush

	dir := logDir
	if dir == "" {
		dir = existingDir(cfg.AuditDirs())
	}

	records, skipped, err := audit.Read(dir, audit.Query{
		Date:      logDate,
		Sensitive: logSensitive,
		SessionID: logSession,
		Last:      logLast,
	})
	if err != nil {
		return fmt.Errorf("failed to read audit log: %w", err)
	}

	out := cmd.OutOrStdout()
	if skipped > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: skipped %d malformed line(s)\n", skipped)
	}
	if len(records) == 0 {
		fmt.Fprintf(out, "No audit records found in %s.\n", dir)
		return nil
	}

	switch {
	case logSummary:
		printSummary(out, audit.Summarize(records))
	case logJSON:
		enc := json.NewEncoder(out)
		for _, r := range records {
			if err := enc.Encode(r); err != nil {
				return err
			}
		}
	default:
		printRecords(out, records)
	}
	return nil
}

// existingDir returns the first directory in dirs that exists, or the first
// entry when none do.
func existingDir(dirs []string) string {
	for _, d := range dirs {
		if fi, err := os.Stat(d); err == nil && fi.IsDir() {
			return d
		}
	}
	if len(dirs) == 0 {
		return ""
	}
	return dirs[0]
}

func printRecords(w io.Writer, records []audit.Record) {
	for _, r := range records {
		status := "ok"
		if r.Analysis.HasError {
			status = "error"
		}
		fmt.Fprintf(w, "%s %s %-20s %s [%s]\n",
			sensitivityIcon(r.Analysis.SensitivityLevel),
			formatTimestamp(r.Timestamp),
			r.Request.Method,
			status,
			r.Analysis.SensitivityLevel)

		fmt.Fprintf(w, "     Session: %s  Role: %s  Client: %s\n", r.SessionID, r.UserRole, r.ClientIP)
		if len(r.Tags) > 0 {
			fmt.Fprintf(w, "     Tags: %s\n", strings.Join(r.Tags, ", "))
		}
		if alerts := audit.Evaluate(r); alerts != nil {
			for _, a := range alerts.Alerts {
				fmt.Fprintf(w, "     Alert: %s (%s) %s\n", a.Type, a.Severity, a.Message)
			}
		}
		fmt.Fprintf(w, "     Record: %s  Request: %s  Size: %d bytes\n", r.RecordID, r.RequestHash, r.Analysis.DataSize)
		fmt.Fprintln(w)
	}
}

func printSummary(w io.Writer, s audit.Summary) {
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintln(w, "  toolwarden Audit Summary")
	fmt.Fprintln(w, "═══════════════════════════════════════════")
	fmt.Fprintf(w, "  Total records:   %d\n", s.Total)
	fmt.Fprintf(w, "  High:            %d\n", s.BySensitivity[string(patterns.SensitivityHigh)])
	fmt.Fprintf(w, "  Medium:          %d\n", s.BySensitivity[string(patterns.SensitivityMedium)])
	fmt.Fprintf(w, "  Low:             %d\n", s.BySensitivity[string(patterns.SensitivityLow)])
	fmt.Fprintf(w, "  Errors:          %d\n", s.Errors)
	fmt.Fprintf(w, "  With alerts:     %d\n", s.Alerts)
	fmt.Fprintln(w, "═══════════════════════════════════════════")

	if s.Total > 0 {
		fmt.Fprintf(w, "  First record:    %s\n", formatTimestamp(s.First))
		fmt.Fprintf(w, "  Last record:     %s\n", formatTimestamp(s.Last))
	}

	if top := audit.Top(s.ByMethod, 10); len(top) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Top tools:")
		for _, c := range top {
			fmt.Fprintf(w, "    %-24s %d\n", c.Key, c.Count)
		}
	}
	if top := audit.Top(s.ByTag, 0); len(top) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "  Tags:")
		for _, c := range top {
			fmt.Fprintf(w, "    %-24s %d\n", c.Key, c.Count)
		}
	}

	fmt.Fprintln(w)
}

func sensitivityIcon(level patterns.Sensitivity) string {
	switch level {
	case patterns.SensitivityHigh:
		return "\xf0\x9f\x94\xb4" // red circle
	case patterns.SensitivityMedium:
		return "\xf0\x9f\x9f\xa1" // yellow circle
	case patterns.SensitivityLow:
		return "\xf0\x9f\x9f\xa2" // green circle
	default:
		return "\xe2\x9d\x93" // question mark
	}
}

func formatTimestamp(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
