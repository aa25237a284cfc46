package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/toolwarden/internal/config"
	"github.com/gzhole/toolwarden/internal/policy"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show toolwarden status: config, policy, packs, audit trail",
	Long: `Check how the filters are configured: which config and policy files are
in effect, which packs are applied and where audit records are written.

  toolwarden status`,
	Args: cobra.NoArgs,
	RunE: statusCommand,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func statusCommand(cmd *cobra.Command, args []string) error {
	cfg, log := setup(cmd)
	defer log.Sync() //nolint:errcheck // best-effort flush
	w := cmd.OutOrStdout()

	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w, "  toolwarden Status")
	fmt.Fprintln(w, "═══════════════════════════════════════════════════════")
	fmt.Fprintln(w)

	binPath, err := os.Executable()
	if err != nil {
		binPath = "unknown"
	}
	fmt.Fprintf(w, "  Binary:    %s (%s)\n", binPath, Version)
	fmt.Fprintf(w, "  Config:    %s\n", cfg.ConfigDir)
	checkFile(w, "Settings", cfg.ConfigPath)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "─── Filters ───────────────────────────────────────────")
	fmt.Fprintf(w, "  guard     block at risk >= %g, on error: %s\n", cfg.Guard.BlockThreshold, cfg.Guard.OnError)
	fmt.Fprintf(w, "  access    on error: %s\n", cfg.Access.OnError)
	fmt.Fprintf(w, "  sanitize  secrets=%t pii=%t max=%d bytes, on error: %s\n",
		cfg.Sanitizer.RemoveSecrets, cfg.Sanitizer.RedactPII, cfg.Sanitizer.MaxResponseSize, cfg.Sanitizer.OnError)
	fmt.Fprintf(w, "  audit     on error: %s\n", cfg.Audit.OnError)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "─── Policy ────────────────────────────────────────────")
	checkPolicyFile(w, cfg.PolicyPath)
	_, infos, err := policy.LoadPacks(cfg.PacksDir, policy.DefaultPolicy())
	if err == nil && len(infos) > 0 {
		enabled := 0
		for _, info := range infos {
			if info.Enabled && info.Err == nil {
				enabled++
			}
		}
		fmt.Fprintf(w, "  ✅ Policy packs: %d installed, %d enabled\n", len(infos), enabled)
	} else {
		fmt.Fprintln(w, "  ⬚  No policy packs installed")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "─── Audit Trail ───────────────────────────────────────")
	checkAuditDir(w, cfg)
	fmt.Fprintln(w)

	return nil
}

func checkFile(w io.Writer, name, path string) {
	if _, err := os.Stat(path); err == nil {
		fmt.Fprintf(w, "  ✅ %s: %s\n", name, path)
	} else {
		fmt.Fprintf(w, "  ⬚  %s: using built-in defaults (no %s)\n", name, filepath.Base(path))
	}
}

func checkPolicyFile(w io.Writer, path string) {
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(w, "  ⬚  Policy: using built-in defaults (no custom file)\n")
		return
	}
	if _, err := policy.Load(path); err != nil {
		fmt.Fprintf(w, "  ⚠  Policy: %s is invalid, filters use the defaults\n", path)
		fmt.Fprintf(w, "     %s\n", strings.ReplaceAll(err.Error(), "\n", "\n     "))
		return
	}
	fmt.Fprintf(w, "  ✅ Policy: %s\n", path)
}

func checkAuditDir(w io.Writer, cfg *config.Config) {
	dir := existingDir(cfg.AuditDirs())
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(w, "  ⬚  %s (not yet created, will start on first record)\n", dir)
		return
	}

	files := 0
	var size int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		files++
		if info, err := e.Info(); err == nil {
			size += info.Size()
		}
	}
	fmt.Fprintf(w, "  ✅ %s (%d partition(s), %d KB)\n", dir, files, size/1024)
}
