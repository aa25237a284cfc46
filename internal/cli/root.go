package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gzhole/toolwarden/internal/config"
	"github.com/gzhole/toolwarden/internal/intercept"
	"github.com/gzhole/toolwarden/internal/logger"
)

var (
	configDir   string
	logLevel    string
	metricsFile string
)

var rootCmd = &cobra.Command{
	Use:   "toolwarden",
	Short: "toolwarden - security filters for a tool-calling gateway",
	Long: `toolwarden runs the security filters placed around a tool-calling gateway.
Each filter reads one JSON document on stdin and answers with an exit code:
0 lets the call proceed, 2 blocks it. A block writes the substitute payload
to stdout; logs go to stderr.

  Before the tool runs:  toolwarden guard, toolwarden access
  After it returns:      toolwarden sanitize, toolwarden audit`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "Configuration directory (default: ~/.toolwarden)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics for this invocation to a file")
}

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// Execute runs the command tree and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return intercept.ExitAllow
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
	return intercept.ExitUsage
}

// setup loads the configuration and builds the logger for a command. A
// broken config file is reported and defaults are used.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger) {
	cfg, cfgErr := config.Load(configDir)
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if metricsFile != "" {
		cfg.MetricsFile = metricsFile
	}

	log, err := logger.New(cmd.ErrOrStderr(), cfg.LogLevel)
	if err != nil {
		log.Warn("invalid log level, using info", zap.Error(err))
	}
	if cfgErr != nil {
		log.Warn("config invalid, using defaults", zap.Error(cfgErr))
	}
	return cfg, log
}

func getenv(key string) string { return os.Getenv(key) }
