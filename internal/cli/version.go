package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/gzhole/toolwarden/internal/config"
)

// Set at build time with -ldflags "-X".
var (
	Version   = "0.1.0-dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the toolwarden build",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeJSON(cmd.OutOrStdout(), map[string]string{
			"version":    Version,
			"commit":     GitCommit,
			"built":      BuildDate,
			"go":         runtime.Version(),
			"platform":   runtime.GOOS + "/" + runtime.GOARCH,
			"config_dir": configDirDisplay(),
		})
	},
}

func configDirDisplay() string {
	if configDir != "" {
		return configDir
	}
	return fmt.Sprintf("~/%s", config.DefaultConfigDir)
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
