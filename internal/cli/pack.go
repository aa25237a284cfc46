package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gzhole/toolwarden/internal/policy"
)

var packCmd = &cobra.Command{
	Use:   "packs",
	Short: "Manage policy packs",
	Long: `Manage toolwarden policy packs.

Policy packs are YAML fragments in <config dir>/policies.d/ that are merged
into the base policy at load time. Role tool lists and restriction lists are
unioned; a pack file whose name starts with "_" is disabled.

Examples:
  toolwarden policy packs list              # List installed packs
  toolwarden policy packs enable no-shell   # Enable a pack
  toolwarden policy packs disable no-shell  # Disable a pack
  toolwarden policy packs show no-shell     # Show pack contents`,
}

var packListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed policy packs",
	Args:  cobra.NoArgs,
	RunE:  packList,
}

var packEnableCmd = &cobra.Command{
	Use:   "enable <pack-name>",
	Short: "Enable a disabled policy pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packEnable,
}

var packDisableCmd = &cobra.Command{
	Use:   "disable <pack-name>",
	Short: "Disable a policy pack (prefix with underscore)",
	Args:  cobra.ExactArgs(1),
	RunE:  packDisable,
}

var packShowCmd = &cobra.Command{
	Use:   "show <pack-name>",
	Short: "Show the contents of a policy pack",
	Args:  cobra.ExactArgs(1),
	RunE:  packShow,
}

func init() {
	packCmd.AddCommand(packListCmd)
	packCmd.AddCommand(packEnableCmd)
	packCmd.AddCommand(packDisableCmd)
	packCmd.AddCommand(packShowCmd)
	policyCmd.AddCommand(packCmd)
}

func packsDir(cmd *cobra.Command) string {
	cfg, log := setup(cmd)
	_ = log.Sync()
	return cfg.PacksDir
}

func packList(cmd *cobra.Command, args []string) error {
	dir := packsDir(cmd)
	out := cmd.OutOrStdout()

	_, infos, err := policy.LoadPacks(dir, policy.DefaultPolicy())
	if err != nil {
		return fmt.Errorf("failed to load packs: %w", err)
	}
	if len(infos) == 0 {
		fmt.Fprintf(out, "No policy packs in %s.\n", dir)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
	fmt.Fprintln(tw, "PACK\tSTATE\tROLES\tVERSION\tDESCRIPTION")
	for _, info := range infos {
		state := "enabled"
		switch {
		case info.Err != nil:
			state = "error"
		case !info.Enabled:
			state = "disabled"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", info.Name, state, info.RoleCount, info.Version, info.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	for _, info := range infos {
		if info.Err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "pack %s: %v\n", info.Name, info.Err)
		}
	}
	return nil
}

func packEnable(cmd *cobra.Command, args []string) error {
	return togglePack(cmd, args[0], true)
}

func packDisable(cmd *cobra.Command, args []string) error {
	return togglePack(cmd, args[0], false)
}

// togglePack renames a pack between name.yaml (applied) and _name.yaml
// (ignored by the loader).
func togglePack(cmd *cobra.Command, name string, enable bool) error {
	dir := packsDir(cmd)
	enabledPath := filepath.Join(dir, name+".yaml")
	disabledPath := filepath.Join(dir, "_"+name+".yaml")

	from, to, verb := disabledPath, enabledPath, "enabled"
	if !enable {
		from, to, verb = enabledPath, disabledPath, "disabled"
	}

	if _, err := os.Stat(from); err != nil {
		if _, err := os.Stat(to); err == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "pack %s is already %s\n", name, verb)
			return nil
		}
		return fmt.Errorf("pack %q not found in %s", name, dir)
	}
	if err := os.Rename(from, to); err != nil {
		return fmt.Errorf("pack %s: %w", name, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "pack %s %s\n", name, verb)
	return nil
}

func packShow(cmd *cobra.Command, args []string) error {
	dir := packsDir(cmd)
	name := strings.TrimPrefix(args[0], "_")

	for _, path := range []string{filepath.Join(dir, name+".yaml"), filepath.Join(dir, "_"+name+".yaml")} {
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", path, data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			fmt.Fprintln(cmd.OutOrStdout())
		}
		return nil
	}
	return fmt.Errorf("pack %q not found in %s", name, dir)
}
