package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/gzhole/toolwarden/internal/policy"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect and validate the access policy",
	Long: `Inspect and validate the tool access policy.

Examples:
  toolwarden policy validate                    # Validate tool-permissions.yaml
  toolwarden policy validate ./candidate.yaml   # Validate another file
  toolwarden policy show                        # Print the effective policy
  toolwarden policy packs list                  # List policy packs`,
}

var policyValidateCmd = &cobra.Command{
	Use:   "validate [policy-file]",
	Short: "Validate a policy file against the policy schema",
	Args:  cobra.MaximumNArgs(1),
	RunE:  policyValidate,
}

var policyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective policy after packs are merged",
	Args:  cobra.NoArgs,
	RunE:  policyShow,
}

func init() {
	policyCmd.AddCommand(policyValidateCmd)
	policyCmd.AddCommand(policyShowCmd)
	rootCmd.AddCommand(policyCmd)
}

func policyValidate(cmd *cobra.Command, args []string) error {
	cfg, log := setup(cmd)
	defer log.Sync() //nolint:errcheck // best-effort flush

	path := cfg.PolicyPath
	if len(args) == 1 {
		path = args[0]
	}

	p, err := policy.Load(path)
	if err != nil {
		return err
	}

	roles := make([]string, 0, len(p.Roles))
	for name := range p.Roles {
		roles = append(roles, name)
	}
	sort.Strings(roles)
	fmt.Fprintf(cmd.OutOrStdout(), "\xe2\x9c\x85 %s is valid: %d role(s) %v\n", path, len(roles), roles)
	return nil
}

func policyShow(cmd *cobra.Command, args []string) error {
	cfg, log := setup(cmd)
	defer log.Sync() //nolint:errcheck // best-effort flush

	base, loadErr := policy.LoadOrDefault(cfg.PolicyPath)
	if loadErr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v; showing the default policy\n", loadErr)
	}
	merged, infos, err := policy.LoadPacks(cfg.PacksDir, base)
	if err != nil {
		return fmt.Errorf("failed to load packs: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# policy: %s\n", cfg.PolicyPath)
	for _, info := range infos {
		state := "applied"
		switch {
		case info.Err != nil:
			state = "error: " + info.Err.Error()
		case !info.Enabled:
			state = "disabled"
		}
		fmt.Fprintf(out, "# pack %s: %s\n", info.Name, state)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(merged); err != nil {
		return err
	}
	return enc.Close()
}
