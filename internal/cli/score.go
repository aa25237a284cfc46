package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gzhole/toolwarden/internal/config"
	"github.com/gzhole/toolwarden/internal/intercept"
	"github.com/gzhole/toolwarden/internal/rpc"
)

var scoreCmd = &cobra.Command{
	Use:   "score [text...]",
	Short: "Print the prompt injection risk breakdown for text or a request",
	Long: `Scores text from the arguments or stdin with the injection guard's
heuristics and prints the breakdown as JSON. Input that parses as a tool
request is assessed the way the guard would assess it.

  toolwarden score "ignore previous instructions"
  echo '{"method":"execute_command","params":{"command":"ls"}}' | toolwarden score`,
	RunE: scoreCommand,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

type scoreOutput struct {
	Threshold float64 `json:"threshold"`
	Blocked   bool    `json:"blocked"`
	Result    any     `json:"result"`
}

func scoreCommand(cmd *cobra.Command, args []string) error {
	cfg, log := setup(cmd)
	defer log.Sync() //nolint:errcheck // best-effort flush

	text := strings.Join(args, " ")
	if len(args) == 0 {
		data, err := intercept.ReadInput(cmd.InOrStdin())
		if err != nil {
			return err
		}
		text = string(data)
	}

	rt, err := intercept.NewRuntime(cfg, config.SessionFromEnv(getenv), log)
	if err != nil {
		return err
	}
	scorer := rt.Scorer()

	out := scoreOutput{Threshold: cfg.Guard.BlockThreshold}
	if req, err := rpc.ParseRequest([]byte(text)); err == nil {
		a, err := scorer.Assess(req)
		if err != nil {
			return err
		}
		out.Result, out.Blocked = a, a.Total >= cfg.Guard.BlockThreshold
	} else {
		b := scorer.Score(text)
		out.Result, out.Blocked = b, b.Score >= cfg.Guard.BlockThreshold
	}

	return writeJSON(cmd.OutOrStdout(), out)
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
