package commands

import (
	"time"

	"github.com/dyluth/coordinator/internal/format"
	"github.com/dyluth/coordinator/internal/timespec"
	"github.com/dyluth/coordinator/pkg/coordination"
	"github.com/spf13/cobra"
)

var (
	decisionsOutputFormat string
	decisionsSince        string
	decisionsUntil        string
)

var decisionsCmd = &cobra.Command{
	Use:   "decisions",
	Short: "Show the decision log",
	Long: `Show every decision recorded in the session, oldest first.

Examples:
  coordinator decisions
  coordinator decisions --since 2h
  coordinator decisions --output=jsonl > decisions.jsonl`,
	Args: cobra.NoArgs,
	RunE: runDecisions,
}

func init() {
	decisionsCmd.Flags().StringVarP(&decisionsOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	decisionsCmd.Flags().StringVar(&decisionsSince, "since", "", "Only decisions logged after this time (duration like '1h' or RFC3339)")
	decisionsCmd.Flags().StringVar(&decisionsUntil, "until", "", "Only decisions logged before this time (duration like '1h' or RFC3339)")
	rootCmd.AddCommand(decisionsCmd)
}

func runDecisions(cmd *cobra.Command, args []string) error {
	outputFormat, err := parseOutput(decisionsOutputFormat)
	if err != nil {
		return err
	}
	window, err := parseWindow(decisionsSince, decisionsUntil)
	if err != nil {
		return err
	}

	c, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	decisions, err := c.ListDecisions(cmd.Context())
	if err != nil {
		return requestFailed("list decisions", err)
	}
	decisions = timespec.Filter(decisions, window, func(d coordination.Decision) time.Time { return d.CreatedAt })

	if outputFormat == format.OutputFormatJSONL {
		return format.JSONL(cmd.OutOrStdout(), decisions)
	}
	format.Decisions(cmd.OutOrStdout(), decisions)
	return nil
}
