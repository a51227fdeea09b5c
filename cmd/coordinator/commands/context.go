package commands

import (
	"fmt"

	"github.com/dyluth/coordinator/internal/filter"
	"github.com/dyluth/coordinator/internal/format"
	"github.com/dyluth/coordinator/internal/printer"
	"github.com/spf13/cobra"
)

var (
	contextOutputFormat string
	contextTags         []string
	contextCreatedBy    string
	contextKey          string
	contextSince        string
	contextUntil        string
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Inspect shared context entries",
	Long: `Inspect the context entries agents have shared.

Examples:
  # All entries tagged both api and schema
  coordinator context list --tag api --tag schema

  # Entries updated in the last 30 minutes whose key starts with api-
  coordinator context list --key 'api-*' --since 30m

  # One entry as pretty JSON
  coordinator context get api-schema`,
}

var contextListCmd = &cobra.Command{
	Use:   "list",
	Short: "List context entries",
	Args:  cobra.NoArgs,
	RunE:  runContextList,
}

var contextGetCmd = &cobra.Command{
	Use:   "get KEY",
	Short: "Show one context entry as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runContextGet,
}

func init() {
	contextListCmd.Flags().StringVarP(&contextOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	contextListCmd.Flags().StringSliceVarP(&contextTags, "tag", "t", nil, "Only entries carrying this tag (repeatable, all must match)")
	contextListCmd.Flags().StringVar(&contextCreatedBy, "created-by", "", "Only entries created by this agent (full ID or prefix of a connected agent)")
	contextListCmd.Flags().StringVar(&contextKey, "key", "", "Only entries whose key matches this glob")
	contextListCmd.Flags().StringVar(&contextSince, "since", "", "Only entries updated after this time (duration like '1h' or RFC3339)")
	contextListCmd.Flags().StringVar(&contextUntil, "until", "", "Only entries updated before this time (duration like '1h' or RFC3339)")

	contextCmd.AddCommand(contextListCmd, contextGetCmd)
	rootCmd.AddCommand(contextCmd)
}

func runContextList(cmd *cobra.Command, args []string) error {
	outputFormat, err := parseOutput(contextOutputFormat)
	if err != nil {
		return err
	}
	window, err := parseWindow(contextSince, contextUntil)
	if err != nil {
		return err
	}
	criteria := &filter.Criteria{KeyGlob: contextKey, Window: window}
	if err := criteria.Validate(); err != nil {
		return printer.Error(
			"invalid key pattern",
			fmt.Sprintf("%q: %v", contextKey, err),
			[]string{"Use * and ? wildcards, e.g. --key 'api-*'"},
		)
	}

	c, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	createdBy, err := resolveAgent(cmd.Context(), c, contextCreatedBy)
	if err != nil {
		return err
	}

	entries, err := c.ListContext(cmd.Context(), contextTags, createdBy)
	if err != nil {
		return requestFailed("list context", err)
	}
	entries = filter.Apply(entries, criteria)

	if outputFormat == format.OutputFormatJSONL {
		return format.JSONL(cmd.OutOrStdout(), entries)
	}
	format.Context(cmd.OutOrStdout(), entries)
	return nil
}

func runContextGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	c, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	entry, err := c.GetContext(cmd.Context(), key)
	if err != nil {
		return requestFailed("get context", err)
	}
	if entry == nil {
		return printer.Error(
			fmt.Sprintf("context entry '%s' not found", key),
			"No agent has shared an entry under this key.",
			[]string{"List available keys:\n  coordinator context list"},
		)
	}

	return format.SingleJSON(cmd.OutOrStdout(), entry)
}
