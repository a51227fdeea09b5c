package commands

import (
	"github.com/dyluth/coordinator/internal/format"
	"github.com/spf13/cobra"
)

var agentsOutputFormat string

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agents connected to the hub",
	Long: `List the agents currently joined to the session.

Examples:
  coordinator agents
  coordinator agents --output=jsonl | jq .name`,
	Args: cobra.NoArgs,
	RunE: runAgents,
}

func init() {
	agentsCmd.Flags().StringVarP(&agentsOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	rootCmd.AddCommand(agentsCmd)
}

func runAgents(cmd *cobra.Command, args []string) error {
	outputFormat, err := parseOutput(agentsOutputFormat)
	if err != nil {
		return err
	}

	c, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	agents, err := c.ListAgents(cmd.Context())
	if err != nil {
		return requestFailed("list agents", err)
	}

	if outputFormat == format.OutputFormatJSONL {
		return format.JSONL(cmd.OutOrStdout(), agents)
	}
	format.Agents(cmd.OutOrStdout(), agents)
	return nil
}
