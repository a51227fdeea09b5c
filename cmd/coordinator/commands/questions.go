package commands

import (
	"github.com/dyluth/coordinator/internal/format"
	"github.com/spf13/cobra"
)

var (
	questionsOutputFormat string
	questionsAgent        string
)

var questionsCmd = &cobra.Command{
	Use:   "questions",
	Short: "List unanswered questions",
	Long: `List questions that are still waiting for an answer.

With --agent, only questions addressed to that agent or to everyone are shown.

Examples:
  coordinator questions
  coordinator questions --agent 7c9e6679`,
	Args: cobra.NoArgs,
	RunE: runQuestions,
}

func init() {
	questionsCmd.Flags().StringVarP(&questionsOutputFormat, "output", "o", "default", "Output format: default or jsonl")
	questionsCmd.Flags().StringVar(&questionsAgent, "agent", "", "Only questions visible to this agent (full ID or prefix of a connected agent)")
	rootCmd.AddCommand(questionsCmd)
}

func runQuestions(cmd *cobra.Command, args []string) error {
	outputFormat, err := parseOutput(questionsOutputFormat)
	if err != nil {
		return err
	}

	c, err := connect(cmd.Context())
	if err != nil {
		return err
	}
	defer c.Close()

	agentID, err := resolveAgent(cmd.Context(), c, questionsAgent)
	if err != nil {
		return err
	}

	questions, err := c.ListPendingQuestions(cmd.Context(), agentID)
	if err != nil {
		return requestFailed("list questions", err)
	}

	if outputFormat == format.OutputFormatJSONL {
		return format.JSONL(cmd.OutOrStdout(), questions)
	}
	format.Questions(cmd.OutOrStdout(), questions)
	return nil
}
