package commands

import (
	"log"

	"github.com/dyluth/coordinator/internal/bridge"
	"github.com/spf13/cobra"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the MCP tool server for one agent (stdio)",
	Long: `Run an MCP server on stdin/stdout that exposes the hub as coordinator_*
tools. Register it with your agent host, one process per agent.

The hub is dialled on the first tool call, so the hub may be started after
this process. Logs go to stderr; stdout carries only MCP messages.

Example host configuration:
  {"command": "coordinator", "args": ["mcp", "--url", "ws://localhost:3030"]}`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	url, err := resolveURL()
	if err != nil {
		return err
	}

	b := bridge.New(url)
	defer b.Close()

	log.Printf("[Bridge] Connecting to coordinator at %s", url)
	if err := b.ServeStdio(version); err != nil {
		log.Printf("[Bridge] Failed: %v", err)
		return err
	}
	return nil
}
