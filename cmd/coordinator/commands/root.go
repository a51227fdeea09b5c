package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  string
	date    string

	configPath string
	hubURL     string
)

// rootCmd prints help when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:   "coordinator",
	Short: "Coordinator - shared session hub for cooperating coding agents",
	Long: `Coordinator runs a session hub where coding agents working in different
repositories join, share context entries, ask and answer questions, and
record decisions.

Run "coordinator serve" to start the hub and "coordinator mcp" as the MCP
server of each agent. The remaining commands inspect a running hub.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	// Unknown flags are errors, e.g. "coordinator --port 1" instead of "coordinator serve --port 1"
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the CLI. Called once from main.
func Execute() error {
	// Errors are printed by the printer package; cobra stays quiet
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets what --version reports.
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to coordinator.yml (default: ./coordinator.yml if present)")
	rootCmd.PersistentFlags().StringVar(&hubURL, "url", "", "Hub WebSocket URL (default: from config, ws://localhost:3030)")
}
