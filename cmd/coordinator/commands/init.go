package commands

import (
	"fmt"
	"os"

	"github.com/dyluth/coordinator/internal/config"
	"github.com/dyluth/coordinator/internal/git"
	"github.com/dyluth/coordinator/internal/printer"
	"github.com/dyluth/coordinator/internal/scaffold"
	"github.com/spf13/cobra"
)

var (
	initForce bool
	initMCP   bool
	initHost  string
	initPort  int
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter coordinator.yml",
	Long: `Write a starter coordinator.yml at the root of the current git repository,
or in the current directory outside a repository.

With --mcp, also write .mcp.json registering 'coordinator mcp' so agent
hosts that read it start the bridge automatically.

Examples:
  coordinator init
  coordinator init --mcp --port 4040
  coordinator init --force`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite existing files")
	initCmd.Flags().BoolVar(&initMCP, "mcp", false, "Also write .mcp.json")
	initCmd.Flags().StringVar(&initHost, "host", config.DefaultHost, "Hub host to write")
	initCmd.Flags().IntVarP(&initPort, "port", "p", config.DefaultPort, "Hub port to write")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	dir := git.WorkspaceDir(cwd)
	if dir != cwd {
		printer.Info("Using repository root %s\n", dir)
	}

	if initForce {
		printer.Warning("Existing files in %s will be overwritten\n", dir)
	}

	paths, err := scaffold.Initialize(scaffold.Options{
		Dir:   dir,
		Host:  initHost,
		Port:  initPort,
		MCP:   initMCP,
		Force: initForce,
	})
	if err != nil {
		return printer.ErrorWithContext(
			"initialization failed",
			err.Error(),
			map[string]string{"Directory": dir},
			[]string{"Re-run with --force to overwrite existing files"},
		)
	}

	scaffold.PrintSuccess(cmd.OutOrStdout(), paths)
	return nil
}
