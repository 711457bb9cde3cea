package cli

import (
	"github.com/spf13/cobra"

	"github.com/build-flow-labs/spof/internal/spof/setup"
)

var initOrg string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Interactive setup wizard that writes a configuration file",
	Long: `Asks for the organization to analyze, the environment variable that holds
the GitHub token, how many repositories to scan, which data sources to use and
how to collect SBOMs, then writes the answers to the --config path.

The token itself is never written to disk; the file references it as ${VAR}.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initOrg, "org", "", "Pre-fill the GitHub organization")
}

func runInit(cmd *cobra.Command, args []string) error {
	wiz := setup.NewWizard(cmd.InOrStdin(), cmd.OutOrStdout(), logger)
	_, err := wiz.Run(configPath, initOrg)
	return err
}
