package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "incidentald",
		Short:         "Aggregate in-process measurements and report them on a schedule",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the YAML configuration file")

	rootCmd.AddCommand(
		NewRunCommand(),
		NewCheckCommand(),
	)

	return rootCmd
}
