package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "serialarr",
		Short:         "Acquisition scheduler for serialized online works",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newAddCommand())
	rootCmd.AddCommand(newListCommand())
	rootCmd.AddCommand(newRetryCommand())
	rootCmd.AddCommand(newDeleteCommand())
	rootCmd.AddCommand(newPredictCommand())
	rootCmd.AddCommand(newSearchCommand())

	return rootCmd
}
