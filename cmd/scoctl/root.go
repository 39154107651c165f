package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scoctlVersion = "0.1.0"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "scoctl",
		Short:         "Operate and exercise the scod audio socket daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newLoopbackCmd(),
		newStatusCmd(),
		newConfigCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Show scoctl version",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "scoctl version %s\n", scoctlVersion)
			},
		},
	)
	return root
}
