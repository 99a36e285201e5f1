package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "termbridge %s", version)
			if commit != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " (%s)", commit)
			}
			if buildTime != "" {
				fmt.Fprintf(cmd.OutOrStdout(), " built %s", buildTime)
			}
			fmt.Fprintln(cmd.OutOrStdout())
		},
	}
}
