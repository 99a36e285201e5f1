package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/antonkrylov/termbridge/internal/supervisor"
)

func newListCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List terminals known to the supervisor",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ch, err := root.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer ch.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), root.settings.Timeout)
			defer cancel()
			terms, err := supervisor.NewClient(ch).List(ctx)
			if err != nil {
				return err
			}
			return printTerminals(cmd.OutOrStdout(), terms)
		},
	}
}

func printTerminals(out io.Writer, terms []*supervisor.Terminal) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ALIAS\tTITLE\tPID\tWORKDIR\tCOMMAND")
	for _, t := range terms {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", t.Alias, t.Title, t.Pid, t.Workdir(), strings.Join(t.Command, " "))
	}
	return w.Flush()
}
