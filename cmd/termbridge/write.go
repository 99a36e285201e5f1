package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/antonkrylov/termbridge/internal/supervisor"
)

func newWriteCmd(root *rootOptions) *cobra.Command {
	var newline bool
	cmd := &cobra.Command{
		Use:   "write <alias> <text>...",
		Short: "Send input to a supervisor terminal",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args[1:], " ")
			if newline {
				text += "\n"
			}
			ch, err := root.dial(cmd.Context())
			if err != nil {
				return err
			}
			defer ch.Close()
			ctx, cancel := context.WithTimeout(cmd.Context(), root.settings.Timeout)
			defer cancel()
			n, err := supervisor.NewClient(ch).Write(ctx, args[0], []byte(text))
			if err != nil {
				return err
			}
			root.logger.Debug("wrote terminal input", "alias", args[0], "bytes", n)
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bytes to %s\n", n, args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&newline, "newline", "n", true, "append a newline to the text")
	return cmd
}
