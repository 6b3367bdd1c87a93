package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dhamidi/dexpack/dx"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dx version and supported API levels",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "dexpack (dx %s)\n", dx.ToolVersion)
			fmt.Fprintf(out, "oldest min-sdk: %d\n", dx.SDK13)
			fmt.Fprintf(out, "default min-sdk: %d\n", dx.SDK26)
		},
	}
}
