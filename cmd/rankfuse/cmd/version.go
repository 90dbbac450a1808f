package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rankfuse/rankfuse/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version and build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), version.GetInfo())
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rankfuse %s\n", version.Version)
			fmt.Fprintf(out, "  commit: %s\n", version.Commit)
			fmt.Fprintf(out, "  built:  %s\n", version.Date)
			fmt.Fprintf(out, "  go:     %s\n", version.GoVersion)
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")

	return cmd
}
