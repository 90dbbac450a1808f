package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rankfuse/rankfuse/internal/search"
)

type compareOptions struct {
	limit  int
	format string
}

func newCompareCmd() *cobra.Command {
	opts := &compareOptions{}

	cmd := &cobra.Command{
		Use:   "compare <query>",
		Short: "Run one query through every retrieval variant side by side",
		Long: `Compare runs the same query through each method alone, the
two-way lexical+dense fusion, the full three-way fusion, and the
reranked three-way fusion, and prints the ranked IDs per variant.
Useful for judging what each method contributes on a given corpus.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompare(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Results per variant")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format: text or json")

	return cmd
}

func runCompare(cmd *cobra.Command, query string, opts *compareOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cleanup, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := cmd.Context()
	eng, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	resp, err := eng.orch.CompareMethods(ctx, query, opts.limit)
	if err != nil {
		return err
	}

	if outputFormat(opts.format) == "json" {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	printCompareText(cmd, resp)
	return nil
}

func printCompareText(cmd *cobra.Command, resp *search.CompareResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Query: %s\n\n", resp.Query)
	for _, v := range resp.Variants {
		fmt.Fprintf(out, "%s (%.1fms)\n", v.Variant, v.LatencyMS)
		if len(v.Results) == 0 {
			fmt.Fprintln(out, "  (no results)")
		}
		for i, id := range v.Results {
			fmt.Fprintf(out, "  %2d. %s\n", i+1, id)
		}
		fmt.Fprintln(out)
	}
}
