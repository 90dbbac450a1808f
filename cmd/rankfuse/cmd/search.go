package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/rankfuse/rankfuse/internal/search"
)

type searchOptions struct {
	limit    int
	offset   int
	format   string
	rerank   bool
	adaptive bool
	weights  []float64
}

func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a hybrid query against the local indexes",
		Long: `Search runs the query through all three retrieval methods in
parallel, fuses the rankings with RRF, and prints the merged result
list. Explicit --weights are three values (lexical, dense, sparse)
and disable adaptive weighting.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum results to return")
	cmd.Flags().IntVar(&opts.offset, "offset", 0, "Results to skip (pagination)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format: text or json (default: text on a TTY, json otherwise)")
	cmd.Flags().BoolVar(&opts.rerank, "rerank", false, "Rerank the fused candidates with the cross-encoder")
	cmd.Flags().BoolVar(&opts.adaptive, "adaptive", true, "Adapt fusion weights to the query")
	cmd.Flags().Float64SliceVar(&opts.weights, "weights", nil, "Explicit fusion weights: lexical,dense,sparse")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts *searchOptions) error {
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

	searchOpts := search.SearchOptions{
		Limit:             opts.limit,
		Offset:            opts.offset,
		EnableReranking:   opts.rerank,
		AdaptiveWeighting: opts.adaptive,
	}
	if len(opts.weights) > 0 {
		if len(opts.weights) != 3 {
			return fmt.Errorf("--weights needs exactly 3 values, got %d", len(opts.weights))
		}
		searchOpts.AdaptiveWeighting = false
		searchOpts.Weights = &search.Weights{
			Lexical: opts.weights[0],
			Dense:   opts.weights[1],
			Sparse:  opts.weights[2],
		}
	}

	resp, err := eng.orch.Search(ctx, query, searchOpts)
	if err != nil {
		return err
	}

	if outputFormat(opts.format) == "json" {
		return printJSON(cmd.OutOrStdout(), resp)
	}
	printSearchText(cmd, query, resp)
	return nil
}

func printSearchText(cmd *cobra.Command, query string, resp *search.SearchResponse) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Query: %s\n", query)
	fmt.Fprintf(out, "Results: %d of %d (%.1fms", len(resp.Results), resp.Total, resp.LatencyMS)
	if resp.Reranked {
		fmt.Fprint(out, ", reranked")
	}
	fmt.Fprintln(out, ")")
	fmt.Fprintf(out, "Weights: lexical=%.2f dense=%.2f sparse=%.2f\n\n",
		resp.WeightsUsed.Lexical, resp.WeightsUsed.Dense, resp.WeightsUsed.Sparse)

	for i, hit := range resp.Results {
		methods := make([]string, len(hit.Methods))
		for j, m := range hit.Methods {
			methods[j] = string(m)
		}
		fmt.Fprintf(out, "%3d. %-40s %.6f  [%s]\n",
			i+1, hit.ID, hit.Score, strings.Join(methods, ","))
	}
}

// outputFormat resolves the format flag: explicit value wins, otherwise
// text on a terminal and json when piped.
func outputFormat(flag string) string {
	switch flag {
	case "text", "json":
		return flag
	}
	if isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()) {
		return "text"
	}
	return "json"
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
