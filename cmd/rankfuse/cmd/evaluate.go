package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rankfuse/rankfuse/internal/ireval"
)

type evaluateOptions struct {
	judgmentsPath string
	format        string
}

func newEvaluateCmd() *cobra.Command {
	opts := &evaluateOptions{}

	cmd := &cobra.Command{
		Use:   "evaluate <query>",
		Short: "Score one query against graded relevance judgments",
		Long: `Evaluate runs the query through the fusion pipeline and computes
NDCG@K, Recall@K, Precision@K, and MRR against a judgments file.

The judgments file is a JSON object mapping document ID to a
relevance grade from 0 (irrelevant) to 3 (perfect):

  {"doc-1": 3, "doc-2": 1, "doc-9": 0}`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvaluate(cmd, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.judgmentsPath, "judgments", "j", "", "Path to the JSON judgments file (required)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "Output format: text or json")
	_ = cmd.MarkFlagRequired("judgments")

	return cmd
}

func runEvaluate(cmd *cobra.Command, query string, opts *evaluateOptions) error {
	judgments, err := loadJudgments(opts.judgmentsPath)
	if err != nil {
		return err
	}

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

	metrics, err := eng.orch.Evaluate(ctx, query, judgments)
	if err != nil {
		return err
	}

	if outputFormat(opts.format) == "json" {
		return printJSON(cmd.OutOrStdout(), metrics)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Query: %s\n", query)
	fmt.Fprintf(out, "NDCG@%d:      %.4f\n", metrics.K, metrics.NDCG)
	fmt.Fprintf(out, "Recall@%d:    %.4f\n", metrics.K, metrics.Recall)
	fmt.Fprintf(out, "Precision@%d: %.4f\n", metrics.K, metrics.Precision)
	fmt.Fprintf(out, "MRR:          %.4f\n", metrics.MRR)
	return nil
}

func loadJudgments(path string) (ireval.Judgments, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read judgments %s: %w", path, err)
	}
	var grades map[string]int
	if err := json.Unmarshal(data, &grades); err != nil {
		return nil, fmt.Errorf("parse judgments %s: %w", path, err)
	}
	if len(grades) == 0 {
		return nil, fmt.Errorf("judgments file %s is empty", path)
	}
	judgments := make(ireval.Judgments, len(grades))
	for id, grade := range grades {
		if grade < 0 || grade > 3 {
			return nil, fmt.Errorf("judgment for %q out of range: %d (grades are 0 to 3)", id, grade)
		}
		judgments[id] = float64(grade)
	}
	return judgments, nil
}
