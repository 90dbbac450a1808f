// Package cmd implements the rankfuse command-line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rankfuse/rankfuse/pkg/version"
)

// rootOptions holds flags shared by every subcommand.
type rootOptions struct {
	configPath string
	dataDir    string
	debug      bool
}

var root rootOptions

// NewRootCmd creates the root command with all subcommands attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rankfuse",
		Short: "Three-way hybrid search with rank fusion",
		Long: `rankfuse combines lexical (BM25), dense (vector), and sparse
(learned term) retrieval into a single ranked result list using
Reciprocal Rank Fusion, with optional cross-encoder reranking.

Index a corpus with "rankfuse index", then query it with
"rankfuse search" or serve it over HTTP with "rankfuse serve".`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate(fmt.Sprintf("rankfuse %s (commit %s, built %s)\n",
		version.Version, version.Commit, version.Date))

	cmd.PersistentFlags().StringVar(&root.configPath, "config", "", "Path to rankfuse.yaml (default: search standard locations)")
	cmd.PersistentFlags().StringVar(&root.dataDir, "data-dir", "", "Override the data directory")
	cmd.PersistentFlags().BoolVar(&root.debug, "debug", false, "Enable debug logging")

	cmd.AddCommand(
		newIndexCmd(),
		newSearchCmd(),
		newCompareCmd(),
		newEvaluateCmd(),
		newSparseGenCmd(),
		newServeCmd(),
		newVersionCmd(),
	)

	return cmd
}

// Execute runs the root command.
func Execute() error {
	cmd := NewRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
