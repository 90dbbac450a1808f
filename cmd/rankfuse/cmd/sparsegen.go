package cmd

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rankfuse/rankfuse/internal/async"
)

func newSparseGenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sparse-gen",
		Short: "Generate sparse term vectors for the indexed corpus",
		Long: `Sparse-gen encodes every document that does not yet have a sparse
vector for the configured model and commits the vectors batch by
batch. Progress survives interruption: a stopped or crashed run
resumes from the last committed batch.`,
		Args: cobra.NoArgs,
		RunE: runSparseGen,
	}
	return cmd
}

func runSparseGen(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cleanup, err := setupLogging(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	runner := async.NewRunner(async.RunnerConfig{
		DataDir:   cfg.Store.DataDir,
		BatchSize: cfg.Store.SparseBatchSize,
	}, eng.docs, eng.encoder, eng.sparseIx)

	jobID, err := runner.Start(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Started sparse generation job %s (model %s)\n", jobID, eng.encoder.ModelName())

	done := make(chan error, 1)
	go func() { done <- runner.Wait() }()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(out, "\nStopping, committing the current batch...")
			runner.Stop()
			err := <-done
			printProgress(out, runner.Progress().Snapshot())
			fmt.Fprintln(out)
			return err
		case <-ticker.C:
			printProgress(out, runner.Progress().Snapshot())
		case err := <-done:
			snap := runner.Progress().Snapshot()
			printProgress(out, snap)
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Done: %d encoded, %d failed in %ds\n",
				snap.Processed, snap.Failed, snap.ElapsedSeconds)
			return nil
		}
	}
}

func printProgress(out io.Writer, snap async.ProgressSnapshot) {
	fmt.Fprintf(out, "\r%s: %d/%d (%.1f%%)", snap.Status, snap.Processed, snap.Total, snap.ProgressPct)
}
