package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rankfuse/rankfuse/internal/async"
	"github.com/rankfuse/rankfuse/internal/server"
	"github.com/rankfuse/rankfuse/internal/telemetry"
)

type serveOptions struct {
	host string
	port int
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		Long: `Serve exposes the query pipeline on an HTTP API:

  POST /v1/search          hybrid query with fusion and optional reranking
  POST /v1/compare         per-method and fused variants side by side
  POST /v1/evaluate        IR metrics against graded judgments
  POST /v1/jobs/sparse     start a background sparse generation job
  GET  /v1/jobs/sparse/:id job status and progress
  GET  /metrics            Prometheus metrics
  GET  /healthz            liveness probe`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "Listen host (overrides config)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "Listen port (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
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

	telemetry.RegisterSearchMetrics()

	runner := async.NewRunner(async.RunnerConfig{
		DataDir:   cfg.Store.DataDir,
		BatchSize: cfg.Store.SparseBatchSize,
	}, eng.docs, eng.encoder, eng.sparseIx)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           server.New(eng.orch, eng.docs, runner).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", slog.String("addr", addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	runner.Stop()
	_ = runner.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
