package async

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	ferrors "github.com/rankfuse/rankfuse/internal/errors"
	"github.com/rankfuse/rankfuse/internal/sparse"
	"github.com/rankfuse/rankfuse/internal/store"
	"github.com/rankfuse/rankfuse/internal/telemetry"
)

// DefaultBatchSize is the number of documents encoded per inference
// batch and per checkpoint commit.
const DefaultBatchSize = 64

// progressLogEvery controls how many batches pass between progress logs.
const progressLogEvery = 10

// RunnerConfig configures the sparse generation runner.
type RunnerConfig struct {
	DataDir   string
	BatchSize int
}

// Runner generates sparse vectors for documents that lack them,
// committing progress to the document store after every batch so an
// interrupted run resumes from the last committed batch. A file lock
// keeps concurrent runners from racing over the same data directory.
type Runner struct {
	config   RunnerConfig
	docs     store.DocumentStore
	encoder  sparse.Encoder
	index    store.SparseIndex // optional, updated alongside the store
	progress *Progress

	// stopCh and doneCh are created per job in Start.
	stopCh chan struct{}
	doneCh chan struct{}

	mu       sync.Mutex
	running  bool
	stopping bool
	err      error
}

// NewRunner creates a sparse generation runner. The sparse index may be
// nil when only the persistent store needs the vectors.
func NewRunner(cfg RunnerConfig, docs store.DocumentStore, encoder sparse.Encoder, index store.SparseIndex) *Runner {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	return &Runner{
		config:  cfg,
		docs:    docs,
		encoder: encoder,
		index:   index,
	}
}

// Progress returns the live progress tracker, nil before Start.
func (r *Runner) Progress() *Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// IsRunning reports whether a job is currently executing.
func (r *Runner) IsRunning() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

// Start creates the job record and begins processing in a background
// goroutine. Returns the job ID immediately; use Wait to block.
func (r *Runner) Start(ctx context.Context) (string, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return "", fmt.Errorf("sparse generation already running")
	}

	if !r.encoder.Available(ctx) {
		r.mu.Unlock()
		return "", ferrors.ModelUnavailableError(r.encoder.ModelName(), nil)
	}

	_, total, err := r.docs.SparseVectorStats(ctx, r.encoder.ModelName())
	if err != nil {
		r.mu.Unlock()
		return "", err
	}

	job := &store.SparseJob{
		ID:        uuid.NewString(),
		Status:    store.SparseJobPending,
		Model:     r.encoder.ModelName(),
		Total:     total,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	if err := r.docs.SaveSparseJob(ctx, job); err != nil {
		r.mu.Unlock()
		return "", err
	}

	r.running = true
	r.stopping = false
	r.progress = NewProgress(job.ID, total)
	r.stopCh = make(chan struct{})
	r.doneCh = make(chan struct{})
	r.mu.Unlock()

	go r.run(ctx, job)

	return job.ID, nil
}

// run drains the backlog of documents without a vector for this model.
// Resumability falls out of the backlog query: committed batches no
// longer match it, so a restarted job picks up exactly where the
// previous one stopped.
func (r *Runner) run(ctx context.Context, job *store.SparseJob) {
	r.mu.Lock()
	stopCh, doneCh := r.stopCh, r.doneCh
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
		close(doneCh)
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := os.MkdirAll(r.config.DataDir, 0o755); err != nil {
		r.fail(ctx, job, err)
		return
	}

	lock := flock.New(filepath.Join(r.config.DataDir, "sparse.lock"))
	locked, err := lock.TryLock()
	if err == nil && !locked {
		err = fmt.Errorf("another sparse generation job holds the lock")
	}
	if err != nil {
		r.fail(ctx, job, err)
		return
	}
	defer func() { _ = lock.Unlock() }()

	job.Status = store.SparseJobRunning
	r.checkpoint(ctx, job)

	batches := 0
	for {
		if ctx.Err() != nil {
			r.cancelJob(job)
			return
		}

		docs, err := r.docs.DocumentsWithoutSparse(ctx, job.Model, r.config.BatchSize)
		if err != nil {
			r.fail(ctx, job, err)
			return
		}
		if len(docs) == 0 {
			break
		}

		if err := r.processBatch(ctx, job, docs); err != nil {
			if ctx.Err() != nil {
				r.cancelJob(job)
				return
			}
			r.fail(ctx, job, err)
			return
		}

		batches++
		if batches%progressLogEvery == 0 {
			slog.Info("sparse generation progress",
				slog.String("job_id", job.ID),
				slog.Int("completed", job.Processed),
				slog.Int("total", job.Total))
		}
	}

	job.Status = store.SparseJobComplete
	r.checkpoint(ctx, job)
	r.progress.SetDone()
	slog.Info("sparse generation complete",
		slog.String("job_id", job.ID),
		slog.Int("completed", job.Processed),
		slog.Int("failed", job.Failed))
}

// processBatch encodes one batch and commits vectors plus the job
// checkpoint. Documents whose text encodes to an empty vector are
// counted as failed and committed as empty sentinel rows, so they
// leave the backlog instead of being refetched on every iteration.
func (r *Runner) processBatch(ctx context.Context, job *store.SparseJob, docs []*store.Document) error {
	texts := make([]string, len(docs))
	ids := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.SearchText()
		ids[i] = d.ID
	}

	vectors, err := r.encoder.EncodeBatch(ctx, texts)
	if err != nil {
		telemetry.SparseJobBatchesTotal.WithLabelValues("failed").Inc()
		return err
	}

	indexIDs := make([]string, 0, len(docs))
	indexVecs := make([]sparse.Vector, 0, len(docs))
	for i, vec := range vectors {
		if len(vec) == 0 {
			// Non-nil so the gob blob round-trips.
			vectors[i] = sparse.Vector{}
			job.Failed++
			continue
		}
		indexIDs = append(indexIDs, docs[i].ID)
		indexVecs = append(indexVecs, vec)
	}

	if err := r.docs.SaveSparseVectors(ctx, ids, vectors, job.Model); err != nil {
		telemetry.SparseJobBatchesTotal.WithLabelValues("failed").Inc()
		return err
	}
	if r.index != nil && len(indexIDs) > 0 {
		if err := r.index.Add(ctx, indexIDs, indexVecs); err != nil {
			telemetry.SparseJobBatchesTotal.WithLabelValues("failed").Inc()
			return err
		}
	}

	job.Processed += len(docs)
	r.checkpoint(ctx, job)
	r.progress.Update(job.Processed, job.Failed)
	telemetry.SparseJobBatchesTotal.WithLabelValues("ok").Inc()

	return nil
}

// checkpoint persists the job record, surviving context cancellation so
// terminal states still land in the store.
func (r *Runner) checkpoint(ctx context.Context, job *store.SparseJob) {
	job.UpdatedAt = time.Now()
	saveCtx := ctx
	if ctx.Err() != nil {
		saveCtx = context.Background()
	}
	if err := r.docs.SaveSparseJob(saveCtx, job); err != nil {
		slog.Warn("sparse job checkpoint failed",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()))
	}
}

func (r *Runner) cancelJob(job *store.SparseJob) {
	job.Status = store.SparseJobCancelled
	r.checkpoint(context.Background(), job)
	r.progress.SetCancelled()
	slog.Info("sparse generation cancelled",
		slog.String("job_id", job.ID),
		slog.Int("completed", job.Processed),
		slog.Int("total", job.Total))
}

func (r *Runner) fail(ctx context.Context, job *store.SparseJob, err error) {
	job.Status = store.SparseJobFailed
	job.Error = err.Error()
	r.checkpoint(ctx, job)
	r.progress.SetError(err.Error())
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
	slog.Error("sparse generation failed",
		slog.String("job_id", job.ID),
		slog.String("error", err.Error()))
}

// Stop signals the running job to stop and waits for it to finish.
// A no-op when no job is running.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	stopCh, doneCh := r.stopCh, r.doneCh
	alreadyStopping := r.stopping
	r.stopping = true
	r.mu.Unlock()

	if !alreadyStopping {
		close(stopCh)
	}
	<-doneCh
}

// Wait blocks until the current job completes and returns any error.
// Returns nil immediately when no job was ever started.
func (r *Runner) Wait() error {
	r.mu.Lock()
	doneCh := r.doneCh
	r.mu.Unlock()
	if doneCh == nil {
		return nil
	}
	<-doneCh

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
