// Package async provides background processing for sparse vector
// generation jobs.
package async

import (
	"sync"
	"time"
)

// ProgressSnapshot is an immutable snapshot of a running job.
type ProgressSnapshot struct {
	JobID          string  `json:"job_id"`
	Status         string  `json:"status"`
	Total          int     `json:"total"`
	Processed      int     `json:"processed"`
	Failed         int     `json:"failed"`
	ProgressPct    float64 `json:"progress_pct"`
	ElapsedSeconds int     `json:"elapsed_seconds"`
	ErrorMessage   string  `json:"error_message,omitempty"`
}

// Progress provides thread-safe tracking of sparse generation progress.
// The persistent checkpoint lives in the document store; this tracker
// serves live snapshots without a database round trip.
type Progress struct {
	mu sync.RWMutex

	jobID        string
	status       string
	total        int
	processed    int
	failed       int
	startTime    time.Time
	errorMessage string
}

// NewProgress creates a tracker for the given job.
func NewProgress(jobID string, total int) *Progress {
	return &Progress{
		jobID:     jobID,
		status:    "running",
		total:     total,
		startTime: time.Now(),
	}
}

// Update advances the processed and failed counters.
func (p *Progress) Update(processed, failed int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.processed = processed
	p.failed = failed
}

// SetDone marks the job complete.
func (p *Progress) SetDone() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = "complete"
}

// SetCancelled marks the job cancelled.
func (p *Progress) SetCancelled() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = "cancelled"
}

// SetError marks the job failed with a message.
func (p *Progress) SetError(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.status = "failed"
	p.errorMessage = msg
}

// Snapshot returns a point-in-time copy of the progress.
func (p *Progress) Snapshot() ProgressSnapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()

	pct := 0.0
	if p.total > 0 {
		pct = float64(p.processed) / float64(p.total) * 100.0
	}

	return ProgressSnapshot{
		JobID:          p.jobID,
		Status:         p.status,
		Total:          p.total,
		Processed:      p.processed,
		Failed:         p.failed,
		ProgressPct:    pct,
		ElapsedSeconds: int(time.Since(p.startTime).Seconds()),
		ErrorMessage:   p.errorMessage,
	}
}
