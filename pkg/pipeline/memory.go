package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/errors"
	"callcoach-server/pkg/metrics"
)

const defaultQueueSize = 100

// MemoryQueue is a process-local queue backed by a buffered channel. The
// jobs map holds snapshots, so callers may keep mutating the job they hold
// without racing status reads.
type MemoryQueue struct {
	logger *logrus.Logger
	jobs   map[string]*Job
	queue  chan *Job
	mu     sync.RWMutex
}

// NewMemoryQueue creates an in-memory queue buffering up to size jobs.
func NewMemoryQueue(logger *logrus.Logger, size int) *MemoryQueue {
	if size <= 0 {
		size = defaultQueueSize
	}

	logger.WithField("queue_size", size).Info("In-memory job queue initialized")

	return &MemoryQueue{
		logger: logger,
		jobs:   make(map[string]*Job),
		queue:  make(chan *Job, size),
	}
}

// Enqueue adds a job to the queue. A full queue fails the job immediately
// instead of blocking the caller.
func (q *MemoryQueue) Enqueue(ctx context.Context, job *Job) error {
	job.Status = StatusQueued

	select {
	case q.queue <- cloneJob(job):
		q.mu.Lock()
		q.jobs[job.ID] = cloneJob(job)
		q.mu.Unlock()

		metrics.SetQueueDepth(len(q.queue))
		q.logger.WithFields(logrus.Fields{
			"job_id":  job.ID,
			"call_id": job.CallID,
			"kind":    job.Kind,
		}).Debug("Job enqueued")
		return nil
	default:
		job.Status = StatusFailed
		job.Error = "queue is full"

		q.mu.Lock()
		q.jobs[job.ID] = cloneJob(job)
		q.mu.Unlock()

		return errors.Wrap(errors.ErrResourceExhausted,
			fmt.Sprintf("job queue is full, cannot enqueue job %s", job.ID))
	}
}

// Dequeue blocks until a job is available or the context is done.
func (q *MemoryQueue) Dequeue(ctx context.Context) (*Job, error) {
	select {
	case job := <-q.queue:
		now := time.Now()
		job.StartedAt = &now
		job.Status = StatusProcessing

		q.mu.Lock()
		q.jobs[job.ID] = cloneJob(job)
		q.mu.Unlock()

		metrics.SetQueueDepth(len(q.queue))
		return job, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// UpdateJob replaces the stored state of a known job.
func (q *MemoryQueue) UpdateJob(ctx context.Context, job *Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.jobs[job.ID]; !exists {
		return errors.Wrap(errors.ErrNotFound, fmt.Sprintf("job %s not found", job.ID))
	}

	q.jobs[job.ID] = cloneJob(job)
	return nil
}

// GetJob returns a snapshot of the job with the given ID.
func (q *MemoryQueue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	job, exists := q.jobs[jobID]
	if !exists {
		return nil, errors.Wrap(errors.ErrNotFound, fmt.Sprintf("job %s not found", jobID))
	}

	return cloneJob(job), nil
}

// Size returns the number of jobs waiting to be dequeued.
func (q *MemoryQueue) Size(ctx context.Context) (int, error) {
	return len(q.queue), nil
}

// Stats recomputes activity counters from the tracked jobs.
func (q *MemoryQueue) Stats(ctx context.Context) (*Stats, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	stats := &Stats{
		TotalJobs:  int64(len(q.jobs)),
		QueuedJobs: int64(len(q.queue)),
	}
	for _, job := range q.jobs {
		switch job.Status {
		case StatusProcessing:
			stats.ProcessingJobs++
		case StatusCompleted:
			stats.CompletedJobs++
		case StatusFailed:
			stats.FailedJobs++
		}
	}

	if done := stats.CompletedJobs + stats.FailedJobs; done > 0 {
		stats.ErrorRate = float64(stats.FailedJobs) / float64(done)
	}

	return stats, nil
}

// Close is a no-op; workers stop through context cancellation.
func (q *MemoryQueue) Close() error {
	return nil
}
