package pipeline

import "context"

// Queue hands jobs from the API layer to the processor workers. A job stays
// visible in the backing store after being dequeued, so its status can be
// inspected while a worker owns it.
type Queue interface {
	// Enqueue adds a job to the queue
	Enqueue(ctx context.Context, job *Job) error

	// Dequeue blocks until a job is available or ctx is done
	Dequeue(ctx context.Context) (*Job, error)

	// UpdateJob persists a job's current state
	UpdateJob(ctx context.Context, job *Job) error

	// GetJob retrieves a job by ID
	GetJob(ctx context.Context, jobID string) (*Job, error)

	// Size returns the number of jobs waiting to be dequeued
	Size(ctx context.Context) (int, error)

	// Stats returns queue activity counters
	Stats(ctx context.Context) (*Stats, error)

	// Close releases queue resources
	Close() error
}

// Stats describes queue activity.
type Stats struct {
	TotalJobs      int64   `json:"total_jobs"`
	QueuedJobs     int64   `json:"queued_jobs"`
	ProcessingJobs int64   `json:"processing_jobs"`
	CompletedJobs  int64   `json:"completed_jobs"`
	FailedJobs     int64   `json:"failed_jobs"`
	ErrorRate      float64 `json:"error_rate"`
}
