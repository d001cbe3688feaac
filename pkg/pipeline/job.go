package pipeline

import (
	"time"

	"github.com/google/uuid"
)

// JobKind identifies the unit of work a job carries.
type JobKind string

const (
	// KindTranscribe runs the full analysis pipeline over an uploaded recording.
	KindTranscribe JobKind = "transcribe"

	// KindReanalyzeMoments re-runs moment detection over stored utterances.
	KindReanalyzeMoments JobKind = "reanalyze_moments"

	// KindRegenerateSummary rebuilds the executive summary from stored data.
	KindRegenerateSummary JobKind = "regenerate_summary"

	// KindRescoreSentiment re-scores stored utterances and the call rollup.
	KindRescoreSentiment JobKind = "rescore_sentiment"
)

// JobStatus represents the lifecycle state of a job.
type JobStatus string

const (
	StatusPending    JobStatus = "pending"
	StatusQueued     JobStatus = "queued"
	StatusProcessing JobStatus = "processing"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusRetrying   JobStatus = "retrying"
)

// Job is one queued analysis task for a single call.
type Job struct {
	ID          string     `json:"id"`
	CallID      string     `json:"call_id"`
	Kind        JobKind    `json:"kind"`
	AudioPath   string     `json:"audio_path,omitempty"`
	Provider    string     `json:"provider,omitempty"`
	Status      JobStatus  `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	Error       string     `json:"error,omitempty"`
}

// NewJob creates a pending job for the given call.
func NewJob(kind JobKind, callID string) *Job {
	return &Job{
		ID:         uuid.New().String(),
		CallID:     callID,
		Kind:       kind,
		Status:     StatusPending,
		CreatedAt:  time.Now(),
		MaxRetries: defaultMaxRetries(kind),
	}
}

// Transcription talks to external engines and is worth retrying. The other
// kinds recompute from stored data, where failures are deterministic.
func defaultMaxRetries(kind JobKind) int {
	if kind == KindTranscribe {
		return 3
	}
	return 0
}

func cloneJob(job *Job) *Job {
	clone := *job
	return &clone
}
