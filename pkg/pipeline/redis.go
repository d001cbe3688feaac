package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"callcoach-server/pkg/errors"
	"callcoach-server/pkg/metrics"
)

const (
	redisQueueKey  = "callcoach:jobs:queue"
	redisJobPrefix = "callcoach:jobs:"
	redisStatsKey  = "callcoach:jobs:stats"

	// Job bodies expire a day after their last update.
	redisJobTTL = 24 * time.Hour

	redisDialTimeout    = 5 * time.Second
	defaultPollInterval = 2 * time.Second
	redisBackoffOnError = 100 * time.Millisecond
)

// RedisQueue is a job queue shared across processes. Job order lives in a
// Redis list, job state in per-job keys, and lifetime counters in a hash.
type RedisQueue struct {
	logger       *logrus.Logger
	client       redis.UniversalClient
	pollInterval time.Duration
}

// NewRedisQueue connects to Redis and verifies the connection before
// returning the queue.
func NewRedisQueue(logger *logrus.Logger, redisURL string, pollInterval time.Duration) (*RedisQueue, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), redisDialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	logger.WithFields(logrus.Fields{
		"addr":          opt.Addr,
		"poll_interval": pollInterval,
	}).Info("Connected to Redis job queue")

	return &RedisQueue{
		logger:       logger,
		client:       client,
		pollInterval: pollInterval,
	}, nil
}

func (q *RedisQueue) jobKey(jobID string) string {
	return redisJobPrefix + jobID
}

func (q *RedisQueue) saveJob(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.client.Set(ctx, q.jobKey(job.ID), data, redisJobTTL).Err()
}

func (q *RedisQueue) publishDepth(ctx context.Context) {
	depth, err := q.client.LLen(ctx, redisQueueKey).Result()
	if err == nil {
		metrics.SetQueueDepth(int(depth))
	}
}

// Enqueue persists the job body and pushes it onto the shared list.
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	firstAttempt := job.RetryCount == 0
	job.Status = StatusQueued

	if err := q.saveJob(ctx, job); err != nil {
		return fmt.Errorf("saving job %s: %w", job.ID, err)
	}

	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.client.RPush(ctx, redisQueueKey, data).Err(); err != nil {
		return fmt.Errorf("queueing job %s: %w", job.ID, err)
	}

	// Re-enqueued retries are still the same job.
	if firstAttempt {
		q.client.HIncrBy(ctx, redisStatsKey, "total", 1)
	}
	q.publishDepth(ctx)

	q.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"call_id": job.CallID,
		"kind":    job.Kind,
	}).Debug("Job enqueued")

	return nil
}

// Dequeue blocks until a job is available or the context is done. Transient
// Redis failures back off briefly instead of killing the worker.
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		data, err := q.client.BLPop(ctx, q.pollInterval, redisQueueKey).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			q.logger.WithError(err).Warn("Redis dequeue failed, backing off")
			time.Sleep(redisBackoffOnError)
			continue
		}
		if len(data) < 2 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(data[1]), &job); err != nil {
			q.logger.WithError(err).Warn("Discarding undecodable job payload")
			continue
		}

		now := time.Now()
		job.StartedAt = &now
		job.Status = StatusProcessing
		if err := q.saveJob(ctx, &job); err != nil {
			q.logger.WithError(err).WithField("job_id", job.ID).Warn("Failed to persist job state")
		}
		q.publishDepth(ctx)

		return &job, nil
	}
}

// UpdateJob replaces the stored job body and bumps terminal counters.
func (q *RedisQueue) UpdateJob(ctx context.Context, job *Job) error {
	if err := q.saveJob(ctx, job); err != nil {
		return fmt.Errorf("saving job %s: %w", job.ID, err)
	}

	switch job.Status {
	case StatusCompleted:
		q.client.HIncrBy(ctx, redisStatsKey, "completed", 1)
	case StatusFailed:
		q.client.HIncrBy(ctx, redisStatsKey, "failed", 1)
	}

	return nil
}

// GetJob retrieves a job body by ID.
func (q *RedisQueue) GetJob(ctx context.Context, jobID string) (*Job, error) {
	data, err := q.client.Get(ctx, q.jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, errors.Wrap(errors.ErrNotFound, fmt.Sprintf("job %s not found", jobID))
		}
		return nil, fmt.Errorf("loading job %s: %w", jobID, err)
	}

	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("decoding job %s: %w", jobID, err)
	}

	return &job, nil
}

// Size returns the number of jobs waiting in the list.
func (q *RedisQueue) Size(ctx context.Context) (int, error) {
	depth, err := q.client.LLen(ctx, redisQueueKey).Result()
	if err != nil {
		return 0, err
	}
	return int(depth), nil
}

// Stats reads lifetime counters and the current list depth. The processing
// count is derived, so it can briefly lag the true value.
func (q *RedisQueue) Stats(ctx context.Context) (*Stats, error) {
	counters, err := q.client.HGetAll(ctx, redisStatsKey).Result()
	if err != nil {
		return nil, err
	}
	depth, err := q.client.LLen(ctx, redisQueueKey).Result()
	if err != nil {
		return nil, err
	}

	stats := &Stats{
		TotalJobs:     counterValue(counters, "total"),
		QueuedJobs:    depth,
		CompletedJobs: counterValue(counters, "completed"),
		FailedJobs:    counterValue(counters, "failed"),
	}

	stats.ProcessingJobs = stats.TotalJobs - stats.CompletedJobs - stats.FailedJobs - depth
	if stats.ProcessingJobs < 0 {
		stats.ProcessingJobs = 0
	}
	if done := stats.CompletedJobs + stats.FailedJobs; done > 0 {
		stats.ErrorRate = float64(stats.FailedJobs) / float64(done)
	}

	return stats, nil
}

// Close releases the Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func counterValue(counters map[string]string, key string) int64 {
	v, err := strconv.ParseInt(counters[key], 10, 64)
	if err != nil {
		return 0
	}
	return v
}
