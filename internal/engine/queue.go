package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Priya8975/trackflow/internal/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const QueueKey = "trackflow_jobs"

type JobKind string

const (
	// JobIngest stores a tracked event and runs attribution for conversions.
	JobIngest JobKind = "ingest"
	// JobForward posts an attributed conversion to the CRM webhook.
	JobForward JobKind = "forward"
)

const (
	DefaultMaxRetries = 5
	maxBackoff        = time.Hour
)

// Job is a unit of background work queued in Redis.
type Job struct {
	ID         string             `json:"id"`
	Kind       JobKind            `json:"kind"`
	Envelope   *domain.Envelope   `json:"envelope,omitempty"`
	Conversion *domain.Conversion `json:"conversion,omitempty"`
	IPAddress  string             `json:"ip_address,omitempty"`
	UserAgent  string             `json:"user_agent,omitempty"`
	ReceivedAt time.Time          `json:"received_at"`
	Attempt    int                `json:"attempt"`
	MaxRetries int                `json:"max_retries"`
}

// Retry returns a copy of the job for its next attempt.
func (j Job) Retry() Job {
	j.Attempt++
	return j
}

// Exhausted reports whether the job has used up its attempts.
func (j Job) Exhausted() bool {
	return j.Attempt >= j.MaxRetries
}

// Backoff returns the delay before retry attempt n: 2^n seconds, capped at
// one hour.
func Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 12 {
		return maxBackoff
	}
	return min(time.Duration(1<<attempt)*time.Second, maxBackoff)
}

// Queue is a delayed job queue on a Redis sorted set scored by the time a
// job becomes due, in microseconds.
type Queue struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

func NewQueue(redisClient *redis.Client, logger *slog.Logger) *Queue {
	return &Queue{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Enqueue schedules job to run at the given time. Jobs without an id get a
// fresh one, so identical payloads never collapse into one set member.
func (q *Queue) Enqueue(ctx context.Context, job Job, at time.Time) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = DefaultMaxRetries
	}

	jobBytes, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encoding job: %w", err)
	}

	err = q.redisClient.ZAdd(ctx, QueueKey, redis.Z{
		Score:  float64(at.UnixMicro()),
		Member: string(jobBytes),
	}).Err()
	if err != nil {
		return fmt.Errorf("queuing job to redis: %w", err)
	}

	q.logger.Debug("job queued", "job_id", job.ID, "kind", job.Kind, "attempt", job.Attempt)
	return nil
}

// Claim removes up to limit due jobs from the queue and returns them. A job
// that another consumer removed first is skipped, so each job is claimed
// exactly once.
func (q *Queue) Claim(ctx context.Context, now time.Time, limit int64) ([]Job, error) {
	results, err := q.redisClient.ZRangeByScore(ctx, QueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMicro(), 10),
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("polling job queue: %w", err)
	}

	var jobs []Job
	for _, member := range results {
		removed, err := q.redisClient.ZRem(ctx, QueueKey, member).Result()
		if err != nil {
			q.logger.Error("failed to remove job from queue", "error", err)
			continue
		}
		if removed == 0 {
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(member), &job); err != nil {
			q.logger.Error("failed to unmarshal job", "error", err)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Depth returns the number of jobs waiting in the queue.
func (q *Queue) Depth(ctx context.Context) (int64, error) {
	return q.redisClient.ZCard(ctx, QueueKey).Result()
}
