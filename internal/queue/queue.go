package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/models"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/repository"
)

// CheckQueue is the durable, at-least-once job queue for scoring work.
// Job rows live in postgres; RabbitMQ only carries dispatch messages, so a
// redelivered message never resurrects stale state. Retries are scheduled
// as delayed republishes with exponential backoff (base doubling per
// attempt).
type CheckQueue interface {
	Enqueue(ctx context.Context, jobType string, payload models.JobPayload, maxAttempts int, backoffBase time.Duration) (*models.Job, error)
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	FindActiveBySubmission(ctx context.Context, submissionID string) (*models.Job, error)
	MarkActive(ctx context.Context, jobID string) error
	MarkCompleted(ctx context.Context, jobID string) error
	MarkFailed(ctx context.Context, jobID string, reason string) error
	// ScheduleRetry increments the attempt counter and republishes the job
	// with the next backoff delay. It reports whether a retry was actually
	// scheduled; false means attempts are exhausted and the job is failed.
	ScheduleRetry(ctx context.Context, jobID string, reason string) (bool, error)
	Clean(ctx context.Context, olderThan time.Duration, state models.JobState) (int64, error)
}

type Config struct {
	Exchange   string
	RoutingKey string
}

type checkQueue struct {
	jobs      repository.JobRepository
	publisher Publisher
	cfg       Config
	logger    zerolog.Logger
}

func NewCheckQueue(jobs repository.JobRepository, publisher Publisher, cfg Config, logger zerolog.Logger) CheckQueue {
	return &checkQueue{
		jobs:      jobs,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

func (q *checkQueue) Enqueue(ctx context.Context, jobType string, payload models.JobPayload, maxAttempts int, backoffBase time.Duration) (*models.Job, error) {
	job := &models.Job{
		ID:           uuid.New().String(),
		Type:         jobType,
		SubmissionID: payload.SubmissionID,
		Payload:      payload,
		State:        models.JobStateQueued,
		AttemptsMade: 0,
		MaxAttempts:  maxAttempts,
		BackoffBase:  backoffBase,
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}

	if err := q.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to persist job: %w", err)
	}

	if err := q.publishDispatch(ctx, job, 0); err != nil {
		// A queued row with no message in flight would block this submission
		// forever, so fail it before surfacing the error.
		q.failUnpublished(ctx, job.ID, err)
		return nil, fmt.Errorf("failed to publish job: %w", err)
	}

	q.logger.Info().
		Str("job_id", job.ID).
		Str("submission_id", job.SubmissionID).
		Str("type", jobType).
		Msg("Job enqueued")

	return job, nil
}

func (q *checkQueue) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return q.jobs.GetByID(ctx, jobID)
}

func (q *checkQueue) FindActiveBySubmission(ctx context.Context, submissionID string) (*models.Job, error) {
	return q.jobs.FindBySubmissionAndStates(ctx, submissionID, models.NonTerminalJobStates)
}

func (q *checkQueue) MarkActive(ctx context.Context, jobID string) error {
	return q.jobs.UpdateState(ctx, jobID, models.JobStateActive, "")
}

func (q *checkQueue) MarkCompleted(ctx context.Context, jobID string) error {
	return q.jobs.UpdateState(ctx, jobID, models.JobStateCompleted, "")
}

func (q *checkQueue) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return q.jobs.UpdateState(ctx, jobID, models.JobStateFailed, reason)
}

func (q *checkQueue) ScheduleRetry(ctx context.Context, jobID string, reason string) (bool, error) {
	job, err := q.jobs.GetByID(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, fmt.Errorf("job %s not found", jobID)
	}

	attempts, err := q.jobs.IncrementAttempts(ctx, jobID)
	if err != nil {
		return false, err
	}

	if attempts >= job.MaxAttempts {
		if err := q.jobs.UpdateState(ctx, jobID, models.JobStateFailed, reason); err != nil {
			return false, err
		}
		return false, nil
	}

	delay := Backoff(job.BackoffBase, attempts)
	if err := q.jobs.UpdateState(ctx, jobID, models.JobStateDelayed, reason); err != nil {
		return false, err
	}
	if err := q.publishDispatch(ctx, job, delay); err != nil {
		// Same as Enqueue: a delayed row with nothing in flight never runs
		// again. Fail it so the caller takes the terminal path.
		q.failUnpublished(ctx, jobID, err)
		return false, fmt.Errorf("failed to republish job: %w", err)
	}

	q.logger.Warn().
		Str("job_id", jobID).
		Int("attempts_made", attempts).
		Dur("delay", delay).
		Str("reason", reason).
		Msg("Job retry scheduled")

	return true, nil
}

func (q *checkQueue) Clean(ctx context.Context, olderThan time.Duration, state models.JobState) (int64, error) {
	return q.jobs.DeleteOlderThan(ctx, olderThan, state)
}

func (q *checkQueue) failUnpublished(ctx context.Context, jobID string, cause error) {
	if err := q.jobs.UpdateState(ctx, jobID, models.JobStateFailed, "publish failed: "+cause.Error()); err != nil {
		q.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to fail unpublished job")
	}
}

func (q *checkQueue) publishDispatch(ctx context.Context, job *models.Job, delay time.Duration) error {
	event := models.CheckRequestedEvent{
		JobID:        job.ID,
		SubmissionID: job.SubmissionID,
		Timestamp:    time.Now().Unix(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch event: %w", err)
	}

	if delay > 0 {
		return q.publisher.PublishWithDelay(ctx, q.cfg.Exchange, q.cfg.RoutingKey, body, delay)
	}
	return q.publisher.Publish(ctx, q.cfg.Exchange, q.cfg.RoutingKey, body)
}

// Backoff returns the delay before the given retry: base on the first
// retry, doubling each time after (5s, 10s, 20s, ...).
func Backoff(base time.Duration, attemptsMade int) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}
	return base << (attemptsMade - 1)
}
