package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/gateway"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/models"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/queue"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/repository"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/service/integration"
)

// Notifier is the slice of the broadcast router the worker needs. The
// gateway Router implements it; tests implement it over slices.
type Notifier interface {
	SendNotification(userID string, notification models.Notification)
	BroadcastSubmissionUpdate(submissionID string, update models.SubmissionUpdate)
}

// CheckWorker consumes scoring jobs. Delivery is at-least-once, so every
// state write is an upsert keyed by submission id: redelivery of the same
// logical job overwrites with an equivalent row.
type CheckWorker interface {
	Start(ctx context.Context) error
	Stop() error
	ProcessJob(ctx context.Context, jobID string) error
	Stats() Stats
}

type Stats struct {
	BusyWorkers    int `json:"busy_workers"`
	TotalProcessed int `json:"total_processed"`
	FailedJobs     int `json:"failed_jobs"`
	QueueLength    int `json:"queue_length"`
}

type Config struct {
	CleanInterval time.Duration
	CleanAge      time.Duration
}

type checkWorker struct {
	pool        *WorkerPool
	consumer    queue.Consumer
	checkQueue  queue.CheckQueue
	submissions repository.SubmissionRepository
	checks      repository.CheckRepository
	scorer      integration.ScoringClient
	notifier    Notifier
	cfg         Config
	logger      zerolog.Logger

	statsMu sync.RWMutex
	stats   Stats

	cancel context.CancelFunc
}

func NewCheckWorker(
	pool *WorkerPool,
	consumer queue.Consumer,
	checkQueue queue.CheckQueue,
	submissions repository.SubmissionRepository,
	checks repository.CheckRepository,
	scorer integration.ScoringClient,
	notifier Notifier,
	cfg Config,
	logger zerolog.Logger,
) CheckWorker {
	return &checkWorker{
		pool:        pool,
		consumer:    consumer,
		checkQueue:  checkQueue,
		submissions: submissions,
		checks:      checks,
		scorer:      scorer,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
	}
}

func (w *checkWorker) Start(ctx context.Context) error {
	w.logger.Info().Msg("Starting check worker...")

	ctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	if err := w.pool.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	msgs, err := w.consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("failed to start consuming messages: %w", err)
	}

	go w.processMessages(ctx, msgs)

	if w.cfg.CleanInterval > 0 {
		go w.janitor(ctx)
	}

	w.logger.Info().Msg("Check worker started successfully")
	return nil
}

func (w *checkWorker) Stop() error {
	w.logger.Info().Msg("Stopping check worker...")

	if w.cancel != nil {
		w.cancel()
	}

	if err := w.pool.Stop(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to stop worker pool")
	}

	if err := w.consumer.Close(); err != nil {
		w.logger.Error().Err(err).Msg("Failed to close queue consumer")
	}

	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	w.logger.Info().
		Int("total_processed", w.stats.TotalProcessed).
		Int("failed_jobs", w.stats.FailedJobs).
		Msg("Check worker stopped")

	return nil
}

func (w *checkWorker) processMessages(ctx context.Context, msgs <-chan queue.Message) {
	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("Stopping message processing")
			return
		case msg, ok := <-msgs:
			if !ok {
				w.logger.Warn().Msg("Message channel closed")
				return
			}

			w.pool.Submit(func() {
				err := w.processMessage(ctx, msg)
				if err != nil {
					w.logger.Error().Err(err).Msg("Failed to process message")

					w.statsMu.Lock()
					w.stats.FailedJobs++
					w.statsMu.Unlock()
				} else {
					w.statsMu.Lock()
					w.stats.TotalProcessed++
					w.statsMu.Unlock()
				}

				// Retry flow goes through delayed republish, never through
				// broker redelivery, so the original message is always acked.
				if ackErr := msg.Ack(false); ackErr != nil {
					w.logger.Error().Err(ackErr).Msg("Failed to ack message")
				}
			})
		}
	}
}

func (w *checkWorker) processMessage(ctx context.Context, msg queue.Message) error {
	var event models.CheckRequestedEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		return fmt.Errorf("failed to unmarshal dispatch event: %w", err)
	}

	if strings.TrimSpace(event.JobID) == "" {
		return errors.New("empty job_id")
	}

	w.logger.Info().
		Str("job_id", event.JobID).
		Str("submission_id", event.SubmissionID).
		Msg("Processing check job")

	return w.ProcessJob(ctx, event.JobID)
}

// ProcessJob runs one attempt of one scoring job. Transient failures hand
// the job back to the queue's backoff policy and keep the persisted status
// at processing; only the final attempt's failure becomes user-visible.
func (w *checkWorker) ProcessJob(ctx context.Context, jobID string) error {
	job, err := w.checkQueue.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}
	if job == nil {
		w.logger.Warn().Str("job_id", jobID).Msg("Job not found, dropping message")
		return nil
	}
	if job.State == models.JobStateCompleted || job.State == models.JobStateFailed {
		// Duplicate delivery after a terminal transition; nothing to redo.
		w.logger.Warn().Str("job_id", jobID).Str("state", job.State.String()).Msg("Job already terminal, skipping")
		return nil
	}

	if err := w.checkQueue.MarkActive(ctx, jobID); err != nil {
		return fmt.Errorf("failed to mark job active: %w", err)
	}

	payload := job.Payload

	// Re-fetch authorization context: content may be stale, permissions may
	// have been revoked since enqueue. A vanished or reassigned submission
	// gains nothing from retries.
	sub, err := w.submissions.GetWithContext(ctx, payload.SubmissionID)
	if err != nil {
		return w.handleFailure(ctx, job, fmt.Errorf("failed to load submission: %w", err), true)
	}
	if sub == nil || !sub.TaughtBy(payload.RequesterID) {
		return w.handleFailure(ctx, job, errors.New("submission missing or requester no longer authorized"), false)
	}

	result, err := w.scorer.Score(ctx, integration.ScoreRequest{
		Text:            payload.Content,
		Language:        payload.Options.Language,
		Country:         payload.Options.Country,
		ExcludedSources: payload.Options.ExcludedSources,
	})
	if err != nil {
		return w.handleFailure(ctx, job, err, integration.RetryableScoringError(err))
	}

	checkedAt := time.Now()
	if err := w.checks.UpsertCompleted(ctx, payload.SubmissionID, *result, checkedAt); err != nil {
		return w.handleFailure(ctx, job, fmt.Errorf("failed to persist result: %w", err), true)
	}

	if err := w.checkQueue.MarkCompleted(ctx, jobID); err != nil {
		w.logger.Error().Err(err).Str("job_id", jobID).Msg("Failed to mark job completed")
	}

	w.notifyCompleted(payload, result.Score, checkedAt)

	w.logger.Info().
		Str("job_id", jobID).
		Str("submission_id", payload.SubmissionID).
		Float64("score", result.Score).
		Int("word_count", result.WordCount).
		Msg("Plagiarism check completed")

	return nil
}

// handleFailure routes one attempt's failure: retryable errors reschedule
// through the queue and stay invisible to users; terminal ones persist the
// failed row and emit exactly one notification pair.
func (w *checkWorker) handleFailure(ctx context.Context, job *models.Job, cause error, retryable bool) error {
	w.logger.Error().
		Err(cause).
		Str("job_id", job.ID).
		Str("submission_id", job.SubmissionID).
		Bool("retryable", retryable).
		Msg("Check attempt failed")

	if retryable {
		scheduled, err := w.checkQueue.ScheduleRetry(ctx, job.ID, cause.Error())
		if err != nil {
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to schedule retry")
		}
		if scheduled {
			return fmt.Errorf("attempt failed, retry scheduled: %w", cause)
		}
		// Attempts exhausted; fall through to the terminal path.
	} else {
		if err := w.checkQueue.MarkFailed(ctx, job.ID, cause.Error()); err != nil {
			w.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job failed")
		}
	}

	if err := w.checks.UpsertFailed(ctx, job.SubmissionID, time.Now()); err != nil {
		w.logger.Error().Err(err).Str("submission_id", job.SubmissionID).Msg("Failed to persist failed check")
	}

	w.notifyFailed(job.Payload)

	return fmt.Errorf("check failed terminally: %w", cause)
}

func (w *checkWorker) notifyCompleted(payload models.JobPayload, score float64, checkedAt time.Time) {
	notification := models.Notification{
		Type:    models.NotificationPlagiarismCompleted,
		Message: fmt.Sprintf("Plagiarism check completed with score %.1f", score),
		Data: map[string]any{
			"submission_id": payload.SubmissionID,
			"score":         score,
		},
		CreatedAt: checkedAt,
	}

	w.notifier.SendNotification(payload.RequesterID, notification)
	w.notifier.SendNotification(payload.StudentID, notification)

	status := models.CheckStatusCompleted.String()
	w.notifier.BroadcastSubmissionUpdate(payload.SubmissionID, models.SubmissionUpdate{
		Status:          &status,
		PlagiarismScore: &score,
		UpdatedAt:       checkedAt,
	})
}

func (w *checkWorker) notifyFailed(payload models.JobPayload) {
	// Diagnostic detail stays in the logs; users get a generic message.
	notification := models.Notification{
		Type:    models.NotificationPlagiarismFailed,
		Message: "Plagiarism check could not be completed",
		Data: map[string]any{
			"submission_id": payload.SubmissionID,
		},
		CreatedAt: time.Now(),
	}

	w.notifier.SendNotification(payload.RequesterID, notification)
	w.notifier.SendNotification(payload.StudentID, notification)
}

func (w *checkWorker) janitor(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.CleanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, state := range []models.JobState{models.JobStateCompleted, models.JobStateFailed} {
				removed, err := w.checkQueue.Clean(ctx, w.cfg.CleanAge, state)
				if err != nil {
					w.logger.Error().Err(err).Str("state", state.String()).Msg("Failed to clean old jobs")
					continue
				}
				if removed > 0 {
					w.logger.Info().Int64("removed", removed).Str("state", state.String()).Msg("Cleaned old jobs")
				}
			}
		}
	}
}

func (w *checkWorker) Stats() Stats {
	w.statsMu.RLock()
	stats := w.stats
	w.statsMu.RUnlock()

	stats.BusyWorkers = w.pool.BusyWorkers()

	if length, err := w.consumer.QueueLength(); err == nil {
		stats.QueueLength = length
	}

	return stats
}

var _ Notifier = (*gateway.Router)(nil)
