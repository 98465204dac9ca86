package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/models"
)

// JobRepository stores the durable side of the queue: one row per job with
// attempt counting and state. The queue package owns all mutations.
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, jobID string) (*models.Job, error)
	FindBySubmissionAndStates(ctx context.Context, submissionID string, states []models.JobState) (*models.Job, error)
	UpdateState(ctx context.Context, jobID string, state models.JobState, lastError string) error
	IncrementAttempts(ctx context.Context, jobID string) (int, error)
	DeleteOlderThan(ctx context.Context, age time.Duration, state models.JobState) (int64, error)
}

type jobRepository struct {
	*PostgresRepository
}

func NewJobRepository(db *sql.DB, logger zerolog.Logger) JobRepository {
	return &jobRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *jobRepository) Create(ctx context.Context, job *models.Job) error {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal job payload: %w", err)
	}

	query := `
		INSERT INTO jobs
			(id, type, submission_id, payload, state, attempts_made, max_attempts, backoff_base_ms, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
	`

	_, err = r.db.ExecContext(ctx, query,
		job.ID,
		job.Type,
		job.SubmissionID,
		payload,
		job.State,
		job.AttemptsMade,
		job.MaxAttempts,
		job.BackoffBase.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (r *jobRepository) GetByID(ctx context.Context, jobID string) (*models.Job, error) {
	query := `
		SELECT id, type, submission_id, payload, state, attempts_made,
			max_attempts, backoff_base_ms, last_error, created_at, updated_at
		FROM jobs
		WHERE id = $1
	`

	return r.scanJob(r.db.QueryRowContext(ctx, query, jobID))
}

func (r *jobRepository) FindBySubmissionAndStates(ctx context.Context, submissionID string, states []models.JobState) (*models.Job, error) {
	stateNames := make([]string, 0, len(states))
	for _, s := range states {
		stateNames = append(stateNames, s.String())
	}

	query := `
		SELECT id, type, submission_id, payload, state, attempts_made,
			max_attempts, backoff_base_ms, last_error, created_at, updated_at
		FROM jobs
		WHERE submission_id = $1 AND state = ANY($2)
		ORDER BY created_at DESC
		LIMIT 1
	`

	return r.scanJob(r.db.QueryRowContext(ctx, query, submissionID, pq.Array(stateNames)))
}

func (r *jobRepository) UpdateState(ctx context.Context, jobID string, state models.JobState, lastError string) error {
	query := `
		UPDATE jobs
		SET state = $1, last_error = $2, updated_at = NOW()
		WHERE id = $3
	`

	_, err := r.db.ExecContext(ctx, query, state, lastError, jobID)
	if err != nil {
		return fmt.Errorf("failed to update job state: %w", err)
	}

	return nil
}

func (r *jobRepository) IncrementAttempts(ctx context.Context, jobID string) (int, error) {
	query := `
		UPDATE jobs
		SET attempts_made = attempts_made + 1, updated_at = NOW()
		WHERE id = $1
		RETURNING attempts_made
	`

	var attempts int
	if err := r.db.QueryRowContext(ctx, query, jobID).Scan(&attempts); err != nil {
		return 0, fmt.Errorf("failed to increment job attempts: %w", err)
	}

	return attempts, nil
}

func (r *jobRepository) DeleteOlderThan(ctx context.Context, age time.Duration, state models.JobState) (int64, error) {
	query := `
		DELETE FROM jobs
		WHERE state = $1 AND updated_at < $2
	`

	res, err := r.db.ExecContext(ctx, query, state, time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("failed to clean jobs: %w", err)
	}

	return res.RowsAffected()
}

func (r *jobRepository) scanJob(row *sql.Row) (*models.Job, error) {
	job := &models.Job{}
	var payload []byte
	var backoffMs int64
	var lastError sql.NullString

	err := row.Scan(
		&job.ID,
		&job.Type,
		&job.SubmissionID,
		&payload,
		&job.State,
		&job.AttemptsMade,
		&job.MaxAttempts,
		&backoffMs,
		&lastError,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	if err := json.Unmarshal(payload, &job.Payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job payload: %w", err)
	}

	job.BackoffBase = time.Duration(backoffMs) * time.Millisecond
	if lastError.Valid {
		job.LastError = lastError.String
	}

	return job, nil
}
