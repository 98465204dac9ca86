package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/models"
)

// CheckRepository persists plagiarism check results keyed by submission id.
// Every write is an upsert: duplicate delivery of the same logical job
// overwrites the row instead of appending a second one.
type CheckRepository interface {
	GetBySubmission(ctx context.Context, submissionID string) (*models.PlagiarismCheck, error)
	UpsertProcessing(ctx context.Context, submissionID string) error
	UpsertCompleted(ctx context.Context, submissionID string, result models.CheckResult, checkedAt time.Time) error
	UpsertFailed(ctx context.Context, submissionID string, checkedAt time.Time) error
}

type checkRepository struct {
	*PostgresRepository
}

func NewCheckRepository(db *sql.DB, logger zerolog.Logger) CheckRepository {
	return &checkRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *checkRepository) GetBySubmission(ctx context.Context, submissionID string) (*models.PlagiarismCheck, error) {
	query := `
		SELECT submission_id, status, score, word_count, credits_used,
			raw_result, checked_at, created_at, updated_at
		FROM plagiarism_checks
		WHERE submission_id = $1
	`

	check := &models.PlagiarismCheck{}
	var rawResult []byte
	var checkedAt sql.NullTime

	err := r.db.QueryRowContext(ctx, query, submissionID).Scan(
		&check.SubmissionID,
		&check.Status,
		&check.Score,
		&check.WordCount,
		&check.CreditsUsed,
		&rawResult,
		&checkedAt,
		&check.CreatedAt,
		&check.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get plagiarism check: %w", err)
	}

	if rawResult != nil {
		check.RawResult = json.RawMessage(rawResult)
	}
	if checkedAt.Valid {
		check.CheckedAt = &checkedAt.Time
	}

	return check, nil
}

func (r *checkRepository) UpsertProcessing(ctx context.Context, submissionID string) error {
	query := `
		INSERT INTO plagiarism_checks (submission_id, status, created_at, updated_at)
		VALUES ($1, $2, NOW(), NOW())
		ON CONFLICT (submission_id) DO UPDATE
		SET status = EXCLUDED.status, updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query, submissionID, models.CheckStatusProcessing)
	if err != nil {
		return fmt.Errorf("failed to upsert processing check: %w", err)
	}

	return nil
}

func (r *checkRepository) UpsertCompleted(ctx context.Context, submissionID string, result models.CheckResult, checkedAt time.Time) error {
	query := `
		INSERT INTO plagiarism_checks
			(submission_id, status, score, word_count, credits_used, raw_result, checked_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (submission_id) DO UPDATE
		SET status = EXCLUDED.status,
			score = EXCLUDED.score,
			word_count = EXCLUDED.word_count,
			credits_used = EXCLUDED.credits_used,
			raw_result = EXCLUDED.raw_result,
			checked_at = EXCLUDED.checked_at,
			updated_at = NOW()
	`

	raw := []byte(result.Raw)
	if raw == nil {
		raw = []byte("{}")
	}

	_, err := r.db.ExecContext(ctx, query,
		submissionID,
		models.CheckStatusCompleted,
		result.Score,
		result.WordCount,
		result.CreditsUsed,
		raw,
		checkedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert completed check: %w", err)
	}

	return nil
}

func (r *checkRepository) UpsertFailed(ctx context.Context, submissionID string, checkedAt time.Time) error {
	query := `
		INSERT INTO plagiarism_checks (submission_id, status, checked_at, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (submission_id) DO UPDATE
		SET status = EXCLUDED.status,
			checked_at = EXCLUDED.checked_at,
			updated_at = NOW()
	`

	_, err := r.db.ExecContext(ctx, query, submissionID, models.CheckStatusFailed, checkedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert failed check: %w", err)
	}

	return nil
}
