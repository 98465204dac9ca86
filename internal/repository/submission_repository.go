package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/models"
)

// SubmissionRepository reads submissions joined with their assignment and
// class, which is the authorization context for every check and every
// gateway operation.
type SubmissionRepository interface {
	GetWithContext(ctx context.Context, submissionID string) (*models.Submission, error)
	UpdateContent(ctx context.Context, submissionID, content string) (time.Time, error)
	ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionSnapshot, error)
}

type submissionRepository struct {
	*PostgresRepository
}

func NewSubmissionRepository(db *sql.DB, logger zerolog.Logger) SubmissionRepository {
	return &submissionRepository{
		PostgresRepository: NewPostgresRepository(db, logger),
	}
}

func (r *submissionRepository) GetWithContext(ctx context.Context, submissionID string) (*models.Submission, error) {
	query := `
		SELECT
			s.id,
			s.student_id,
			s.assignment_id,
			a.class_id,
			c.instructor_id,
			s.status,
			s.content,
			s.grade,
			s.created_at,
			s.updated_at
		FROM submissions s
		JOIN assignments a ON a.id = s.assignment_id
		JOIN classes c ON c.id = a.class_id
		WHERE s.id = $1
	`

	sub := &models.Submission{}
	var grade sql.NullFloat64

	err := r.db.QueryRowContext(ctx, query, submissionID).Scan(
		&sub.ID,
		&sub.StudentID,
		&sub.AssignmentID,
		&sub.ClassID,
		&sub.InstructorID,
		&sub.Status,
		&sub.Content,
		&grade,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	if grade.Valid {
		sub.Grade = &grade.Float64
	}

	return sub, nil
}

func (r *submissionRepository) UpdateContent(ctx context.Context, submissionID, content string) (time.Time, error) {
	query := `
		UPDATE submissions
		SET content = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING updated_at
	`

	var updatedAt time.Time
	err := r.db.QueryRowContext(ctx, query, content, submissionID).Scan(&updatedAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to update submission content: %w", err)
	}

	return updatedAt, nil
}

func (r *submissionRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionSnapshot, error) {
	query := `
		SELECT
			s.id,
			s.student_id,
			s.status,
			s.grade,
			pc.score,
			s.updated_at
		FROM submissions s
		LEFT JOIN plagiarism_checks pc
			ON pc.submission_id = s.id AND pc.status = 'completed'
		WHERE s.assignment_id = $1
		ORDER BY s.updated_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var snapshots []models.SubmissionSnapshot
	for rows.Next() {
		var snap models.SubmissionSnapshot
		var grade, score sql.NullFloat64

		err := rows.Scan(
			&snap.SubmissionID,
			&snap.StudentID,
			&snap.Status,
			&grade,
			&score,
			&snap.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}

		if grade.Valid {
			snap.Grade = &grade.Float64
		}
		if score.Valid {
			snap.PlagiarismScore = &score.Float64
		}

		snapshots = append(snapshots, snap)
	}

	return snapshots, rows.Err()
}
