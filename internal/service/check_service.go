package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/models"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/queue"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/repository"
)

const JobTypePlagiarismCheck = "plagiarism.check"

// CheckService validates check requests, enforces the one-non-terminal-job-
// per-submission rule and reports status. It never mutates job rows itself;
// that is the queue's business.
type CheckService interface {
	SubmitCheck(ctx context.Context, submissionID, requesterID string, opts models.CheckOption) (*models.SubmitCheckResponse, error)
	// Recheck behaves like SubmitCheck but skips the completed-result
	// short-circuit: the new result overwrites the old one.
	Recheck(ctx context.Context, submissionID, requesterID string, opts models.CheckOption) (*models.SubmitCheckResponse, error)
	QueryStatus(ctx context.Context, submissionID, requesterID string) (*models.CheckStatusResponse, error)
	GetCheck(ctx context.Context, submissionID, requesterID string) (*models.PlagiarismCheck, error)
}

type CheckConfig struct {
	MaxAttempts int
	BackoffBase time.Duration
	Language    string
	Country     string
}

type checkService struct {
	submissions repository.SubmissionRepository
	checks      repository.CheckRepository
	queue       queue.CheckQueue
	cfg         CheckConfig
	logger      zerolog.Logger
}

func NewCheckService(
	submissions repository.SubmissionRepository,
	checks repository.CheckRepository,
	checkQueue queue.CheckQueue,
	cfg CheckConfig,
	logger zerolog.Logger,
) CheckService {
	return &checkService{
		submissions: submissions,
		checks:      checks,
		queue:       checkQueue,
		cfg:         cfg,
		logger:      logger,
	}
}

func (s *checkService) SubmitCheck(ctx context.Context, submissionID, requesterID string, opts models.CheckOption) (*models.SubmitCheckResponse, error) {
	return s.submit(ctx, submissionID, requesterID, opts, false)
}

func (s *checkService) Recheck(ctx context.Context, submissionID, requesterID string, opts models.CheckOption) (*models.SubmitCheckResponse, error) {
	return s.submit(ctx, submissionID, requesterID, opts, true)
}

func (s *checkService) submit(ctx context.Context, submissionID, requesterID string, opts models.CheckOption, force bool) (*models.SubmitCheckResponse, error) {
	sub, err := s.validateRequest(ctx, submissionID, requesterID)
	if err != nil {
		return nil, err
	}

	// A non-terminal job for this submission wins over everything else:
	// the caller gets its id back and nothing new is enqueued.
	pending, err := s.queue.FindActiveBySubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	}
	if pending != nil {
		return &models.SubmitCheckResponse{
			JobID:        pending.ID,
			SubmissionID: submissionID,
			Status:       models.PublicJobStatus(pending.State),
		}, nil
	}

	if !force {
		check, err := s.checks.GetBySubmission(ctx, submissionID)
		if err != nil {
			return nil, fmt.Errorf("failed to load existing check: %w", err)
		}
		if check != nil && check.Status == models.CheckStatusCompleted {
			return &models.SubmitCheckResponse{
				SubmissionID: submissionID,
				Status:       models.CheckStatusCompleted,
				Cached:       true,
			}, nil
		}
	}

	if err := s.checks.UpsertProcessing(ctx, submissionID); err != nil {
		return nil, fmt.Errorf("failed to mark check processing: %w", err)
	}

	if opts.Language == "" {
		opts.Language = s.cfg.Language
	}
	if opts.Country == "" {
		opts.Country = s.cfg.Country
	}

	payload := models.JobPayload{
		SubmissionID: submissionID,
		StudentID:    sub.StudentID,
		RequesterID:  requesterID,
		Content:      sub.Content,
		Options:      opts,
	}

	job, err := s.queue.Enqueue(ctx, JobTypePlagiarismCheck, payload, s.cfg.MaxAttempts, s.cfg.BackoffBase)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue check job: %w", err)
	}

	s.logger.Info().
		Str("job_id", job.ID).
		Str("submission_id", submissionID).
		Str("requester_id", requesterID).
		Bool("recheck", force).
		Msg("Plagiarism check queued")

	return &models.SubmitCheckResponse{
		JobID:        job.ID,
		SubmissionID: submissionID,
		Status:       models.PublicJobStatus(job.State),
	}, nil
}

func (s *checkService) QueryStatus(ctx context.Context, submissionID, requesterID string) (*models.CheckStatusResponse, error) {
	sub, err := s.submissions.GetWithContext(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	if sub == nil {
		return nil, ErrSubmissionNotFound
	}
	if !sub.TaughtBy(requesterID) && !sub.OwnedBy(requesterID) {
		return nil, ErrAccessDenied
	}

	resp := &models.CheckStatusResponse{
		SubmissionID: submissionID,
		Status:       models.CheckStatusNotChecked,
	}

	if job, err := s.queue.FindActiveBySubmission(ctx, submissionID); err != nil {
		return nil, fmt.Errorf("failed to query pending jobs: %w", err)
	} else if job != nil {
		resp.JobID = job.ID
		resp.Status = models.PublicJobStatus(job.State)
		return resp, nil
	}

	check, err := s.checks.GetBySubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load check: %w", err)
	}
	if check != nil {
		resp.Status = check.Status
		resp.CheckedAt = check.CheckedAt
		if check.Status == models.CheckStatusCompleted {
			score := check.Score
			resp.Score = &score
		}
	}

	return resp, nil
}

func (s *checkService) GetCheck(ctx context.Context, submissionID, requesterID string) (*models.PlagiarismCheck, error) {
	sub, err := s.submissions.GetWithContext(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	if sub == nil {
		return nil, ErrSubmissionNotFound
	}
	if !sub.TaughtBy(requesterID) && !sub.OwnedBy(requesterID) {
		return nil, ErrAccessDenied
	}

	check, err := s.checks.GetBySubmission(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load check: %w", err)
	}
	if check == nil {
		return nil, ErrCheckNotFound
	}

	return check, nil
}

func (s *checkService) validateRequest(ctx context.Context, submissionID, requesterID string) (*models.Submission, error) {
	sub, err := s.submissions.GetWithContext(ctx, submissionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	if sub == nil {
		return nil, ErrSubmissionNotFound
	}
	if !sub.TaughtBy(requesterID) {
		return nil, ErrAccessDenied
	}
	if sub.Status != models.SubmissionStatusSubmitted {
		return nil, ErrSubmissionNotSubmitted
	}
	length := utf8.RuneCountInString(sub.Content)
	if length < MinCheckContentLength {
		return nil, ErrContentTooShort
	}
	if length > MaxCheckContentLength {
		return nil, ErrContentTooLong
	}

	return sub, nil
}
