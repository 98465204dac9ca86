package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/models"
)

type fakeSubmissionStore struct {
	submissions map[string]*models.Submission
}

func (s *fakeSubmissionStore) GetWithContext(ctx context.Context, id string) (*models.Submission, error) {
	return s.submissions[id], nil
}

func (s *fakeSubmissionStore) UpdateContent(ctx context.Context, id, content string) (time.Time, error) {
	return time.Now(), nil
}

func (s *fakeSubmissionStore) ListByAssignment(ctx context.Context, assignmentID string) ([]models.SubmissionSnapshot, error) {
	return nil, nil
}

type fakeCheckStore struct {
	checks         map[string]*models.PlagiarismCheck
	processingCnt  int
	completedCnt   int
	failedCnt      int
	lastResult     models.CheckResult
	lastResultSubs string
}

func newFakeCheckStore() *fakeCheckStore {
	return &fakeCheckStore{checks: make(map[string]*models.PlagiarismCheck)}
}

func (s *fakeCheckStore) GetBySubmission(ctx context.Context, submissionID string) (*models.PlagiarismCheck, error) {
	return s.checks[submissionID], nil
}

func (s *fakeCheckStore) UpsertProcessing(ctx context.Context, submissionID string) error {
	s.processingCnt++
	s.checks[submissionID] = &models.PlagiarismCheck{
		SubmissionID: submissionID,
		Status:       models.CheckStatusProcessing,
	}
	return nil
}

func (s *fakeCheckStore) UpsertCompleted(ctx context.Context, submissionID string, result models.CheckResult, checkedAt time.Time) error {
	s.completedCnt++
	s.lastResult = result
	s.lastResultSubs = submissionID
	s.checks[submissionID] = &models.PlagiarismCheck{
		SubmissionID: submissionID,
		Status:       models.CheckStatusCompleted,
		Score:        result.Score,
		WordCount:    result.WordCount,
		CreditsUsed:  result.CreditsUsed,
		CheckedAt:    &checkedAt,
	}
	return nil
}

func (s *fakeCheckStore) UpsertFailed(ctx context.Context, submissionID string, checkedAt time.Time) error {
	s.failedCnt++
	s.checks[submissionID] = &models.PlagiarismCheck{
		SubmissionID: submissionID,
		Status:       models.CheckStatusFailed,
		CheckedAt:    &checkedAt,
	}
	return nil
}

type fakeQueue struct {
	jobs     map[string]*models.Job
	enqueued []*models.Job
	retries  []string
	nextID   int
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: make(map[string]*models.Job)}
}

func (q *fakeQueue) Enqueue(ctx context.Context, jobType string, payload models.JobPayload, maxAttempts int, backoffBase time.Duration) (*models.Job, error) {
	q.nextID++
	job := &models.Job{
		ID:           fmt.Sprintf("job-%03d", q.nextID),
		Type:         jobType,
		SubmissionID: payload.SubmissionID,
		Payload:      payload,
		State:        models.JobStateQueued,
		MaxAttempts:  maxAttempts,
		BackoffBase:  backoffBase,
	}
	q.jobs[job.ID] = job
	q.enqueued = append(q.enqueued, job)
	return job, nil
}

func (q *fakeQueue) GetJob(ctx context.Context, jobID string) (*models.Job, error) {
	return q.jobs[jobID], nil
}

func (q *fakeQueue) FindActiveBySubmission(ctx context.Context, submissionID string) (*models.Job, error) {
	for _, job := range q.jobs {
		if job.SubmissionID != submissionID {
			continue
		}
		switch job.State {
		case models.JobStateQueued, models.JobStateDelayed, models.JobStateActive:
			return job, nil
		}
	}
	return nil, nil
}

func (q *fakeQueue) MarkActive(ctx context.Context, jobID string) error {
	q.jobs[jobID].State = models.JobStateActive
	return nil
}

func (q *fakeQueue) MarkCompleted(ctx context.Context, jobID string) error {
	q.jobs[jobID].State = models.JobStateCompleted
	return nil
}

func (q *fakeQueue) MarkFailed(ctx context.Context, jobID string, reason string) error {
	q.jobs[jobID].State = models.JobStateFailed
	q.jobs[jobID].LastError = reason
	return nil
}

func (q *fakeQueue) ScheduleRetry(ctx context.Context, jobID string, reason string) (bool, error) {
	job := q.jobs[jobID]
	job.AttemptsMade++
	q.retries = append(q.retries, jobID)
	if job.AttemptsMade >= job.MaxAttempts {
		job.State = models.JobStateFailed
		job.LastError = reason
		return false, nil
	}
	job.State = models.JobStateDelayed
	return true, nil
}

func (q *fakeQueue) Clean(ctx context.Context, olderThan time.Duration, state models.JobState) (int64, error) {
	return 0, nil
}

func validSubmission() *models.Submission {
	return &models.Submission{
		ID:           "sub-1",
		StudentID:    "student-a",
		AssignmentID: "assignment-1",
		ClassID:      "class-1",
		InstructorID: "teacher-1",
		Status:       models.SubmissionStatusSubmitted,
		Content:      strings.Repeat("lorem ipsum ", 50),
	}
}

func newTestService(subs ...*models.Submission) (CheckService, *fakeCheckStore, *fakeQueue) {
	store := &fakeSubmissionStore{submissions: make(map[string]*models.Submission)}
	for _, sub := range subs {
		store.submissions[sub.ID] = sub
	}
	checks := newFakeCheckStore()
	q := newFakeQueue()

	svc := NewCheckService(store, checks, q, CheckConfig{
		MaxAttempts: 3,
		BackoffBase: 5 * time.Second,
		Language:    "en",
		Country:     "us",
	}, zerolog.Nop())

	return svc, checks, q
}

func TestSubmitCheckValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*models.Submission)
		requester string
		wantErr   error
	}{
		{
			name:      "unknown submission",
			mutate:    func(s *models.Submission) { s.ID = "other" },
			requester: "teacher-1",
			wantErr:   ErrSubmissionNotFound,
		},
		{
			name:      "student cannot request a check",
			mutate:    func(s *models.Submission) {},
			requester: "student-a",
			wantErr:   ErrAccessDenied,
		},
		{
			name:      "instructor of another class is denied",
			mutate:    func(s *models.Submission) {},
			requester: "teacher-2",
			wantErr:   ErrAccessDenied,
		},
		{
			name:      "draft submission is rejected",
			mutate:    func(s *models.Submission) { s.Status = models.SubmissionStatusDraft },
			requester: "teacher-1",
			wantErr:   ErrSubmissionNotSubmitted,
		},
		{
			name:      "content below minimum length",
			mutate:    func(s *models.Submission) { s.Content = "too short" },
			requester: "teacher-1",
			wantErr:   ErrContentTooShort,
		},
		{
			name:      "content above maximum length",
			mutate:    func(s *models.Submission) { s.Content = strings.Repeat("x", MaxCheckContentLength+1) },
			requester: "teacher-1",
			wantErr:   ErrContentTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := validSubmission()
			tt.mutate(sub)
			svc, checks, q := newTestService(sub)

			_, err := svc.SubmitCheck(context.Background(), "sub-1", tt.requester, models.CheckOption{})
			require.ErrorIs(t, err, tt.wantErr)

			// Nothing is persisted or enqueued on a rejected request.
			require.Zero(t, checks.processingCnt)
			require.Empty(t, q.enqueued)
		})
	}
}

func TestSubmitCheckEnqueues(t *testing.T) {
	svc, checks, q := newTestService(validSubmission())

	resp, err := svc.SubmitCheck(context.Background(), "sub-1", "teacher-1", models.CheckOption{})
	require.NoError(t, err)
	require.NotEmpty(t, resp.JobID)
	require.Equal(t, models.CheckStatus("queued"), resp.Status)
	require.False(t, resp.Cached)

	require.Equal(t, 1, checks.processingCnt)
	require.Len(t, q.enqueued, 1)

	job := q.enqueued[0]
	require.Equal(t, JobTypePlagiarismCheck, job.Type)
	require.Equal(t, 3, job.MaxAttempts)
	require.Equal(t, 5*time.Second, job.BackoffBase)
	require.Equal(t, "student-a", job.Payload.StudentID)
	require.Equal(t, "teacher-1", job.Payload.RequesterID)
	require.NotEmpty(t, job.Payload.Content)

	// Unset options fall back to the configured defaults.
	require.Equal(t, "en", job.Payload.Options.Language)
	require.Equal(t, "us", job.Payload.Options.Country)
}

func TestSubmitCheckKeepsCallerOptions(t *testing.T) {
	svc, _, q := newTestService(validSubmission())

	_, err := svc.SubmitCheck(context.Background(), "sub-1", "teacher-1", models.CheckOption{
		Language: "id",
		Country:  "id",
	})
	require.NoError(t, err)
	require.Equal(t, "id", q.enqueued[0].Payload.Options.Language)
	require.Equal(t, "id", q.enqueued[0].Payload.Options.Country)
}

func TestSubmitCheckDeduplicatesPendingJob(t *testing.T) {
	svc, checks, q := newTestService(validSubmission())

	first, err := svc.SubmitCheck(context.Background(), "sub-1", "teacher-1", models.CheckOption{})
	require.NoError(t, err)

	second, err := svc.SubmitCheck(context.Background(), "sub-1", "teacher-1", models.CheckOption{})
	require.NoError(t, err)

	require.Equal(t, first.JobID, second.JobID)
	require.Len(t, q.enqueued, 1)
	require.Equal(t, 1, checks.processingCnt)
}

func TestSubmitCheckDeduplicatesActiveJob(t *testing.T) {
	svc, _, q := newTestService(validSubmission())

	first, err := svc.SubmitCheck(context.Background(), "sub-1", "teacher-1", models.CheckOption{})
	require.NoError(t, err)
	require.NoError(t, q.MarkActive(context.Background(), first.JobID))

	second, err := svc.SubmitCheck(context.Background(), "sub-1", "teacher-1", models.CheckOption{})
	require.NoError(t, err)
	require.Equal(t, first.JobID, second.JobID)
	require.Equal(t, models.CheckStatusProcessing, second.Status)
	require.Len(t, q.enqueued, 1)
}

func TestSubmitCheckShortCircuitsCompletedResult(t *testing.T) {
	svc, checks, q := newTestService(validSubmission())

	now := time.Now()
	require.NoError(t, checks.UpsertCompleted(context.Background(), "sub-1", models.CheckResult{Score: 12.5}, now))
	checks.completedCnt = 0
	checks.processingCnt = 0

	resp, err := svc.SubmitCheck(context.Background(), "sub-1", "teacher-1", models.CheckOption{})
	require.NoError(t, err)
	require.True(t, resp.Cached)
	require.Equal(t, models.CheckStatusCompleted, resp.Status)
	require.Empty(t, resp.JobID)
	require.Empty(t, q.enqueued)
	require.Zero(t, checks.processingCnt)
}

func TestRecheckOverridesCompletedResult(t *testing.T) {
	svc, checks, q := newTestService(validSubmission())

	require.NoError(t, checks.UpsertCompleted(context.Background(), "sub-1", models.CheckResult{Score: 12.5}, time.Now()))

	resp, err := svc.Recheck(context.Background(), "sub-1", "teacher-1", models.CheckOption{})
	require.NoError(t, err)
	require.False(t, resp.Cached)
	require.NotEmpty(t, resp.JobID)
	require.Len(t, q.enqueued, 1)
	require.Equal(t, 1, checks.processingCnt)
}

func TestRecheckStillDeduplicatesPendingJob(t *testing.T) {
	svc, _, q := newTestService(validSubmission())

	first, err := svc.SubmitCheck(context.Background(), "sub-1", "teacher-1", models.CheckOption{})
	require.NoError(t, err)

	second, err := svc.Recheck(context.Background(), "sub-1", "teacher-1", models.CheckOption{})
	require.NoError(t, err)
	require.Equal(t, first.JobID, second.JobID)
	require.Len(t, q.enqueued, 1)
}

func TestQueryStatus(t *testing.T) {
	t.Run("no job and no check", func(t *testing.T) {
		svc, _, _ := newTestService(validSubmission())

		resp, err := svc.QueryStatus(context.Background(), "sub-1", "student-a")
		require.NoError(t, err)
		require.Equal(t, models.CheckStatusNotChecked, resp.Status)
		require.Empty(t, resp.JobID)
		require.Nil(t, resp.Score)
	})

	t.Run("pending job wins over the check row", func(t *testing.T) {
		svc, _, _ := newTestService(validSubmission())

		submitted, err := svc.SubmitCheck(context.Background(), "sub-1", "teacher-1", models.CheckOption{})
		require.NoError(t, err)

		resp, err := svc.QueryStatus(context.Background(), "sub-1", "teacher-1")
		require.NoError(t, err)
		require.Equal(t, submitted.JobID, resp.JobID)
		require.Equal(t, models.CheckStatus("queued"), resp.Status)
	})

	t.Run("completed check exposes the score", func(t *testing.T) {
		svc, checks, _ := newTestService(validSubmission())
		require.NoError(t, checks.UpsertCompleted(context.Background(), "sub-1", models.CheckResult{Score: 42.5}, time.Now()))

		resp, err := svc.QueryStatus(context.Background(), "sub-1", "student-a")
		require.NoError(t, err)
		require.Equal(t, models.CheckStatusCompleted, resp.Status)
		require.NotNil(t, resp.Score)
		require.Equal(t, 42.5, *resp.Score)
		require.NotNil(t, resp.CheckedAt)
	})

	t.Run("failed check hides the score", func(t *testing.T) {
		svc, checks, _ := newTestService(validSubmission())
		require.NoError(t, checks.UpsertFailed(context.Background(), "sub-1", time.Now()))

		resp, err := svc.QueryStatus(context.Background(), "sub-1", "student-a")
		require.NoError(t, err)
		require.Equal(t, models.CheckStatusFailed, resp.Status)
		require.Nil(t, resp.Score)
	})

	t.Run("unrelated user is denied", func(t *testing.T) {
		svc, _, _ := newTestService(validSubmission())

		_, err := svc.QueryStatus(context.Background(), "sub-1", "student-b")
		require.ErrorIs(t, err, ErrAccessDenied)
	})
}

func TestGetCheck(t *testing.T) {
	svc, checks, _ := newTestService(validSubmission())

	_, err := svc.GetCheck(context.Background(), "sub-1", "student-a")
	require.ErrorIs(t, err, ErrCheckNotFound)

	require.NoError(t, checks.UpsertCompleted(context.Background(), "sub-1", models.CheckResult{Score: 7.5, WordCount: 600}, time.Now()))

	check, err := svc.GetCheck(context.Background(), "sub-1", "teacher-1")
	require.NoError(t, err)
	require.Equal(t, models.CheckStatusCompleted, check.Status)
	require.Equal(t, 7.5, check.Score)
	require.Equal(t, 600, check.WordCount)

	_, err = svc.GetCheck(context.Background(), "sub-1", "teacher-2")
	require.ErrorIs(t, err, ErrAccessDenied)
}
