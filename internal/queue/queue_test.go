package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/models"
)

type fakeJobRepo struct {
	jobs map[string]*models.Job
}

func newFakeJobRepo() *fakeJobRepo {
	return &fakeJobRepo{jobs: make(map[string]*models.Job)}
}

func (r *fakeJobRepo) Create(ctx context.Context, job *models.Job) error {
	clone := *job
	r.jobs[job.ID] = &clone
	return nil
}

func (r *fakeJobRepo) GetByID(ctx context.Context, jobID string) (*models.Job, error) {
	return r.jobs[jobID], nil
}

func (r *fakeJobRepo) FindBySubmissionAndStates(ctx context.Context, submissionID string, states []models.JobState) (*models.Job, error) {
	for _, job := range r.jobs {
		if job.SubmissionID != submissionID {
			continue
		}
		for _, state := range states {
			if job.State == state {
				return job, nil
			}
		}
	}
	return nil, nil
}

func (r *fakeJobRepo) UpdateState(ctx context.Context, jobID string, state models.JobState, lastError string) error {
	job, ok := r.jobs[jobID]
	if !ok {
		return errors.New("job not found")
	}
	job.State = state
	job.LastError = lastError
	return nil
}

func (r *fakeJobRepo) IncrementAttempts(ctx context.Context, jobID string) (int, error) {
	job, ok := r.jobs[jobID]
	if !ok {
		return 0, errors.New("job not found")
	}
	job.AttemptsMade++
	return job.AttemptsMade, nil
}

func (r *fakeJobRepo) DeleteOlderThan(ctx context.Context, age time.Duration, state models.JobState) (int64, error) {
	var removed int64
	for id, job := range r.jobs {
		if job.State == state {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed, nil
}

type published struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Delay      time.Duration
}

type fakePublisher struct {
	published []published
	err       error
}

func (p *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, body []byte) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, published{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return nil
}

func (p *fakePublisher) PublishWithDelay(ctx context.Context, exchange, routingKey string, body []byte, delay time.Duration) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, published{Exchange: exchange, RoutingKey: routingKey, Body: body, Delay: delay})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func newTestQueue() (CheckQueue, *fakeJobRepo, *fakePublisher) {
	repo := newFakeJobRepo()
	pub := &fakePublisher{}
	q := NewCheckQueue(repo, pub, Config{
		Exchange:   "protextify.checks",
		RoutingKey: "check.requested",
	}, zerolog.Nop())
	return q, repo, pub
}

func checkPayload() models.JobPayload {
	return models.JobPayload{
		SubmissionID: "sub-1",
		StudentID:    "student-a",
		RequesterID:  "teacher-1",
		Content:      "content",
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attemptsMade int
		want         time.Duration
	}{
		{1, 5 * time.Second},
		{2, 10 * time.Second},
		{3, 20 * time.Second},
		{0, 5 * time.Second},
	}

	for _, tt := range tests {
		require.Equal(t, tt.want, Backoff(5*time.Second, tt.attemptsMade), "attempt %d", tt.attemptsMade)
	}
}

func TestEnqueuePersistsAndPublishes(t *testing.T) {
	q, repo, pub := newTestQueue()

	job, err := q.Enqueue(context.Background(), "plagiarism.check", checkPayload(), 3, 5*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)
	require.Equal(t, models.JobStateQueued, job.State)
	require.Equal(t, 0, job.AttemptsMade)

	stored, err := repo.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Equal(t, "sub-1", stored.SubmissionID)
	require.Equal(t, 3, stored.MaxAttempts)

	// The message carries only the dispatch event, never the payload.
	require.Len(t, pub.published, 1)
	require.Equal(t, "protextify.checks", pub.published[0].Exchange)
	require.Equal(t, "check.requested", pub.published[0].RoutingKey)
	require.Zero(t, pub.published[0].Delay)

	var event models.CheckRequestedEvent
	require.NoError(t, json.Unmarshal(pub.published[0].Body, &event))
	require.Equal(t, job.ID, event.JobID)
	require.Equal(t, "sub-1", event.SubmissionID)
	require.NotContains(t, string(pub.published[0].Body), "content")
}

func TestEnqueuePublishFailureDoesNotWedgeSubmission(t *testing.T) {
	q, repo, pub := newTestQueue()
	pub.err = errors.New("channel closed")

	_, err := q.Enqueue(context.Background(), "plagiarism.check", checkPayload(), 3, 5*time.Second)
	require.Error(t, err)

	// The unpublished row must not count against the submission, or no
	// later SubmitCheck could ever enqueue again.
	found, err := q.FindActiveBySubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Nil(t, found)

	require.Len(t, repo.jobs, 1)
	for _, job := range repo.jobs {
		require.Equal(t, models.JobStateFailed, job.State)
		require.Contains(t, job.LastError, "publish failed")
	}
}

func TestScheduleRetryPublishFailureFailsJob(t *testing.T) {
	q, repo, pub := newTestQueue()

	job, err := q.Enqueue(context.Background(), "plagiarism.check", checkPayload(), 3, 5*time.Second)
	require.NoError(t, err)

	pub.err = errors.New("channel closed")

	scheduled, err := q.ScheduleRetry(context.Background(), job.ID, "timeout")
	require.Error(t, err)
	require.False(t, scheduled)

	// No message is in flight, so the row must be terminal rather than
	// parked as delayed forever.
	require.Equal(t, models.JobStateFailed, repo.jobs[job.ID].State)

	found, err := q.FindActiveBySubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestFindActiveBySubmission(t *testing.T) {
	q, repo, _ := newTestQueue()

	job, err := q.Enqueue(context.Background(), "plagiarism.check", checkPayload(), 3, 5*time.Second)
	require.NoError(t, err)

	found, err := q.FindActiveBySubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, job.ID, found.ID)

	// Terminal jobs no longer count against the submission.
	require.NoError(t, repo.UpdateState(context.Background(), job.ID, models.JobStateCompleted, ""))
	found, err = q.FindActiveBySubmission(context.Background(), "sub-1")
	require.NoError(t, err)
	require.Nil(t, found)
}

func TestScheduleRetryBacksOffExponentially(t *testing.T) {
	q, repo, pub := newTestQueue()

	job, err := q.Enqueue(context.Background(), "plagiarism.check", checkPayload(), 3, 5*time.Second)
	require.NoError(t, err)

	scheduled, err := q.ScheduleRetry(context.Background(), job.ID, "timeout")
	require.NoError(t, err)
	require.True(t, scheduled)
	require.Equal(t, models.JobStateDelayed, repo.jobs[job.ID].State)
	require.Equal(t, "timeout", repo.jobs[job.ID].LastError)

	scheduled, err = q.ScheduleRetry(context.Background(), job.ID, "timeout again")
	require.NoError(t, err)
	require.True(t, scheduled)

	// First publish is the immediate dispatch; the retries carry growing
	// delays.
	require.Len(t, pub.published, 3)
	require.Equal(t, 5*time.Second, pub.published[1].Delay)
	require.Equal(t, 10*time.Second, pub.published[2].Delay)
}

func TestScheduleRetryExhaustionFailsJob(t *testing.T) {
	q, repo, pub := newTestQueue()

	job, err := q.Enqueue(context.Background(), "plagiarism.check", checkPayload(), 2, 5*time.Second)
	require.NoError(t, err)

	scheduled, err := q.ScheduleRetry(context.Background(), job.ID, "first failure")
	require.NoError(t, err)
	require.True(t, scheduled)

	scheduled, err = q.ScheduleRetry(context.Background(), job.ID, "second failure")
	require.NoError(t, err)
	require.False(t, scheduled)

	require.Equal(t, models.JobStateFailed, repo.jobs[job.ID].State)
	require.Equal(t, "second failure", repo.jobs[job.ID].LastError)

	// No republish once attempts run out.
	require.Len(t, pub.published, 2)
}

func TestScheduleRetryUnknownJob(t *testing.T) {
	q, _, _ := newTestQueue()

	_, err := q.ScheduleRetry(context.Background(), "ghost", "whatever")
	require.Error(t, err)
}

func TestClean(t *testing.T) {
	q, repo, _ := newTestQueue()

	job, err := q.Enqueue(context.Background(), "plagiarism.check", checkPayload(), 3, 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, repo.UpdateState(context.Background(), job.ID, models.JobStateCompleted, ""))

	removed, err := q.Clean(context.Background(), time.Hour, models.JobStateCompleted)
	require.NoError(t, err)
	require.Equal(t, int64(1), removed)
}
