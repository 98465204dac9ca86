package models

import "time"

// CheckRequestedEvent is the queue message that dispatches one scoring job.
// The payload lives in the jobs table; the message only carries the id, so
// redelivery never resurrects a stale content snapshot.
type CheckRequestedEvent struct {
	JobID        string `json:"job_id"`
	SubmissionID string `json:"submission_id"`
	Timestamp    int64  `json:"timestamp"`
}

type NotificationType string

const (
	NotificationPlagiarismCompleted NotificationType = "plagiarism_completed"
	NotificationPlagiarismFailed    NotificationType = "plagiarism_failed"
	NotificationPaymentCompleted    NotificationType = "payment_completed"
	NotificationPaymentFailed       NotificationType = "payment_failed"
	NotificationGradePosted         NotificationType = "grade_posted"
	NotificationFileReady           NotificationType = "file_ready"
)

// Notification is delivered to a user's personal room only.
type Notification struct {
	Type      NotificationType `json:"type"`
	Message   string           `json:"message"`
	Data      map[string]any   `json:"data,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// SubmissionUpdate carries the fields pushed to a submission room when
// status, grade or plagiarism score change. Nil fields are omitted.
type SubmissionUpdate struct {
	SubmissionID    string    `json:"submissionId"`
	Status          *string   `json:"status,omitempty"`
	Grade           *float64  `json:"grade,omitempty"`
	PlagiarismScore *float64  `json:"plagiarismScore,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}
