package models

import (
	"time"
)

type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateDelayed   JobState = "delayed"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
)

func (js JobState) String() string {
	return string(js)
}

// NonTerminal job states count against the single-job-per-submission rule.
var NonTerminalJobStates = []JobState{JobStateQueued, JobStateDelayed, JobStateActive}

// PublicJobStatus maps queue-native states onto the status enum exposed to
// callers: queued/delayed collapse into queued, active becomes processing.
func PublicJobStatus(state JobState) CheckStatus {
	switch state {
	case JobStateQueued, JobStateDelayed:
		return "queued"
	case JobStateActive:
		return CheckStatusProcessing
	case JobStateCompleted:
		return CheckStatusCompleted
	case JobStateFailed:
		return CheckStatusFailed
	default:
		return CheckStatusNotChecked
	}
}

// JobPayload is the content snapshot and requester context captured at
// enqueue time. The worker re-fetches authorization state before scoring,
// so the payload is advisory for everything except the content itself.
type JobPayload struct {
	SubmissionID string      `json:"submission_id"`
	StudentID    string      `json:"student_id"`
	RequesterID  string      `json:"requester_id"`
	Content      string      `json:"content"`
	Options      CheckOption `json:"options"`
}

type CheckOption struct {
	Language        string   `json:"language,omitempty"`
	Country         string   `json:"country,omitempty"`
	ExcludedSources []string `json:"excluded_sources,omitempty"`
}

// Job is one durable, retryable unit of scoring work. Rows are owned by the
// queue; everyone else only reads them.
type Job struct {
	ID           string        `json:"id" db:"id"`
	Type         string        `json:"type" db:"type"`
	SubmissionID string        `json:"submission_id" db:"submission_id"`
	Payload      JobPayload    `json:"payload" db:"payload"`
	State        JobState      `json:"state" db:"state"`
	AttemptsMade int           `json:"attempts_made" db:"attempts_made"`
	MaxAttempts  int           `json:"max_attempts" db:"max_attempts"`
	BackoffBase  time.Duration `json:"backoff_base" db:"backoff_base_ms"`
	LastError    string        `json:"last_error,omitempty" db:"last_error"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}
