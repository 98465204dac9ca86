package models

import "time"

type SubmitCheckRequest struct {
	SubmissionID string      `json:"submission_id"`
	Options      CheckOption `json:"options"`
}

type SubmitCheckResponse struct {
	JobID        string      `json:"job_id"`
	SubmissionID string      `json:"submission_id"`
	Status       CheckStatus `json:"status"`
	Cached       bool        `json:"cached,omitempty"`
}

type CheckStatusResponse struct {
	SubmissionID string      `json:"submission_id"`
	JobID        string      `json:"job_id,omitempty"`
	Status       CheckStatus `json:"status"`
	Score        *float64    `json:"score,omitempty"`
	CheckedAt    *time.Time  `json:"checked_at,omitempty"`
}
