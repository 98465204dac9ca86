package models

import (
	"encoding/json"
	"time"
)

type CheckStatus string

const (
	CheckStatusNotChecked CheckStatus = "not_checked"
	CheckStatusProcessing CheckStatus = "processing"
	CheckStatusCompleted  CheckStatus = "completed"
	CheckStatusFailed     CheckStatus = "failed"
)

func (cs CheckStatus) String() string {
	return string(cs)
}

// Terminal reports whether no further automatic transition happens
// without a new explicit request.
func (cs CheckStatus) Terminal() bool {
	return cs == CheckStatusCompleted || cs == CheckStatusFailed
}

// PlagiarismCheck is the durable result row for a submission. There is at
// most one row per submission; writes are upserts keyed by submission_id.
type PlagiarismCheck struct {
	SubmissionID string          `json:"submission_id" db:"submission_id"`
	Status       CheckStatus     `json:"status" db:"status"`
	Score        float64         `json:"score" db:"score"`
	WordCount    int             `json:"word_count" db:"word_count"`
	CreditsUsed  int             `json:"credits_used" db:"credits_used"`
	RawResult    json.RawMessage `json:"raw_result,omitempty" db:"raw_result"`
	CheckedAt    *time.Time      `json:"checked_at,omitempty" db:"checked_at"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// CheckResult is what the scoring provider returns for a piece of content.
type CheckResult struct {
	Score       float64         `json:"score"`
	WordCount   int             `json:"word_count"`
	SourceCount int             `json:"source_count"`
	CreditsUsed int             `json:"credits_used"`
	Raw         json.RawMessage `json:"raw,omitempty"`
}
