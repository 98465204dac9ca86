package service

import "errors"

// Typed errors so the delivery layer can map expected failures onto HTTP
// codes without string matching. Validation errors carry the specific
// reason; authorization failures stay generic.
var (
	// Validation / domain state errors.
	ErrSubmissionNotFound     = errors.New("submission not found")
	ErrSubmissionNotSubmitted = errors.New("submission is not in SUBMITTED status")
	ErrContentTooShort        = errors.New("submission content is shorter than 100 characters")
	ErrContentTooLong         = errors.New("submission content exceeds 120000 characters")
	ErrCheckNotFound          = errors.New("no plagiarism check exists for this submission")

	// Authorization errors, kept generic on purpose.
	ErrAccessDenied = errors.New("access denied")
)

const (
	// MinCheckContentLength and MaxCheckContentLength bound the content the
	// scoring provider accepts.
	MinCheckContentLength = 100
	MaxCheckContentLength = 120000
)
