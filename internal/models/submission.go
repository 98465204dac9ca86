package models

import "time"

type Role string

const (
	RoleStudent    Role = "STUDENT"
	RoleInstructor Role = "INSTRUCTOR"
)

type SubmissionStatus string

const (
	SubmissionStatusDraft     SubmissionStatus = "DRAFT"
	SubmissionStatusSubmitted SubmissionStatus = "SUBMITTED"
	SubmissionStatusGraded    SubmissionStatus = "GRADED"
)

// Submission carries the submission row joined with its assignment and
// class, which is everything authorization decisions need.
type Submission struct {
	ID           string           `json:"id" db:"id"`
	StudentID    string           `json:"student_id" db:"student_id"`
	AssignmentID string           `json:"assignment_id" db:"assignment_id"`
	ClassID      string           `json:"class_id" db:"class_id"`
	InstructorID string           `json:"instructor_id" db:"instructor_id"`
	Status       SubmissionStatus `json:"status" db:"status"`
	Content      string           `json:"content" db:"content"`
	Grade        *float64         `json:"grade,omitempty" db:"grade"`
	CreatedAt    time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at" db:"updated_at"`
}

// OwnedBy reports whether the given student owns this submission.
func (s *Submission) OwnedBy(studentID string) bool {
	return s.StudentID == studentID
}

// TaughtBy reports whether the given instructor owns the submission's class.
func (s *Submission) TaughtBy(instructorID string) bool {
	return s.InstructorID == instructorID
}

// Identity is the verified principal behind a gateway connection or an API
// request, as returned by the auth service.
type Identity struct {
	UserID string `json:"user_id"`
	Role   Role   `json:"role"`
}

// SubmissionSnapshot is the per-submission view delivered to instructor
// monitoring rooms. Full content is never pushed over the gateway.
type SubmissionSnapshot struct {
	SubmissionID    string           `json:"submission_id"`
	StudentID       string           `json:"student_id"`
	Status          SubmissionStatus `json:"status"`
	Grade           *float64         `json:"grade,omitempty"`
	PlagiarismScore *float64         `json:"plagiarism_score,omitempty"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
