package gateway

import (
	"encoding/json"
	"time"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/models"
)

// Client-to-server events.
const (
	EventJoinSubmission    = "joinSubmission"
	EventUpdateContent     = "updateContent"
	EventMonitorAssignment = "monitorAssignment"
)

// Server-to-client events.
const (
	EventConnected             = "connected"
	EventUpdateContentResponse = "updateContentResponse"
	EventSubmissionUpdated     = "submissionUpdated"
	EventNotification          = "notification"
	EventSubmissionListUpdated = "submissionListUpdated"
	EventError                 = "error"
)

// Envelope is the wire frame for inbound messages: an event name plus the
// raw payload, decoded per event by the hub.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type OutboundFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type JoinSubmissionPayload struct {
	SubmissionID string `json:"submissionId"`
}

type UpdateContentPayload struct {
	SubmissionID string `json:"submissionId"`
	Content      string `json:"content"`
	UpdatedAt    string `json:"updatedAt,omitempty"`
}

type MonitorAssignmentPayload struct {
	AssignmentID string `json:"assignmentId"`
}

type ConnectedPayload struct {
	Status    string    `json:"status"`
	UserID    string    `json:"userId"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type UpdateContentResponsePayload struct {
	Status       string     `json:"status"`
	SubmissionID string     `json:"submissionId,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
	Message      string     `json:"message,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}

type SubmissionListUpdatedPayload struct {
	AssignmentID string                      `json:"assignmentId"`
	Submissions  []models.SubmissionSnapshot `json:"submissions"`
	Timestamp    time.Time                   `json:"timestamp"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
