package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/models"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/repository"
)

// Sender delivers one event to one connection. The hub implements it over
// websockets; tests implement it over a slice.
type Sender interface {
	Send(connID, event string, data any)
}

// Router authorizes room membership, applies the content-update throttle
// and fans events out to rooms. Authorization is re-verified per call
// against the store, never cached on the connection.
type Router struct {
	registry    *Registry
	sender      Sender
	throttle    *Throttle
	submissions repository.SubmissionRepository
	logger      zerolog.Logger
	now         func() time.Time
}

func NewRouter(
	registry *Registry,
	sender Sender,
	throttle *Throttle,
	submissions repository.SubmissionRepository,
	logger zerolog.Logger,
) *Router {
	return &Router{
		registry:    registry,
		sender:      sender,
		throttle:    throttle,
		submissions: submissions,
		logger:      logger,
		now:         time.Now,
	}
}

// HandleConnect registers an authenticated connection, auto-joins its
// personal room and acknowledges the handshake.
func (rt *Router) HandleConnect(conn Connection) {
	rt.registry.Register(conn)
	if err := rt.registry.Join(UserRoom(conn.UserID), conn.ID); err != nil {
		rt.logger.Error().Err(err).Str("conn_id", conn.ID).Msg("Failed to join personal room")
	}

	rt.sender.Send(conn.ID, EventConnected, ConnectedPayload{
		Status:    "success",
		UserID:    conn.UserID,
		Message:   "connected to realtime gateway",
		Timestamp: rt.now(),
	})

	rt.logger.Info().
		Str("conn_id", conn.ID).
		Str("user_id", conn.UserID).
		Str("role", string(conn.Role)).
		Msg("Connection registered")
}

func (rt *Router) HandleDisconnect(connID string) {
	for _, room := range rt.registry.Unregister(connID) {
		// The last editor left; the throttle window dies with the room.
		if submissionID, ok := SubmissionID(room); ok {
			rt.throttle.Forget(submissionID)
		}
	}
	rt.logger.Debug().Str("conn_id", connID).Msg("Connection removed")
}

// JoinSubmissionRoom admits the connection iff the student owns the
// submission or the instructor owns its class.
func (rt *Router) JoinSubmissionRoom(ctx context.Context, connID, submissionID string) {
	conn, ok := rt.registry.Get(connID)
	if !ok {
		return
	}

	sub, err := rt.submissions.GetWithContext(ctx, submissionID)
	if err != nil {
		rt.logger.Error().Err(err).Str("submission_id", submissionID).Msg("Failed to load submission for room join")
		rt.sender.Send(connID, EventError, ErrorPayload{Message: "failed to join submission room"})
		return
	}

	if sub == nil || !rt.authorized(conn, sub) {
		rt.sender.Send(connID, EventError, ErrorPayload{Message: "access denied"})
		return
	}

	if err := rt.registry.Join(SubmissionRoom(submissionID), connID); err != nil {
		rt.sender.Send(connID, EventError, ErrorPayload{Message: "failed to join submission room"})
		return
	}

	rt.logger.Debug().
		Str("conn_id", connID).
		Str("submission_id", submissionID).
		Msg("Joined submission room")
}

// MonitorAssignment joins an instructor to the assignment monitoring room
// and pushes the current snapshot list.
func (rt *Router) MonitorAssignment(ctx context.Context, connID, assignmentID string) {
	conn, ok := rt.registry.Get(connID)
	if !ok {
		return
	}

	if conn.Role != models.RoleInstructor {
		rt.sender.Send(connID, EventError, ErrorPayload{Message: "access denied"})
		return
	}

	if err := rt.registry.Join(AssignmentRoom(assignmentID), connID); err != nil {
		rt.sender.Send(connID, EventError, ErrorPayload{Message: "failed to join assignment room"})
		return
	}

	snapshots, err := rt.submissions.ListByAssignment(ctx, assignmentID)
	if err != nil {
		rt.logger.Error().Err(err).Str("assignment_id", assignmentID).Msg("Failed to list submissions for monitoring")
		return
	}

	rt.sender.Send(connID, EventSubmissionListUpdated, SubmissionListUpdatedPayload{
		AssignmentID: assignmentID,
		Submissions:  snapshots,
		Timestamp:    rt.now(),
	})
}

// UpdateContent persists a student's edit and notifies the rest of the
// submission room. Updates inside the throttle window are dropped silently:
// no persistence, no broadcast, no acknowledgement.
func (rt *Router) UpdateContent(ctx context.Context, connID, submissionID, content string) {
	conn, ok := rt.registry.Get(connID)
	if !ok {
		return
	}

	sub, err := rt.submissions.GetWithContext(ctx, submissionID)
	if err != nil {
		rt.logger.Error().Err(err).Str("submission_id", submissionID).Msg("Failed to load submission for content update")
		rt.sendUpdateError(connID, submissionID, "failed to update content")
		return
	}

	if sub == nil || conn.Role != models.RoleStudent || !sub.OwnedBy(conn.UserID) {
		rt.sender.Send(connID, EventError, ErrorPayload{Message: "access denied"})
		return
	}

	if !rt.throttle.Allow(submissionID) {
		return
	}

	updatedAt, err := rt.submissions.UpdateContent(ctx, submissionID, content)
	if err != nil {
		rt.logger.Error().Err(err).Str("submission_id", submissionID).Msg("Failed to persist content update")
		rt.sendUpdateError(connID, submissionID, "failed to save content")
		return
	}

	rt.sender.Send(connID, EventUpdateContentResponse, UpdateContentResponsePayload{
		Status:       "success",
		SubmissionID: submissionID,
		UpdatedAt:    &updatedAt,
		Timestamp:    rt.now(),
	})

	status := string(sub.Status)
	update := models.SubmissionUpdate{
		SubmissionID: submissionID,
		Status:       &status,
		UpdatedAt:    updatedAt,
	}

	for _, member := range rt.registry.Members(SubmissionRoom(submissionID)) {
		if member == connID {
			continue
		}
		rt.sender.Send(member, EventSubmissionUpdated, update)
	}
}

// SendNotification delivers to the user's personal room only.
func (rt *Router) SendNotification(userID string, notification models.Notification) {
	if notification.CreatedAt.IsZero() {
		notification.CreatedAt = rt.now()
	}

	members := rt.registry.Members(UserRoom(userID))
	for _, member := range members {
		rt.sender.Send(member, EventNotification, notification)
	}

	rt.logger.Debug().
		Str("user_id", userID).
		Str("type", string(notification.Type)).
		Int("recipients", len(members)).
		Msg("Notification dispatched")
}

// BroadcastSubmissionUpdate pushes status/grade/score changes to everyone
// in the submission's room.
func (rt *Router) BroadcastSubmissionUpdate(submissionID string, update models.SubmissionUpdate) {
	update.SubmissionID = submissionID
	if update.UpdatedAt.IsZero() {
		update.UpdatedAt = rt.now()
	}

	for _, member := range rt.registry.Members(SubmissionRoom(submissionID)) {
		rt.sender.Send(member, EventSubmissionUpdated, update)
	}
}

// BroadcastAssignmentMonitoring delivers a full snapshot list, not a diff.
func (rt *Router) BroadcastAssignmentMonitoring(assignmentID string, submissions []models.SubmissionSnapshot) {
	payload := SubmissionListUpdatedPayload{
		AssignmentID: assignmentID,
		Submissions:  submissions,
		Timestamp:    rt.now(),
	}

	for _, member := range rt.registry.Members(AssignmentRoom(assignmentID)) {
		rt.sender.Send(member, EventSubmissionListUpdated, payload)
	}
}

func (rt *Router) authorized(conn Connection, sub *models.Submission) bool {
	switch conn.Role {
	case models.RoleStudent:
		return sub.OwnedBy(conn.UserID)
	case models.RoleInstructor:
		return sub.TaughtBy(conn.UserID)
	default:
		return false
	}
}

func (rt *Router) sendUpdateError(connID, submissionID, message string) {
	rt.sender.Send(connID, EventUpdateContentResponse, UpdateContentResponsePayload{
		Status:       "error",
		SubmissionID: submissionID,
		Message:      message,
		Timestamp:    rt.now(),
	})
}
