package gateway

import (
	"fmt"
	"strings"
	"sync"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/models"
)

// Connection is the identity behind one live socket. It exists only between
// a successful handshake and the disconnect; nothing here is persisted.
type Connection struct {
	ID     string
	UserID string
	Role   models.Role
}

func UserRoom(userID string) string             { return "user:" + userID }
func SubmissionRoom(submissionID string) string { return "submission:" + submissionID }
func AssignmentRoom(assignmentID string) string { return "assignment:" + assignmentID }

// SubmissionID extracts the submission id from a submission room name.
func SubmissionID(room string) (string, bool) {
	return strings.CutPrefix(room, "submission:")
}

// Registry tracks connections and room membership. It is transport-free and
// safe for concurrent use; the gateway handlers all funnel through it. A
// room whose last member leaves is deleted immediately.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Connection
	rooms map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		conns: make(map[string]Connection),
		rooms: make(map[string]map[string]struct{}),
	}
}

func (r *Registry) Register(conn Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[conn.ID] = conn
}

// Unregister removes the connection and sweeps it out of every room,
// deleting rooms left empty; the emptied rooms are returned so callers can
// release per-room state. Linear in the number of rooms, which is fine at
// expected cardinality; index rooms by connection if that ever changes.
func (r *Registry) Unregister(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.conns, connID)

	var emptied []string
	for room, members := range r.rooms {
		if _, ok := members[connID]; !ok {
			continue
		}
		delete(members, connID)
		if len(members) == 0 {
			delete(r.rooms, room)
			emptied = append(emptied, room)
		}
	}
	return emptied
}

func (r *Registry) Get(connID string) (Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.conns[connID]
	return conn, ok
}

func (r *Registry) Join(room, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[connID]; !ok {
		return fmt.Errorf("unknown connection %s", connID)
	}

	members, ok := r.rooms[room]
	if !ok {
		members = make(map[string]struct{})
		r.rooms[room] = members
	}
	members[connID] = struct{}{}

	return nil
}

func (r *Registry) Leave(room, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[room]
	if !ok {
		return
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, room)
	}
}

// Members returns a snapshot of the room's membership.
func (r *Registry) Members(room string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return nil
	}

	out := make([]string, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	return out
}

func (r *Registry) InRoom(room, connID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.rooms[room]
	if !ok {
		return false
	}
	_, ok = members[connID]
	return ok
}

func (r *Registry) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
