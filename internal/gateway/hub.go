package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/aryasetiap/protextify-backendv2-sub000/internal/config"
	"github.com/aryasetiap/protextify-backendv2-sub000/internal/service/integration"
)

// Hub owns the websocket transport: it upgrades requests, authenticates the
// handshake, runs one sequential read loop per connection and serializes
// writes per socket. Everything above the transport goes through Router.
type Hub struct {
	upgrader websocket.Upgrader
	identity integration.IdentityClient
	router   *Router
	cfg      config.GatewayConfig
	logger   zerolog.Logger

	mu    sync.RWMutex
	socks map[string]*wsConn
}

type wsConn struct {
	id   string
	sock *websocket.Conn
	mu   sync.Mutex // serializes writes to the socket
}

func NewHub(identity integration.IdentityClient, cfg config.GatewayConfig, logger zerolog.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		identity: identity,
		cfg:      cfg,
		logger:   logger,
		socks:    make(map[string]*wsConn),
	}
}

// SetRouter finishes wiring; the hub and router reference each other, so
// the router is attached after construction.
func (h *Hub) SetRouter(router *Router) {
	h.router = router
}

// HandleWS upgrades the request and runs the connection lifecycle.
// The handshake token is taken from the auth query field, then the
// Authorization header, then the token query parameter, in that order.
// A missing or invalid token disconnects immediately.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	token := extractToken(r)
	if token == "" {
		sock.Close()
		return
	}

	identity, err := h.identity.Verify(r.Context(), token)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Handshake token rejected")
		h.writeRaw(sock, EventError, ErrorPayload{Message: "authentication failed"})
		sock.Close()
		return
	}

	conn := Connection{
		ID:     uuid.New().String(),
		UserID: identity.UserID,
		Role:   identity.Role,
	}

	ws := &wsConn{id: conn.ID, sock: sock}
	h.mu.Lock()
	h.socks[conn.ID] = ws
	h.mu.Unlock()

	h.router.HandleConnect(conn)

	h.readLoop(conn, ws)

	h.router.HandleDisconnect(conn.ID)
	h.mu.Lock()
	delete(h.socks, conn.ID)
	h.mu.Unlock()
	sock.Close()
}

// readLoop processes this connection's inbound events sequentially; many
// connections run their loops concurrently.
func (h *Hub) readLoop(conn Connection, ws *wsConn) {
	if h.cfg.MaxMessageSize > 0 {
		ws.sock.SetReadLimit(h.cfg.MaxMessageSize)
	}

	for {
		_, raw, err := ws.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Str("conn_id", conn.ID).Msg("Websocket closed unexpectedly")
			}
			return
		}

		var envelope Envelope
		if err := json.Unmarshal(raw, &envelope); err != nil {
			h.Send(conn.ID, EventError, ErrorPayload{Message: "malformed message"})
			continue
		}

		h.dispatch(conn, envelope)
	}
}

func (h *Hub) dispatch(conn Connection, envelope Envelope) {
	ctx := context.Background()

	switch envelope.Event {
	case EventJoinSubmission:
		var payload JoinSubmissionPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.SubmissionID == "" {
			h.Send(conn.ID, EventError, ErrorPayload{Message: "submissionId is required"})
			return
		}
		h.router.JoinSubmissionRoom(ctx, conn.ID, payload.SubmissionID)

	case EventUpdateContent:
		var payload UpdateContentPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.SubmissionID == "" {
			h.Send(conn.ID, EventError, ErrorPayload{Message: "submissionId is required"})
			return
		}
		h.router.UpdateContent(ctx, conn.ID, payload.SubmissionID, payload.Content)

	case EventMonitorAssignment:
		var payload MonitorAssignmentPayload
		if err := json.Unmarshal(envelope.Data, &payload); err != nil || payload.AssignmentID == "" {
			h.Send(conn.ID, EventError, ErrorPayload{Message: "assignmentId is required"})
			return
		}
		h.router.MonitorAssignment(ctx, conn.ID, payload.AssignmentID)

	default:
		h.Send(conn.ID, EventError, ErrorPayload{Message: "unknown event: " + envelope.Event})
	}
}

// Send implements Sender. Delivery is best effort: a write failure only
// logs, the read loop will notice the dead socket and clean up.
func (h *Hub) Send(connID, event string, data any) {
	h.mu.RLock()
	ws, ok := h.socks[connID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	if err := h.writeFrame(ws, event, data); err != nil {
		h.logger.Debug().Err(err).Str("conn_id", connID).Str("event", event).Msg("Failed to write to socket")
	}
}

func (h *Hub) writeRaw(sock *websocket.Conn, event string, data any) {
	deadline := time.Now().Add(h.writeTimeout())
	sock.SetWriteDeadline(deadline)
	_ = sock.WriteJSON(OutboundFrame{Event: event, Data: data})
}

func (h *Hub) writeFrame(ws *wsConn, event string, data any) error {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	ws.sock.SetWriteDeadline(time.Now().Add(h.writeTimeout()))
	return ws.sock.WriteJSON(OutboundFrame{Event: event, Data: data})
}

func (h *Hub) writeTimeout() time.Duration {
	if h.cfg.WriteTimeout > 0 {
		return h.cfg.WriteTimeout
	}
	return 10 * time.Second
}

// CloseAll terminates every live socket; used during shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, ws := range h.socks {
		ws.sock.WriteControl(websocket.CloseMessage, nil, time.Now().Add(time.Second))
		ws.sock.Close()
		delete(h.socks, id)
	}
}

// extractToken checks the auth query field first, then the Authorization
// header, then the token query parameter.
func extractToken(r *http.Request) string {
	if auth := r.URL.Query().Get("auth"); auth != "" {
		return auth
	}

	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}

	return r.URL.Query().Get("token")
}
