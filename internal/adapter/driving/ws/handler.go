// Package ws is the driving adapter for node relay connections: it upgrades
// HTTP requests to WebSocket, authenticates the handshake headers against the
// node directory, and pumps inbound messages into the relay hub.
package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
	"github.com/ericfisherdev/relayhub/internal/domain/port/driven"
	"github.com/ericfisherdev/relayhub/internal/relay"
)

// Handshake headers a node must present before admission.
const (
	headerUUID  = "X-UUID"
	headerToken = "X-Token"
)

// Handler upgrades and admits node connections.
type Handler struct {
	hub      *relay.Hub
	nodes    driven.NodeStore
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewHandler creates a Handler over the given hub and node directory.
func NewHandler(hub *relay.Hub, nodes driven.NodeStore, logger *slog.Logger) *Handler {
	return &Handler{
		hub:   hub,
		nodes: nodes,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Nodes are server processes, not browsers; origin checks do
			// not apply to this endpoint.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP handles GET /ws. Authentication happens after the upgrade so the
// rejection can use a WebSocket close code the node plugin understands, but
// strictly before any registry mutation.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nodeUUID := r.Header.Get(headerUUID)
	token := r.Header.Get(headerToken)

	wsConn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn := newNodeConn(wsConn)

	if nodeUUID == "" || token == "" {
		h.logger.Warn("ws rejected, missing identity headers", "remote", r.RemoteAddr)
		_ = conn.Close(relay.ClosePolicyViolation, "Unauthorized")
		return
	}

	node, err := h.nodes.Verify(r.Context(), nodeUUID, token)
	if err != nil {
		h.logger.Error("node verification failed", "uuid", nodeUUID, "error", err)
		_ = conn.Close(relay.ClosePolicyViolation, "Unauthorized")
		return
	}
	if node == nil {
		h.logger.Warn("ws rejected, invalid uuid or token", "remote", r.RemoteAddr, "uuid", nodeUUID)
		_ = conn.Close(relay.ClosePolicyViolation, "Unauthorized")
		return
	}

	if err := h.hub.Admit(r.Context(), node.UUID, node.Name, conn); err != nil {
		if errors.Is(err, driven.ErrAlreadyConnected) {
			h.logger.Warn("ws rejected, node already connected", "uuid", node.UUID, "name", node.Name)
			_ = conn.Close(relay.ClosePolicyViolation, "Already connected")
			return
		}
		h.logger.Error("admission failed", "uuid", node.UUID, "error", err)
		_ = conn.Terminate()
		return
	}

	wsConn.SetPongHandler(func(string) error {
		h.hub.Touch(node.UUID)
		return nil
	})

	h.readPump(node.UUID, wsConn, conn)
}

// readPump consumes inbound frames until the connection dies, then performs
// the registry removal. Transport errors and clean closes are bookkept
// identically.
func (h *Handler) readPump(nodeUUID string, wsConn *websocket.Conn, conn *nodeConn) {
	defer h.hub.Remove(nodeUUID, conn)

	for {
		_, data, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.logger.Debug("ws read error", "uuid", nodeUUID, "error", err)
			}
			return
		}

		// Any inbound frame proves the node is alive, including heartbeat
		// responses that the allow-list later drops.
		h.hub.Touch(nodeUUID)

		var msg model.InboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logger.Error("ws message parse error", "uuid", nodeUUID, "error", err)
			continue
		}

		h.hub.Route(nodeUUID, msg)
	}
}
