// Package relay holds the in-memory connection registry and the engine that
// forwards typed events between connected nodes. The registry is the source
// of truth for "is this node currently connected"; the durable online flag in
// the node directory is a best-effort reflection of it.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
	"github.com/ericfisherdev/relayhub/internal/domain/port/driven"
)

// session is one admitted connection. alive is the liveness flag the monitor
// clears on every tick; a pong or any inbound message sets it back.
type session struct {
	uuid  string
	name  string
	conn  Conn
	alive bool
}

// Hub is the connection registry and relay engine. One mutex guards the
// session map; every admit, evict, and route decision happens under it, so
// a node identity can never hold two live entries at once.
type Hub struct {
	mu       sync.Mutex
	sessions map[string]*session

	nodes  driven.NodeStore
	logger *slog.Logger
	now    func() time.Time
}

// NewHub creates an empty Hub over the given node directory.
func NewHub(nodes driven.NodeStore, logger *slog.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*session),
		nodes:    nodes,
		logger:   logger,
		now:      time.Now,
	}
}

// Admit registers a verified connection under its node identity. When the
// identity already holds a live session the new connection is rejected with
// ErrAlreadyConnected: the existing session wins ties. Admission is the only
// path that sets the directory online flag true.
func (h *Hub) Admit(ctx context.Context, uuid, name string, conn Conn) error {
	h.mu.Lock()
	if _, exists := h.sessions[uuid]; exists {
		h.mu.Unlock()
		return fmt.Errorf("admit %s: %w", uuid, driven.ErrAlreadyConnected)
	}
	h.sessions[uuid] = &session{uuid: uuid, name: name, conn: conn, alive: true}

	// The flag write happens under the lock so it cannot interleave with an
	// eviction's offline write for the same identity. Best-effort: a directory
	// write failure must not undo the admission.
	if err := h.nodes.SetOnline(ctx, uuid, true); err != nil {
		h.logger.Error("failed to mark node online", "uuid", uuid, "error", err)
	}
	h.mu.Unlock()

	h.logger.Info("node connected", "uuid", uuid, "name", name)
	return nil
}

// Remove evicts the session for uuid if, and only if, it still owns conn.
// The guard keeps a stale read loop (for a connection that was kicked and
// replaced) from removing its successor. Removal is the only path that sets
// the directory online flag false. Idempotent.
func (h *Hub) Remove(uuid string, conn Conn) {
	h.mu.Lock()
	s, ok := h.sessions[uuid]
	if !ok || s.conn != conn {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, uuid)

	// Written under the lock: a reconnect admitted after this eviction must
	// not have its online flag clobbered by a stale offline write.
	if err := h.nodes.SetOnline(context.Background(), uuid, false); err != nil {
		h.logger.Error("failed to mark node offline", "uuid", uuid, "error", err)
	}
	h.mu.Unlock()

	h.logger.Info("node disconnected", "uuid", uuid, "name", s.name)
}

// Touch marks the session for uuid alive. Called on pong frames and on every
// inbound message.
func (h *Hub) Touch(uuid string) {
	h.mu.Lock()
	if s, ok := h.sessions[uuid]; ok {
		s.alive = true
	}
	h.mu.Unlock()
}

// KickByName forcibly evicts the live connection for the named node,
// performing the same registry removal and offline update as a normal
// disconnect. Returns whether anything was actually evicted; kicking an
// absent name is a safe no-op.
func (h *Hub) KickByName(name string) bool {
	h.mu.Lock()
	var target *session
	for _, s := range h.sessions {
		if s.name == name {
			target = s
			break
		}
	}
	if target != nil {
		delete(h.sessions, target.uuid)
		if err := h.nodes.SetOnline(context.Background(), target.uuid, false); err != nil {
			h.logger.Error("failed to mark node offline", "uuid", target.uuid, "error", err)
		}
	}
	h.mu.Unlock()

	if target == nil {
		return false
	}

	if err := target.conn.Terminate(); err != nil {
		h.logger.Debug("terminate on kick", "uuid", target.uuid, "error", err)
	}

	h.logger.Info("node kicked", "uuid", target.uuid, "name", name)
	return true
}

// Count returns the number of live sessions.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Route forwards one inbound message from the named sender. Types outside
// the allow-list are dropped silently, as are messages to absent targets:
// the relay is at-most-once, best-effort, and never signals the sender.
func (h *Hub) Route(fromUUID string, msg model.InboundMessage) {
	if !model.RelayedEventTypes[msg.Type] {
		return
	}

	h.mu.Lock()
	sender, ok := h.sessions[fromUUID]
	if !ok {
		h.mu.Unlock()
		return
	}

	out := model.OutboundMessage{
		FromID:   sender.uuid,
		FromName: sender.name,
		Type:     msg.Type,
		Payload:  msg.Payload,
		Time:     h.now().UnixMilli(),
	}

	var targets []*session
	if msg.TargetID == model.TargetAll {
		for uuid, s := range h.sessions {
			if uuid != fromUUID {
				targets = append(targets, s)
			}
		}
	} else if s, ok := h.sessions[msg.TargetID]; ok {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		if err := s.conn.WriteJSON(out); err != nil {
			h.logger.Debug("relay write failed", "to", s.uuid, "error", err)
		}
	}

	if len(targets) > 0 {
		h.logger.Info("event relayed", "from", sender.name, "type", msg.Type, "targets", len(targets))
	}
}

// Broadcast fans an already-built envelope out to every live session and
// returns the number of delivery attempts. Used for HTTP-ingested events.
func (h *Hub) Broadcast(msg model.OutboundMessage) int {
	h.mu.Lock()
	targets := make([]*session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.Unlock()

	for _, s := range targets {
		if err := s.conn.WriteJSON(msg); err != nil {
			h.logger.Debug("broadcast write failed", "to", s.uuid, "error", err)
		}
	}

	return len(targets)
}

// Run drives the liveness monitor: every interval it evicts sessions whose
// alive flag is still false from the previous tick, then clears every flag
// and sends a protocol ping plus an application heartbeat. A connection must
// respond at least once per interval to survive.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Sweep()
		}
	}
}

// Sweep performs one liveness tick. Exposed separately from Run so the tick
// can be driven directly in tests.
func (h *Hub) Sweep() {
	h.mu.Lock()
	var dead []*session
	var live []*session
	for _, s := range h.sessions {
		if !s.alive {
			dead = append(dead, s)
			delete(h.sessions, s.uuid)
			if err := h.nodes.SetOnline(context.Background(), s.uuid, false); err != nil {
				h.logger.Error("failed to mark node offline", "uuid", s.uuid, "error", err)
			}
			continue
		}
		s.alive = false
		live = append(live, s)
	}
	h.mu.Unlock()

	for _, s := range dead {
		h.logger.Warn("node heartbeat timeout, terminating", "uuid", s.uuid, "name", s.name)
		if err := s.conn.Terminate(); err != nil {
			h.logger.Debug("terminate on heartbeat timeout", "uuid", s.uuid, "error", err)
		}
	}

	probe := model.NewHeartbeat(h.now())
	for _, s := range live {
		if err := s.conn.Ping(); err != nil {
			h.logger.Debug("ping failed", "uuid", s.uuid, "error", err)
		}
		if err := s.conn.WriteJSON(probe); err != nil {
			h.logger.Debug("heartbeat send failed", "uuid", s.uuid, "error", err)
		}
	}
}
