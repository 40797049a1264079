package model

import (
	"encoding/json"
	"time"
)

// Relayed event types. Anything outside this set is dropped by the relay
// without an error to the sender.
const (
	EventPlayerJoin    = "player_join"
	EventPlayerQuit    = "player_quit"
	EventPlayerDeath   = "player_death"
	EventPlayerChat    = "player_chat"
	EventPlayerMessage = "player_message"
)

// RelayedEventTypes is the allow-list consulted by the relay engine.
var RelayedEventTypes = map[string]bool{
	EventPlayerJoin:    true,
	EventPlayerQuit:    true,
	EventPlayerDeath:   true,
	EventPlayerChat:    true,
	EventPlayerMessage: true,
}

// TargetAll addresses an inbound message to every other connected node.
const TargetAll = "all"

// InboundMessage is the wire shape a node sends to the relay.
type InboundMessage struct {
	Type     string          `json:"type"`
	TargetID string          `json:"targetId"`
	Payload  json.RawMessage `json:"msg"`
}

// OutboundMessage is the normalized envelope forwarded to target nodes.
type OutboundMessage struct {
	FromID   string          `json:"fromId"`
	FromName string          `json:"fromName"`
	Type     string          `json:"type"`
	Payload  json.RawMessage `json:"msg"`
	Time     int64           `json:"time"`
}

// HeartbeatMessage is the application-level liveness probe sent alongside the
// protocol ping on every monitor tick.
type HeartbeatMessage struct {
	Type    string           `json:"type"`
	Time    int64            `json:"time"`
	Payload HeartbeatPayload `json:"msg"`
}

// HeartbeatPayload is the body of a heartbeat probe.
type HeartbeatPayload struct {
	Status string `json:"status"`
}

// NewHeartbeat builds a heartbeat probe stamped with the given time.
func NewHeartbeat(now time.Time) HeartbeatMessage {
	return HeartbeatMessage{
		Type:    "heartbeat",
		Time:    now.UnixMilli(),
		Payload: HeartbeatPayload{Status: "ping"},
	}
}

// EventLog is a persisted audit record of an event ingested over HTTP.
type EventLog struct {
	ID        int64
	EventType string
	NodeName  string
	Timestamp time.Time
	Data      json.RawMessage
	APIKeyID  string
}
