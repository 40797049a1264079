package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/relayhub/internal/application"
	"github.com/ericfisherdev/relayhub/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// KeyResponse is the JSON representation of an API key. The hash never
// appears; Key carries the raw value only in creation responses.
type KeyResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	KeyPrefix    string `json:"key_prefix"`
	Kind         string `json:"key_type"`
	ServerID     string `json:"server_id,omitempty"`
	RegularKeyID string `json:"regular_key_id,omitempty"`
	CreatedAt    string `json:"created_at"`
	LastUsed     string `json:"last_used,omitempty"`
	IsActive     bool   `json:"is_active"`
	Key          string `json:"key,omitempty"`
}

// CreateKeyRequest is the JSON body for the create key endpoint.
type CreateKeyRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	Kind         string `json:"key_type"`
	ServerID     string `json:"server_id"`
	RegularKeyID string `json:"regular_key_id"`
}

// CreateKeyPairResponse is returned when creating a regular key, which
// always produces a linked server key in the same transaction.
type CreateKeyPairResponse struct {
	RegularKey KeyResponse `json:"regular_key"`
	ServerKey  KeyResponse `json:"server_key"`
}

// NodeResponse is the JSON representation of a directory node.
type NodeResponse struct {
	UUID      string `json:"uuid"`
	Name      string `json:"servername"`
	Online    bool   `json:"online"`
	CreatedAt string `json:"created_at"`
}

// NodeCredentialResponse carries a freshly issued node credential. The token
// is shown exactly once.
type NodeCredentialResponse struct {
	UUID  string `json:"uuid"`
	Name  string `json:"servername"`
	Token string `json:"token"`
}

// LoginRequest is the JSON body for the panel login endpoint.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse carries a fresh session token.
type LoginResponse struct {
	Token string `json:"token"`
}

// SubmitEventRequest is the JSON body for the event ingest endpoint.
type SubmitEventRequest struct {
	EventType  string          `json:"event_type"`
	ServerName string          `json:"server_name"`
	Data       json.RawMessage `json:"data"`
}

// EventLogResponse is the JSON representation of one audit log row.
type EventLogResponse struct {
	ID        int64           `json:"id"`
	EventType string          `json:"event_type"`
	NodeName  string          `json:"server_name"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
	APIKeyID  string          `json:"api_key_id,omitempty"`
}

// HealthResponse is the JSON representation of the health endpoint.
type HealthResponse struct {
	Status          string `json:"status"`
	Time            string `json:"timestamp"`
	LiveConnections int    `json:"active_ws"`
	KeysTotal       int    `json:"keys_total"`
	AdminActive     int    `json:"admin_active"`
	RegularActive   int    `json:"regular_active"`
	ServerActive    int    `json:"server_active"`
}

// toKeyResponse converts a domain APIKey, optionally attaching the one-time
// raw key.
func toKeyResponse(key model.APIKey, rawKey string) KeyResponse {
	resp := KeyResponse{
		ID:           key.ID,
		Name:         key.Name,
		Description:  key.Description,
		KeyPrefix:    key.KeyPrefix,
		Kind:         string(key.Kind),
		ServerID:     key.ServerID,
		RegularKeyID: key.RegularKeyID,
		CreatedAt:    key.CreatedAt.UTC().Format(time.RFC3339),
		IsActive:     key.IsActive,
		Key:          rawKey,
	}
	if key.LastUsed != nil {
		resp.LastUsed = key.LastUsed.UTC().Format(time.RFC3339)
	}
	return resp
}

func toNodeResponse(node model.NodePublicInfo) NodeResponse {
	return NodeResponse{
		UUID:      node.UUID,
		Name:      node.Name,
		Online:    node.Online,
		CreatedAt: node.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toEventLogResponse(ev model.EventLog) EventLogResponse {
	return EventLogResponse{
		ID:        ev.ID,
		EventType: ev.EventType,
		NodeName:  ev.NodeName,
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339),
		Data:      ev.Data,
		APIKeyID:  ev.APIKeyID,
	}
}

func toHealthResponse(snap application.HealthSnapshot) HealthResponse {
	return HealthResponse{
		Status:          "healthy",
		Time:            time.Now().UTC().Format(time.RFC3339),
		LiveConnections: snap.LiveConnections,
		KeysTotal:       snap.KeysTotal,
		AdminActive:     snap.AdminActive,
		RegularActive:   snap.RegularActive,
		ServerActive:    snap.ServerActive,
	}
}
