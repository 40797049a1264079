package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ericfisherdev/relayhub/internal/application"
	"github.com/ericfisherdev/relayhub/internal/domain/model"
	"github.com/ericfisherdev/relayhub/internal/domain/port/driven"
)

// panelAuthenticator is the slice of the config store the login handler needs.
type panelAuthenticator interface {
	VerifyPanelPassword(ctx context.Context, password string) (bool, error)
}

// sessionIssuer extends sessionValidator with token issuance for login.
type sessionIssuer interface {
	sessionValidator
	Issue() (string, error)
}

// Handler holds the HTTP handlers for the management API.
type Handler struct {
	keys     *application.KeyService
	nodes    *application.NodeService
	events   *application.EventService
	sessions sessionIssuer
	panel    panelAuthenticator
	logger   *slog.Logger
}

// NewHandler creates a Handler with the required dependencies.
func NewHandler(
	keys *application.KeyService,
	nodes *application.NodeService,
	events *application.EventService,
	sessions sessionIssuer,
	panel panelAuthenticator,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		keys:     keys,
		nodes:    nodes,
		events:   events,
		sessions: sessions,
		panel:    panel,
		logger:   logger,
	}
}

// NewServeMux creates the HTTP mux with all management routes registered.
// relayEndpoint, when non-nil, is mounted at GET /ws outside the auth
// middleware: relay connections authenticate with their own node credential
// headers, not bearer tokens.
func NewServeMux(h *Handler, verifier keyVerifier, relayEndpoint http.Handler) *http.ServeMux {
	api := http.NewServeMux()

	api.HandleFunc("POST /api/v1/login", h.Login)

	api.HandleFunc("POST /api/v1/keys", h.CreateKey)
	api.HandleFunc("GET /api/v1/keys", h.ListKeys)
	api.HandleFunc("GET /api/v1/keys/server", h.ListServerKeys)
	api.HandleFunc("GET /api/v1/keys/{id}", h.GetKey)
	api.HandleFunc("PATCH /api/v1/keys/{id}/activate", h.ActivateKey)
	api.HandleFunc("PATCH /api/v1/keys/{id}/deactivate", h.DeactivateKey)
	api.HandleFunc("DELETE /api/v1/keys/{id}", h.DeleteKey)

	api.HandleFunc("GET /api/v1/nodes", h.ListNodes)
	api.HandleFunc("POST /api/v1/nodes/{name}", h.RegisterNode)
	api.HandleFunc("DELETE /api/v1/nodes/{name}", h.DeleteNode)
	api.HandleFunc("POST /api/v1/nodes/{name}/kick", h.KickNode)

	api.HandleFunc("POST /api/v1/events", h.SubmitEvent)
	api.HandleFunc("GET /api/v1/events", h.ListEvents)

	api.HandleFunc("GET /api/v1/health", h.Health)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/",
		recoveryMiddleware(h.logger,
			loggingMiddleware(h.logger,
				authMiddleware(h.sessions, verifier, h.logger, api))))

	if relayEndpoint != nil {
		mux.Handle("GET /ws", relayEndpoint)
	}

	return mux
}

// Login exchanges the panel password for a short-lived session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}

	ok, err := h.panel.VerifyPanelPassword(r.Context(), req.Password)
	if err != nil {
		h.handleError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusUnauthorized, "invalid password")
		return
	}

	token, err := h.sessions.Issue()
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token})
}

// CreateKey creates an API key. Regular-kind requests atomically create a
// paired server key; the raw values appear only in this response.
func (h *Handler) CreateKey(w http.ResponseWriter, r *http.Request) {
	var req CreateKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.keys.Create(r.Context(), actorFrom(r), model.KeyKind(req.Kind), req.Name, req.Description, req.ServerID, req.RegularKeyID)
	if err != nil {
		h.handleError(w, err)
		return
	}

	if result.Paired != nil {
		writeJSON(w, http.StatusCreated, CreateKeyPairResponse{
			RegularKey: toKeyResponse(result.Created.Key, result.Created.RawKey),
			ServerKey:  toKeyResponse(result.Paired.Key, result.Paired.RawKey),
		})
		return
	}

	writeJSON(w, http.StatusCreated, toKeyResponse(result.Created.Key, result.Created.RawKey))
}

// ListKeys returns every key's metadata. Admin only.
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.List(r.Context(), actorFrom(r))
	if err != nil {
		h.handleError(w, err)
		return
	}

	resp := make([]KeyResponse, 0, len(keys))
	for _, k := range keys {
		resp = append(resp, toKeyResponse(k, ""))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListServerKeys returns the server keys visible to the caller: all of them
// for admins, owned ones for regular keys.
func (h *Handler) ListServerKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keys.ListServerKeys(r.Context(), actorFrom(r))
	if err != nil {
		h.handleError(w, err)
		return
	}

	resp := make([]KeyResponse, 0, len(keys))
	for _, k := range keys {
		resp = append(resp, toKeyResponse(k, ""))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetKey returns one key's metadata.
func (h *Handler) GetKey(w http.ResponseWriter, r *http.Request) {
	key, err := h.keys.Get(r.Context(), actorFrom(r), r.PathValue("id"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toKeyResponse(*key, ""))
}

// ActivateKey re-enables a deactivated key.
func (h *Handler) ActivateKey(w http.ResponseWriter, r *http.Request) {
	h.setKeyActive(w, r, true)
}

// DeactivateKey disables a key without destroying it.
func (h *Handler) DeactivateKey(w http.ResponseWriter, r *http.Request) {
	h.setKeyActive(w, r, false)
}

func (h *Handler) setKeyActive(w http.ResponseWriter, r *http.Request, active bool) {
	id := r.PathValue("id")
	if err := h.keys.SetActive(r.Context(), actorFrom(r), id, active); err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "is_active": active})
}

// DeleteKey permanently removes a key.
func (h *Handler) DeleteKey(w http.ResponseWriter, r *http.Request) {
	if err := h.keys.Delete(r.Context(), actorFrom(r), r.PathValue("id")); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListNodes returns the public node directory, online nodes first.
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.nodes.List(r.Context(), actorFrom(r))
	if err != nil {
		h.handleError(w, err)
		return
	}

	resp := make([]NodeResponse, 0, len(nodes))
	for _, n := range nodes {
		resp = append(resp, toNodeResponse(n))
	}
	writeJSON(w, http.StatusOK, resp)
}

// RegisterNode creates or resets the credential for the named node. The
// plaintext token appears only in this response.
func (h *Handler) RegisterNode(w http.ResponseWriter, r *http.Request) {
	node, token, err := h.nodes.Register(r.Context(), actorFrom(r), r.PathValue("name"))
	if err != nil {
		h.handleError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, NodeCredentialResponse{
		UUID:  node.UUID,
		Name:  node.Name,
		Token: token,
	})
}

// DeleteNode evicts any live connection for the named node and removes it
// from the directory.
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	n, err := h.nodes.Delete(r.Context(), actorFrom(r), r.PathValue("name"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "node not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// KickNode forcibly disconnects the named node's live relay connection.
func (h *Handler) KickNode(w http.ResponseWriter, r *http.Request) {
	evicted, err := h.nodes.Kick(r.Context(), actorFrom(r), r.PathValue("name"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"kicked": evicted})
}

// SubmitEvent ingests an event over HTTP, persisting it and broadcasting it
// to all connected nodes.
func (h *Handler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	var req SubmitEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.events.Submit(r.Context(), actorFrom(r), req.EventType, req.ServerName, req.Data); err != nil {
		h.handleError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ListEvents returns recent audit rows, newest first. Admin only.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	events, err := h.events.Recent(r.Context(), actorFrom(r), limit)
	if err != nil {
		h.handleError(w, err)
		return
	}

	resp := make([]EventLogResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, toEventLogResponse(ev))
	}
	writeJSON(w, http.StatusOK, resp)
}

// Health returns liveness plus key and connection counts.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	snap, err := h.keys.Health(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toHealthResponse(snap))
}

// handleError maps domain errors to HTTP status codes.
func (h *Handler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, driven.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, driven.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, driven.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, driven.ErrConflict), errors.Is(err, driven.ErrAlreadyConnected):
		writeError(w, http.StatusConflict, "conflict")
	case errors.Is(err, driven.ErrLastAdmin):
		writeError(w, http.StatusBadRequest, "cannot remove the last active admin key")
	case errors.Is(err, driven.ErrSelfModification):
		writeError(w, http.StatusBadRequest, "cannot modify the key used for this request")
	case errors.Is(err, driven.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
