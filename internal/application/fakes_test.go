package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
	"github.com/ericfisherdev/relayhub/internal/domain/port/driven"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// memKeyStore is a minimal in-memory KeyStore for service tests.
type memKeyStore struct {
	keys   map[string]model.APIKey
	nextID int

	createErr error
	deleted   []string
}

func newMemKeyStore() *memKeyStore {
	return &memKeyStore{keys: make(map[string]model.APIKey)}
}

func (s *memKeyStore) seed(kind model.KeyKind, regularKeyID string, active bool) model.APIKey {
	s.nextID++
	key := model.APIKey{
		ID:           fmt.Sprintf("key-%02d", s.nextID),
		Name:         fmt.Sprintf("key %02d", s.nextID),
		Kind:         kind,
		RegularKeyID: regularKeyID,
		CreatedAt:    time.Now().UTC(),
		IsActive:     active,
	}
	s.keys[key.ID] = key
	return key
}

func (s *memKeyStore) Create(ctx context.Context, kind model.KeyKind, name, description, serverID, regularKeyID string) (model.APIKey, string, error) {
	if s.createErr != nil {
		return model.APIKey{}, "", s.createErr
	}
	key := s.seed(kind, regularKeyID, true)
	key.Name = name
	key.Description = description
	key.ServerID = serverID
	s.keys[key.ID] = key
	return key, kind.Prefix() + "raw_" + key.ID, nil
}

func (s *memKeyStore) CreateRegularWithServerKey(ctx context.Context, name, description, serverID string) (*driven.KeyPair, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	regular, regularRaw, _ := s.Create(ctx, model.KeyKindRegular, name, description, serverID, "")
	server, serverRaw, _ := s.Create(ctx, model.KeyKindServer, name+" - Server Key", description, serverID, regular.ID)
	return &driven.KeyPair{
		Regular:       regular,
		RegularRawKey: regularRaw,
		Server:        server,
		ServerRawKey:  serverRaw,
	}, nil
}

func (s *memKeyStore) Verify(ctx context.Context, rawKey string) (*model.APIKeyView, error) {
	return nil, nil
}

func (s *memKeyStore) GetByID(ctx context.Context, id string) (*model.APIKey, error) {
	key, ok := s.keys[id]
	if !ok {
		return nil, nil
	}
	return &key, nil
}

func (s *memKeyStore) ListAll(ctx context.Context) ([]model.APIKey, error) {
	var out []model.APIKey
	for _, key := range s.keys {
		out = append(out, key)
	}
	return out, nil
}

func (s *memKeyStore) ListServerKeysByOwner(ctx context.Context, regularKeyID string) ([]model.APIKey, error) {
	var out []model.APIKey
	for _, key := range s.keys {
		if key.Kind == model.KeyKindServer && key.RegularKeyID == regularKeyID {
			out = append(out, key)
		}
	}
	return out, nil
}

func (s *memKeyStore) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	key, ok := s.keys[id]
	if !ok {
		return false, nil
	}
	if !active && key.Kind == model.KeyKindAdmin && key.IsActive {
		n, _ := s.CountActiveAdmins(ctx, id)
		if n == 0 {
			return false, driven.ErrLastAdmin
		}
	}
	key.IsActive = active
	s.keys[id] = key
	return true, nil
}

func (s *memKeyStore) Delete(ctx context.Context, id string) error {
	if _, ok := s.keys[id]; !ok {
		return driven.ErrNotFound
	}
	delete(s.keys, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *memKeyStore) CountActiveAdmins(ctx context.Context, excludeID string) (int, error) {
	n := 0
	for _, key := range s.keys {
		if key.Kind == model.KeyKindAdmin && key.IsActive && key.ID != excludeID {
			n++
		}
	}
	return n, nil
}

func (s *memKeyStore) EnsureInitialAdminKey(ctx context.Context) (*model.APIKey, string, error) {
	return nil, "", nil
}

// memNodeStore is a minimal in-memory NodeStore for service tests.
type memNodeStore struct {
	nodes map[string]model.Node
}

func newMemNodeStore() *memNodeStore {
	return &memNodeStore{nodes: make(map[string]model.Node)}
}

func (s *memNodeStore) Register(ctx context.Context, name string) (model.Node, string, error) {
	node := model.Node{UUID: "uuid-" + name, Name: name, CreatedAt: time.Now().UTC()}
	s.nodes[name] = node
	return node, "token-" + name, nil
}

func (s *memNodeStore) Verify(ctx context.Context, uuid, rawToken string) (*model.Node, error) {
	return nil, nil
}

func (s *memNodeStore) SetOnline(ctx context.Context, uuid string, online bool) error {
	return nil
}

func (s *memNodeStore) ListPublic(ctx context.Context) ([]model.NodePublicInfo, error) {
	var out []model.NodePublicInfo
	for _, n := range s.nodes {
		out = append(out, model.NodePublicInfo{UUID: n.UUID, Name: n.Name, CreatedAt: n.CreatedAt})
	}
	return out, nil
}

func (s *memNodeStore) DeleteByName(ctx context.Context, name string) (int64, error) {
	if _, ok := s.nodes[name]; !ok {
		return 0, nil
	}
	delete(s.nodes, name)
	return 1, nil
}

// memEventStore records appended events in order.
type memEventStore struct {
	events []model.EventLog
}

func (s *memEventStore) Append(ctx context.Context, ev model.EventLog) error {
	s.events = append(s.events, ev)
	return nil
}

func (s *memEventStore) Recent(ctx context.Context, limit int) ([]model.EventLog, error) {
	if limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]model.EventLog, 0, limit)
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

// stubHub satisfies every hub slice the services depend on.
type stubHub struct {
	connections int
	kickResult  bool
	kicked      []string
	broadcast   []model.OutboundMessage
}

func (h *stubHub) Count() int { return h.connections }

func (h *stubHub) KickByName(name string) bool {
	h.kicked = append(h.kicked, name)
	return h.kickResult
}

func (h *stubHub) Broadcast(msg model.OutboundMessage) int {
	h.broadcast = append(h.broadcast, msg)
	return h.connections
}

func adminView(id string) *model.APIKeyView {
	return &model.APIKeyView{ID: id, Kind: model.KeyKindAdmin}
}

func regularView(id string) *model.APIKeyView {
	return &model.APIKeyView{ID: id, Kind: model.KeyKindRegular}
}

func serverView(id, regularKeyID string) *model.APIKeyView {
	return &model.APIKeyView{ID: id, Kind: model.KeyKindServer, RegularKeyID: regularKeyID}
}
