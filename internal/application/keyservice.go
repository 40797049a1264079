package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
	"github.com/ericfisherdev/relayhub/internal/domain/port/driven"
)

// CreatedKey pairs a stored key with its raw value for the one-time creation
// response.
type CreatedKey struct {
	Key    model.APIKey
	RawKey string
}

// CreateKeyResult is the outcome of a create request. Regular-kind requests
// produce a paired server key alongside the regular key.
type CreateKeyResult struct {
	Created CreatedKey
	Paired  *CreatedKey
}

// HealthSnapshot is the management-surface health view.
type HealthSnapshot struct {
	KeysTotal       int
	AdminActive     int
	RegularActive   int
	ServerActive    int
	LiveConnections int
}

// connectionCounter is the slice of the relay hub the key service needs for
// health reporting.
type connectionCounter interface {
	Count() int
}

// KeyService orchestrates the authorizer and the key store for every
// management operation on API keys. Each method authorizes before touching
// the store.
type KeyService struct {
	keys   driven.KeyStore
	hub    connectionCounter
	logger *slog.Logger
}

// NewKeyService creates a KeyService with the required dependencies.
func NewKeyService(keys driven.KeyStore, hub connectionCounter, logger *slog.Logger) *KeyService {
	return &KeyService{
		keys:   keys,
		hub:    hub,
		logger: logger,
	}
}

// Create creates a key of the requested kind. Regular kind atomically creates
// the paired server key. Only admins may create keys.
func (s *KeyService) Create(ctx context.Context, actor *model.APIKeyView, kind model.KeyKind, name, description, serverID, regularKeyID string) (*CreateKeyResult, error) {
	if err := Authorize(actor, ActionCreateKey, nil); err != nil {
		return nil, err
	}

	if name == "" {
		return nil, fmt.Errorf("name is required: %w", driven.ErrValidation)
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown key kind %q: %w", kind, driven.ErrValidation)
	}

	if kind == model.KeyKindRegular {
		pair, err := s.keys.CreateRegularWithServerKey(ctx, name, description, serverID)
		if err != nil {
			return nil, err
		}

		s.logger.Info("key pair created", "regular_id", pair.Regular.ID, "server_id", pair.Server.ID, "name", name)
		return &CreateKeyResult{
			Created: CreatedKey{Key: pair.Regular, RawKey: pair.RegularRawKey},
			Paired:  &CreatedKey{Key: pair.Server, RawKey: pair.ServerRawKey},
		}, nil
	}

	if kind == model.KeyKindServer && regularKeyID != "" {
		owner, err := s.keys.GetByID(ctx, regularKeyID)
		if err != nil {
			return nil, err
		}
		if owner == nil || owner.Kind != model.KeyKindRegular {
			return nil, fmt.Errorf("regular key %s: %w", regularKeyID, driven.ErrNotFound)
		}
	}

	key, rawKey, err := s.keys.Create(ctx, kind, name, description, serverID, regularKeyID)
	if err != nil {
		return nil, err
	}

	s.logger.Info("key created", "id", key.ID, "kind", kind, "name", name)
	return &CreateKeyResult{Created: CreatedKey{Key: key, RawKey: rawKey}}, nil
}

// List returns all keys. Admin only.
func (s *KeyService) List(ctx context.Context, actor *model.APIKeyView) ([]model.APIKey, error) {
	if err := Authorize(actor, ActionListKeys, nil); err != nil {
		return nil, err
	}
	return s.keys.ListAll(ctx)
}

// ListServerKeys returns the server keys visible to the actor: all of them
// for admins, only owned ones for regular keys.
func (s *KeyService) ListServerKeys(ctx context.Context, actor *model.APIKeyView) ([]model.APIKey, error) {
	if actor == nil {
		return nil, driven.ErrUnauthenticated
	}

	switch actor.Kind {
	case model.KeyKindAdmin:
		all, err := s.keys.ListAll(ctx)
		if err != nil {
			return nil, err
		}
		var serverKeys []model.APIKey
		for _, k := range all {
			if k.Kind == model.KeyKindServer {
				serverKeys = append(serverKeys, k)
			}
		}
		return serverKeys, nil
	case model.KeyKindRegular:
		return s.keys.ListServerKeysByOwner(ctx, actor.ID)
	default:
		return nil, driven.ErrUnauthorized
	}
}

// Get returns a single key after an ownership-aware authorization check.
func (s *KeyService) Get(ctx context.Context, actor *model.APIKeyView, id string) (*model.APIKey, error) {
	key, err := s.loadTarget(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if err := Authorize(actor, ActionInspectKey, key); err != nil {
		return nil, err
	}

	return key, nil
}

// SetActive activates or deactivates a key. Deactivation enforces the
// self-modification guard here; the last-admin rule is enforced by the store,
// atomically with the update.
func (s *KeyService) SetActive(ctx context.Context, actor *model.APIKeyView, id string, active bool) error {
	key, err := s.loadTarget(ctx, actor, id)
	if err != nil {
		return err
	}

	action := ActionActivateKey
	if !active {
		action = ActionDeactivateKey
	}
	if err := Authorize(actor, action, key); err != nil {
		return err
	}

	ok, err := s.keys.SetActive(ctx, id, active)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("key %s: %w", id, driven.ErrNotFound)
	}

	s.logger.Info("key activation toggled", "id", id, "active", active)
	return nil
}

// Delete irreversibly removes a key, subject to the self-modification guard
// and the last-admin rule.
func (s *KeyService) Delete(ctx context.Context, actor *model.APIKeyView, id string) error {
	key, err := s.loadTarget(ctx, actor, id)
	if err != nil {
		return err
	}

	if err := Authorize(actor, ActionDeleteKey, key); err != nil {
		return err
	}

	if err := s.keys.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("key deleted", "id", id, "kind", key.Kind)
	return nil
}

// Health assembles the management health snapshot.
func (s *KeyService) Health(ctx context.Context) (HealthSnapshot, error) {
	all, err := s.keys.ListAll(ctx)
	if err != nil {
		return HealthSnapshot{}, err
	}

	snap := HealthSnapshot{
		KeysTotal:       len(all),
		LiveConnections: s.hub.Count(),
	}
	for _, k := range all {
		if !k.IsActive {
			continue
		}
		switch k.Kind {
		case model.KeyKindAdmin:
			snap.AdminActive++
		case model.KeyKindRegular:
			snap.RegularActive++
		case model.KeyKindServer:
			snap.ServerActive++
		}
	}

	return snap, nil
}

// loadTarget fetches the target key for a per-key operation. The actor must
// at least be authenticated before the store is consulted.
func (s *KeyService) loadTarget(ctx context.Context, actor *model.APIKeyView, id string) (*model.APIKey, error) {
	if actor == nil {
		return nil, driven.ErrUnauthenticated
	}

	key, err := s.keys.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return nil, fmt.Errorf("key %s: %w", id, driven.ErrNotFound)
	}

	return key, nil
}
