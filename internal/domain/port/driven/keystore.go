package driven

import (
	"context"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
)

// KeyPair is the result of the atomic regular + server key creation. Both raw
// keys are returned exactly once and are never recoverable afterwards.
type KeyPair struct {
	Regular       model.APIKey
	RegularRawKey string
	Server        model.APIKey
	ServerRawKey  string
}

// KeyStore defines the driven port for API key persistence. Raw keys exist
// only in Create/Verify call frames; the store keeps bcrypt hashes.
type KeyStore interface {
	// Create stores a single key of the given kind and returns the stored row
	// together with the raw key. Returns ErrConflict when the generated hash
	// collides with an existing row (retryable).
	Create(ctx context.Context, kind model.KeyKind, name, description, serverID, regularKeyID string) (model.APIKey, string, error)

	// CreateRegularWithServerKey atomically creates one regular key and one
	// linked server key. On partial failure both inserts roll back and the
	// error wraps ErrTransaction.
	CreateRegularWithServerKey(ctx context.Context, name, description, serverID string) (*KeyPair, error)

	// Verify scans active keys comparing rawKey against stored hashes. On the
	// first match it updates last_used and returns the view; no match returns
	// nil, nil. The scan is O(active keys) by design: one-way hashes cannot
	// be indexed.
	Verify(ctx context.Context, rawKey string) (*model.APIKeyView, error)

	// GetByID returns the key or nil, nil when absent.
	GetByID(ctx context.Context, id string) (*model.APIKey, error)

	// ListAll returns every key ordered newest first.
	ListAll(ctx context.Context) ([]model.APIKey, error)

	// ListServerKeysByOwner returns server keys linked to the given regular key.
	ListServerKeysByOwner(ctx context.Context, regularKeyID string) ([]model.APIKey, error)

	// SetActive flips the activation flag. Returns false when id is absent and
	// ErrLastAdmin when deactivating would leave zero active admin keys. The
	// guard and the update must be atomic: concurrent deactivations of the
	// final two admin keys may not both succeed.
	SetActive(ctx context.Context, id string, active bool) (bool, error)

	// Delete irreversibly removes the key. Returns ErrLastAdmin when id is the
	// sole active admin key (atomically with the delete, as for SetActive) and
	// ErrNotFound when absent.
	Delete(ctx context.Context, id string) error

	// CountActiveAdmins counts active admin keys, excluding excludeID when
	// non-empty.
	CountActiveAdmins(ctx context.Context, excludeID string) (int, error)

	// EnsureInitialAdminKey creates a bootstrap admin key when no admin key
	// exists. Returns the created key and its raw value, or nil when an admin
	// key is already present.
	EnsureInitialAdminKey(ctx context.Context) (*model.APIKey, string, error)
}
