package driven

import (
	"context"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
)

// NodeStore defines the driven port for the node directory. Connection tokens
// are stored as sha256 hex; the plaintext token is returned exactly once by
// Register.
type NodeStore interface {
	// Register creates a node record for name, or replaces it in place when
	// the name already exists (credential reset). The caller is responsible
	// for evicting any live connection under the old token.
	Register(ctx context.Context, name string) (model.Node, string, error)

	// Verify compares the sha256 of rawToken against the stored hash for
	// uuid. Returns nil, nil when the node is absent or the token mismatches.
	Verify(ctx context.Context, uuid, rawToken string) (*model.Node, error)

	// SetOnline flips the online flag. Idempotent; driven exclusively by the
	// connection registry.
	SetOnline(ctx context.Context, uuid string, online bool) error

	// ListPublic returns all nodes without token hashes, online first.
	ListPublic(ctx context.Context) ([]model.NodePublicInfo, error)

	// DeleteByName removes the node record and returns the number of rows
	// removed (0 or 1).
	DeleteByName(ctx context.Context, name string) (int64, error)
}
