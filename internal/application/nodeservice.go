package application

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
	"github.com/ericfisherdev/relayhub/internal/domain/port/driven"
)

// kicker is the slice of the relay hub the node service needs: forced
// eviction of a live connection by node name.
type kicker interface {
	KickByName(name string) bool
}

// NodeService orchestrates node directory mutations with forced eviction of
// live connections, so a credential reset or deletion can never leave a
// stale-but-authenticated session behind.
type NodeService struct {
	nodes  driven.NodeStore
	hub    kicker
	logger *slog.Logger
}

// NewNodeService creates a NodeService with the required dependencies.
func NewNodeService(nodes driven.NodeStore, hub kicker, logger *slog.Logger) *NodeService {
	return &NodeService{
		nodes:  nodes,
		hub:    hub,
		logger: logger,
	}
}

// Register creates or resets the credential for name, evicting any live
// connection first. The plaintext token is returned exactly once.
func (s *NodeService) Register(ctx context.Context, actor *model.APIKeyView, name string) (model.Node, string, error) {
	if err := Authorize(actor, ActionManageNodes, nil); err != nil {
		return model.Node{}, "", err
	}
	if name == "" {
		return model.Node{}, "", fmt.Errorf("node name is required: %w", driven.ErrValidation)
	}

	if s.hub.KickByName(name) {
		s.logger.Info("live connection evicted before credential reset", "name", name)
	}

	node, rawToken, err := s.nodes.Register(ctx, name)
	if err != nil {
		return model.Node{}, "", err
	}

	s.logger.Info("node credential issued", "uuid", node.UUID, "name", name)
	return node, rawToken, nil
}

// Delete evicts any live connection for name and removes the directory row,
// returning the number of rows removed.
func (s *NodeService) Delete(ctx context.Context, actor *model.APIKeyView, name string) (int64, error) {
	if err := Authorize(actor, ActionManageNodes, nil); err != nil {
		return 0, err
	}

	s.hub.KickByName(name)

	n, err := s.nodes.DeleteByName(ctx, name)
	if err != nil {
		return 0, err
	}

	s.logger.Info("node deleted", "name", name, "rows", n)
	return n, nil
}

// Kick forcibly evicts the live connection for name. Kicking an absent or
// already-disconnected node is a safe no-op reported as false.
func (s *NodeService) Kick(ctx context.Context, actor *model.APIKeyView, name string) (bool, error) {
	if err := Authorize(actor, ActionManageNodes, nil); err != nil {
		return false, err
	}

	evicted := s.hub.KickByName(name)
	s.logger.Info("node kick requested", "name", name, "evicted", evicted)
	return evicted, nil
}

// List returns the public node directory.
func (s *NodeService) List(ctx context.Context, actor *model.APIKeyView) ([]model.NodePublicInfo, error) {
	if err := Authorize(actor, ActionManageNodes, nil); err != nil {
		return nil, err
	}
	return s.nodes.ListPublic(ctx)
}
