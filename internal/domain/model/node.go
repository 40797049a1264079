package model

import "time"

// Node is a registered game-server identity. TokenHash is the sha256 hex of
// the connection token and never leaves the storage layer; the plaintext token
// is returned exactly once at registration.
type Node struct {
	UUID      string
	Name      string
	TokenHash string
	Online    bool
	CreatedAt time.Time
}

// NodePublicInfo is the listing view of a node with the token hash excluded.
type NodePublicInfo struct {
	UUID      string
	Name      string
	Online    bool
	CreatedAt time.Time
}
