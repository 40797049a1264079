package model

import "time"

// KeyKind represents the tier of an API key.
type KeyKind string

const (
	KeyKindAdmin   KeyKind = "admin"
	KeyKindRegular KeyKind = "regular"
	KeyKindServer  KeyKind = "server"
)

// Non-secret raw-key prefixes, one per tier. The prefix is stored alongside
// the hash so keys can be identified in listings without revealing material.
const (
	KeyPrefixAdmin   = "mc_admin_"
	KeyPrefixRegular = "mc_key_"
	KeyPrefixServer  = "mc_server_"
)

// Prefix returns the raw-key prefix for the kind. Unknown kinds fall back to
// the regular prefix.
func (k KeyKind) Prefix() string {
	switch k {
	case KeyKindAdmin:
		return KeyPrefixAdmin
	case KeyKindServer:
		return KeyPrefixServer
	default:
		return KeyPrefixRegular
	}
}

// Valid reports whether k is one of the three known tiers.
func (k KeyKind) Valid() bool {
	switch k {
	case KeyKindAdmin, KeyKindRegular, KeyKindServer:
		return true
	}
	return false
}

// APIKey is a stored credential. KeyHash is a bcrypt hash of the raw key and
// never leaves the storage layer after creation; KeyPrefix is the non-secret
// identification prefix. Server keys carry RegularKeyID, the id of the regular
// key that owns them. ServerID is an optional external resource link.
type APIKey struct {
	ID           string
	Name         string
	Description  string
	KeyHash      string
	KeyPrefix    string
	Kind         KeyKind
	ServerID     string
	RegularKeyID string
	CreatedAt    time.Time
	LastUsed     *time.Time
	IsActive     bool
}

// APIKeyView is the non-secret result of verifying a raw key. It carries just
// enough identity for authorization decisions.
type APIKeyView struct {
	ID           string
	Kind         KeyKind
	ServerID     string
	RegularKeyID string
}
