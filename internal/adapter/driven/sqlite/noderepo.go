package sqlite

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
	"github.com/ericfisherdev/relayhub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.NodeStore = (*NodeRepo)(nil)

// NodeRepo is the SQLite implementation of the NodeStore port. Connection
// tokens are stored as sha256 hex; verification is a constant-time compare
// against the stored hash, cheap enough to run on every handshake.
type NodeRepo struct {
	db *DB
}

// NewNodeRepo creates a NodeRepo backed by the given DB.
func NewNodeRepo(db *DB) *NodeRepo {
	return &NodeRepo{db: db}
}

func hashToken(rawToken string) string {
	sum := sha256.Sum256([]byte(rawToken))
	return hex.EncodeToString(sum[:])
}

// Register creates or replaces the node record for name and returns the
// plaintext token exactly once. Replacing reuses INSERT OR REPLACE keyed on
// the unique servername, which is the credential-reset path: the caller must
// kick any live connection under the old token.
func (r *NodeRepo) Register(ctx context.Context, name string) (model.Node, string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return model.Node{}, "", fmt.Errorf("generate node token: %w", err)
	}
	rawToken := hex.EncodeToString(buf)

	node := model.Node{
		UUID:      uuid.NewString(),
		Name:      name,
		TokenHash: hashToken(rawToken),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	const query = `INSERT OR REPLACE INTO nodes (uuid, servername, token_hash, stat, create_at) VALUES (?, ?, ?, 0, ?)`
	_, err := r.db.Writer.ExecContext(ctx, query,
		node.UUID, node.Name, node.TokenHash, node.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return model.Node{}, "", fmt.Errorf("register node %q: %w", name, err)
	}

	return node, rawToken, nil
}

// Verify compares the sha256 of rawToken against the stored hash for uuid.
// Returns nil, nil when the node is absent or the token mismatches.
func (r *NodeRepo) Verify(ctx context.Context, nodeUUID, rawToken string) (*model.Node, error) {
	const query = `SELECT uuid, servername, token_hash, stat, create_at FROM nodes WHERE uuid = ?`

	node, err := scanNode(r.db.Reader.QueryRowContext(ctx, query, nodeUUID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("verify node %s: %w", nodeUUID, err)
	}

	if subtle.ConstantTimeCompare([]byte(hashToken(rawToken)), []byte(node.TokenHash)) != 1 {
		return nil, nil
	}

	return node, nil
}

// SetOnline flips the online flag. Idempotent; the connection registry is the
// only caller.
func (r *NodeRepo) SetOnline(ctx context.Context, nodeUUID string, online bool) error {
	const query = `UPDATE nodes SET stat = ? WHERE uuid = ?`

	flag := 0
	if online {
		flag = 1
	}

	if _, err := r.db.Writer.ExecContext(ctx, query, flag, nodeUUID); err != nil {
		return fmt.Errorf("set node %s online=%v: %w", nodeUUID, online, err)
	}

	return nil
}

// ListPublic returns all nodes without token hashes, online first then newest
// first.
func (r *NodeRepo) ListPublic(ctx context.Context) ([]model.NodePublicInfo, error) {
	const query = `SELECT uuid, servername, stat, create_at FROM nodes ORDER BY stat DESC, create_at DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []model.NodePublicInfo
	for rows.Next() {
		var (
			info      model.NodePublicInfo
			stat      int
			createdAt string
		)
		if err := rows.Scan(&info.UUID, &info.Name, &stat, &createdAt); err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}

		info.Online = stat != 0
		info.CreatedAt, err = parseTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse create_at for node %s: %w", info.UUID, err)
		}

		nodes = append(nodes, info)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}

	return nodes, nil
}

// DeleteByName removes the node record, returning the number of rows removed
// so callers can distinguish a no-op from a failure.
func (r *NodeRepo) DeleteByName(ctx context.Context, name string) (int64, error) {
	const query = `DELETE FROM nodes WHERE servername = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, name)
	if err != nil {
		return 0, fmt.Errorf("delete node %q: %w", name, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}

	return n, nil
}

func scanNode(s scanner) (*model.Node, error) {
	var (
		node      model.Node
		stat      int
		createdAt string
	)

	if err := s.Scan(&node.UUID, &node.Name, &node.TokenHash, &stat, &createdAt); err != nil {
		return nil, err
	}

	node.Online = stat != 0

	var err error
	node.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse create_at: %w", err)
	}

	return &node, nil
}
