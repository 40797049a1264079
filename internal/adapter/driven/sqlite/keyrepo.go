package sqlite

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
	"github.com/ericfisherdev/relayhub/internal/domain/port/driven"
)

// bcryptCost matches the work factor the panel has always used for API keys.
const bcryptCost = 10

// Compile-time interface satisfaction check.
var _ driven.KeyStore = (*KeyRepo)(nil)

// KeyRepo is the SQLite implementation of the KeyStore port. Raw keys are
// hashed with bcrypt before write and never read back.
type KeyRepo struct {
	db *DB
}

// NewKeyRepo creates a KeyRepo backed by the given DB.
func NewKeyRepo(db *DB) *KeyRepo {
	return &KeyRepo{db: db}
}

// newRawKey generates prefix + 32 hex chars of random material.
func newRawKey(prefix string) (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key material: %w", err)
	}
	return prefix + hex.EncodeToString(buf), nil
}

// newKeyID returns a fresh random key identifier.
func newKeyID() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate key id: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

const insertKeyQuery = `INSERT INTO api_keys
	(id, name, description, key_hash, key_prefix, key_type, server_id, regular_key_id, created_at, is_active)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1)`

// Create stores a single key of the given kind and returns the stored row and
// the raw key. A hash collision surfaces as ErrConflict.
func (r *KeyRepo) Create(ctx context.Context, kind model.KeyKind, name, description, serverID, regularKeyID string) (model.APIKey, string, error) {
	key, rawKey, err := buildKey(kind, name, description, serverID, regularKeyID)
	if err != nil {
		return model.APIKey{}, "", err
	}

	_, err = r.db.Writer.ExecContext(ctx, insertKeyQuery,
		key.ID, key.Name, key.Description, key.KeyHash, key.KeyPrefix, string(key.Kind),
		nullable(key.ServerID), nullable(key.RegularKeyID), key.CreatedAt.Format(time.RFC3339))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return model.APIKey{}, "", fmt.Errorf("create key %q: %w", name, driven.ErrConflict)
		}
		return model.APIKey{}, "", fmt.Errorf("create key %q: %w", name, err)
	}

	return key, rawKey, nil
}

// CreateRegularWithServerKey atomically creates a regular key and one linked
// server key. Either both rows land or neither.
func (r *KeyRepo) CreateRegularWithServerKey(ctx context.Context, name, description, serverID string) (*driven.KeyPair, error) {
	regular, regularRaw, err := buildKey(model.KeyKindRegular, name, description, serverID, "")
	if err != nil {
		return nil, err
	}

	server, serverRaw, err := buildKey(model.KeyKindServer,
		name+" - Server Key", "Server key for "+name, serverID, regular.ID)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin key pair transaction: %w", err)
	}
	defer tx.Rollback()

	for _, k := range []model.APIKey{regular, server} {
		_, err = tx.ExecContext(ctx, insertKeyQuery,
			k.ID, k.Name, k.Description, k.KeyHash, k.KeyPrefix, string(k.Kind),
			nullable(k.ServerID), nullable(k.RegularKeyID), k.CreatedAt.Format(time.RFC3339))
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint") {
				return nil, fmt.Errorf("create key pair %q: %w", name, driven.ErrConflict)
			}
			return nil, fmt.Errorf("create key pair %q: %w: %v", name, driven.ErrTransaction, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit key pair %q: %w: %v", name, driven.ErrTransaction, err)
	}

	return &driven.KeyPair{
		Regular:       regular,
		RegularRawKey: regularRaw,
		Server:        server,
		ServerRawKey:  serverRaw,
	}, nil
}

// buildKey assembles an APIKey row with a fresh id, raw key, and bcrypt hash.
func buildKey(kind model.KeyKind, name, description, serverID, regularKeyID string) (model.APIKey, string, error) {
	id, err := newKeyID()
	if err != nil {
		return model.APIKey{}, "", err
	}

	rawKey, err := newRawKey(kind.Prefix())
	if err != nil {
		return model.APIKey{}, "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcryptCost)
	if err != nil {
		return model.APIKey{}, "", fmt.Errorf("hash key: %w", err)
	}

	return model.APIKey{
		ID:           id,
		Name:         name,
		Description:  description,
		KeyHash:      string(hash),
		KeyPrefix:    kind.Prefix(),
		Kind:         kind,
		ServerID:     serverID,
		RegularKeyID: regularKeyID,
		CreatedAt:    time.Now().UTC().Truncate(time.Second),
		IsActive:     true,
	}, rawKey, nil
}

// Verify scans active keys and compares rawKey against each bcrypt hash. The
// first match updates last_used and is returned as a view.
func (r *KeyRepo) Verify(ctx context.Context, rawKey string) (*model.APIKeyView, error) {
	const query = `SELECT id, key_hash, key_type, server_id, regular_key_id FROM api_keys WHERE is_active = 1`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("scan active keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			view     model.APIKeyView
			hash     string
			kind     string
			serverID sql.NullString
			ownerID  sql.NullString
		)
		if err := rows.Scan(&view.ID, &hash, &kind, &serverID, &ownerID); err != nil {
			return nil, fmt.Errorf("scan key row: %w", err)
		}

		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawKey)) != nil {
			continue
		}

		view.Kind = model.KeyKind(kind)
		view.ServerID = serverID.String
		view.RegularKeyID = ownerID.String

		const update = `UPDATE api_keys SET last_used = ? WHERE id = ?`
		if _, err := r.db.Writer.ExecContext(ctx, update, time.Now().UTC().Format(time.RFC3339), view.ID); err != nil {
			return nil, fmt.Errorf("update last_used for %s: %w", view.ID, err)
		}

		return &view, nil
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active keys: %w", err)
	}

	return nil, nil
}

const selectKeyColumns = `id, name, description, key_prefix, key_type, server_id, regular_key_id, created_at, last_used, is_active`

// GetByID returns the key or nil, nil when absent. The hash column is never
// selected.
func (r *KeyRepo) GetByID(ctx context.Context, id string) (*model.APIKey, error) {
	query := `SELECT ` + selectKeyColumns + ` FROM api_keys WHERE id = ?`

	key, err := scanAPIKey(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get key %s: %w", id, err)
	}

	return key, nil
}

// ListAll returns every key ordered newest first.
func (r *KeyRepo) ListAll(ctx context.Context) ([]model.APIKey, error) {
	query := `SELECT ` + selectKeyColumns + ` FROM api_keys ORDER BY created_at DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	return collectKeys(rows)
}

// ListServerKeysByOwner returns server keys linked to the given regular key,
// newest first.
func (r *KeyRepo) ListServerKeysByOwner(ctx context.Context, regularKeyID string) ([]model.APIKey, error) {
	query := `SELECT ` + selectKeyColumns + ` FROM api_keys WHERE regular_key_id = ? AND key_type = ? ORDER BY created_at DESC`

	rows, err := r.db.Reader.QueryContext(ctx, query, regularKeyID, string(model.KeyKindServer))
	if err != nil {
		return nil, fmt.Errorf("list server keys for %s: %w", regularKeyID, err)
	}
	defer rows.Close()

	return collectKeys(rows)
}

const countOtherActiveAdminsQuery = `SELECT COUNT(*) FROM api_keys WHERE key_type = ? AND is_active = 1 AND id != ?`

// lastAdminGuard rejects a mutation of id that would leave zero active admin
// keys. It must run inside the same writer transaction as the mutation:
// counting on a separate connection would let two concurrent requests each
// see the other's admin key as still active and both slip past the guard.
func lastAdminGuard(ctx context.Context, tx *sql.Tx, id, kind string, active int) error {
	if model.KeyKind(kind) != model.KeyKindAdmin || active == 0 {
		return nil
	}

	var remaining int
	err := tx.QueryRowContext(ctx, countOtherActiveAdminsQuery, string(model.KeyKindAdmin), id).Scan(&remaining)
	if err != nil {
		return fmt.Errorf("count active admin keys: %w", err)
	}
	if remaining == 0 {
		return fmt.Errorf("key %s: %w", id, driven.ErrLastAdmin)
	}

	return nil
}

// SetActive flips the activation flag; returns false when id is absent.
// Deactivating the sole active admin key is rejected with ErrLastAdmin; guard
// and update share one writer transaction.
func (r *KeyRepo) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin set key %s active=%v: %w", id, active, err)
	}
	defer tx.Rollback()

	var (
		kind    string
		current int
	)
	err = tx.QueryRowContext(ctx, `SELECT key_type, is_active FROM api_keys WHERE id = ?`, id).Scan(&kind, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load key %s: %w", id, err)
	}

	if !active {
		if err := lastAdminGuard(ctx, tx, id, kind, current); err != nil {
			return false, err
		}
	}

	flag := 0
	if active {
		flag = 1
	}
	if _, err := tx.ExecContext(ctx, `UPDATE api_keys SET is_active = ? WHERE id = ?`, flag, id); err != nil {
		return false, fmt.Errorf("set key %s active=%v: %w", id, active, err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit set key %s active=%v: %w", id, active, err)
	}

	return true, nil
}

// Delete removes the key row irreversibly. Deleting the sole active admin key
// is rejected with ErrLastAdmin; guard and delete share one writer
// transaction.
func (r *KeyRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete key %s: %w", id, err)
	}
	defer tx.Rollback()

	var (
		kind   string
		active int
	)
	err = tx.QueryRowContext(ctx, `SELECT key_type, is_active FROM api_keys WHERE id = ?`, id).Scan(&kind, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("delete key %s: %w", id, driven.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("load key %s: %w", id, err)
	}

	if err := lastAdminGuard(ctx, tx, id, kind, active); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM api_keys WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete key %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete key %s: %w", id, err)
	}

	return nil
}

// CountActiveAdmins counts active admin keys, excluding excludeID when set.
func (r *KeyRepo) CountActiveAdmins(ctx context.Context, excludeID string) (int, error) {
	var count int
	err := r.db.Reader.QueryRowContext(ctx, countOtherActiveAdminsQuery, string(model.KeyKindAdmin), excludeID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active admin keys: %w", err)
	}

	return count, nil
}

// EnsureInitialAdminKey bootstraps an admin key when none exists, returning
// the raw key for one-time display. Returns nil when an admin key is present.
func (r *KeyRepo) EnsureInitialAdminKey(ctx context.Context) (*model.APIKey, string, error) {
	const query = `SELECT COUNT(*) FROM api_keys WHERE key_type = ?`

	var count int
	if err := r.db.Reader.QueryRowContext(ctx, query, string(model.KeyKindAdmin)).Scan(&count); err != nil {
		return nil, "", fmt.Errorf("count admin keys: %w", err)
	}
	if count > 0 {
		return nil, "", nil
	}

	description := "Auto-generated on " + time.Now().UTC().Format(time.RFC3339)
	key, rawKey, err := r.Create(ctx, model.KeyKindAdmin, "Initial Admin Key", description, "", "")
	if err != nil {
		return nil, "", err
	}

	return &key, rawKey, nil
}

// nullable maps "" to NULL so optional link columns stay NULL instead of
// holding empty strings.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAPIKey(s scanner) (*model.APIKey, error) {
	var (
		key       model.APIKey
		kind      string
		serverID  sql.NullString
		ownerID   sql.NullString
		createdAt string
		lastUsed  sql.NullString
		active    int
	)

	err := s.Scan(&key.ID, &key.Name, &key.Description, &key.KeyPrefix, &kind,
		&serverID, &ownerID, &createdAt, &lastUsed, &active)
	if err != nil {
		return nil, err
	}

	key.Kind = model.KeyKind(kind)
	key.ServerID = serverID.String
	key.RegularKeyID = ownerID.String
	key.IsActive = active != 0

	key.CreatedAt, err = parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}

	if lastUsed.Valid {
		t, err := parseTime(lastUsed.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_used: %w", err)
		}
		key.LastUsed = &t
	}

	return &key, nil
}

func collectKeys(rows *sql.Rows) ([]model.APIKey, error) {
	var keys []model.APIKey
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, *key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

// parseTime accepts the timestamp formats SQLite may hand back depending on
// how the value was written.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}
