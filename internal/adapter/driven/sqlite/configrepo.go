package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/ericfisherdev/relayhub/internal/domain/port/driven"
)

// panelPasswordKey is the system_config row holding the bcrypt hash of the
// panel login password.
const panelPasswordKey = "admin_password"

// panelPasswordCost is higher than the API key cost: the password is verified
// once per login, not once per request.
const panelPasswordCost = 12

// Compile-time interface satisfaction check.
var _ driven.ConfigStore = (*ConfigRepo)(nil)

// ConfigRepo is the SQLite implementation of the ConfigStore port.
type ConfigRepo struct {
	db *DB
}

// NewConfigRepo creates a ConfigRepo backed by the given DB.
func NewConfigRepo(db *DB) *ConfigRepo {
	return &ConfigRepo{db: db}
}

// SetPanelPassword hashes and stores the panel password, replacing any
// previous value.
func (r *ConfigRepo) SetPanelPassword(ctx context.Context, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), panelPasswordCost)
	if err != nil {
		return fmt.Errorf("hash panel password: %w", err)
	}

	const query = `INSERT OR REPLACE INTO system_config (key, value) VALUES (?, ?)`
	if _, err := r.db.Writer.ExecContext(ctx, query, panelPasswordKey, string(hash)); err != nil {
		return fmt.Errorf("store panel password: %w", err)
	}

	return nil
}

// VerifyPanelPassword compares password against the stored hash. A missing or
// malformed stored hash verifies as false, never as an error visible to the
// login path.
func (r *ConfigRepo) VerifyPanelPassword(ctx context.Context, password string) (bool, error) {
	const query = `SELECT value FROM system_config WHERE key = ?`

	var hash string
	err := r.db.Reader.QueryRowContext(ctx, query, panelPasswordKey).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load panel password: %w", err)
	}

	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// HasPanelPassword reports whether a panel password is configured.
func (r *ConfigRepo) HasPanelPassword(ctx context.Context) (bool, error) {
	const query = `SELECT COUNT(*) FROM system_config WHERE key = ?`

	var count int
	if err := r.db.Reader.QueryRowContext(ctx, query, panelPasswordKey).Scan(&count); err != nil {
		return false, fmt.Errorf("check panel password: %w", err)
	}

	return count > 0, nil
}
