package driven

import "context"

// ConfigStore defines the driven port for system configuration rows, notably
// the bcrypt hash of the panel password.
type ConfigStore interface {
	// SetPanelPassword hashes and stores the panel password, replacing any
	// previous value.
	SetPanelPassword(ctx context.Context, password string) error

	// VerifyPanelPassword compares password against the stored hash. Returns
	// false when no password has been set.
	VerifyPanelPassword(ctx context.Context, password string) (bool, error)

	// HasPanelPassword reports whether a panel password is configured.
	HasPanelPassword(ctx context.Context) (bool, error)
}
