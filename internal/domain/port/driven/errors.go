package driven

import "errors"

// Sentinel errors shared across the credential and node stores, the
// authorizer, and the connection registry. The HTTP adapter maps each to a
// stable status code; internal messages never reach clients directly.
var (
	// ErrUnauthenticated indicates no credential, or an unrecognized one,
	// was presented.
	ErrUnauthenticated = errors.New("authentication required")

	// ErrUnauthorized indicates a valid credential of insufficient tier or
	// ownership for the requested operation.
	ErrUnauthorized = errors.New("operation not permitted for this key")

	// ErrNotFound indicates the operation target does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate identity or secret-hash collision.
	ErrConflict = errors.New("conflicting identity or secret")

	// ErrAlreadyConnected indicates the node identity already holds a live
	// connection; the existing session wins ties.
	ErrAlreadyConnected = errors.New("node already connected")

	// ErrLastAdmin indicates the operation would leave zero active admin keys.
	ErrLastAdmin = errors.New("cannot remove the last active admin key")

	// ErrSelfModification indicates an actor targeted its own credential for
	// deactivation or deletion.
	ErrSelfModification = errors.New("cannot modify your own key")

	// ErrTransaction indicates a multi-row durable write partially failed and
	// was rolled back.
	ErrTransaction = errors.New("transaction failed")

	// ErrValidation indicates malformed input shape.
	ErrValidation = errors.New("invalid input")
)
