package relay

// Close codes forwarded to the transport when the hub rejects or evicts a
// connection. Values follow RFC 6455 (1008 = policy violation).
const (
	ClosePolicyViolation = 1008
)

// Conn is the transport handle the hub owns for the lifetime of a session.
// Implementations must be safe for concurrent writers: the relay forwards
// messages from other nodes' read loops and the liveness monitor sends probes
// on the same connection.
type Conn interface {
	// WriteJSON sends one JSON-encoded message.
	WriteJSON(v any) error

	// Ping sends a protocol-level liveness probe.
	Ping() error

	// Close performs a graceful close with the given code and reason.
	Close(code int, reason string) error

	// Terminate tears the connection down without a closing handshake.
	Terminate() error
}
