package driven

import (
	"context"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
)

// EventStore defines the driven port for the event audit log.
type EventStore interface {
	// Append records one ingested event.
	Append(ctx context.Context, ev model.EventLog) error

	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]model.EventLog, error)
}
