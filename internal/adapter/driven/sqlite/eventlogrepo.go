package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
	"github.com/ericfisherdev/relayhub/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.EventStore = (*EventLogRepo)(nil)

// EventLogRepo is the SQLite implementation of the EventStore port.
type EventLogRepo struct {
	db *DB
}

// NewEventLogRepo creates an EventLogRepo backed by the given DB.
func NewEventLogRepo(db *DB) *EventLogRepo {
	return &EventLogRepo{db: db}
}

// Append records one ingested event.
func (r *EventLogRepo) Append(ctx context.Context, ev model.EventLog) error {
	const query = `INSERT INTO event_logs (event_type, server_name, timestamp, data, api_key_id) VALUES (?, ?, ?, ?, ?)`

	data := ev.Data
	if data == nil {
		data = json.RawMessage(`{}`)
	}

	_, err := r.db.Writer.ExecContext(ctx, query,
		ev.EventType, ev.NodeName, ev.Timestamp.UTC().Format(time.RFC3339), string(data), nullable(ev.APIKeyID))
	if err != nil {
		return fmt.Errorf("append event log: %w", err)
	}

	return nil
}

// Recent returns up to limit events, newest first.
func (r *EventLogRepo) Recent(ctx context.Context, limit int) ([]model.EventLog, error) {
	const query = `SELECT id, event_type, server_name, timestamp, data, api_key_id FROM event_logs ORDER BY timestamp DESC, id DESC LIMIT ?`

	rows, err := r.db.Reader.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	defer rows.Close()

	var events []model.EventLog
	for rows.Next() {
		var (
			ev        model.EventLog
			timestamp string
			data      string
			keyID     sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.NodeName, &timestamp, &data, &keyID); err != nil {
			return nil, fmt.Errorf("scan event log: %w", err)
		}

		ev.Timestamp, err = parseTime(timestamp)
		if err != nil {
			return nil, fmt.Errorf("parse event timestamp: %w", err)
		}
		ev.Data = json.RawMessage(data)
		ev.APIKeyID = keyID.String

		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event logs: %w", err)
	}

	return events, nil
}
