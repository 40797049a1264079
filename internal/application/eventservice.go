package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ericfisherdev/relayhub/internal/domain/model"
	"github.com/ericfisherdev/relayhub/internal/domain/port/driven"
)

// broadcaster is the slice of the relay hub the event service needs: fanning
// an envelope out to every connected node.
type broadcaster interface {
	Broadcast(msg model.OutboundMessage) int
}

// EventService handles events ingested over HTTP (as opposed to events a node
// sends down its own relay connection): each one is persisted to the audit
// log and broadcast to all connected nodes.
type EventService struct {
	events driven.EventStore
	hub    broadcaster
	logger *slog.Logger
}

// NewEventService creates an EventService with the required dependencies.
func NewEventService(events driven.EventStore, hub broadcaster, logger *slog.Logger) *EventService {
	return &EventService{
		events: events,
		hub:    hub,
		logger: logger,
	}
}

// Submit persists the event and broadcasts it to every connected node. Any
// authenticated key may submit. Unknown event types are rejected here rather
// than silently dropped: an HTTP caller, unlike a relay connection, gets a
// validation error.
func (s *EventService) Submit(ctx context.Context, actor *model.APIKeyView, eventType, nodeName string, data json.RawMessage) error {
	if err := Authorize(actor, ActionSubmitEvent, nil); err != nil {
		return err
	}

	if eventType == "" || nodeName == "" {
		return fmt.Errorf("event_type and server_name are required: %w", driven.ErrValidation)
	}
	if !model.RelayedEventTypes[eventType] {
		return fmt.Errorf("unknown event type %q: %w", eventType, driven.ErrValidation)
	}

	now := time.Now().UTC()
	err := s.events.Append(ctx, model.EventLog{
		EventType: eventType,
		NodeName:  nodeName,
		Timestamp: now,
		Data:      data,
		APIKeyID:  actor.ID,
	})
	if err != nil {
		return err
	}

	delivered := s.hub.Broadcast(model.OutboundMessage{
		FromID:   actor.ID,
		FromName: nodeName,
		Type:     eventType,
		Payload:  data,
		Time:     now.UnixMilli(),
	})

	s.logger.Info("event ingested", "type", eventType, "node", nodeName, "delivered", delivered)
	return nil
}

// Recent returns up to limit audit rows, newest first. Admin only.
func (s *EventService) Recent(ctx context.Context, actor *model.APIKeyView, limit int) ([]model.EventLog, error) {
	if err := Authorize(actor, ActionReadEvents, nil); err != nil {
		return nil, err
	}

	if limit <= 0 || limit > 500 {
		limit = 100
	}

	return s.events.Recent(ctx, limit)
}
