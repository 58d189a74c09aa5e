package registry

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox"
)

var (
	errMissingAggregateID = errors.New("missing aggregate_id")
	errEmptyPayload       = errors.New("payload is empty")
)

// EventDescriptor says where an event type is published and what it carries.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	decode        decoderFunc
}

// ResolvedEvent is an outbox row that passed validation, with its payload decoded.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// EventRegistry routes outbox rows to topics.
type EventRegistry struct {
	routes map[enums.OutboxEventType]EventDescriptor
}

// NonRetryableError marks a row the publisher must dead-letter rather than retry.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return "non-retryable: " + e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

// NewEventRegistry sends every catalog event to the lifecycle topic. Ordering
// per request is handled by the publisher through the aggregate id.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.LifecycleTopic == "" {
		return nil, errors.New("lifecycle topic is required")
	}
	catalog := lifecycleCatalog()
	reg := &EventRegistry{routes: make(map[enums.OutboxEventType]EventDescriptor, len(catalog))}
	for _, entry := range catalog {
		reg.routes[entry.eventType] = EventDescriptor{
			EventType:     entry.eventType,
			AggregateType: entry.aggregate,
			Topic:         cfg.LifecycleTopic,
			decode:        entry.decode,
		}
	}
	return reg, nil
}

// Topics lists the distinct topics the registry publishes to.
func (r *EventRegistry) Topics() []string {
	seen := map[string]struct{}{}
	var topics []string
	for _, desc := range r.routes {
		if _, ok := seen[desc.Topic]; ok {
			continue
		}
		seen[desc.Topic] = struct{}{}
		topics = append(topics, desc.Topic)
	}
	return topics
}

// Resolve checks the row against its route and decodes the payload. Every
// failure here is permanent, so all of them come back as NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	resolved, err := r.resolve(event)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s %s: %w", event.EventType, event.ID, err))
	}
	return resolved, nil
}

func (r *EventRegistry) resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.routes[event.EventType]
	switch {
	case !ok:
		return nil, fmt.Errorf("unsupported event type")
	case desc.AggregateType != event.AggregateType:
		return nil, fmt.Errorf("aggregate %s, want %s", event.AggregateType, desc.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, errMissingAggregateID
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if data := bytes.TrimSpace(envelope.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, errEmptyPayload
	}
	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
