package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/registry"
)

type outcomeKind int

const (
	outcomePublished outcomeKind = iota
	outcomeRetry
	outcomeDeadLetter
)

// outcome is what happened to one row on the wire; settle turns it into database writes.
type outcome struct {
	kind   outcomeKind
	reason enums.OutboxDLQErrorReason
	topic  string
	err    error
	fields map[string]any
}

// dispatch resolves and publishes one row without touching the database.
func (s *Service) dispatch(ctx context.Context, event models.OutboxEvent) outcome {
	fields := baseFields(event)

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return outcome{kind: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, err: err, fields: fields}
	}
	topic := resolved.Descriptor.Topic
	fields["topic"] = topic
	if resolved.Envelope.EventID != "" {
		fields["event_id"] = resolved.Envelope.EventID
	}

	err = s.publish(ctx, lifecycleMessage(event, resolved), topic)
	if err == nil {
		return outcome{kind: outcomePublished, topic: topic, fields: fields}
	}

	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return outcome{kind: outcomeDeadLetter, reason: enums.OutboxDLQReasonNonRetryable, topic: topic, err: err, fields: fields}
	}
	attempt := event.AttemptCount + 1
	fields["attempt_count"] = attempt
	if attempt >= s.maxAttempts {
		return outcome{
			kind:   outcomeDeadLetter,
			reason: enums.OutboxDLQReasonMaxAttempts,
			topic:  topic,
			err:    fmt.Errorf("gave up after %d publish attempts: %w", attempt, err),
			fields: fields,
		}
	}
	return outcome{kind: outcomeRetry, topic: topic, err: err, fields: fields}
}

func (s *Service) publish(ctx context.Context, msg *gcppubsub.Message, topic string) error {
	pub := s.publishers(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// lifecycleMessage carries the stored envelope verbatim. Attributes let subscriptions
// filter by event, tool or status without decoding the body; the ordering key keeps
// one request's events in commit order.
func lifecycleMessage(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	attrs := map[string]string{
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if resolved.Envelope.EventID != "" {
		attrs["event_id"] = resolved.Envelope.EventID
	}
	switch payload := resolved.Payload.(type) {
	case *payloads.RequestLifecycleEvent:
		attrs["tool_id"] = payload.ToolID.String()
		attrs["request_status"] = string(payload.Status)
	case *payloads.ToolQuarantinedEvent:
		attrs["tool_id"] = payload.ToolID.String()
	}
	return &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  attrs,
		OrderingKey: event.AggregateID.String(),
	}
}

// settle records the outcome of one row inside the batch transaction.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, out outcome) error {
	logCtx := s.logg.WithFields(ctx, out.fields)
	eventType := string(event.EventType)

	switch out.kind {
	case outcomePublished:
		if err := s.repo.MarkPublished(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(eventType)
		s.logg.Info(logCtx, "outbox event published")

	case outcomeRetry:
		s.logg.Warn(s.logg.WithField(logCtx, "error", out.err.Error()), "outbox publish failed")
		if err := s.repo.RecordFailure(tx, event.ID, out.err); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		s.metrics.IncFailed(eventType)

	case outcomeDeadLetter:
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"error":        out.err.Error(),
			"error_reason": out.reason,
		}), "outbox event moved to dlq")
		msg := out.err.Error()
		entry := models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   out.reason,
			ErrorMessage:  &msg,
			AttemptCount:  event.AttemptCount,
			FailedAt:      time.Now().UTC(),
		}
		if err := s.dlq.Record(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", event.ID, err)
		}
		if err := s.repo.Park(tx, event.ID, out.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", event.ID, err)
		}
		s.metrics.IncDLQ(eventType, string(out.reason))
	}
	return nil
}

func baseFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
