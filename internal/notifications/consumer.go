package notifications

import (
	"context"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/registry"
)

const backfillConsumer = "notification-backfill"

type inserter interface {
	Insert(ctx context.Context, messages []Message) (int64, error)
}

// Consumer replays request lifecycle events into notifications. Rows the API
// already delivered collide on their dedupe key and are skipped.
type Consumer struct {
	notifications inserter
	subscription  *pubsub.Subscriber
	idempotency   *idempotency.Manager
	decoders      *registry.DecoderRegistry
	logg          *logger.Logger
}

// NewConsumer builds a notification backfill consumer.
func NewConsumer(notifications inserter, subscription *pubsub.Subscriber, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if notifications == nil || subscription == nil {
		return nil, errors.New("notifications inserter and subscription are required")
	}
	if manager == nil || logg == nil {
		return nil, errors.New("idempotency manager and logger are required")
	}
	return &Consumer{
		notifications: notifications,
		subscription:  subscription,
		idempotency:   manager,
		decoders:      registry.NewLifecycleDecoders(),
		logg:          logg,
	}, nil
}

// Run receives until ctx is canceled. Poison messages are acked so they do not
// cycle forever; only transient failures are redelivered.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes["event_type"], msg.Data) == redeliver {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type outcome int

const (
	settled outcome = iota
	redeliver
)

// delivery is a lifecycle message that passed decoding.
type delivery struct {
	eventID uuid.UUID
	kind    enums.NotificationType
	payload *payloads.RequestLifecycleEvent
}

func (c *Consumer) process(ctx context.Context, messageID, rawType string, data []byte) outcome {
	ctx = c.logg.WithFields(ctx, map[string]any{"message_id": messageID, "event_type": rawType})

	d, err := c.decode(rawType, data)
	switch {
	case errors.Is(err, errNoFanOut):
		c.logg.Debug(ctx, "event has no notification fan-out")
		return settled
	case err != nil:
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "dropping undecodable event")
		return settled
	}
	ctx = c.logg.WithToolRequestID(ctx, d.payload.RequestID.String())

	ticket, claimed, err := c.idempotency.Claim(ctx, backfillConsumer, d.eventID)
	if err != nil {
		c.logg.Error(ctx, "claim event", err)
		return redeliver
	}
	if !claimed {
		c.logg.Info(ctx, "event already processed")
		return settled
	}

	p := d.payload
	inserted, err := c.notifications.Insert(ctx, Build(Event{
		Type:       d.kind,
		RequestID:  p.RequestID,
		ToolName:   p.ToolName,
		WorkerID:   p.WorkerID,
		WorkerName: p.WorkerName,
		Quantity:   p.Quantity,
		Notes:      p.Notes,
	}))
	if err != nil {
		c.logg.Error(ctx, "notification backfill failed", err)
		if err := ticket.Release(ctx); err != nil {
			c.logg.Error(ctx, "release event claim", err)
		}
		return redeliver
	}
	c.logg.Info(c.logg.WithField(ctx, "inserted", inserted), "notifications backfilled")
	return settled
}

var errNoFanOut = errors.New("no notification fan-out")

func (c *Consumer) decode(rawType string, data []byte) (delivery, error) {
	eventType, err := enums.ParseOutboxEventType(rawType)
	if err != nil {
		return delivery{}, err
	}
	kind, ok := TypeForEvent(eventType)
	if !ok {
		return delivery{}, errNoFanOut
	}
	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		return delivery{}, fmt.Errorf("envelope: %w", err)
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return delivery{}, fmt.Errorf("event id: %w", err)
	}
	decoded, err := c.decoders.Decode(eventType, envelope.Version, envelope.Data)
	if err != nil {
		return delivery{}, fmt.Errorf("payload: %w", err)
	}
	payload, ok := decoded.(*payloads.RequestLifecycleEvent)
	if !ok {
		return delivery{}, fmt.Errorf("payload: unexpected %T", decoded)
	}
	return delivery{eventID: eventID, kind: kind, payload: payload}, nil
}
