package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

var errNoTx = errors.New("outbox writes need the caller's transaction")

// DomainEvent is a state change to be published after its transaction commits.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit stores event inside tx, so it commits or rolls back with the change it
// describes.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errNoTx
	}
	row, err := s.row(event)
	if err != nil {
		return fmt.Errorf("outbox %s: %w", event.EventType, err)
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return fmt.Errorf("outbox %s: insert: %w", event.EventType, err)
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_id":       row.ID.String(),
			"event_type":     row.EventType,
			"aggregate_type": row.AggregateType,
			"aggregate_id":   row.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// row builds the stored record. The row id doubles as the envelope event id
// so consumers and the publisher agree on identity.
func (s *Service) row(event DomainEvent) (models.OutboxEvent, error) {
	if !event.EventType.IsValid() || !event.AggregateType.IsValid() {
		return models.OutboxEvent{}, errors.New("event type and aggregate type are required")
	}
	if event.AggregateID == uuid.Nil {
		return models.OutboxEvent{}, errors.New("aggregate id is required")
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("encode data: %w", err)
	}
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = s.now()
	}

	id := uuid.New()
	payload, err := json.Marshal(PayloadEnvelope{
		Version:    EnvelopeVersion,
		EventID:    id.String(),
		OccurredAt: occurred.UTC(),
		Actor:      event.Actor,
		Data:       data,
	})
	if err != nil {
		return models.OutboxEvent{}, fmt.Errorf("encode envelope: %w", err)
	}
	return models.OutboxEvent{
		ID:            id,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, nil
}
