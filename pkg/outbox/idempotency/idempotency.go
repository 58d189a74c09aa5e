package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/toolcrib-backend/pkg/instance"
)

var (
	errNoConsumer = errors.New("consumer name is required")
	errNoEventID  = errors.New("event id is required")
)

// Store is the slice of the Redis client the manager needs.
type Store interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

// Manager lets at-least-once consumers skip events they already handled.
// Keys look like <keyspace>:idempotency:evt:processed:<consumer>:<event_id> and
// hold the id of the instance that claimed them.
type Manager struct {
	store Store
	ttl   time.Duration
}

func NewManager(store Store, ttl time.Duration) (*Manager, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, fmt.Errorf("ttl %s is negative", ttl)
	}
	return &Manager{store: store, ttl: ttl}, nil
}

// Ticket is a claim on one event for one consumer. Release it when handling
// fails so redelivery runs the handler again.
type Ticket struct {
	store Store
	key   string
}

// Claim marks the event as processed by consumer. claimed is false when an
// earlier delivery already holds the key, in which case the event is a duplicate.
func (m *Manager) Claim(ctx context.Context, consumer string, eventID uuid.UUID) (ticket Ticket, claimed bool, err error) {
	switch {
	case consumer == "":
		return Ticket{}, false, errNoConsumer
	case eventID == uuid.Nil:
		return Ticket{}, false, errNoEventID
	}
	key := m.store.IdempotencyKey("evt:processed:"+consumer, eventID.String())
	claimed, err = m.store.SetNX(ctx, key, instance.ID(), m.ttl)
	if err != nil {
		return Ticket{}, false, fmt.Errorf("claim %s: %w", key, err)
	}
	return Ticket{store: m.store, key: key}, claimed, nil
}

// Release forgets the claim. A zero Ticket releases nothing.
func (t Ticket) Release(ctx context.Context) error {
	if t.store == nil || t.key == "" {
		return nil
	}
	return t.store.Del(ctx, t.key)
}
