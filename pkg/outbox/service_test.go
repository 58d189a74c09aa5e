package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
)

func TestRowSharesIDWithEnvelope(t *testing.T) {
	svc := NewService(nil, nil)
	fixed := time.Date(2026, 5, 4, 10, 0, 0, 0, time.FixedZone("EST", -5*3600))
	svc.now = func() time.Time { return fixed }
	requestID := uuid.New()

	row, err := svc.row(DomainEvent{
		EventType:     enums.EventRequestApproved,
		AggregateType: enums.AggregateToolRequest,
		AggregateID:   requestID,
		Actor:         &ActorRef{UserID: uuid.New(), Role: "storekeeper"},
		Data:          map[string]any{"quantity": 2},
	})
	require.NoError(t, err)

	env, err := DecodeEnvelope(row.Payload)
	require.NoError(t, err)
	assert.Equal(t, row.ID.String(), env.EventID)
	assert.Equal(t, requestID, row.AggregateID)
	assert.Equal(t, EnvelopeVersion, env.Version)
	assert.True(t, env.OccurredAt.Equal(fixed))
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
	assert.JSONEq(t, `{"quantity":2}`, string(env.Data))
	assert.Equal(t, "storekeeper", env.Actor.Role)
}

func TestRowRejectsIncompleteEvents(t *testing.T) {
	svc := NewService(nil, nil)
	cases := map[string]DomainEvent{
		"missing type":      {AggregateType: enums.AggregateTool, AggregateID: uuid.New()},
		"missing aggregate": {EventType: enums.EventToolQuarantined, AggregateType: enums.AggregateTool},
		"unencodable data":  {EventType: enums.EventToolQuarantined, AggregateType: enums.AggregateTool, AggregateID: uuid.New(), Data: make(chan int)},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.row(event)
			assert.Error(t, err)
		})
	}
}

func TestEmitRequiresTransaction(t *testing.T) {
	err := NewService(nil, nil).Emit(context.Background(), nil, DomainEvent{})
	assert.ErrorIs(t, err, errNoTx)
}
