package outbox

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/dbtest"
	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
)

func pendingRow(createdAt time.Time, attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventRequestCreated,
		AggregateType: enums.AggregateToolRequest,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
		CreatedAt:     createdAt,
		AttemptCount:  attempts,
	}
}

func TestClaimPendingOrdersOldestFirstAndSkipsExhausted(t *testing.T) {
	conn := dbtest.Open(t).DB()
	repo := NewRepository(conn)
	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)

	second := pendingRow(base.Add(time.Minute), 0)
	first := pendingRow(base, 3)
	exhausted := pendingRow(base.Add(-time.Hour), 5)
	for _, row := range []models.OutboxEvent{second, first, exhausted} {
		require.NoError(t, repo.Insert(conn, row))
	}

	rows, err := repo.ClaimPending(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, first.ID, rows[0].ID)
	assert.Equal(t, second.ID, rows[1].ID)

	rows, err = repo.ClaimPending(conn, 1, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, exhausted.ID, rows[0].ID)
}

func TestPublishFailureAndParkBookkeeping(t *testing.T) {
	conn := dbtest.Open(t).DB()
	repo := NewRepository(conn)
	a := pendingRow(time.Now().UTC(), 0)
	b := pendingRow(time.Now().UTC(), 0)
	require.NoError(t, repo.Insert(conn, a))
	require.NoError(t, repo.Insert(conn, b))

	require.NoError(t, repo.RecordFailure(conn, a.ID, errors.New(strings.Repeat("x", 2*maxLastErrorLen))))
	require.NoError(t, repo.MarkPublished(conn, a.ID))
	require.NoError(t, repo.Park(conn, b.ID, errors.New("bad payload"), 10))

	var got models.OutboxEvent
	require.NoError(t, conn.First(&got, "id = ?", a.ID).Error)
	assert.NotNil(t, got.PublishedAt)
	assert.Nil(t, got.LastError)
	assert.Equal(t, 1, got.AttemptCount)

	require.NoError(t, conn.First(&got, "id = ?", b.ID).Error)
	assert.Nil(t, got.PublishedAt)
	assert.Equal(t, 10, got.AttemptCount)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "bad payload", *got.LastError)

	rows, err := repo.ClaimPending(conn, 10, 10)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRepositoryWritesNeedTransaction(t *testing.T) {
	repo := NewRepository(nil)
	assert.ErrorIs(t, repo.Insert(nil, models.OutboxEvent{}), errTxRequired)
	_, err := repo.ClaimPending(nil, 1, 1)
	assert.ErrorIs(t, err, errTxRequired)
	assert.ErrorIs(t, repo.MarkPublished(nil, uuid.New()), errTxRequired)
	assert.ErrorIs(t, NewDLQRepository().Record(nil, models.OutboxDLQ{}), errTxRequired)
}

func TestDLQRecordClipsMessageAndValidatesReason(t *testing.T) {
	conn := dbtest.Open(t).DB()
	dlq := NewDLQRepository()
	long := strings.Repeat("e", maxDLQErrorLen+50)
	entry := models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventToolQuarantined,
		AggregateType: enums.AggregateTool,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &long,
		FailedAt:      time.Now().UTC(),
	}

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error { return dlq.Record(tx, entry) }))
	var stored models.OutboxDLQ
	require.NoError(t, conn.First(&stored, "event_id = ?", entry.EventID).Error)
	assert.Len(t, *stored.ErrorMessage, maxDLQErrorLen)

	entry.ErrorReason = "gave_up"
	assert.Error(t, dlq.Record(conn, entry))
}
