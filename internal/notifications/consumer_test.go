package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/registry"
)

type memoryStore struct {
	keys map[string]struct{}
}

func (m *memoryStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = struct{}{}
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return "tc:idempotency:" + scope + ":" + id }

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.keys, k)
	}
	return nil
}

type recordingInserter struct {
	batches [][]Message
	err     error
}

func (r *recordingInserter) Insert(_ context.Context, msgs []Message) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.batches = append(r.batches, msgs)
	return int64(len(msgs)), nil
}

func newTestConsumer(t *testing.T, ins *recordingInserter) *Consumer {
	t.Helper()
	manager, err := idempotency.NewManager(&memoryStore{keys: map[string]struct{}{}}, time.Hour)
	require.NoError(t, err)
	return &Consumer{
		notifications: ins,
		idempotency:   manager,
		decoders:      registry.NewLifecycleDecoders(),
		logg:          logger.New(logger.Options{ServiceName: "test"}),
	}
}

func lifecycleMessage(t *testing.T, eventID uuid.UUID, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    outbox.EnvelopeVersion,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return body
}

func TestConsumerBackfillsLifecycleEvent(t *testing.T) {
	ins := &recordingInserter{}
	c := newTestConsumer(t, ins)
	eventID := uuid.New()
	body := lifecycleMessage(t, eventID, payloads.RequestLifecycleEvent{
		RequestID:  uuid.New(),
		ToolName:   "Saw",
		WorkerID:   uuid.New(),
		WorkerName: "Dana",
		Quantity:   1,
		Status:     enums.RequestStatusApproved,
	})

	res := c.process(context.Background(), "m-1", string(enums.EventRequestApproved), body)
	assert.Equal(t, settled, res)
	require.Len(t, ins.batches, 1)
	require.Len(t, ins.batches[0], 2)
	assert.Equal(t, enums.NotificationTypeRequestApproved, ins.batches[0][0].Type)

	res = c.process(context.Background(), "m-2", string(enums.EventRequestApproved), body)
	assert.Equal(t, settled, res)
	assert.Len(t, ins.batches, 1, "redelivery is skipped")
}

func TestConsumerSkipsEventsWithoutFanout(t *testing.T) {
	ins := &recordingInserter{}
	c := newTestConsumer(t, ins)
	body := lifecycleMessage(t, uuid.New(), payloads.ToolQuarantinedEvent{ToolID: uuid.New()})

	res := c.process(context.Background(), "m-1", string(enums.EventToolQuarantined), body)
	assert.Equal(t, settled, res)

	res = c.process(context.Background(), "m-2", "something_else", body)
	assert.Equal(t, settled, res)

	res = c.process(context.Background(), "m-3", string(enums.EventRequestCreated), []byte("{not json"))
	assert.Equal(t, settled, res)
	assert.Empty(t, ins.batches)
}

func TestConsumerNacksAndReleasesKeyOnInsertFailure(t *testing.T) {
	ins := &recordingInserter{err: errors.New("db down")}
	c := newTestConsumer(t, ins)
	body := lifecycleMessage(t, uuid.New(), payloads.RequestLifecycleEvent{
		RequestID: uuid.New(),
		WorkerID:  uuid.New(),
		Quantity:  1,
	})

	res := c.process(context.Background(), "m-1", string(enums.EventRequestCreated), body)
	assert.Equal(t, redeliver, res)

	ins.err = nil
	res = c.process(context.Background(), "m-1", string(enums.EventRequestCreated), body)
	assert.Equal(t, settled, res)
	assert.Len(t, ins.batches, 1)
}
