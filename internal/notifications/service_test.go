package notifications

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/dbtest"
	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/metrics"
	"github.com/angelmondragon/toolcrib-backend/pkg/pagination"
)

type fixture struct {
	svc         Service
	repo        Repository
	worker      Viewer
	other       Viewer
	storekeeper Viewer
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())
	svc, err := NewService(ServiceParams{
		Repository: repo,
		Logger:     logger.New(logger.Options{ServiceName: "test"}),
	})
	require.NoError(t, err)
	return fixture{
		svc:         svc,
		repo:        repo,
		worker:      Viewer{UserID: uuid.New(), Role: enums.RoleWorker},
		other:       Viewer{UserID: uuid.New(), Role: enums.RoleWorker},
		storekeeper: Viewer{UserID: uuid.New(), Role: enums.RoleStorekeeper},
	}
}

func (f fixture) deliver(t *testing.T, typ enums.NotificationType) []Message {
	t.Helper()
	msgs := Build(Event{
		Type:       typ,
		RequestID:  uuid.New(),
		ToolName:   "Drill",
		WorkerID:   f.worker.UserID,
		WorkerName: "Bob",
		Quantity:   1,
	})
	_, err := f.svc.Insert(context.Background(), msgs)
	require.NoError(t, err)
	return msgs
}

func TestInsertIsIdempotentOnDedupeKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	msgs := f.deliver(t, enums.NotificationTypeRequestApproved)

	again, err := f.svc.Insert(ctx, msgs)
	require.NoError(t, err)
	assert.Zero(t, again)

	workerPage, err := f.svc.List(ctx, f.worker, ListParams{})
	require.NoError(t, err)
	require.Len(t, workerPage.Items, 1)
	assert.Equal(t, "Your request for Drill was approved", workerPage.Items[0].Message)
}

func TestListScopesToAudience(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deliver(t, enums.NotificationTypeRequestCreated)
	f.deliver(t, enums.NotificationTypeToolReturned)

	storekeeperPage, err := f.svc.List(ctx, f.storekeeper, ListParams{})
	require.NoError(t, err)
	assert.Len(t, storekeeperPage.Items, 2)

	workerPage, err := f.svc.List(ctx, f.worker, ListParams{})
	require.NoError(t, err)
	require.Len(t, workerPage.Items, 1)
	assert.Equal(t, "Return of Drill confirmed", workerPage.Items[0].Message)

	otherPage, err := f.svc.List(ctx, f.other, ListParams{})
	require.NoError(t, err)
	assert.Empty(t, otherPage.Items)
}

func TestListPaginatesAndFiltersUnread(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.deliver(t, enums.NotificationTypeToolReturnInitiated)
		time.Sleep(2 * time.Millisecond)
	}

	first, err := f.svc.List(ctx, f.storekeeper, ListParams{Params: pagination.Params{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, first.Items, 2)
	require.NotEmpty(t, first.Cursor)
	assert.True(t, !first.Items[0].CreatedAt.Before(first.Items[1].CreatedAt))

	second, err := f.svc.List(ctx, f.storekeeper, ListParams{Params: pagination.Params{Limit: 2, Cursor: first.Cursor}})
	require.NoError(t, err)
	require.Len(t, second.Items, 1)
	assert.Empty(t, second.Cursor)

	require.NoError(t, f.svc.MarkRead(ctx, f.storekeeper, first.Items[0].ID))
	unread, err := f.svc.List(ctx, f.storekeeper, ListParams{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread.Items, 2)

	_, err = f.svc.List(ctx, f.storekeeper, ListParams{Params: pagination.Params{Cursor: "%%%"}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestMarkReadAndDeleteEnforceAccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deliver(t, enums.NotificationTypeRequestRejected)

	page, err := f.svc.List(ctx, f.worker, ListParams{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	mine := page.Items[0].ID

	err = f.svc.MarkRead(ctx, f.other, mine)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	err = f.svc.Delete(ctx, f.storekeeper, mine)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))
	err = f.svc.MarkRead(ctx, f.worker, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	err = f.svc.MarkRead(ctx, Viewer{}, mine)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	require.NoError(t, f.svc.MarkRead(ctx, f.worker, mine))
	require.NoError(t, f.svc.MarkRead(ctx, f.worker, mine))
	row, err := f.repo.FindByID(ctx, mine)
	require.NoError(t, err)
	assert.True(t, row.IsRead)

	require.NoError(t, f.svc.Delete(ctx, f.worker, mine))
	row, err = f.repo.FindByID(ctx, mine)
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestMarkAllReadOnlyTouchesViewerInbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deliver(t, enums.NotificationTypeRequestApproved)
	f.deliver(t, enums.NotificationTypeRequestRejected)

	count, err := f.svc.MarkAllRead(ctx, f.worker)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	unread, err := f.svc.List(ctx, f.storekeeper, ListParams{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, unread.Items, 2)
}

func TestDeleteOlderThan(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.deliver(t, enums.NotificationTypeRequestCreated)

	removed, err := f.repo.DeleteOlderThan(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	assert.Zero(t, removed)

	removed, err = f.repo.DeleteOlderThan(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
}

type failingRepository struct {
	Repository
	calls int
}

func (f *failingRepository) WithTx(*gorm.DB) Repository { return f }

func (f *failingRepository) InsertIgnoringDuplicates(context.Context, []models.Notification) (int64, error) {
	f.calls++
	return 0, errors.New("connection reset")
}

func TestDeliverSwallowsFailures(t *testing.T) {
	reg := prometheus.NewRegistry()
	var buf bytes.Buffer
	repo := &failingRepository{}
	svc, err := NewService(ServiceParams{
		Repository: repo,
		Logger:     logger.New(logger.Options{ServiceName: "test", Output: &buf}),
		Metrics:    metrics.NewReservationMetrics(reg),
	})
	require.NoError(t, err)

	svc.Deliver(context.Background(), Build(Event{
		Type:      enums.NotificationTypeRequestCreated,
		RequestID: uuid.New(),
		WorkerID:  uuid.New(),
	}))

	assert.Equal(t, 1, repo.calls)
	assert.Contains(t, buf.String(), "notification delivery failed")

	families, err := reg.Gather()
	require.NoError(t, err)
	var failures float64
	for _, mf := range families {
		if mf.GetName() == "toolcrib_notification_delivery_failures_total" {
			failures = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(1), failures)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
	_, err = NewService(ServiceParams{Repository: &failingRepository{}})
	require.Error(t, err)
}
