package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/db"
	"github.com/angelmondragon/toolcrib-backend/pkg/db/dbtest"
	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/metrics"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox"
)

func newTestService(t *testing.T) (*Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(client.DB()),
		DB:         client,
		Outbox:     outbox.NewService(outbox.NewRepository(client.DB()), nil),
		Metrics:    metrics.NewReservationMetrics(prometheus.NewRegistry()),
		Now:        func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return svc, client
}

func inTx(t *testing.T, client *db.Client, fn func(tx *gorm.DB) error) error {
	t.Helper()
	return client.WithTx(context.Background(), fn)
}

func TestReserveAndRelease(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	tool := dbtest.SeedTool(t, client, "Impact driver", 5)

	require.NoError(t, inTx(t, client, func(tx *gorm.DB) error {
		return svc.Reserve(ctx, tx, tool.ID, 3)
	}))
	assert.Equal(t, 2, dbtest.ReloadTool(t, client, tool.ID).AvailableQty)

	require.NoError(t, inTx(t, client, func(tx *gorm.DB) error {
		return svc.Release(ctx, tx, tool.ID, 3)
	}))
	assert.Equal(t, 5, dbtest.ReloadTool(t, client, tool.ID).AvailableQty)
}

func TestReserveFailures(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	tool := dbtest.SeedTool(t, client, "Hammer", 2)

	reserve := func(id uuid.UUID, qty int) error {
		return inTx(t, client, func(tx *gorm.DB) error { return svc.Reserve(ctx, tx, id, qty) })
	}

	assert.True(t, pkgerrors.IsCode(reserve(tool.ID, 3), pkgerrors.CodeInsufficientStock))
	assert.True(t, pkgerrors.IsCode(reserve(tool.ID, 0), pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.IsCode(reserve(uuid.New(), 1), pkgerrors.CodeNotFound))

	require.NoError(t, client.DB().Model(&models.Tool{}).Where("id = ?", tool.ID).Update("status", enums.ToolStatusMaintenance).Error)
	assert.True(t, pkgerrors.IsCode(reserve(tool.ID, 1), pkgerrors.CodeToolUnavailable))
	assert.Equal(t, 2, dbtest.ReloadTool(t, client, tool.ID).AvailableQty)
}

func TestReleaseBeyondTotalIsCorruption(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	tool := dbtest.SeedTool(t, client, "Level", 2)

	err := inTx(t, client, func(tx *gorm.DB) error { return svc.Release(ctx, tx, tool.ID, 1) })
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLedgerCorruption))
	assert.False(t, IsQuarantineSignal(err))
	assert.Equal(t, 2, dbtest.ReloadTool(t, client, tool.ID).AvailableQty)
}

func TestReleaseAllowedOnRetiredTool(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	tool := dbtest.SeedTool(t, client, "Saw", 2)
	require.NoError(t, inTx(t, client, func(tx *gorm.DB) error { return svc.Reserve(ctx, tx, tool.ID, 1) }))
	require.NoError(t, client.DB().Model(&models.Tool{}).Where("id = ?", tool.ID).Update("status", enums.ToolStatusRetired).Error)

	require.NoError(t, inTx(t, client, func(tx *gorm.DB) error { return svc.Release(ctx, tx, tool.ID, 1) }))
	assert.Equal(t, 2, dbtest.ReloadTool(t, client, tool.ID).AvailableQty)
}

func TestVerifyDetectsDrift(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	tool := dbtest.SeedTool(t, client, "Grinder", 5)
	dbtest.SeedRequest(t, client, &models.ToolRequest{ToolID: tool.ID, Quantity: 2, Status: enums.RequestStatusApproved})

	err := inTx(t, client, func(tx *gorm.DB) error {
		_, err := svc.Verify(ctx, tx, tool.ID)
		return err
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLedgerCorruption))
	assert.ErrorIs(t, err, ErrOutstandingMismatch)
}

func TestQuarantineBlocksLedgerAndEmitsEvent(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	tool := dbtest.SeedTool(t, client, "Torch", 3)

	require.NoError(t, svc.Quarantine(ctx, tool.ID, "available exceeds total", "request"))
	require.NoError(t, svc.Quarantine(ctx, tool.ID, "second call is ignored", "request"))

	reloaded := dbtest.ReloadTool(t, client, tool.ID)
	require.NotNil(t, reloaded.QuarantinedAt)
	assert.Equal(t, "available exceeds total", *reloaded.QuarantineReason)

	var events []models.OutboxEvent
	require.NoError(t, client.DB().Where("aggregate_id = ?", tool.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventToolQuarantined, events[0].EventType)

	err := inTx(t, client, func(tx *gorm.DB) error { return svc.Reserve(ctx, tx, tool.ID, 1) })
	assert.True(t, IsQuarantineSignal(err))
	err = inTx(t, client, func(tx *gorm.DB) error { return svc.Release(ctx, tx, tool.ID, 1) })
	assert.True(t, IsQuarantineSignal(err))
}

func TestReleaseQuarantine(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	tool := dbtest.SeedTool(t, client, "Clamp", 4)

	_, err := svc.ReleaseQuarantine(ctx, tool.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	require.NoError(t, client.DB().Model(&models.Tool{}).Where("id = ?", tool.ID).Update("available_qty", 3).Error)
	require.NoError(t, svc.Quarantine(ctx, tool.ID, "drift", "reconcile"))

	_, err = svc.ReleaseQuarantine(ctx, tool.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeLedgerCorruption))
	assert.NotNil(t, dbtest.ReloadTool(t, client, tool.ID).QuarantinedAt)

	require.NoError(t, client.DB().Model(&models.Tool{}).Where("id = ?", tool.ID).Update("available_qty", 4).Error)
	snap, err := svc.ReleaseQuarantine(ctx, tool.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, snap.Available)
	assert.Nil(t, dbtest.ReloadTool(t, client, tool.ID).QuarantinedAt)
}

func TestResize(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	tool := dbtest.SeedTool(t, client, "Ladder", 5)
	dbtest.SeedRequest(t, client, &models.ToolRequest{ToolID: tool.ID, Quantity: 3, Status: enums.RequestStatusApproved})
	require.NoError(t, client.DB().Model(&models.Tool{}).Where("id = ?", tool.ID).Update("available_qty", 2).Error)

	resize := func(total int) error {
		return inTx(t, client, func(tx *gorm.DB) error { return svc.Resize(ctx, tx, tool.ID, total) })
	}

	require.NoError(t, resize(8))
	reloaded := dbtest.ReloadTool(t, client, tool.ID)
	assert.Equal(t, 8, reloaded.TotalQty)
	assert.Equal(t, 5, reloaded.AvailableQty)

	require.NoError(t, resize(3))
	reloaded = dbtest.ReloadTool(t, client, tool.ID)
	assert.Equal(t, 3, reloaded.TotalQty)
	assert.Equal(t, 0, reloaded.AvailableQty)

	err := resize(2)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.True(t, pkgerrors.IsCode(resize(-1), pkgerrors.CodeValidation))
	assert.Equal(t, 3, dbtest.ReloadTool(t, client, tool.ID).TotalQty)
}

func TestReportAndReconcile(t *testing.T) {
	svc, client := newTestService(t)
	ctx := context.Background()
	healthy := dbtest.SeedTool(t, client, "Healthy", 2)
	drifted := dbtest.SeedTool(t, client, "Drifted", 2)
	dbtest.SeedRequest(t, client, &models.ToolRequest{ToolID: drifted.ID, Quantity: 1, Status: enums.RequestStatusReturning})

	report, err := svc.Report(ctx, drifted.ID)
	require.NoError(t, err)
	assert.False(t, report.Healthy)
	assert.Equal(t, 1, report.Snapshot.Outstanding)

	result, err := svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, []uuid.UUID{drifted.ID}, result.Quarantined)
	assert.Nil(t, dbtest.ReloadTool(t, client, healthy.ID).QuarantinedAt)

	result, err = svc.Reconcile(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Empty(t, result.Quarantined)

	_, err = svc.Report(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
