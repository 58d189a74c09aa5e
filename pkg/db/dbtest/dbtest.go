// Package dbtest opens throwaway sqlite databases with the full schema for package tests.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/toolcrib-backend/pkg/config"
	"github.com/angelmondragon/toolcrib-backend/pkg/db"
	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	"github.com/angelmondragon/toolcrib-backend/pkg/migrate"
)

// Open returns a migrated in-memory database private to the calling test.
func Open(t testing.TB) *db.Client {
	t.Helper()
	dsn := "file:toolcrib_" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1"
	client, err := db.New(context.Background(), config.DBConfig{
		Driver:           "sqlite",
		DSN:              dsn,
		OperationTimeout: 5 * time.Second,
	}, nil)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := migrate.AutoMigrateModels(client.DB()); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// SeedTool inserts an active tool with total and available set to qty.
func SeedTool(t testing.TB, client *db.Client, name string, qty int) *models.Tool {
	t.Helper()
	tool := &models.Tool{
		Name:         name,
		TotalQty:     qty,
		AvailableQty: qty,
		Status:       enums.ToolStatusActive,
	}
	if err := client.DB().Create(tool).Error; err != nil {
		t.Fatalf("seed tool: %v", err)
	}
	return tool
}

// SeedRequest inserts a request row directly, bypassing the lifecycle.
func SeedRequest(t testing.TB, client *db.Client, req *models.ToolRequest) *models.ToolRequest {
	t.Helper()
	if req.RequestDate.IsZero() {
		req.RequestDate = time.Now().UTC()
	}
	if req.ExpectedReturnDate.IsZero() {
		req.ExpectedReturnDate = req.RequestDate.AddDate(0, 0, 7).Truncate(24 * time.Hour)
	}
	if req.Status == "" {
		req.Status = enums.RequestStatusPending
	}
	if req.WorkerID == uuid.Nil {
		req.WorkerID = uuid.New()
	}
	if err := client.DB().Omit("Tool").Create(req).Error; err != nil {
		t.Fatalf("seed request: %v", err)
	}
	return req
}

// ReloadTool reads the tool row as committed.
func ReloadTool(t testing.TB, client *db.Client, id uuid.UUID) models.Tool {
	t.Helper()
	var tool models.Tool
	if err := client.DB().First(&tool, "id = ?", id).Error; err != nil {
		t.Fatalf("reload tool: %v", err)
	}
	return tool
}

// ReloadRequest reads the request row as committed.
func ReloadRequest(t testing.TB, client *db.Client, id uuid.UUID) models.ToolRequest {
	t.Helper()
	var req models.ToolRequest
	if err := client.DB().First(&req, "id = ?", id).Error; err != nil {
		t.Fatalf("reload request: %v", err)
	}
	return req
}
