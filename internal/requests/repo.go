package requests

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	"github.com/angelmondragon/toolcrib-backend/pkg/pagination"
)

// SortField selects the keyset column of a listing.
type SortField string

const (
	SortByRequestDate  SortField = "request_date"
	SortByApprovalDate SortField = "approval_date"
)

// ListFilter narrows a request listing. Zero values mean no filter.
type ListFilter struct {
	WorkerID *uuid.UUID
	ToolID   *uuid.UUID
	Statuses []enums.RequestStatus
	SortBy   SortField
	Cursor   *pagination.Cursor
	Limit    int
}

// Repository persists tool requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, req *models.ToolRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ToolRequest, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from enums.RequestStatus, fields map[string]any) (int64, error)
	List(ctx context.Context, filter ListFilter) ([]models.ToolRequest, error)
	CountOutstandingForTool(ctx context.Context, toolID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, req *models.ToolRequest) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(req).Error
}

// FindByID loads the request with its tool; nil, nil when absent.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ToolRequest, error) {
	var req models.ToolRequest
	err := r.db.WithContext(ctx).Preload("Tool").Where("id = ?", id).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &req, nil
}

// CompareAndSetStatus applies fields only while the row still has status from.
func (r *repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from enums.RequestStatus, fields map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ToolRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	return res.RowsAffected, res.Error
}

// List returns up to filter.Limit+1 rows newest first so callers can detect another page.
func (r *repository) List(ctx context.Context, filter ListFilter) ([]models.ToolRequest, error) {
	sortCol := string(filter.SortBy)
	if sortCol == "" {
		sortCol = string(SortByRequestDate)
	}

	query := r.db.WithContext(ctx).Model(&models.ToolRequest{}).Preload("Tool")
	if filter.WorkerID != nil {
		query = query.Where("worker_id = ?", *filter.WorkerID)
	}
	if filter.ToolID != nil {
		query = query.Where("tool_id = ?", *filter.ToolID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("status IN ?", filter.Statuses)
	}
	if filter.SortBy == SortByApprovalDate {
		query = query.Where("approval_date IS NOT NULL")
	}
	if filter.Cursor != nil {
		query = query.Where(
			"("+sortCol+" < ? OR ("+sortCol+" = ? AND id < ?))",
			filter.Cursor.SortAt, filter.Cursor.SortAt, filter.Cursor.ID,
		)
	}

	var rows []models.ToolRequest
	err := query.
		Order(sortCol + " DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(filter.Limit)).
		Find(&rows).Error
	return rows, err
}

func (r *repository) CountOutstandingForTool(ctx context.Context, toolID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ToolRequest{}).
		Where("tool_id = ? AND status IN ?", toolID, enums.StockHoldingStatuses()).
		Count(&count).Error
	return count, err
}

// CursorFor returns the keyset position of req under the given sort.
func CursorFor(req models.ToolRequest, sortBy SortField) pagination.Cursor {
	at := req.RequestDate
	if sortBy == SortByApprovalDate && req.ApprovalDate != nil {
		at = *req.ApprovalDate
	}
	return pagination.Cursor{SortAt: at.UTC(), ID: req.ID}
}
