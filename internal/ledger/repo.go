package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
)

// Repository holds the conditional writes that move tool counters.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindTool(ctx context.Context, id uuid.UUID) (*models.Tool, error)
	Decrement(ctx context.Context, id uuid.UUID, qty int) (int64, error)
	Increment(ctx context.Context, id uuid.UUID, qty int) (int64, error)
	Resize(ctx context.Context, id uuid.UUID, newTotal int) (int64, error)
	OutstandingQuantity(ctx context.Context, id uuid.UUID) (int, error)
	SetQuarantine(ctx context.Context, id uuid.UUID, at time.Time, reason string) (int64, error)
	ClearQuarantine(ctx context.Context, id uuid.UUID) (int64, error)
	ListToolIDs(ctx context.Context, includeQuarantined bool) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindTool returns nil, nil when the tool does not exist.
func (r *repository) FindTool(ctx context.Context, id uuid.UUID) (*models.Tool, error) {
	var tool models.Tool
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&tool).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tool, nil
}

// Decrement takes qty units only when the tool is active, unquarantined and has them.
func (r *repository) Decrement(ctx context.Context, id uuid.UUID, qty int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Tool{}).
		Where("id = ? AND status = ? AND quarantined_at IS NULL AND available_qty >= ?", id, enums.ToolStatusActive, qty).
		Updates(map[string]any{
			"available_qty": gorm.Expr("available_qty - ?", qty),
			"updated_at":    time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// Increment puts qty units back only when that cannot push available above total.
func (r *repository) Increment(ctx context.Context, id uuid.UUID, qty int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Tool{}).
		Where("id = ? AND quarantined_at IS NULL AND available_qty + ? <= total_qty", id, qty).
		Updates(map[string]any{
			"available_qty": gorm.Expr("available_qty + ?", qty),
			"updated_at":    time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

// Resize shifts available by the same delta as total so outstanding units are untouched.
func (r *repository) Resize(ctx context.Context, id uuid.UUID, newTotal int) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Tool{}).
		Where("id = ? AND quarantined_at IS NULL AND available_qty + (? - total_qty) >= 0", id, newTotal).
		Updates(map[string]any{
			"available_qty": gorm.Expr("available_qty + (? - total_qty)", newTotal),
			"total_qty":     newTotal,
			"updated_at":    time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) OutstandingQuantity(ctx context.Context, id uuid.UUID) (int, error) {
	var total int
	err := r.db.WithContext(ctx).
		Model(&models.ToolRequest{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("tool_id = ? AND status IN ?", id, enums.StockHoldingStatuses()).
		Scan(&total).Error
	return total, err
}

func (r *repository) SetQuarantine(ctx context.Context, id uuid.UUID, at time.Time, reason string) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Tool{}).
		Where("id = ? AND quarantined_at IS NULL", id).
		Updates(map[string]any{
			"quarantined_at":    at,
			"quarantine_reason": reason,
			"updated_at":        at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ClearQuarantine(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Tool{}).
		Where("id = ? AND quarantined_at IS NOT NULL", id).
		Updates(map[string]any{
			"quarantined_at":    nil,
			"quarantine_reason": nil,
			"updated_at":        time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListToolIDs(ctx context.Context, includeQuarantined bool) ([]uuid.UUID, error) {
	query := r.db.WithContext(ctx).Model(&models.Tool{})
	if !includeQuarantined {
		query = query.Where("quarantined_at IS NULL")
	}
	var ids []uuid.UUID
	err := query.Order("name ASC").Pluck("id", &ids).Error
	return ids, err
}
