package tools

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/toolcrib-backend/internal/repo"
	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	"github.com/angelmondragon/toolcrib-backend/pkg/pagination"
)

// Repository handles persistence for the tool catalog. Stock counters are
// written only through the ledger.
type Repository struct {
	base repo.Base
}

// NewRepository binds a repository to the provided database handle.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{base: repo.NewBase(db)}
}

// WithTx returns a repository bound to the given transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{base: r.base.WithTx(tx)}
}

// listFilter narrows a catalog listing.
type listFilter struct {
	Status *enums.ToolStatus
	Search string
	Cursor *pagination.Cursor
	Limit  int
}

func (r *Repository) Create(ctx context.Context, tool *models.Tool) error {
	return r.base.DB(ctx).Create(tool).Error
}

// FindByID returns the tool or nil when it does not exist.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Tool, error) {
	return repo.First[models.Tool](r.base.DB(ctx).Where("id = ?", id))
}

// LockByID reads the tool under a row lock held until the transaction ends.
func (r *Repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Tool, error) {
	return repo.First[models.Tool](r.base.DB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

// RetireIfIdle retires the tool unless a request still holds its stock.
// Zero rows means the tool is missing, already retired or still issued.
func (r *Repository) RetireIfIdle(ctx context.Context, id uuid.UUID) (int64, error) {
	res := r.base.DB(ctx).Model(&models.Tool{}).
		Where("id = ? AND status <> ?", id, enums.ToolStatusRetired).
		Where("NOT EXISTS (SELECT 1 FROM tool_requests WHERE tool_requests.tool_id = tools.id AND tool_requests.status IN ?)", enums.StockHoldingStatuses()).
		Update("status", enums.ToolStatusRetired)
	return res.RowsAffected, res.Error
}

// FindByName matches case-insensitively; nil when absent.
func (r *Repository) FindByName(ctx context.Context, name string) (*models.Tool, error) {
	return repo.First[models.Tool](r.base.DB(ctx).Where("LOWER(name) = ?", strings.ToLower(strings.TrimSpace(name))))
}

// List returns up to Limit+1 rows newest first.
func (r *Repository) List(ctx context.Context, filter listFilter) ([]models.Tool, error) {
	query := r.base.DB(ctx).Model(&models.Tool{})
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := "%" + escapeLike(strings.ToLower(search)) + "%"
		query = query.Where("(LOWER(name) LIKE ? ESCAPE '\\' OR LOWER(COALESCE(category, '')) LIKE ? ESCAPE '\\')", pattern, pattern)
	}
	if filter.Cursor != nil {
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			filter.Cursor.SortAt, filter.Cursor.SortAt, filter.Cursor.ID,
		)
	}

	var rows []models.Tool
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(filter.Limit)).
		Find(&rows).Error
	return rows, err
}

// UpdateFields writes descriptive columns. Quantity columns are rejected here.
func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	delete(fields, "total_qty")
	delete(fields, "available_qty")
	return r.base.DB(ctx).Model(&models.Tool{}).Where("id = ?", id).Updates(fields).Error
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
