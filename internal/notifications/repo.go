package notifications

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	"github.com/angelmondragon/toolcrib-backend/pkg/pagination"
)

// Viewer is the inbox owner a query is scoped to.
type Viewer struct {
	UserID uuid.UUID
	Role   enums.Role
}

// Repository exposes persistence helpers for notifications.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertIgnoringDuplicates(ctx context.Context, rows []models.Notification) (int64, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Notification, error)
	List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error)
	MarkRead(ctx context.Context, id uuid.UUID) (bool, error)
	MarkAllRead(ctx context.Context, viewer Viewer) (int64, error)
	Delete(ctx context.Context, id uuid.UUID) error
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a notifications repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listNotificationsParams struct {
	Viewer     Viewer
	Limit      int
	Cursor     *pagination.Cursor
	UnreadOnly bool
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

// InsertIgnoringDuplicates writes rows, skipping any whose dedupe key already exists.
func (r *repositoryImpl) InsertIgnoringDuplicates(ctx context.Context, rows []models.Notification) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "dedupe_key"}}, DoNothing: true}).
		Create(&rows)
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.Notification, error) {
	var row models.Notification
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repositoryImpl) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, error) {
	query := r.visible(ctx, params.Viewer)
	if params.UnreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if params.Cursor != nil {
		query = query.Where(
			"(created_at < ? OR (created_at = ? AND id < ?))",
			params.Cursor.SortAt, params.Cursor.SortAt, params.Cursor.ID,
		)
	}

	var rows []models.Notification
	err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) MarkRead(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ? AND is_read = ?", id, false).
		UpdateColumn("is_read", true)
	return res.RowsAffected > 0, res.Error
}

func (r *repositoryImpl) MarkAllRead(ctx context.Context, viewer Viewer) (int64, error) {
	res := r.visible(ctx, viewer).
		Where("is_read = ?", false).
		UpdateColumn("is_read", true)
	return res.RowsAffected, res.Error
}

func (r *repositoryImpl) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Notification{}).Error
}

// DeleteOlderThan removes read and unread rows created before cutoff.
func (r *repositoryImpl) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.Notification{})
	return res.RowsAffected, res.Error
}

// visible scopes a query to the viewer's own inbox plus their role's broadcasts.
func (r *repositoryImpl) visible(ctx context.Context, viewer Viewer) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where(
			"((audience = ? AND user_id = ?) OR (audience = ? AND role = ?))",
			enums.NotificationAudienceUser, viewer.UserID,
			enums.NotificationAudienceRole, viewer.Role,
		)
}

// CanAccess reports whether viewer owns n or belongs to its broadcast role.
func CanAccess(viewer Viewer, n models.Notification) bool {
	switch n.Audience {
	case enums.NotificationAudienceUser:
		return n.UserID != nil && *n.UserID == viewer.UserID
	case enums.NotificationAudienceRole:
		return n.Role != nil && *n.Role == viewer.Role
	default:
		return false
	}
}
