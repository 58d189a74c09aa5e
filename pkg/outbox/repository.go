package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
)

const (
	maxLastErrorLen   = 1024
	defaultClaimLimit = 50
)

var errTxRequired = errors.New("transaction required")

// Repository owns outbox_events. Writes take the caller's transaction; only
// retention purges may fall back to the base handle.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Create(&event).Error
}

// ClaimPending row-locks the oldest unpublished rows still under the attempt
// ceiling. SKIP LOCKED lets parallel publishers take disjoint batches.
func (r *Repository) ClaimPending(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errTxRequired
	}
	if limit <= 0 {
		limit = defaultClaimLimit
	}
	q := tx.Where("published_at IS NULL")
	if maxAttempts > 0 {
		q = q.Where("attempt_count < ?", maxAttempts)
	}
	var rows []models.OutboxEvent
	err := q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Order("created_at, id").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublished(tx *gorm.DB, id uuid.UUID) error {
	return r.update(tx, id, map[string]any{
		"published_at": time.Now().UTC(),
		"last_error":   nil,
	})
}

func (r *Repository) RecordFailure(tx *gorm.DB, id uuid.UUID, err error) error {
	return r.update(tx, id, map[string]any{
		"last_error":    errorText(err),
		"attempt_count": gorm.Expr("attempt_count + 1"),
	})
}

// Park pins attempt_count to the ceiling so ClaimPending never returns the row again.
func (r *Repository) Park(tx *gorm.DB, id uuid.UUID, err error, ceiling int) error {
	return r.update(tx, id, map[string]any{
		"last_error":    errorText(err),
		"attempt_count": ceiling,
	})
}

func (r *Repository) update(tx *gorm.DB, id uuid.UUID, cols map[string]any) error {
	if tx == nil {
		return errTxRequired
	}
	return tx.Model(&models.OutboxEvent{}).Where("id = ?", id).Updates(cols).Error
}

// DeletePublishedBefore purges rows published before cutoff. Pending and
// parked rows have no published_at and are never touched.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	res := tx.WithContext(ctx).
		Where("published_at IS NOT NULL AND published_at < ?", cutoff).
		Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}

func errorText(err error) *string {
	if err == nil {
		return nil
	}
	msg := clip(err.Error(), maxLastErrorLen)
	return &msg
}

func clip(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
