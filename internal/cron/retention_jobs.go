package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/internal/notifications"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

const (
	notificationRetentionDays = 30
	outboxRetentionDays       = 30
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxRetentionRepo interface {
	DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)
}

type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository notifications.Repository
	Retention  int
}

// NewNotificationCleanupJob drops inbox rows past the retention window, read or not.
func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, errors.New("notifications repository required")
	}
	repo := params.Repository
	return newPurgeJob("notification-cleanup", params.Logger, params.DB, params.Retention, notificationRetentionDays,
		func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error) {
			return repo.WithTx(tx).DeleteOlderThan(ctx, cutoff)
		})
}

type OutboxRetentionJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository outboxRetentionRepo
	Retention  int
}

// NewOutboxRetentionJob purges events published before the window. Pending
// and dead-lettered rows are never touched.
func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	if params.Repository == nil {
		return nil, errors.New("outbox repository required")
	}
	return newPurgeJob("outbox-retention", params.Logger, params.DB, params.Retention, outboxRetentionDays,
		params.Repository.DeletePublishedBefore)
}

type purgeFunc func(ctx context.Context, tx *gorm.DB, cutoff time.Time) (int64, error)

// purgeJob deletes rows older than a day-based cutoff inside one transaction.
type purgeJob struct {
	name      string
	logg      *logger.Logger
	db        txRunner
	purge     purgeFunc
	retention int
	now       func() time.Time
}

func newPurgeJob(name string, logg *logger.Logger, db txRunner, retention, fallback int, purge purgeFunc) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("%s: logger required", name)
	}
	if db == nil {
		return nil, fmt.Errorf("%s: db runner required", name)
	}
	if retention <= 0 {
		retention = fallback
	}
	return &purgeJob{name: name, logg: logg, db: db, purge: purge, retention: retention, now: time.Now}, nil
}

func (j *purgeJob) Name() string { return j.name }

func (j *purgeJob) cutoff() time.Time {
	return j.now().UTC().AddDate(0, 0, -j.retention)
}

func (j *purgeJob) Run(ctx context.Context) error {
	cutoff := j.cutoff()
	var deleted int64
	err := j.db.WithTx(ctx, func(tx *gorm.DB) (err error) {
		deleted, err = j.purge(ctx, tx, cutoff)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"job":            j.name,
		"cutoff":         cutoff,
		"retention_days": j.retention,
		"rows_deleted":   deleted,
	}), "retention purge complete")
	return nil
}
