package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/metrics"
	"github.com/angelmondragon/toolcrib-backend/pkg/pagination"
)

// Service defines notification delivery and inbox operations.
type Service interface {
	List(ctx context.Context, viewer Viewer, params ListParams) (*ListResult, error)
	MarkRead(ctx context.Context, viewer Viewer, notificationID uuid.UUID) error
	MarkAllRead(ctx context.Context, viewer Viewer) (int64, error)
	Delete(ctx context.Context, viewer Viewer, notificationID uuid.UUID) error
	Insert(ctx context.Context, messages []Message) (int64, error)
	Deliver(ctx context.Context, messages []Message)
}

// ServiceParams wires the notifications collaborators.
type ServiceParams struct {
	Repository   Repository
	Logger       *logger.Logger
	Metrics      *metrics.ReservationMetrics
	DefaultLimit int
}

type service struct {
	repo         Repository
	logg         *logger.Logger
	metrics      *metrics.ReservationMetrics
	defaultLimit int
}

// ListParams configures pagination for notifications.
type ListParams struct {
	pagination.Params
	UnreadOnly bool
}

// NotificationDTO is the inbox view of a stored notification.
type NotificationDTO struct {
	ID        uuid.UUID  `json:"id"`
	Type      string     `json:"type"`
	Message   string     `json:"message"`
	RequestID *uuid.UUID `json:"request_id,omitempty"`
	IsRead    bool       `json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
}

// ListResult wraps returned notifications and the cursor for the next page.
type ListResult struct {
	Items  []NotificationDTO `json:"items"`
	Cursor string            `json:"cursor"`
}

// NewService wires notifications dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "notifications repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{
		repo:         params.Repository,
		logg:         params.Logger,
		metrics:      params.Metrics,
		defaultLimit: params.DefaultLimit,
	}, nil
}

func (s *service) List(ctx context.Context, viewer Viewer, params ListParams) (*ListResult, error) {
	if err := validateViewer(viewer); err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := params.Limit
	if limit <= 0 && s.defaultLimit > 0 {
		limit = s.defaultLimit
	}

	rows, err := s.repo.List(ctx, listNotificationsParams{
		Viewer:     viewer,
		Limit:      limit,
		Cursor:     cursor,
		UnreadOnly: params.UnreadOnly,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list notifications")
	}

	page := pagination.BuildPage(rows, limit, func(n models.Notification) pagination.Cursor {
		return pagination.Cursor{SortAt: n.CreatedAt.UTC(), ID: n.ID}
	})
	items := make([]NotificationDTO, 0, len(page.Items))
	for _, row := range page.Items {
		items = append(items, toDTO(row))
	}
	return &ListResult{Items: items, Cursor: page.NextCursor}, nil
}

func (s *service) MarkRead(ctx context.Context, viewer Viewer, notificationID uuid.UUID) error {
	if _, err := s.authorize(ctx, viewer, notificationID); err != nil {
		return err
	}
	if _, err := s.repo.MarkRead(ctx, notificationID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notification read")
	}
	return nil
}

func (s *service) MarkAllRead(ctx context.Context, viewer Viewer) (int64, error) {
	if err := validateViewer(viewer); err != nil {
		return 0, err
	}
	count, err := s.repo.MarkAllRead(ctx, viewer)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark notifications read")
	}
	return count, nil
}

func (s *service) Delete(ctx context.Context, viewer Viewer, notificationID uuid.UUID) error {
	if _, err := s.authorize(ctx, viewer, notificationID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, notificationID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete notification")
	}
	return nil
}

// Insert persists messages, skipping ones already written under the same dedupe key.
func (s *service) Insert(ctx context.Context, messages []Message) (int64, error) {
	rows := make([]models.Notification, 0, len(messages))
	for _, msg := range messages {
		row, err := toModel(msg)
		if err != nil {
			return 0, err
		}
		rows = append(rows, row)
	}
	return s.repo.InsertIgnoringDuplicates(ctx, rows)
}

// Deliver is Insert for post-commit fan-out: failures are logged and counted, never returned.
func (s *service) Deliver(ctx context.Context, messages []Message) {
	if len(messages) == 0 {
		return
	}
	inserted, err := s.Insert(ctx, messages)
	if err != nil {
		s.metrics.IncNotificationFailure()
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"notification_type": string(messages[0].Type),
			"messages":          len(messages),
		})
		s.logg.Error(logCtx, "notification delivery failed", err)
		return
	}
	s.logg.Debug(s.logg.WithField(ctx, "inserted", inserted), "notifications delivered")
}

func (s *service) authorize(ctx context.Context, viewer Viewer, id uuid.UUID) (*models.Notification, error) {
	if err := validateViewer(viewer); err != nil {
		return nil, err
	}
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "notification id required")
	}
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load notification")
	}
	if row == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "notification not found")
	}
	if !CanAccess(viewer, *row) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "notification belongs to another recipient")
	}
	return row, nil
}

func validateViewer(viewer Viewer) error {
	if viewer.UserID == uuid.Nil || !viewer.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "viewer identity is required")
	}
	return nil
}

func toModel(msg Message) (models.Notification, error) {
	if msg.Recipient == nil {
		return models.Notification{}, fmt.Errorf("notification recipient required")
	}
	requestID := msg.RequestID
	row := models.Notification{
		Audience:  msg.Recipient.Audience(),
		RequestID: &requestID,
		Type:      msg.Type,
		Message:   msg.Text,
		DedupeKey: msg.DedupeKey(),
	}
	switch to := msg.Recipient.(type) {
	case User:
		userID := to.UserID
		row.UserID = &userID
	case RoleBroadcast:
		role := to.Role
		row.Role = &role
	}
	return row, nil
}

func toDTO(n models.Notification) NotificationDTO {
	return NotificationDTO{
		ID:        n.ID,
		Type:      string(n.Type),
		Message:   n.Message,
		RequestID: n.RequestID,
		IsRead:    n.IsRead,
		CreatedAt: n.CreatedAt.UTC(),
	}
}
