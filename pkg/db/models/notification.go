package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
)

// Notification is an in-app message addressed to one user or to every member of a role.
// Exactly one of UserID / Role is set, matching Audience.
type Notification struct {
	ID        uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	Audience  enums.NotificationAudience `gorm:"column:audience;type:notification_audience;not null"`
	UserID    *uuid.UUID                 `gorm:"column:user_id;type:uuid"`
	Role      *enums.Role                `gorm:"column:role;type:text"`
	RequestID *uuid.UUID                 `gorm:"column:request_id;type:uuid"`
	Type      enums.NotificationType     `gorm:"column:type;type:notification_type;not null"`
	Message   string                     `gorm:"column:message;type:text;not null"`
	IsRead    bool                       `gorm:"column:is_read;not null;default:false"`
	DedupeKey string                     `gorm:"column:dedupe_key;type:text;not null;uniqueIndex"`
	CreatedAt time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (Notification) TableName() string { return "notifications" }

func (n *Notification) BeforeCreate(*gorm.DB) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	return nil
}
