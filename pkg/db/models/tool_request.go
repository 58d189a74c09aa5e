package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
)

// ToolRequest is a worker's borrow request. Rows are never deleted.
type ToolRequest struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ToolID             uuid.UUID           `gorm:"column:tool_id;type:uuid;not null"`
	WorkerID           uuid.UUID           `gorm:"column:worker_id;type:uuid;not null"`
	WorkerName         string              `gorm:"column:worker_name;type:text;not null;default:''"`
	BatchID            *uuid.UUID          `gorm:"column:batch_id;type:uuid"`
	Quantity           int                 `gorm:"column:quantity;not null"`
	Status             enums.RequestStatus `gorm:"column:status;type:request_status;not null;default:'pending'"`
	RequestDate        time.Time           `gorm:"column:request_date;not null"`
	ApprovalDate       *time.Time          `gorm:"column:approval_date"`
	ReturnDate         *time.Time          `gorm:"column:return_date"`
	ExpectedReturnDate time.Time           `gorm:"column:expected_return_date;type:date;not null"`
	Notes              *string             `gorm:"column:notes;type:text"`
	DecidedBy          *uuid.UUID          `gorm:"column:decided_by;type:uuid"`
	ReturnConfirmedBy  *uuid.UUID          `gorm:"column:return_confirmed_by;type:uuid"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`

	Tool *Tool `gorm:"foreignKey:ToolID;references:ID"`
}

func (ToolRequest) TableName() string { return "tool_requests" }

func (r *ToolRequest) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
