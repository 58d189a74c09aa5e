package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
)

// Tool is a stocked tool line. AvailableQty is only moved by the inventory ledger.
type Tool struct {
	ID                uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	Name              string           `gorm:"column:name;type:text;not null"`
	Description       string           `gorm:"column:description;type:text;not null;default:''"`
	ImageURL          *string          `gorm:"column:image_url;type:text"`
	Category          *string          `gorm:"column:category;type:text"`
	Location          *string          `gorm:"column:location;type:text"`
	TotalQty          int              `gorm:"column:total_qty;not null;default:0"`
	AvailableQty      int              `gorm:"column:available_qty;not null;default:0"`
	Status            enums.ToolStatus `gorm:"column:status;type:tool_status;not null;default:'active'"`
	LastMaintenanceAt *time.Time       `gorm:"column:last_maintenance_at"`
	QuarantinedAt     *time.Time       `gorm:"column:quarantined_at"`
	QuarantineReason  *string          `gorm:"column:quarantine_reason;type:text"`
	CreatedAt         time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (Tool) TableName() string { return "tools" }

func (t *Tool) BeforeCreate(*gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

// IsQuarantined reports whether ledger writes are halted pending reconciliation.
func (t Tool) IsQuarantined() bool {
	return t.QuarantinedAt != nil
}
