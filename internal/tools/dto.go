package tools

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
)

// ToolDTO is the catalog view of a tool.
type ToolDTO struct {
	ID                uuid.UUID        `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	ImageURL          *string          `json:"image_url,omitempty"`
	Category          *string          `json:"category,omitempty"`
	Location          *string          `json:"location,omitempty"`
	TotalQty          int              `json:"total_qty"`
	AvailableQty      int              `json:"available_qty"`
	Status            enums.ToolStatus `json:"status"`
	LastMaintenanceAt *time.Time       `json:"last_maintenance_at,omitempty"`
	Quarantined       bool             `json:"quarantined"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

func toDTO(tool models.Tool) ToolDTO {
	return ToolDTO{
		ID:                tool.ID,
		Name:              tool.Name,
		Description:       tool.Description,
		ImageURL:          tool.ImageURL,
		Category:          tool.Category,
		Location:          tool.Location,
		TotalQty:          tool.TotalQty,
		AvailableQty:      tool.AvailableQty,
		Status:            tool.Status,
		LastMaintenanceAt: tool.LastMaintenanceAt,
		Quarantined:       tool.IsQuarantined(),
		CreatedAt:         tool.CreatedAt,
		UpdatedAt:         tool.UpdatedAt,
	}
}
