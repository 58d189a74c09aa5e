package requests

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
)

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// RequestDTO is the request payload returned to clients.
type RequestDTO struct {
	ID                 uuid.UUID           `json:"id"`
	ToolID             uuid.UUID           `json:"tool_id"`
	ToolName           string              `json:"tool_name"`
	WorkerID           uuid.UUID           `json:"worker_id"`
	WorkerName         string              `json:"worker_name"`
	BatchID            *uuid.UUID          `json:"batch_id,omitempty"`
	Quantity           int                 `json:"quantity"`
	Status             enums.RequestStatus `json:"status"`
	RequestDate        time.Time           `json:"request_date"`
	ApprovalDate       *time.Time          `json:"approval_date,omitempty"`
	ReturnDate         *time.Time          `json:"return_date,omitempty"`
	ExpectedReturnDate string              `json:"expected_return_date"`
	Notes              *string             `json:"notes,omitempty"`
	DecidedBy          *uuid.UUID          `json:"decided_by,omitempty"`
	ReturnConfirmedBy  *uuid.UUID          `json:"return_confirmed_by,omitempty"`
}

// ToDTO maps a request row; the tool name is read from the preloaded association when present.
func ToDTO(req models.ToolRequest) RequestDTO {
	dto := RequestDTO{
		ID:                 req.ID,
		ToolID:             req.ToolID,
		WorkerID:           req.WorkerID,
		WorkerName:         req.WorkerName,
		BatchID:            req.BatchID,
		Quantity:           req.Quantity,
		Status:             req.Status,
		RequestDate:        req.RequestDate,
		ApprovalDate:       req.ApprovalDate,
		ReturnDate:         req.ReturnDate,
		ExpectedReturnDate: req.ExpectedReturnDate.Format(DateLayout),
		Notes:              req.Notes,
		DecidedBy:          req.DecidedBy,
		ReturnConfirmedBy:  req.ReturnConfirmedBy,
	}
	if req.Tool != nil {
		dto.ToolName = req.Tool.Name
	}
	return dto
}

func toDTOs(rows []models.ToolRequest) []RequestDTO {
	out := make([]RequestDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, ToDTO(row))
	}
	return out
}
