package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
)

// RequestLifecycleEvent is the snapshot published for every request transition.
// It carries enough to rebuild notification fan-out without reading the database.
type RequestLifecycleEvent struct {
	RequestID  uuid.UUID           `json:"request_id"`
	ToolID     uuid.UUID           `json:"tool_id"`
	ToolName   string              `json:"tool_name"`
	WorkerID   uuid.UUID           `json:"worker_id"`
	WorkerName string              `json:"worker_name"`
	Quantity   int                 `json:"quantity"`
	Status     enums.RequestStatus `json:"status"`
	Notes      string              `json:"notes,omitempty"`
	ActorID    uuid.UUID           `json:"actor_id"`
	ActorRole  enums.Role          `json:"actor_role"`
	OccurredAt time.Time           `json:"occurred_at"`
}

// ToolQuarantinedEvent is emitted when a ledger invariant violation freezes a tool.
type ToolQuarantinedEvent struct {
	ToolID        uuid.UUID `json:"tool_id"`
	ToolName      string    `json:"tool_name"`
	Reason        string    `json:"reason"`
	QuarantinedAt time.Time `json:"quarantined_at"`
}
