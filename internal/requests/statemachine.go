package requests

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
)

// Actor is the authenticated caller of a lifecycle operation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.Role
	Name   string
}

func (a Actor) IsStorekeeper() bool { return a.Role == enums.RoleStorekeeper }

type transition struct {
	from  enums.RequestStatus
	event enums.RequestEvent
	to    enums.RequestStatus
}

// statusNone is the pseudo status of a request that does not exist yet.
const statusNone enums.RequestStatus = ""

var transitionTable = []transition{
	{from: statusNone, event: enums.RequestEventCreate, to: enums.RequestStatusPending},
	{from: enums.RequestStatusPending, event: enums.RequestEventApprove, to: enums.RequestStatusApproved},
	{from: enums.RequestStatusPending, event: enums.RequestEventReject, to: enums.RequestStatusRejected},
	{from: enums.RequestStatusApproved, event: enums.RequestEventInitiateReturn, to: enums.RequestStatusReturning},
	{from: enums.RequestStatusReturning, event: enums.RequestEventConfirmReturn, to: enums.RequestStatusCompleted},
}

// Next returns the status reached by applying event to from, or InvalidTransition.
func Next(from enums.RequestStatus, event enums.RequestEvent) (enums.RequestStatus, error) {
	for _, t := range transitionTable {
		if t.from == from && t.event == event {
			return t.to, nil
		}
	}
	current := string(from)
	if current == "" {
		current = "none"
	}
	return "", pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "cannot %s a request in status %s", humanEvent(event), current).
		WithDetails(map[string]any{"event": event, "status": current})
}

// InitialStatus is the status a newly created request starts in.
func InitialStatus() enums.RequestStatus {
	to, _ := Next(statusNone, enums.RequestEventCreate)
	return to
}

// Authorize checks that actor may apply event to req. req is nil for create.
func Authorize(event enums.RequestEvent, actor Actor, req *models.ToolRequest) error {
	if actor.UserID == uuid.Nil || !actor.Role.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity is required")
	}
	switch event {
	case enums.RequestEventCreate:
		if actor.Role != enums.RoleWorker {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only workers can request tools")
		}
	case enums.RequestEventApprove, enums.RequestEventReject, enums.RequestEventConfirmReturn:
		if actor.Role != enums.RoleStorekeeper {
			return pkgerrors.Newf(pkgerrors.CodeForbidden, "only storekeepers can %s requests", humanEvent(event))
		}
	case enums.RequestEventInitiateReturn:
		if req == nil || req.WorkerID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the borrower can return this tool")
		}
	default:
		return pkgerrors.Newf(pkgerrors.CodeValidation, "unknown request event %q", event)
	}
	return nil
}

// Stamps are the audit fields written alongside a status change. Notes, when
// set, replace the request notes for any event.
type Stamps struct {
	At      time.Time
	ActorID uuid.UUID
	Notes   *string
}

// StateMachine is the only writer of tool_requests.status after creation.
type StateMachine struct {
	repo Repository
}

func NewStateMachine(repo Repository) *StateMachine {
	return &StateMachine{repo: repo}
}

// Transition moves req to the status event leads to with a compare-and-set on the
// current status. A concurrent writer that got there first yields InvalidTransition.
// req is updated in place on success.
func (m *StateMachine) Transition(ctx context.Context, tx *gorm.DB, req *models.ToolRequest, event enums.RequestEvent, stamps Stamps) error {
	to, err := Next(req.Status, event)
	if err != nil {
		return err
	}
	at := stamps.At.UTC()
	fields := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	switch event {
	case enums.RequestEventApprove, enums.RequestEventReject:
		fields["approval_date"] = at
		fields["decided_by"] = stamps.ActorID
	case enums.RequestEventConfirmReturn:
		fields["return_date"] = at
		fields["return_confirmed_by"] = stamps.ActorID
	}
	if stamps.Notes != nil {
		fields["notes"] = *stamps.Notes
	}

	repo := m.repo.WithTx(tx)
	affected, err := repo.CompareAndSetStatus(ctx, req.ID, req.Status, fields)
	if err != nil {
		return err
	}
	if affected == 0 {
		current, err := repo.FindByID(ctx, req.ID)
		if err != nil {
			return err
		}
		if current == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "request not found")
		}
		_, err = Next(current.Status, event)
		if err == nil {
			err = pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "request changed concurrently to %s", current.Status)
		}
		return err
	}

	req.Status = to
	req.UpdatedAt = at
	switch event {
	case enums.RequestEventApprove, enums.RequestEventReject:
		req.ApprovalDate = &at
		req.DecidedBy = &stamps.ActorID
	case enums.RequestEventConfirmReturn:
		req.ReturnDate = &at
		req.ReturnConfirmedBy = &stamps.ActorID
	}
	if stamps.Notes != nil {
		req.Notes = stamps.Notes
	}
	return nil
}

func humanEvent(event enums.RequestEvent) string {
	switch event {
	case enums.RequestEventInitiateReturn:
		return "initiate return of"
	case enums.RequestEventConfirmReturn:
		return "confirm return of"
	default:
		return string(event)
	}
}
