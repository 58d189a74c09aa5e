package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/internal/ledger"
	"github.com/angelmondragon/toolcrib-backend/internal/notifications"
	"github.com/angelmondragon/toolcrib-backend/internal/requests"
	"github.com/angelmondragon/toolcrib-backend/pkg/db"
	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/metrics"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/payloads"
)

const (
	quarantineSource        = "request_flow"
	defaultOperationTimeout = 10 * time.Second
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ledgerService interface {
	Tool(ctx context.Context, tx *gorm.DB, toolID uuid.UUID) (*models.Tool, error)
	Reserve(ctx context.Context, tx *gorm.DB, toolID uuid.UUID, qty int) error
	Release(ctx context.Context, tx *gorm.DB, toolID uuid.UUID, qty int) error
	Verify(ctx context.Context, tx *gorm.DB, toolID uuid.UUID) (ledger.Snapshot, error)
	Quarantine(ctx context.Context, toolID uuid.UUID, reason, source string) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type notifier interface {
	Deliver(ctx context.Context, messages []notifications.Message)
}

// Service is the lifecycle surface the HTTP layer depends on.
type Service interface {
	Create(ctx context.Context, actor requests.Actor, in CreateInput) (*requests.RequestDTO, error)
	CreateBatch(ctx context.Context, actor requests.Actor, items []CreateInput) ([]requests.RequestDTO, error)
	Approve(ctx context.Context, actor requests.Actor, requestID uuid.UUID, in DecisionInput) (*requests.RequestDTO, error)
	Reject(ctx context.Context, actor requests.Actor, requestID uuid.UUID, in DecisionInput) (*requests.RequestDTO, error)
	InitiateReturn(ctx context.Context, actor requests.Actor, requestID uuid.UUID, in ReturnInput) (*requests.RequestDTO, error)
	ConfirmReturn(ctx context.Context, actor requests.Actor, requestID uuid.UUID, in ReturnInput) (*requests.RequestDTO, error)
}

var _ Service = (*Coordinator)(nil)

// CoordinatorParams wires the coordinator collaborators.
type CoordinatorParams struct {
	DB               txRunner
	Ledger           ledgerService
	Requests         requests.Repository
	Outbox           outboxEmitter
	Notifications    notifier
	Metrics          *metrics.ReservationMetrics
	Logger           *logger.Logger
	OperationTimeout time.Duration
	Now              func() time.Time
}

// Coordinator runs every request lifecycle operation as one transaction spanning
// the status change, the ledger movement and the outbox event. Notifications are
// delivered only after commit.
type Coordinator struct {
	db            txRunner
	ledger        ledgerService
	requests      requests.Repository
	machine       *requests.StateMachine
	outbox        outboxEmitter
	notifications notifier
	metrics       *metrics.ReservationMetrics
	logg          *logger.Logger
	timeout       time.Duration
	now           func() time.Time
}

// NewCoordinator validates and wires the coordinator.
func NewCoordinator(params CoordinatorParams) (*Coordinator, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if params.Requests == nil {
		return nil, fmt.Errorf("requests repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	timeout := params.OperationTimeout
	if timeout <= 0 {
		timeout = defaultOperationTimeout
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Coordinator{
		db:            params.DB,
		ledger:        params.Ledger,
		requests:      params.Requests,
		machine:       requests.NewStateMachine(params.Requests),
		outbox:        params.Outbox,
		notifications: params.Notifications,
		metrics:       params.Metrics,
		logg:          params.Logger,
		timeout:       timeout,
		now:           now,
	}, nil
}

// committed is what a successful transaction hands to post-commit fan-out.
type committed struct {
	event  enums.RequestEvent
	toolID uuid.UUID
	notes  string
	rows   []*models.ToolRequest
}

// Create opens a pending request. Stock is only soft-checked here; approval reserves it.
func (c *Coordinator) Create(ctx context.Context, actor requests.Actor, in CreateInput) (*requests.RequestDTO, error) {
	res, err := c.run(ctx, actor, enums.RequestEventCreate, func(ctx context.Context, tx *gorm.DB, res *committed) error {
		if err := requests.Authorize(enums.RequestEventCreate, actor, nil); err != nil {
			return err
		}
		now := c.now()
		item, err := in.normalize(dateOnly(now))
		if err != nil {
			return err
		}
		res.toolID = item.ToolID
		tool, err := c.checkAvailability(ctx, tx, item)
		if err != nil {
			return err
		}
		req, err := c.insert(ctx, tx, actor, tool, item, nil, now)
		if err != nil {
			return err
		}
		res.rows = append(res.rows, req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := requests.ToDTO(*res.rows[0])
	return &dto, nil
}

// BatchFailure describes one rejected batch item.
type BatchFailure struct {
	Index   int            `json:"index"`
	ToolID  uuid.UUID      `json:"tool_id"`
	Code    pkgerrors.Code `json:"code"`
	Message string         `json:"message"`
}

// CreateBatch opens one pending request per item under a shared batch id.
// Every item is checked first; a single failure writes nothing.
func (c *Coordinator) CreateBatch(ctx context.Context, actor requests.Actor, items []CreateInput) ([]requests.RequestDTO, error) {
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "batch requires at least one item")
	}
	if len(items) > MaxBatchItems {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "batch accepts at most %d items, got %d", MaxBatchItems, len(items))
	}

	res, err := c.run(ctx, actor, enums.RequestEventCreate, func(ctx context.Context, tx *gorm.DB, res *committed) error {
		if err := requests.Authorize(enums.RequestEventCreate, actor, nil); err != nil {
			return err
		}
		now := c.now()
		today := dateOnly(now)

		type checked struct {
			in   CreateInput
			tool *models.Tool
		}
		valid := make([]checked, 0, len(items))
		var errs error
		var failures []BatchFailure
		for i, item := range items {
			if item.ExpectedReturnDate.IsZero() {
				item.ExpectedReturnDate = today.AddDate(0, 0, DefaultLoanDays)
			}
			in, err := item.normalize(today)
			var tool *models.Tool
			if err == nil {
				tool, err = c.checkAvailability(ctx, tx, in)
			}
			if err != nil {
				typed := pkgerrors.As(err)
				if typed == nil {
					return err
				}
				errs = multierr.Append(errs, fmt.Errorf("item %d: %w", i, err))
				failures = append(failures, BatchFailure{Index: i, ToolID: item.ToolID, Code: typed.Code(), Message: typed.Message()})
				continue
			}
			valid = append(valid, checked{in: in, tool: tool})
		}
		if errs != nil {
			return batchError(errs, failures, len(items))
		}

		batchID := uuid.New()
		for _, v := range valid {
			req, err := c.insert(ctx, tx, actor, v.tool, v.in, &batchID, now)
			if err != nil {
				return err
			}
			res.rows = append(res.rows, req)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]requests.RequestDTO, 0, len(res.rows))
	for _, row := range res.rows {
		out = append(out, requests.ToDTO(*row))
	}
	return out, nil
}

// Approve moves a pending request to approved and reserves its stock.
// InsufficientStock leaves the request pending.
func (c *Coordinator) Approve(ctx context.Context, actor requests.Actor, requestID uuid.UUID, in DecisionInput) (*requests.RequestDTO, error) {
	return c.transition(ctx, actor, requestID, enums.RequestEventApprove, in.Notes)
}

// Reject closes a pending request without touching stock.
func (c *Coordinator) Reject(ctx context.Context, actor requests.Actor, requestID uuid.UUID, in DecisionInput) (*requests.RequestDTO, error) {
	return c.transition(ctx, actor, requestID, enums.RequestEventReject, in.Notes)
}

// InitiateReturn marks the borrower's approved request as being returned. Stock stays reserved.
func (c *Coordinator) InitiateReturn(ctx context.Context, actor requests.Actor, requestID uuid.UUID, in ReturnInput) (*requests.RequestDTO, error) {
	return c.transition(ctx, actor, requestID, enums.RequestEventInitiateReturn, in.Notes)
}

// ConfirmReturn completes a returning request and releases its stock.
func (c *Coordinator) ConfirmReturn(ctx context.Context, actor requests.Actor, requestID uuid.UUID, in ReturnInput) (*requests.RequestDTO, error) {
	return c.transition(ctx, actor, requestID, enums.RequestEventConfirmReturn, in.Notes)
}

func (c *Coordinator) transition(ctx context.Context, actor requests.Actor, requestID uuid.UUID, event enums.RequestEvent, rawNotes *string) (*requests.RequestDTO, error) {
	res, err := c.run(ctx, actor, event, func(ctx context.Context, tx *gorm.DB, res *committed) error {
		if requestID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "request id is required")
		}
		notes, err := cleanNotes(rawNotes)
		if err != nil {
			return err
		}
		req, err := c.requests.WithTx(tx).FindByID(ctx, requestID)
		if err != nil {
			return err
		}
		if req == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "request not found")
		}
		if err := requests.Authorize(event, actor, req); err != nil {
			return err
		}
		res.toolID = req.ToolID

		now := c.now()
		stamps := requests.Stamps{At: now, ActorID: actor.UserID, Notes: notes}
		if err := c.machine.Transition(ctx, tx, req, event, stamps); err != nil {
			return err
		}

		switch event {
		case enums.RequestEventApprove:
			if err := c.ledger.Reserve(ctx, tx, req.ToolID, req.Quantity); err != nil {
				return err
			}
		case enums.RequestEventConfirmReturn:
			if err := c.ledger.Release(ctx, tx, req.ToolID, req.Quantity); err != nil {
				return err
			}
		}
		if event == enums.RequestEventApprove || event == enums.RequestEventConfirmReturn {
			if _, err := c.ledger.Verify(ctx, tx, req.ToolID); err != nil {
				return err
			}
		}

		if notes != nil {
			res.notes = *notes
		}
		if err := c.emit(ctx, tx, event, req, actor, res.notes, now); err != nil {
			return err
		}
		res.rows = append(res.rows, req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	dto := requests.ToDTO(*res.rows[0])
	return &dto, nil
}

// run executes fn in a transaction detached from the caller's cancellation and
// bounded by the operation timeout, then classifies failures and fans out on success.
func (c *Coordinator) run(ctx context.Context, actor requests.Actor, event enums.RequestEvent, fn func(ctx context.Context, tx *gorm.DB, res *committed) error) (*committed, error) {
	start := time.Now()
	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	res := &committed{event: event}
	err := classify(c.db.WithTx(opCtx, func(tx *gorm.DB) error {
		return fn(opCtx, tx, res)
	}))

	logCtx := c.logg.WithFields(c.logg.WithActorRole(c.logg.WithUserID(ctx, actor.UserID.String()), string(actor.Role)), map[string]any{
		"event": string(event),
	})
	if res.toolID != uuid.Nil {
		logCtx = c.logg.WithToolID(logCtx, res.toolID.String())
	}

	if err != nil && res.toolID != uuid.Nil && pkgerrors.IsCode(err, pkgerrors.CodeLedgerCorruption) && !ledger.IsQuarantineSignal(err) {
		c.quarantine(ctx, logCtx, res.toolID, err)
	}
	c.metrics.ObserveTransition(string(event), outcomeFor(err), time.Since(start))

	if err != nil {
		if isClientError(err) {
			c.logg.Warn(logCtx, err.Error())
		} else {
			c.logg.Error(logCtx, "request operation failed", err)
		}
		return nil, err
	}

	for _, row := range res.rows {
		c.logg.Info(c.logg.WithToolRequestID(logCtx, row.ID.String()), "request "+string(event)+" committed")
	}
	c.fanOut(ctx, res)
	return res, nil
}

func (c *Coordinator) quarantine(ctx, logCtx context.Context, toolID uuid.UUID, cause error) {
	qCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()
	reason := cause.Error()
	if typed := pkgerrors.As(cause); typed != nil {
		reason = typed.Message()
	}
	if err := c.ledger.Quarantine(qCtx, toolID, reason, quarantineSource); err != nil {
		c.logg.Error(logCtx, "failed to quarantine tool after ledger violation", err)
	}
}

func (c *Coordinator) checkAvailability(ctx context.Context, tx *gorm.DB, in CreateInput) (*models.Tool, error) {
	tool, err := c.ledger.Tool(ctx, tx, in.ToolID)
	if err != nil {
		return nil, err
	}
	switch {
	case tool == nil:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "tool not found")
	case tool.IsQuarantined():
		return nil, pkgerrors.Newf(pkgerrors.CodeToolUnavailable, "tool %q is quarantined pending reconciliation", tool.Name)
	case tool.Status != enums.ToolStatusActive:
		return nil, pkgerrors.Newf(pkgerrors.CodeToolUnavailable, "tool %q is %s", tool.Name, tool.Status)
	case in.Quantity > tool.AvailableQty:
		return nil, pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "requested %d of %q but only %d available", in.Quantity, tool.Name, tool.AvailableQty).
			WithDetails(map[string]any{"requested": in.Quantity, "available": tool.AvailableQty})
	}
	return tool, nil
}

func (c *Coordinator) insert(ctx context.Context, tx *gorm.DB, actor requests.Actor, tool *models.Tool, in CreateInput, batchID *uuid.UUID, now time.Time) (*models.ToolRequest, error) {
	req := &models.ToolRequest{
		ToolID:             tool.ID,
		WorkerID:           actor.UserID,
		WorkerName:         actor.Name,
		BatchID:            batchID,
		Quantity:           in.Quantity,
		Status:             requests.InitialStatus(),
		RequestDate:        now,
		ExpectedReturnDate: in.ExpectedReturnDate,
		Notes:              in.Notes,
	}
	if err := c.requests.WithTx(tx).Create(ctx, req); err != nil {
		return nil, err
	}
	req.Tool = tool
	notes := ""
	if req.Notes != nil {
		notes = *req.Notes
	}
	if err := c.emit(ctx, tx, enums.RequestEventCreate, req, actor, notes, now); err != nil {
		return nil, err
	}
	return req, nil
}

func (c *Coordinator) emit(ctx context.Context, tx *gorm.DB, event enums.RequestEvent, req *models.ToolRequest, actor requests.Actor, notes string, at time.Time) error {
	eventType, ok := enums.LifecycleEventFor(event)
	if !ok {
		return fmt.Errorf("no lifecycle event for %s", event)
	}
	payload := payloads.RequestLifecycleEvent{
		RequestID:  req.ID,
		ToolID:     req.ToolID,
		WorkerID:   req.WorkerID,
		WorkerName: req.WorkerName,
		Quantity:   req.Quantity,
		Status:     req.Status,
		Notes:      notes,
		ActorID:    actor.UserID,
		ActorRole:  actor.Role,
		OccurredAt: at,
	}
	if req.Tool != nil {
		payload.ToolName = req.Tool.Name
	}
	return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateToolRequest,
		AggregateID:   req.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.Role), Name: actor.Name},
		Data:          payload,
		OccurredAt:    at,
	})
}

// fanOut delivers notifications for committed rows. Delivery never fails the operation.
func (c *Coordinator) fanOut(ctx context.Context, res *committed) {
	eventType, ok := enums.LifecycleEventFor(res.event)
	if !ok {
		return
	}
	notificationType, ok := notifications.TypeForEvent(eventType)
	if !ok {
		return
	}
	deliverCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	for _, row := range res.rows {
		ev := notifications.Event{
			Type:       notificationType,
			RequestID:  row.ID,
			WorkerID:   row.WorkerID,
			WorkerName: row.WorkerName,
			Quantity:   row.Quantity,
			Notes:      res.notes,
		}
		if row.Tool != nil {
			ev.ToolName = row.Tool.Name
		}
		c.notifications.Deliver(deliverCtx, notifications.Build(ev))
	}
}

// classify maps untyped storage failures to Busy or Internal; coded errors pass through.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if db.IsBusy(err) {
		return pkgerrors.Wrap(pkgerrors.CodeBusy, err, "tool inventory is busy, retry the request")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "request operation failed")
}

func isClientError(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil {
		return false
	}
	switch typed.Code() {
	case pkgerrors.CodeInternal, pkgerrors.CodeDependency, pkgerrors.CodeBusy, pkgerrors.CodeLedgerCorruption:
		return false
	default:
		return true
	}
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case pkgerrors.IsCode(err, pkgerrors.CodeBusy):
		return metrics.OutcomeBusy
	case isClientError(err):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}

func batchError(errs error, failures []BatchFailure, total int) error {
	code := failures[0].Code
	for _, f := range failures[1:] {
		if f.Code != code {
			code = pkgerrors.CodeValidation
			break
		}
	}
	return pkgerrors.Wrap(code, errs, fmt.Sprintf("%d of %d batch items failed: %s", len(failures), total, failures[0].Message)).
		WithDetails(map[string]any{"items": failures})
}
