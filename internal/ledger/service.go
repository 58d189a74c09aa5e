package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/toolcrib-backend/pkg/db/models"
	"github.com/angelmondragon/toolcrib-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/toolcrib-backend/pkg/errors"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
	"github.com/angelmondragon/toolcrib-backend/pkg/metrics"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox"
	"github.com/angelmondragon/toolcrib-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Report is the admin view of a tool's ledger.
type Report struct {
	Snapshot         Snapshot   `json:"snapshot"`
	Healthy          bool       `json:"healthy"`
	Violation        string     `json:"violation,omitempty"`
	QuarantinedAt    *time.Time `json:"quarantined_at,omitempty"`
	QuarantineReason *string    `json:"quarantine_reason,omitempty"`
}

// ReconcileResult summarizes one sweep over every tool.
type ReconcileResult struct {
	Checked     int
	Quarantined []uuid.UUID
}

// ServiceParams wires the ledger collaborators.
type ServiceParams struct {
	Repository Repository
	DB         txRunner
	Outbox     eventEmitter
	Metrics    *metrics.ReservationMetrics
	Logger     *logger.Logger
	Now        func() time.Time
}

// Service is the only writer of tool stock counters.
type Service struct {
	repo    Repository
	db      txRunner
	outbox  eventEmitter
	metrics *metrics.ReservationMetrics
	logg    *logger.Logger
	now     func() time.Time
}

// NewService wires a ledger service with the provided repository.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:    params.Repository,
		db:      params.DB,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
	}, nil
}

// Tool loads the tool row inside tx; nil when absent.
func (s *Service) Tool(ctx context.Context, tx *gorm.DB, toolID uuid.UUID) (*models.Tool, error) {
	return s.repo.WithTx(tx).FindTool(ctx, toolID)
}

// Reserve takes qty units from the tool inside tx.
func (s *Service) Reserve(ctx context.Context, tx *gorm.DB, toolID uuid.UUID, qty int) error {
	if qty < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	repo := s.repo.WithTx(tx)
	affected, err := repo.Decrement(ctx, toolID, qty)
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	tool, err := repo.FindTool(ctx, toolID)
	if err != nil {
		return err
	}
	switch {
	case tool == nil:
		return pkgerrors.New(pkgerrors.CodeNotFound, "tool not found")
	case tool.IsQuarantined():
		return quarantinedError(tool)
	case tool.Status != enums.ToolStatusActive:
		return pkgerrors.Newf(pkgerrors.CodeToolUnavailable, "tool %q is %s", tool.Name, tool.Status)
	default:
		return pkgerrors.Newf(pkgerrors.CodeInsufficientStock, "requested %d of %q but only %d available", qty, tool.Name, tool.AvailableQty).
			WithDetails(map[string]any{"requested": qty, "available": tool.AvailableQty})
	}
}

// Release returns qty units to the tool inside tx. Tools in maintenance or retired still take returns.
func (s *Service) Release(ctx context.Context, tx *gorm.DB, toolID uuid.UUID, qty int) error {
	if qty < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	repo := s.repo.WithTx(tx)
	affected, err := repo.Increment(ctx, toolID, qty)
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}

	tool, err := repo.FindTool(ctx, toolID)
	if err != nil {
		return err
	}
	switch {
	case tool == nil:
		return pkgerrors.New(pkgerrors.CodeNotFound, "tool not found")
	case tool.IsQuarantined():
		return quarantinedError(tool)
	default:
		return corruption(Snapshot{ToolID: tool.ID, Total: tool.TotalQty, Available: tool.AvailableQty},
			fmt.Errorf("releasing %d units would exceed total %d (available %d)", qty, tool.TotalQty, tool.AvailableQty))
	}
}

// Verify recomputes the snapshot inside tx and fails with LedgerCorruption on any violation.
func (s *Service) Verify(ctx context.Context, tx *gorm.DB, toolID uuid.UUID) (Snapshot, error) {
	snap, _, err := s.snapshot(ctx, s.repo.WithTx(tx), toolID)
	if err != nil {
		return Snapshot{}, err
	}
	if err := CheckInvariant(snap); err != nil {
		return snap, corruption(snap, err)
	}
	return snap, nil
}

// Resize changes total stock, moving available by the same delta.
func (s *Service) Resize(ctx context.Context, tx *gorm.DB, toolID uuid.UUID, newTotal int) error {
	if newTotal < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "total quantity cannot be negative")
	}
	repo := s.repo.WithTx(tx)
	affected, err := repo.Resize(ctx, toolID, newTotal)
	if err != nil {
		return err
	}
	if affected == 1 {
		_, err = s.Verify(ctx, tx, toolID)
		return err
	}

	tool, err := repo.FindTool(ctx, toolID)
	if err != nil {
		return err
	}
	switch {
	case tool == nil:
		return pkgerrors.New(pkgerrors.CodeNotFound, "tool not found")
	case tool.IsQuarantined():
		return quarantinedError(tool)
	default:
		issued := tool.TotalQty - tool.AvailableQty
		return pkgerrors.Newf(pkgerrors.CodeValidation, "total quantity %d is below the %d units currently issued", newTotal, issued).
			WithDetails(map[string]any{"issued": issued, "requested_total": newTotal})
	}
}

// Quarantine freezes ledger writes for the tool in a fresh transaction.
// Calling it for an already quarantined tool is a no-op.
func (s *Service) Quarantine(ctx context.Context, toolID uuid.UUID, reason, source string) error {
	at := s.now()
	var tool *models.Tool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		affected, err := repo.SetQuarantine(ctx, toolID, at, reason)
		if err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		tool, err = repo.FindTool(ctx, toolID)
		if err != nil || tool == nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventToolQuarantined,
			AggregateType: enums.AggregateTool,
			AggregateID:   toolID,
			OccurredAt:    at,
			Data: payloads.ToolQuarantinedEvent{
				ToolID:        toolID,
				ToolName:      tool.Name,
				Reason:        reason,
				QuarantinedAt: at,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("quarantine tool %s: %w", toolID, err)
	}
	if tool == nil {
		return nil
	}
	s.metrics.IncLedgerCorruption(source)
	if s.logg != nil {
		logCtx := s.logg.WithFields(s.logg.WithToolID(ctx, toolID.String()), map[string]any{
			"reason": reason,
			"source": source,
		})
		s.logg.Error(logCtx, "tool quarantined after ledger invariant violation", errors.New(reason))
	}
	return nil
}

// ReleaseQuarantine lifts the freeze once the counters reconcile with outstanding requests.
func (s *Service) ReleaseQuarantine(ctx context.Context, toolID uuid.UUID) (Snapshot, error) {
	var snap Snapshot
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var tool *models.Tool
		var err error
		snap, tool, err = s.snapshot(ctx, repo, toolID)
		if err != nil {
			return err
		}
		if !tool.IsQuarantined() {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "tool %q is not quarantined", tool.Name)
		}
		if err := CheckInvariant(snap); err != nil {
			return corruption(snap, fmt.Errorf("still inconsistent: %w", err))
		}
		_, err = repo.ClearQuarantine(ctx, toolID)
		return err
	})
	return snap, err
}

// Report reads the current snapshot and invariant result.
func (s *Service) Report(ctx context.Context, toolID uuid.UUID) (*Report, error) {
	var report *Report
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		snap, tool, err := s.snapshot(ctx, s.repo.WithTx(tx), toolID)
		if err != nil {
			return err
		}
		report = &Report{
			Snapshot:         snap,
			Healthy:          true,
			QuarantinedAt:    tool.QuarantinedAt,
			QuarantineReason: tool.QuarantineReason,
		}
		if verr := CheckInvariant(snap); verr != nil {
			report.Healthy = false
			report.Violation = verr.Error()
		}
		return nil
	})
	return report, err
}

// Reconcile checks every unquarantined tool and quarantines the ones whose counters drifted.
func (s *Service) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult
	ids, err := s.repo.ListToolIDs(ctx, false)
	if err != nil {
		return result, err
	}
	for _, id := range ids {
		var violation error
		err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			snap, _, err := s.snapshot(ctx, s.repo.WithTx(tx), id)
			if err != nil {
				return err
			}
			violation = CheckInvariant(snap)
			return nil
		})
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				continue
			}
			return result, err
		}
		result.Checked++
		if violation == nil {
			continue
		}
		if err := s.Quarantine(ctx, id, violation.Error(), "reconcile"); err != nil {
			return result, err
		}
		result.Quarantined = append(result.Quarantined, id)
	}
	return result, nil
}

func (s *Service) snapshot(ctx context.Context, repo Repository, toolID uuid.UUID) (Snapshot, *models.Tool, error) {
	tool, err := repo.FindTool(ctx, toolID)
	if err != nil {
		return Snapshot{}, nil, err
	}
	if tool == nil {
		return Snapshot{}, nil, pkgerrors.New(pkgerrors.CodeNotFound, "tool not found")
	}
	outstanding, err := repo.OutstandingQuantity(ctx, toolID)
	if err != nil {
		return Snapshot{}, nil, err
	}
	return Snapshot{
		ToolID:      tool.ID,
		Total:       tool.TotalQty,
		Available:   tool.AvailableQty,
		Outstanding: outstanding,
	}, tool, nil
}

func corruption(snap Snapshot, cause error) error {
	return pkgerrors.Wrap(pkgerrors.CodeLedgerCorruption, cause, cause.Error()).WithDetails(snap)
}

func quarantinedError(tool *models.Tool) error {
	reason := ""
	if tool.QuarantineReason != nil {
		reason = *tool.QuarantineReason
	}
	return pkgerrors.Newf(pkgerrors.CodeLedgerCorruption, "tool %q is quarantined pending reconciliation", tool.Name).
		WithDetails(map[string]any{"tool_id": tool.ID, "quarantined": true, "reason": reason})
}

// IsQuarantineSignal reports whether err means the tool is already quarantined, as opposed to a fresh violation.
func IsQuarantineSignal(err error) bool {
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeLedgerCorruption {
		return false
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		return false
	}
	quarantined, _ := details["quarantined"].(bool)
	return quarantined
}
