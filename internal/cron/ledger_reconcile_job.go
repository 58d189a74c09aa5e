package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/toolcrib-backend/internal/ledger"
	"github.com/angelmondragon/toolcrib-backend/pkg/logger"
)

type LedgerReconcileJobParams struct {
	Logger *logger.Logger
	Ledger ledgerReconciler
}

type ledgerReconciler interface {
	Reconcile(ctx context.Context) (ledger.ReconcileResult, error)
}

// NewLedgerReconcileJob sweeps every tool and quarantines the ones whose
// counters no longer agree with their issued requests.
func NewLedgerReconcileJob(params LedgerReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &ledgerReconcileJob{logg: params.Logger, ledger: params.Ledger}, nil
}

type ledgerReconcileJob struct {
	logg   *logger.Logger
	ledger ledgerReconciler
}

func (j *ledgerReconcileJob) Name() string { return "ledger-reconcile" }

func (j *ledgerReconcileJob) Run(ctx context.Context) error {
	result, err := j.ledger.Reconcile(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"tools_checked":     result.Checked,
		"tools_quarantined": len(result.Quarantined),
	})
	if err != nil {
		return fmt.Errorf("ledger reconcile: %w", err)
	}
	if len(result.Quarantined) > 0 {
		ids := make([]string, 0, len(result.Quarantined))
		for _, id := range result.Quarantined {
			ids = append(ids, id.String())
		}
		logCtx = j.logg.WithField(logCtx, "quarantined_tool_ids", ids)
		j.logg.Warn(logCtx, "ledger reconcile quarantined tools")
		return nil
	}
	j.logg.Info(logCtx, "ledger reconcile complete")
	return nil
}
