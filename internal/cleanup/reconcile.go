package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
	"github.com/shopspring/decimal"

	"github.com/artspark/backend/internal/ledger"
	"github.com/artspark/backend/internal/models"
)

// UnreconciledLister finds tasks whose refund failed at generation time.
type UnreconciledLister interface {
	ListUnreconciled(ctx context.Context) ([]*models.GenerationTask, error)
}

// TaskUpdater persists the task once its refund finally lands.
type TaskUpdater interface {
	Update(ctx context.Context, t *models.GenerationTask) error
}

// Refunder retries the compensation credit.
type Refunder interface {
	Refund(ctx context.Context, accountID, taskID uuid.UUID, amount decimal.Decimal) (decimal.Decimal, error)
}

// ReconcileArgs is the periodic job that retries refunds for tasks stuck in
// failed_unrefunded. Usually that state came from a transient database error,
// so a later retry tends to succeed.
type ReconcileArgs struct{}

func (ReconcileArgs) Kind() string { return "reconcile_unrefunded" }

func (ReconcileArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		UniqueOpts: river.UniqueOpts{ByArgs: true, ByState: rivertype.UniqueOptsByStateDefault()},
	}
}

type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileArgs]
	Tasks interface {
		UnreconciledLister
		TaskUpdater
	}
	Ledger Refunder
	Logger *slog.Logger
}

func (w *ReconcileWorker) Work(ctx context.Context, _ *river.Job[ReconcileArgs]) error {
	tasks, err := w.Tasks.ListUnreconciled(ctx)
	if err != nil {
		return err
	}

	for _, t := range tasks {
		if _, err := w.Ledger.Refund(ctx, t.AccountID, t.ID, t.QuotedCost); err != nil && !ledger.IsDuplicate(err) {
			w.Logger.Warn("refund retry failed", "task_id", t.ID, "error", err)
			continue
		}
		t.Status = models.TaskStatusFailedRefunded
		if err := w.Tasks.Update(ctx, t); err != nil {
			w.Logger.Error("reconciled task status update failed", "task_id", t.ID, "error", err)
			continue
		}
		w.Logger.Info("stuck refund reconciled", "task_id", t.ID, "account_id", t.AccountID, "amount", t.QuotedCost)
	}
	return nil
}

// ReconcilePeriodicJob schedules the refund retry sweep.
func ReconcilePeriodicJob() *river.PeriodicJob {
	return river.NewPeriodicJob(
		river.PeriodicInterval(15*time.Minute),
		func() (river.JobArgs, *river.InsertOpts) {
			return ReconcileArgs{}, nil
		},
		&river.PeriodicJobOpts{RunOnStart: true},
	)
}
