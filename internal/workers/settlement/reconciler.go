package settlement

import (
	"context"
	"time"

	"arena/internal/workers"
	"arena/pkg/errors"
)

// Sweeper settles every overdue fight it can win the lease for.
// Satisfied by the settlement coordinator.
type Sweeper interface {
	SettleDueFights(ctx context.Context, limit int) (int, error)
}

// Batch cap per sweep, the rest waits for the next interval
const defaultBatchLimit = 50

// Reconciler is the correctness backstop of settlement. The timer path
// settles fights within seconds of their deadline; this worker catches
// everything the timers missed: process crashes, restarts, lost lease
// races, adjudicator outages. A fight is retried every interval until
// some process commits it, bounded only by the lease TTL.
type Reconciler struct {
	*workers.BaseWorker
	sweeper    Sweeper
	batchLimit int
}

// NewReconciler creates a new settlement reconciler worker
func NewReconciler(sweeper Sweeper, interval time.Duration, enabled bool) *Reconciler {
	return &Reconciler{
		BaseWorker: workers.NewBaseWorker("settlement_reconciler", interval, enabled),
		sweeper:    sweeper,
		batchLimit: defaultBatchLimit,
	}
}

// Run executes one sweep iteration
func (r *Reconciler) Run(ctx context.Context) error {
	start := time.Now()
	r.Log().Debug("Reconciler: starting sweep")

	settled, err := r.sweeper.SettleDueFights(ctx, r.batchLimit)
	if err != nil {
		r.RecordError(err, time.Since(start))
		return errors.Wrap(err, "settlement sweep failed")
	}

	if settled > 0 {
		r.Log().Infow("Reconciler: sweep complete",
			"settled", settled,
			"duration", time.Since(start),
		)
	} else {
		r.Log().Debug("Reconciler: nothing overdue")
	}

	r.RecordRun(time.Since(start))
	return nil
}
