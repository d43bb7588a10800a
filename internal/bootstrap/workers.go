package bootstrap

import (
	"arena/internal/adapters/config"
	settlementsvc "arena/internal/services/settlement"
	"arena/internal/workers"
	settlementworkers "arena/internal/workers/settlement"
	"arena/pkg/logger"
)

// provideWorkers initializes all background workers
func provideWorkers(
	coordinator *settlementsvc.Coordinator,
	cfg *config.Config,
	log *logger.Logger,
) *workers.Scheduler {
	log.Info("Initializing workers...")

	scheduler := workers.NewScheduler()

	// Reconciliation sweep: the safety net behind the real-time timers.
	// Catches fights whose timer never fired (restart, crash, lost
	// race) and retries them every interval until one process commits.
	scheduler.RegisterWorker(settlementworkers.NewReconciler(
		coordinator,
		cfg.Workers.SettlementSweepInterval,
		cfg.Workers.SettlementSweepEnabled,
	))

	log.Infow("✓ Workers initialized", "count", len(scheduler.GetWorkers()))
	return scheduler
}
