package bootstrap

import (
	"context"
	"sync"
	"time"

	chclient "arena/internal/adapters/clickhouse"
	"arena/internal/adapters/kafka"
	pgclient "arena/internal/adapters/postgres"
	redisclient "arena/internal/adapters/redis"
	"arena/internal/api"
	chrepo "arena/internal/repository/clickhouse"
	"arena/internal/services/settlement"
	"arena/internal/workers"
	"arena/pkg/errors"
	"arena/pkg/logger"
)

// Lifecycle manages graceful startup and shutdown of components
type Lifecycle struct {
	shutdownTimeout time.Duration
}

// NewLifecycle creates a new lifecycle manager
func NewLifecycle() *Lifecycle {
	return &Lifecycle{
		shutdownTimeout: 60 * time.Second,
	}
}

// Shutdown performs coordinated cleanup of all components in the correct order.
// A settlement in flight holds a database lease, so ordering matters:
// 1. No new requests accepted
// 2. Timers and workers finish cleanly (in-flight settlements commit or release)
// 3. Kafka consumer unblocks before waiting for goroutines
// 4. Producer closes after the consumer
// 5. Audit batch flushed
// 6. Logs and errors flushed
// 7. Database connections last (other components need them to wind down)
func (l *Lifecycle) Shutdown(
	wg *sync.WaitGroup,
	httpServer *api.Server,
	workerScheduler *workers.Scheduler,
	timers *settlement.TimerRegistry,
	fillConsumer *kafka.Consumer,
	kafkaProducer *kafka.Producer,
	auditRepo *chrepo.SettlementAuditRepository,
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	errorTracker errors.Tracker,
	log *logger.Logger,
) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), l.shutdownTimeout)
	defer shutdownCancel()

	// ========================================
	// Step 1: Stop HTTP Server (5s timeout)
	// ========================================
	log.Info("[1/8] Stopping HTTP server...")
	httpCtx, httpCancel := context.WithTimeout(shutdownCtx, 5*time.Second)
	defer httpCancel()

	if err := httpServer.Shutdown(httpCtx); err != nil {
		log.Errorw("HTTP server shutdown failed", "error", err)
	} else {
		log.Info("✓ HTTP server stopped")
	}

	// ========================================
	// Step 2: Stop settlement timers and workers
	// ========================================
	log.Info("[2/8] Stopping settlement timers and workers...")
	if timers != nil {
		timers.Stop()
	}
	if err := workerScheduler.Stop(); err != nil {
		log.Errorw("Workers shutdown failed", "error", err)
	} else {
		log.Info("✓ Timers and workers stopped")
	}

	// ========================================
	// Step 3: Close Kafka Consumer
	// Critical: close BEFORE waiting for goroutines to unblock ReadMessage()
	// ========================================
	log.Info("[3/8] Closing Kafka consumer...")
	if fillConsumer != nil {
		if err := fillConsumer.Close(); err != nil {
			log.Errorw("Kafka consumer close failed", "error", err)
		}
	}
	log.Info("✓ Kafka consumer closed")

	// ========================================
	// Step 4: Wait for goroutines
	// ========================================
	log.Info("[4/8] Waiting for goroutines...")
	l.waitForGoroutines(wg, 10*time.Second, log)

	// ========================================
	// Step 5: Close Kafka Producer
	// ========================================
	log.Info("[5/8] Closing Kafka producer...")
	if kafkaProducer != nil {
		if err := kafkaProducer.Close(); err != nil {
			log.Errorw("Kafka producer close failed", "error", err)
		} else {
			log.Info("✓ Kafka producer closed")
		}
	}

	// ========================================
	// Step 6: Flush settlement audit batch
	// ========================================
	log.Info("[6/8] Flushing settlement audit...")
	if auditRepo != nil {
		auditCtx, auditCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		if err := auditRepo.Stop(auditCtx); err != nil {
			log.Errorw("Settlement audit flush failed", "error", err)
		} else {
			log.Info("✓ Settlement audit flushed")
		}
		auditCancel()
	}

	// ========================================
	// Step 7: Flush error tracker and sync logs
	// ========================================
	log.Info("[7/8] Flushing error tracker...")
	l.flushErrorTracker(errorTracker, shutdownCtx, log)
	if err := logger.Sync(); err != nil {
		log.Warn("Log sync completed with warnings")
	}

	// ========================================
	// Step 8: Close Database Connections
	// LAST - other components may need them during shutdown
	// ========================================
	log.Info("[8/8] Closing database connections...")
	l.closeDatabases(pgClient, chClient, redisClient, log)

	log.Info("✅ Graceful shutdown complete")
}

// waitForGoroutines waits for all goroutines with a timeout
func (l *Lifecycle) waitForGoroutines(wg *sync.WaitGroup, timeout time.Duration, log *logger.Logger) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("✓ All goroutines finished")
	case <-time.After(timeout):
		log.Warnw("⚠ Some goroutines did not finish within timeout", "timeout", timeout)
	}
}

// flushErrorTracker flushes the error tracker (Sentry, etc.)
func (l *Lifecycle) flushErrorTracker(tracker errors.Tracker, ctx context.Context, log *logger.Logger) {
	if tracker == nil {
		return
	}

	flushCtx, flushCancel := context.WithTimeout(ctx, 3*time.Second)
	defer flushCancel()

	if err := tracker.Flush(flushCtx); err != nil {
		log.Errorw("Error tracker flush failed", "error", err)
	} else {
		log.Info("✓ Error tracker flushed")
	}
}

// closeDatabases closes all database connections
func (l *Lifecycle) closeDatabases(
	pgClient *pgclient.Client,
	chClient *chclient.Client,
	redisClient *redisclient.Client,
	log *logger.Logger,
) {
	var dbErrors []error

	if pgClient != nil {
		if err := pgClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "postgres"))
		}
	}

	if chClient != nil {
		if err := chClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "clickhouse"))
		}
	}

	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			dbErrors = append(dbErrors, errors.Wrap(err, "redis"))
		}
	}

	if len(dbErrors) > 0 {
		log.Errorw("Database close errors", "errors", dbErrors)
	} else {
		log.Info("✓ Database connections closed")
	}
}
