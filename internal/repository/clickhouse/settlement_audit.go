package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"arena/internal/domain/fight"
	"arena/pkg/clickhouse"
	"arena/pkg/errors"
	"arena/pkg/logger"
)

// SettlementAuditRepository persists per-participant settlement records
// to ClickHouse for the audit trail. Uses batch writer for bulk inserts.
type SettlementAuditRepository struct {
	conn        driver.Conn
	batchWriter *clickhouse.BatchWriter
}

// NewSettlementAuditRepository creates an audit repository with batch writer
func NewSettlementAuditRepository(conn driver.Conn) *SettlementAuditRepository {
	repo := &SettlementAuditRepository{
		conn: conn,
	}

	repo.batchWriter = clickhouse.NewBatchWriter(clickhouse.BatchWriterConfig{
		Conn:         conn,
		FlushFunc:    repo.flushBatch,
		TableName:    "fight_settlements",
		MaxBatchSize: 200,
		MaxAge:       5 * time.Second,
	})

	return repo
}

// Start begins the background flush loop
func (r *SettlementAuditRepository) Start(ctx context.Context) {
	r.batchWriter.Start(ctx)
}

// Stop gracefully shuts down the batch writer
func (r *SettlementAuditRepository) Stop(ctx context.Context) error {
	return r.batchWriter.Stop(ctx)
}

// Record buffers one participant's settlement outcome (not immediate).
// Callers must treat failures as non-fatal: the fight is already
// committed in Postgres by the time audit rows are written.
func (r *SettlementAuditRepository) Record(ctx context.Context, audit *fight.SettlementAudit) error {
	return r.batchWriter.Add(ctx, audit)
}

// flushBatch performs the actual batch insert to ClickHouse
// via PrepareBatch/Append/Send: one INSERT for all buffered rows.
func (r *SettlementAuditRepository) flushBatch(ctx context.Context, batch []interface{}) error {
	if len(batch) == 0 {
		return nil
	}

	log := logger.Get().With("component", "settlement_audit_batch")

	query := `
		INSERT INTO fight_settlements (
			fight_id, user_id, slot, settled_at, settled_by,
			final_status, is_winner, is_draw,
			realized_pnl, unrealized_pnl, total_fees,
			margin, peak_exposure, pnl_percent, score_usdc,
			trades_count, verdict_source, adjudicator_latency_ms
		) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?,
			?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?
		)
	`

	start := time.Now()

	stmt, err := r.conn.PrepareBatch(ctx, query)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}
	defer stmt.Abort()

	validItems := 0
	for _, item := range batch {
		audit, ok := item.(*fight.SettlementAudit)
		if !ok {
			log.Warnf("Skipping invalid item type: %T", item)
			continue
		}

		err := stmt.Append(
			audit.FightID.String(), audit.UserID.String(), audit.Slot.String(), audit.SettledAt, audit.SettledBy,
			audit.FinalStatus.String(), audit.IsWinner, audit.IsDraw,
			audit.RealizedPnl.InexactFloat64(), audit.UnrealizedPnl.InexactFloat64(), audit.TotalFees.InexactFloat64(),
			audit.Margin.InexactFloat64(), audit.PeakExposure.InexactFloat64(), audit.PnlPercent.InexactFloat64(), audit.ScoreUsdc.InexactFloat64(),
			uint32(audit.TradesCount), audit.VerdictSource, audit.AdjudicatorLatencyMs,
		)

		if err != nil {
			return errors.Wrap(err, "failed to append to batch")
		}
		validItems++
	}

	if err := stmt.Send(); err != nil {
		return errors.Wrap(err, "failed to send batch")
	}

	duration := time.Since(start)
	log.Infof("Batch inserted %d settlement audit records in %v", validItems, duration)

	return nil
}

// GetUserRecord returns wins, draws and losses for a user across all fights
func (r *SettlementAuditRepository) GetUserRecord(ctx context.Context, userID string) (wins, draws, losses uint64, err error) {
	query := `
		SELECT
			countIf(is_winner AND NOT is_draw) as wins,
			countIf(is_draw) as draws,
			countIf(NOT is_winner AND NOT is_draw AND final_status = 'finished') as losses
		FROM fight_settlements
		WHERE user_id = ?
	`

	if err := r.conn.QueryRow(ctx, query, userID).Scan(&wins, &draws, &losses); err != nil {
		return 0, 0, 0, errors.Wrap(err, "failed to get user record")
	}

	return wins, draws, losses, nil
}

// GetFallbackVerdictRate returns the share of settlements decided by the
// local fallback rather than the adjudicator, for a time range.
func (r *SettlementAuditRepository) GetFallbackVerdictRate(ctx context.Context, from, to time.Time) (float64, error) {
	query := `
		SELECT countIf(verdict_source = 'fallback') / count() as rate
		FROM fight_settlements
		WHERE settled_at BETWEEN ? AND ?
	`

	var rate float64
	err := r.conn.QueryRow(ctx, query, from, to).Scan(&rate)
	if err != nil {
		return 0, errors.Wrap(err, "failed to get fallback verdict rate")
	}

	return rate, nil
}

// GetDailySettlementCounts returns settlements per terminal status for a day
func (r *SettlementAuditRepository) GetDailySettlementCounts(ctx context.Context, date time.Time) (map[string]uint64, error) {
	// Two audit rows are written per fight, one per participant
	query := `
		SELECT final_status, count(DISTINCT fight_id) as fights
		FROM fight_settlements
		WHERE toDate(settled_at) = toDate(?)
		GROUP BY final_status
	`

	rows, err := r.conn.Query(ctx, query, date)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query settlement counts")
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var status string
		var fights uint64
		if err := rows.Scan(&status, &fights); err != nil {
			return nil, errors.Wrap(err, "failed to scan settlement count")
		}
		counts[status] = fights
	}

	return counts, nil
}
