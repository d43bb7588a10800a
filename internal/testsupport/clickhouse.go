package testsupport

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arena/internal/adapters/clickhouse"
	"arena/internal/adapters/config"
	"arena/internal/domain/fight"
)

// ClickHouseTestHelper manages cleanup for ClickHouse integration tests.
type ClickHouseTestHelper struct {
	client *clickhouse.Client
}

// NewClickHouseTestHelper creates a ClickHouse client for tests.
func NewClickHouseTestHelper(t *testing.T, cfg config.ClickHouseConfig) *ClickHouseTestHelper {
	t.Helper()

	client, err := clickhouse.NewClient(cfg)
	if err != nil {
		t.Fatalf("failed to connect to clickhouse: %v", err)
	}

	helper := &ClickHouseTestHelper{client: client}
	t.Cleanup(func() { _ = client.Close() })
	return helper
}

// CreateTempTable creates a temporary table and registers cleanup.
func (h *ClickHouseTestHelper) CreateTempTable(t *testing.T, schema string) string {
	t.Helper()

	table := fmt.Sprintf("tmp_test_%d", time.Now().UnixNano())
	query := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s) ENGINE = MergeTree() ORDER BY tuple()", table, schema)

	if err := h.client.Exec(context.Background(), query); err != nil {
		t.Fatalf("failed to create clickhouse table: %v", err)
	}

	t.Cleanup(func() {
		_ = h.client.Exec(context.Background(), fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
	})

	return table
}

// CleanupTable drops the provided table immediately.
func (h *ClickHouseTestHelper) CleanupTable(ctx context.Context, table string) error {
	return h.client.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table))
}

// TruncateTable removes all data from the table but keeps the structure
func (h *ClickHouseTestHelper) TruncateTable(ctx context.Context, table string) error {
	return h.client.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE IF EXISTS %s", table))
}

// RegisterTableCleanup schedules cleanup of specific table data after test completes
// This is useful when working with shared tables that shouldn't be dropped
func (h *ClickHouseTestHelper) RegisterTableCleanup(t *testing.T, table, condition string) {
	t.Helper()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		// Use DELETE for immediate cleanup (ALTER TABLE DELETE is async)
		query := fmt.Sprintf("DELETE FROM %s WHERE %s", table, condition)
		_ = h.client.Exec(ctx, query)
	})
}

// Client exposes the underlying clickhouse client
func (h *ClickHouseTestHelper) Client() *clickhouse.Client {
	return h.client
}

// EnsureFightSettlementsTable creates the settlement audit table when
// the integration database does not carry migrations.
func (h *ClickHouseTestHelper) EnsureFightSettlementsTable(t *testing.T) {
	t.Helper()

	query := `
		CREATE TABLE IF NOT EXISTS fight_settlements (
			fight_id String,
			user_id String,
			slot String,
			settled_at DateTime64(3),
			settled_by String,
			final_status String,
			is_winner Bool,
			is_draw Bool,
			realized_pnl Float64,
			unrealized_pnl Float64,
			total_fees Float64,
			margin Float64,
			peak_exposure Float64,
			pnl_percent Float64,
			score_usdc Float64,
			trades_count UInt32,
			verdict_source String,
			adjudicator_latency_ms Int64
		) ENGINE = MergeTree()
		ORDER BY (fight_id, user_id)`

	if err := h.client.Exec(context.Background(), query); err != nil {
		t.Fatalf("failed to create fight_settlements table: %v", err)
	}
}

// SettlementAuditFixture builds audit rows for ClickHouse tests
type SettlementAuditFixture struct {
	audit fight.SettlementAudit
}

// NewSettlementAuditFixture creates a fixture with a committed win
func NewSettlementAuditFixture() *SettlementAuditFixture {
	return &SettlementAuditFixture{
		audit: fight.SettlementAudit{
			FightID:       uuid.New(),
			UserID:        uuid.New(),
			Slot:          fight.SlotA,
			SettledAt:     time.Now().UTC(),
			SettledBy:     UniqueHolder(),
			FinalStatus:   fight.StatusFinished,
			IsWinner:      true,
			RealizedPnl:   decimal.NewFromFloat(9.8),
			TotalFees:     decimal.NewFromFloat(0.2),
			PnlPercent:    decimal.NewFromFloat(4.9),
			ScoreUsdc:     decimal.NewFromFloat(9.8),
			TradesCount:   2,
			VerdictSource: "adjudicator",
		},
	}
}

// WithFight sets the fight id
func (f *SettlementAuditFixture) WithFight(id uuid.UUID) *SettlementAuditFixture {
	f.audit.FightID = id
	return f
}

// WithUser sets the user id and slot
func (f *SettlementAuditFixture) WithUser(id uuid.UUID, slot fight.Slot) *SettlementAuditFixture {
	f.audit.UserID = id
	f.audit.Slot = slot
	return f
}

// WithOutcome sets winner and draw flags
func (f *SettlementAuditFixture) WithOutcome(isWinner, isDraw bool) *SettlementAuditFixture {
	f.audit.IsWinner = isWinner
	f.audit.IsDraw = isDraw
	return f
}

// WithStatus sets the terminal status
func (f *SettlementAuditFixture) WithStatus(status fight.Status) *SettlementAuditFixture {
	f.audit.FinalStatus = status
	return f
}

// WithFallbackVerdict marks the row as settled without the adjudicator
func (f *SettlementAuditFixture) WithFallbackVerdict() *SettlementAuditFixture {
	f.audit.VerdictSource = "fallback"
	f.audit.AdjudicatorLatencyMs = 0
	return f
}

// WithSettledAt sets the settlement timestamp
func (f *SettlementAuditFixture) WithSettledAt(at time.Time) *SettlementAuditFixture {
	f.audit.SettledAt = at
	return f
}

// Build returns the audit row
func (f *SettlementAuditFixture) Build() *fight.SettlementAudit {
	audit := f.audit
	return &audit
}
