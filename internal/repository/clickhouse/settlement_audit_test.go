package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena/internal/domain/fight"
	"arena/internal/testsupport"
)

func TestSettlementAuditRepository_RecordAndFlush(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := testsupport.LoadDatabaseConfigsFromEnv(t)
	helper := testsupport.NewClickHouseTestHelper(t, cfg.ClickHouse)
	helper.EnsureFightSettlementsTable(t)

	repo := NewSettlementAuditRepository(helper.Client().Conn())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo.Start(ctx)

	fightID := uuid.New()
	helper.RegisterTableCleanup(t, "fight_settlements", "fight_id = '"+fightID.String()+"'")

	winner := testsupport.NewSettlementAuditFixture().
		WithFight(fightID).
		WithUser(uuid.New(), fight.SlotA).
		WithOutcome(true, false).
		Build()
	loser := testsupport.NewSettlementAuditFixture().
		WithFight(fightID).
		WithUser(uuid.New(), fight.SlotB).
		WithOutcome(false, false).
		Build()

	require.NoError(t, repo.Record(ctx, winner))
	require.NoError(t, repo.Record(ctx, loser))

	// Stop drains the buffer so both rows are flushed in one batch.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	require.NoError(t, repo.Stop(stopCtx))

	var count uint64
	row := helper.Client().Conn().QueryRow(context.Background(),
		"SELECT count() FROM fight_settlements WHERE fight_id = ?", fightID.String())
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, uint64(2), count)
}

func TestSettlementAuditRepository_GetUserRecord(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := testsupport.LoadDatabaseConfigsFromEnv(t)
	helper := testsupport.NewClickHouseTestHelper(t, cfg.ClickHouse)
	helper.EnsureFightSettlementsTable(t)

	repo := NewSettlementAuditRepository(helper.Client().Conn())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo.Start(ctx)

	userID := uuid.New()
	helper.RegisterTableCleanup(t, "fight_settlements", "user_id = '"+userID.String()+"'")

	// Two wins, one draw, one loss for the same user.
	rows := []*fight.SettlementAudit{
		testsupport.NewSettlementAuditFixture().WithUser(userID, fight.SlotA).WithOutcome(true, false).Build(),
		testsupport.NewSettlementAuditFixture().WithUser(userID, fight.SlotB).WithOutcome(true, false).Build(),
		testsupport.NewSettlementAuditFixture().WithUser(userID, fight.SlotA).WithOutcome(false, true).Build(),
		testsupport.NewSettlementAuditFixture().WithUser(userID, fight.SlotA).WithOutcome(false, false).Build(),
	}
	for _, row := range rows {
		require.NoError(t, repo.Record(ctx, row))
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	require.NoError(t, repo.Stop(stopCtx))

	wins, draws, losses, err := repo.GetUserRecord(context.Background(), userID.String())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), wins)
	assert.Equal(t, uint64(1), draws)
	assert.Equal(t, uint64(1), losses)
}

func TestSettlementAuditRepository_GetFallbackVerdictRate(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	cfg := testsupport.LoadDatabaseConfigsFromEnv(t)
	helper := testsupport.NewClickHouseTestHelper(t, cfg.ClickHouse)
	helper.EnsureFightSettlementsTable(t)

	repo := NewSettlementAuditRepository(helper.Client().Conn())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	repo.Start(ctx)

	// Isolate this test in its own time window.
	base := time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)
	helper.RegisterTableCleanup(t, "fight_settlements",
		"settled_at BETWEEN '2020-03-01 00:00:00' AND '2020-03-02 00:00:00'")

	rows := []*fight.SettlementAudit{
		testsupport.NewSettlementAuditFixture().WithSettledAt(base).Build(),
		testsupport.NewSettlementAuditFixture().WithSettledAt(base.Add(time.Minute)).Build(),
		testsupport.NewSettlementAuditFixture().WithSettledAt(base.Add(2 * time.Minute)).WithFallbackVerdict().Build(),
		testsupport.NewSettlementAuditFixture().WithSettledAt(base.Add(3 * time.Minute)).WithFallbackVerdict().Build(),
	}
	for _, row := range rows {
		require.NoError(t, repo.Record(ctx, row))
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	require.NoError(t, repo.Stop(stopCtx))

	rate, err := repo.GetFallbackVerdictRate(context.Background(), base.Add(-time.Hour), base.Add(time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 0.5, rate, 0.001)
}
