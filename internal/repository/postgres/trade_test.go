package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arena/internal/domain/trade"
	"arena/internal/testsupport"
)

func TestTradeRepository_AppendAssignsSequence(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	defer testDB.Close()

	repo := NewTradeRepository(testDB.DB())
	fixtures := NewTestFixtures(t, testDB.DB())
	ctx := context.Background()

	fightID := fixtures.CreateFight()
	userID := fixtures.CreateParticipant(fightID)

	first := &trade.FightTrade{
		ID:         uuid.New(),
		FightID:    fightID,
		UserID:     userID,
		Symbol:     "BTCUSDT",
		Side:       trade.SideBuy,
		Amount:     decimal.NewFromFloat(1),
		Price:      decimal.NewFromFloat(100),
		Fee:        decimal.NewFromFloat(0.1),
		Pnl:        decimal.Zero,
		ExecutedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Append(ctx, first))
	assert.NotZero(t, first.Seq, "ledger must assign a sequence on append")

	second := &trade.FightTrade{
		ID:         uuid.New(),
		FightID:    fightID,
		UserID:     userID,
		Symbol:     "BTCUSDT",
		Side:       trade.SideSell,
		Amount:     decimal.NewFromFloat(1),
		Price:      decimal.NewFromFloat(110),
		Fee:        decimal.NewFromFloat(0.1),
		Pnl:        decimal.NewFromFloat(9.8),
		ExecutedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Append(ctx, second))
	assert.Greater(t, second.Seq, first.Seq)
}

func TestTradeRepository_ListByParticipant_Ordering(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	defer testDB.Close()

	repo := NewTradeRepository(testDB.DB())
	fixtures := NewTestFixtures(t, testDB.DB())
	ctx := context.Background()

	fightID := fixtures.CreateFight()
	userID := fixtures.CreateParticipant(fightID)
	otherID := fixtures.CreateParticipant(fightID)

	base := time.Now().UTC().Truncate(time.Millisecond)

	// Inserted out of execution order; same-instant fills tie-break on seq
	fixtures.CreateTrade(fightID, userID, WithTradeExecutedAt(base.Add(2*time.Second)), WithTradeSide(trade.SideSell, 1, 110))
	fixtures.CreateTrade(fightID, userID, WithTradeExecutedAt(base), WithTradeSide(trade.SideBuy, 1, 100))
	fixtures.CreateTrade(fightID, userID, WithTradeExecutedAt(base), WithTradeSide(trade.SideBuy, 0.5, 101))
	fixtures.CreateTrade(fightID, otherID, WithTradeExecutedAt(base.Add(time.Second)))

	trades, err := repo.ListByParticipant(ctx, fightID, userID)
	require.NoError(t, err)
	require.Len(t, trades, 3, "other participant's fills must not leak in")

	assert.True(t, trades[0].ExecutedAt.Equal(base))
	assert.True(t, trades[1].ExecutedAt.Equal(base))
	assert.Less(t, trades[0].Seq, trades[1].Seq, "same-instant fills ordered by insertion")
	assert.True(t, trades[2].ExecutedAt.Equal(base.Add(2*time.Second)))
	assert.Equal(t, trade.SideSell, trades[2].Side)
}

func TestTradeRepository_CountByFight(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	defer testDB.Close()

	repo := NewTradeRepository(testDB.DB())
	fixtures := NewTestFixtures(t, testDB.DB())
	ctx := context.Background()

	fightID := fixtures.CreateFight()
	userA := fixtures.CreateParticipant(fightID)
	userB := fixtures.CreateParticipant(fightID)

	fixtures.CreateTrade(fightID, userA)
	fixtures.CreateTrade(fightID, userA)
	fixtures.CreateTrade(fightID, userB)

	counts, err := repo.CountByFight(ctx, fightID)
	require.NoError(t, err)
	assert.Equal(t, 2, counts[userA])
	assert.Equal(t, 1, counts[userB])

	// A fight with no trades yields an empty map, not an error
	empty := fixtures.CreateFight()
	counts, err = repo.CountByFight(ctx, empty)
	require.NoError(t, err)
	assert.Empty(t, counts)
}
