package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"arena/internal/domain/fight"
	"arena/internal/domain/trade"
)

// TestFixtures provides factory methods for creating test data.
// Every created fight registers a cleanup that cascades to its
// participants and trades.
type TestFixtures struct {
	db *sqlx.DB
	t  *testing.T
}

// NewTestFixtures creates a new test fixtures factory
func NewTestFixtures(t *testing.T, db *sqlx.DB) *TestFixtures {
	t.Helper()
	return &TestFixtures{
		db: db,
		t:  t,
	}
}

// FightFixture configures a test fight
type FightFixture struct {
	Status          fight.Status
	DurationMinutes int
	StartedAgo      time.Duration
	SettlingAt      *time.Time
	SettlingBy      *string
}

// WithFightStatus sets the fight status
func WithFightStatus(status fight.Status) func(*FightFixture) {
	return func(f *FightFixture) { f.Status = status }
}

// WithFightDuration sets the fight duration in minutes
func WithFightDuration(minutes int) func(*FightFixture) {
	return func(f *FightFixture) { f.DurationMinutes = minutes }
}

// WithFightStartedAgo backdates started_at relative to now
func WithFightStartedAgo(ago time.Duration) func(*FightFixture) {
	return func(f *FightFixture) { f.StartedAgo = ago }
}

// WithFightLease stamps the settlement lease fields
func WithFightLease(holder string, at time.Time) func(*FightFixture) {
	return func(f *FightFixture) {
		f.SettlingAt = &at
		f.SettlingBy = &holder
	}
}

// CreateFight inserts a fight row, by default LIVE and already overdue
// so it qualifies for settlement without waiting in tests
func (f *TestFixtures) CreateFight(opts ...func(*FightFixture)) uuid.UUID {
	f.t.Helper()

	fixture := &FightFixture{
		Status:          fight.StatusLive,
		DurationMinutes: 5,
		StartedAgo:      10 * time.Minute,
	}
	for _, opt := range opts {
		opt(fixture)
	}

	id := uuid.New()
	now := time.Now().UTC()

	var startedAt *time.Time
	if fixture.Status != fight.StatusWaiting {
		started := now.Add(-fixture.StartedAgo)
		startedAt = &started
	}

	query := `
		INSERT INTO fights (id, status, duration_minutes, created_at, started_at, is_draw, settling_at, settling_by)
		VALUES ($1, $2, $3, $4, $5, false, $6, $7)`

	_, err := f.db.Exec(query, id, fixture.Status, fixture.DurationMinutes,
		now.Add(-fixture.StartedAgo-time.Minute), startedAt, fixture.SettlingAt, fixture.SettlingBy)
	require.NoError(f.t, err, "Failed to create test fight")

	f.t.Cleanup(func() {
		_, _ = f.db.Exec(`DELETE FROM fight_trades WHERE fight_id = $1`, id)
		_, _ = f.db.Exec(`DELETE FROM fight_participants WHERE fight_id = $1`, id)
		_, _ = f.db.Exec(`DELETE FROM fights WHERE id = $1`, id)
	})

	return id
}

// ParticipantFixture configures a test participant
type ParticipantFixture struct {
	Slot            fight.Slot
	MaxExposureUsed decimal.Decimal
}

// WithParticipantSlot sets the participant slot
func WithParticipantSlot(slot fight.Slot) func(*ParticipantFixture) {
	return func(p *ParticipantFixture) { p.Slot = slot }
}

// WithMaxExposure sets the max exposure high-water mark
func WithMaxExposure(exposure decimal.Decimal) func(*ParticipantFixture) {
	return func(p *ParticipantFixture) { p.MaxExposureUsed = exposure }
}

// CreateParticipant inserts a participant row and returns its user id
func (f *TestFixtures) CreateParticipant(fightID uuid.UUID, opts ...func(*ParticipantFixture)) uuid.UUID {
	f.t.Helper()

	fixture := &ParticipantFixture{
		Slot:            fight.SlotA,
		MaxExposureUsed: decimal.Zero,
	}
	for _, opt := range opts {
		opt(fixture)
	}

	userID := uuid.New()
	query := `
		INSERT INTO fight_participants (fight_id, user_id, slot, initial_positions, max_exposure_used, joined_at)
		VALUES ($1, $2, $3, '{}', $4, NOW())`

	_, err := f.db.Exec(query, fightID, userID, fixture.Slot, fixture.MaxExposureUsed)
	require.NoError(f.t, err, "Failed to create test participant")

	return userID
}

// TradeFixture configures a test fill
type TradeFixture struct {
	Symbol     string
	Side       trade.Side
	Amount     decimal.Decimal
	Price      decimal.Decimal
	Fee        decimal.Decimal
	Pnl        decimal.Decimal
	Leverage   *int
	ExecutedAt time.Time
}

// WithTradeSide sets side, amount and price in one call
func WithTradeSide(side trade.Side, amount, price float64) func(*TradeFixture) {
	return func(tr *TradeFixture) {
		tr.Side = side
		tr.Amount = decimal.NewFromFloat(amount)
		tr.Price = decimal.NewFromFloat(price)
	}
}

// WithTradePnl sets the exchange-reported pnl
func WithTradePnl(pnl float64) func(*TradeFixture) {
	return func(tr *TradeFixture) { tr.Pnl = decimal.NewFromFloat(pnl) }
}

// WithTradeExecutedAt sets the execution timestamp
func WithTradeExecutedAt(at time.Time) func(*TradeFixture) {
	return func(tr *TradeFixture) { tr.ExecutedAt = at }
}

// CreateTrade inserts a ledger row directly, bypassing the repository
func (f *TestFixtures) CreateTrade(fightID, userID uuid.UUID, opts ...func(*TradeFixture)) uuid.UUID {
	f.t.Helper()

	fixture := &TradeFixture{
		Symbol:     "BTCUSDT",
		Side:       trade.SideBuy,
		Amount:     decimal.NewFromFloat(1),
		Price:      decimal.NewFromFloat(100),
		Fee:        decimal.NewFromFloat(0.1),
		Pnl:        decimal.Zero,
		ExecutedAt: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(fixture)
	}

	id := uuid.New()
	query := `
		INSERT INTO fight_trades (id, fight_id, user_id, symbol, side, amount, price, fee, pnl, leverage, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := f.db.Exec(query, id, fightID, userID, fixture.Symbol, fixture.Side,
		fixture.Amount, fixture.Price, fixture.Fee, fixture.Pnl, fixture.Leverage, fixture.ExecutedAt)
	require.NoError(f.t, err, "Failed to create test trade")

	return id
}
