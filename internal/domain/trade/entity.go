package trade

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FightTrade is one fill executed by a participant during a fight.
// The ledger is append-only; rows are never updated or deleted.
type FightTrade struct {
	ID      uuid.UUID `db:"id"`
	FightID uuid.UUID `db:"fight_id"`
	UserID  uuid.UUID `db:"user_id"`

	Symbol string `db:"symbol"`
	Side   Side   `db:"side"`

	// Amount is the unsigned fill quantity; direction comes from Side
	Amount decimal.Decimal `db:"amount"`
	Price  decimal.Decimal `db:"price"`
	Fee    decimal.Decimal `db:"fee"`

	// Pnl is the exchange-reported realized PnL of this fill, net of
	// fees. Meaningful only when the fill closes position; accounting
	// decides how much of it counts.
	Pnl decimal.Decimal `db:"pnl"`

	// Leverage as reported by the exchange, nil when not reported
	Leverage *int `db:"leverage"`

	ExecutedAt time.Time `db:"executed_at"`

	// Seq is the insertion sequence, the tie-break for fills sharing
	// an execution timestamp
	Seq int64 `db:"seq"`
}

// SignedAmount returns the position delta of this fill: positive for
// buys, negative for sells.
func (t *FightTrade) SignedAmount() decimal.Decimal {
	if t.Side == SideSell {
		return t.Amount.Neg()
	}
	return t.Amount
}

// Notional returns amount * price
func (t *FightTrade) Notional() decimal.Decimal {
	return t.Amount.Mul(t.Price)
}

// Side defines the direction of a fill
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Valid checks if side is valid
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// String returns string representation
func (s Side) String() string {
	return string(s)
}
