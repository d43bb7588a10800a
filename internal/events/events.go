package events

import (
	"time"

	"github.com/shopspring/decimal"
)

// FightStarted is emitted when the second participant joins and the
// fight goes live.
type FightStarted struct {
	FightID         string    `json:"fight_id"`
	UserAID         string    `json:"user_a_id"`
	UserBID         string    `json:"user_b_id"`
	DurationMinutes int       `json:"duration_minutes"`
	StartedAt       time.Time `json:"started_at"`
}

// FightCancelled is emitted when a waiting fight is withdrawn before
// an opponent joined.
type FightCancelled struct {
	FightID     string    `json:"fight_id"`
	CancelledAt time.Time `json:"cancelled_at"`
}

// ParticipantOutcome is one side of a settled fight.
type ParticipantOutcome struct {
	UserID      string          `json:"user_id"`
	PnlPercent  decimal.Decimal `json:"pnl_percent"`
	ScoreUsdc   decimal.Decimal `json:"score_usdc"`
	TradesCount int             `json:"trades_count"`
}

// FightSettled is emitted exactly once per fight, after the terminal
// result is committed.
type FightSettled struct {
	FightID     string               `json:"fight_id"`
	FinalStatus string               `json:"final_status"`
	WinnerID    *string              `json:"winner_id,omitempty"`
	IsDraw      bool                 `json:"is_draw"`
	SettledAt   time.Time            `json:"settled_at"`
	SettledBy   string               `json:"settled_by"`
	Outcomes    []ParticipantOutcome `json:"outcomes"`
}

// FightTradeExecuted is an inbound exchange fill, already scoped to a
// fight participant by the upstream trade router. Pnl is the
// exchange-reported realized PnL of the fill, net of fees.
type FightTradeExecuted struct {
	FightID    string          `json:"fight_id"`
	UserID     string          `json:"user_id"`
	Symbol     string          `json:"symbol"`
	Side       string          `json:"side"`
	Amount     decimal.Decimal `json:"amount"`
	Price      decimal.Decimal `json:"price"`
	Fee        decimal.Decimal `json:"fee"`
	Pnl        decimal.Decimal `json:"pnl"`
	Leverage   *int            `json:"leverage,omitempty"`
	ExecutedAt time.Time       `json:"executed_at"`
}
