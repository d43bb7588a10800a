package fight

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ParticipantResult carries one side's final numbers into the commit
type ParticipantResult struct {
	UserID          uuid.UUID
	FinalPnlPercent decimal.Decimal
	FinalScoreUsdc  decimal.Decimal
	TradesCount     int
}

// SettlementCommit is the full terminal transition of one fight.
// Applied atomically: fight status plus both participant rows.
type SettlementCommit struct {
	FightID   uuid.UUID
	SettledBy string

	// Terminal status: FINISHED or NO_CONTEST
	Status   Status
	WinnerID *uuid.UUID
	IsDraw   bool
	EndedAt  time.Time

	Results []ParticipantResult
}

// SettlementAudit is one participant's side of a committed settlement,
// written to the analytics store. Best-effort: losing an audit row
// never fails a settlement.
type SettlementAudit struct {
	FightID   uuid.UUID
	UserID    uuid.UUID
	Slot      Slot
	SettledAt time.Time
	SettledBy string

	FinalStatus Status
	IsWinner    bool
	IsDraw      bool

	RealizedPnl   decimal.Decimal
	UnrealizedPnl decimal.Decimal
	TotalFees     decimal.Decimal
	Margin        decimal.Decimal
	PeakExposure  decimal.Decimal
	PnlPercent    decimal.Decimal
	ScoreUsdc     decimal.Decimal
	TradesCount   int

	// VerdictSource is "adjudicator" or "fallback"
	VerdictSource string
	// AdjudicatorLatencyMs is zero when the verdict came from fallback
	AdjudicatorLatencyMs int64
}
