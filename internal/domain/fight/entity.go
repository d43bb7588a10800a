package fight

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Fight represents a timed 1v1 trading competition
type Fight struct {
	ID              uuid.UUID  `db:"id"`
	Status          Status     `db:"status"`
	DurationMinutes int        `db:"duration_minutes"`
	CreatedAt       time.Time  `db:"created_at"`
	StartedAt       *time.Time `db:"started_at"`
	EndedAt         *time.Time `db:"ended_at"`

	// Outcome (terminal statuses only)
	WinnerID *uuid.UUID `db:"winner_id"`
	IsDraw   bool       `db:"is_draw"`

	// Settlement lease. Both nil when unlocked.
	SettlingAt *time.Time `db:"settling_at"`
	SettlingBy *string    `db:"settling_by"`
}

// Deadline returns the scheduled end of the fight.
// Zero time and false while the fight has not started.
func (f *Fight) Deadline() (time.Time, bool) {
	if f.StartedAt == nil {
		return time.Time{}, false
	}
	return f.StartedAt.Add(time.Duration(f.DurationMinutes) * time.Minute), true
}

// IsSettleCandidate reports whether the fight is overdue for settlement.
// The buffer absorbs clock skew between scheduler and database.
func (f *Fight) IsSettleCandidate(now time.Time, buffer time.Duration) bool {
	if f.Status != StatusLive {
		return false
	}
	deadline, ok := f.Deadline()
	if !ok {
		return false
	}
	return now.After(deadline.Add(buffer))
}

// LockExpired reports whether the settlement lease is stale.
// An unlocked fight is not expired.
func (f *Fight) LockExpired(now time.Time, ttl time.Duration) bool {
	if f.SettlingAt == nil {
		return false
	}
	return now.Sub(*f.SettlingAt) > ttl
}

// Status defines fight lifecycle status
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusLive      Status = "live"
	StatusFinished  Status = "finished"
	StatusCancelled Status = "cancelled"
	StatusNoContest Status = "no_contest"
)

// Valid checks if fight status is valid
func (s Status) Valid() bool {
	switch s {
	case StatusWaiting, StatusLive, StatusFinished, StatusCancelled, StatusNoContest:
		return true
	}
	return false
}

// String returns string representation
func (s Status) String() string {
	return string(s)
}

// IsTerminal returns true once the fight can never change again
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusCancelled, StatusNoContest:
		return true
	}
	return false
}

// Slot identifies which side of the fight a participant occupies
type Slot string

const (
	SlotA Slot = "a"
	SlotB Slot = "b"
)

// Valid checks if slot is valid
func (s Slot) Valid() bool {
	return s == SlotA || s == SlotB
}

// String returns string representation
func (s Slot) String() string {
	return string(s)
}

// Participant binds a user to a fight
type Participant struct {
	FightID uuid.UUID `db:"fight_id"`
	UserID  uuid.UUID `db:"user_id"`
	Slot    Slot      `db:"slot"`

	// Snapshot of exchange positions at join time (JSONB)
	InitialPositions json.RawMessage `db:"initial_positions"`

	// High-water mark of margin consumed, advanced on every fill.
	// Denominator fallback when all positions are closed at settlement.
	MaxExposureUsed decimal.Decimal `db:"max_exposure_used"`

	// Final results, written exactly once at settlement commit
	FinalPnlPercent *decimal.Decimal `db:"final_pnl_percent"`
	FinalScoreUsdc  *decimal.Decimal `db:"final_score_usdc"`
	TradesCount     *int             `db:"trades_count"`

	JoinedAt time.Time `db:"joined_at"`
}

// PositionSnapshot captures one open position at fight join time
type PositionSnapshot struct {
	Amount     decimal.Decimal `json:"amount"`
	EntryPrice decimal.Decimal `json:"entry_price"`
}

// ParseInitialPositions parses the JSONB snapshot into a symbol map
func (p *Participant) ParseInitialPositions() (map[string]PositionSnapshot, error) {
	if len(p.InitialPositions) == 0 {
		return map[string]PositionSnapshot{}, nil
	}
	var snapshot map[string]PositionSnapshot
	if err := json.Unmarshal(p.InitialPositions, &snapshot); err != nil {
		return nil, err
	}
	return snapshot, nil
}

// SetInitialPositions serializes the snapshot into the JSONB field.
// A nil map is stored as an empty object, not JSON null.
func (p *Participant) SetInitialPositions(snapshot map[string]PositionSnapshot) error {
	if snapshot == nil {
		snapshot = map[string]PositionSnapshot{}
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	p.InitialPositions = data
	return nil
}

// IsSettled returns true once final results have been written
func (p *Participant) IsSettled() bool {
	return p.FinalPnlPercent != nil
}
