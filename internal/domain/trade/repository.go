package trade

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the interface for the fight trade ledger
type Repository interface {
	// Append inserts one fill. The ledger assigns Seq.
	Append(ctx context.Context, t *FightTrade) error

	// ListByParticipant returns every fill of one participant in one
	// fight, ordered by executed_at then insertion sequence. The
	// accounting fold depends on this ordering.
	ListByParticipant(ctx context.Context, fightID, userID uuid.UUID) ([]*FightTrade, error)

	// CountByFight returns the number of ledger rows per user for a fight
	CountByFight(ctx context.Context, fightID uuid.UUID) (map[uuid.UUID]int, error)
}
