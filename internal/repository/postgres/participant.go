package postgres

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"arena/internal/domain/fight"
	"arena/pkg/errors"
)

// Compile-time check
var _ fight.ParticipantRepository = (*ParticipantRepository)(nil)

// ParticipantRepository implements fight.ParticipantRepository using sqlx
type ParticipantRepository struct {
	db DBTX
}

// NewParticipantRepository creates a new participant repository
func NewParticipantRepository(db DBTX) *ParticipantRepository {
	return &ParticipantRepository{db: db}
}

const participantColumns = `fight_id, user_id, slot, initial_positions, max_exposure_used,
	   final_pnl_percent, final_score_usdc, trades_count, joined_at`

// insertParticipant writes a participant row. Shared by the fight
// repository's Create and Join transactions; participants are never
// inserted outside one of those.
func insertParticipant(ctx context.Context, db DBTX, p *fight.Participant) error {
	query := `
		INSERT INTO fight_participants (
			fight_id, user_id, slot, initial_positions, max_exposure_used,
			final_pnl_percent, final_score_usdc, trades_count, joined_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)`

	_, err := db.ExecContext(ctx, query,
		p.FightID, p.UserID, p.Slot, p.InitialPositions, p.MaxExposureUsed,
		p.FinalPnlPercent, p.FinalScoreUsdc, p.TradesCount, p.JoinedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to add participant")
	}

	return nil
}

// Get retrieves one participant of a fight
func (r *ParticipantRepository) Get(ctx context.Context, fightID, userID uuid.UUID) (*fight.Participant, error) {
	var p fight.Participant

	query := `
		SELECT ` + participantColumns + `
		FROM fight_participants
		WHERE fight_id = $1 AND user_id = $2`

	err := r.db.GetContext(ctx, &p, query, fightID, userID)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrParticipantNotFound, "fight %s user %s", fightID, userID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get participant")
	}

	return &p, nil
}

// GetByFight retrieves both participants, slot A first
func (r *ParticipantRepository) GetByFight(ctx context.Context, fightID uuid.UUID) ([]*fight.Participant, error) {
	var participants []*fight.Participant

	query := `
		SELECT ` + participantColumns + `
		FROM fight_participants
		WHERE fight_id = $1
		ORDER BY slot ASC`

	err := r.db.SelectContext(ctx, &participants, query, fightID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get participants")
	}

	return participants, nil
}

// AdvanceMaxExposure raises the high-water mark of notional exposure.
// GREATEST keeps the column monotonic under concurrent ingesters.
func (r *ParticipantRepository) AdvanceMaxExposure(ctx context.Context, fightID, userID uuid.UUID, exposure decimal.Decimal) error {
	query := `
		UPDATE fight_participants SET
			max_exposure_used = GREATEST(max_exposure_used, $3)
		WHERE fight_id = $1
		  AND user_id = $2`

	result, err := r.db.ExecContext(ctx, query, fightID, userID, exposure)
	if err != nil {
		return errors.Wrap(err, "failed to advance max exposure")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows == 0 {
		return errors.Wrapf(errors.ErrParticipantNotFound, "fight %s user %s", fightID, userID)
	}

	return nil
}
